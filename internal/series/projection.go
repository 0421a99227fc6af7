package series

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/stock-history-cache/internal/models"
)

// ErrInsufficientData is returned when a series cannot yield a growth rate
var ErrInsufficientData = errors.New("not enough data to compute growth rate")

// ErrInvalidProjection is returned for out-of-range projection parameters
var ErrInvalidProjection = errors.New("invalid projection parameters")

// MaxYears bounds a projection's horizon so the period count stays small
const MaxYears = 1000

// ProjectionParams describes a regular-contribution projection
type ProjectionParams struct {
	Symbol string
	Years  int
	// Amount is contributed once per period.
	Amount float64
	Basis  string
	// AnnualReturn overrides the historical growth rate when set.
	AnnualReturn *float64
	Output       string
}

// PeriodsPerYear returns the number of contributions a year holds for basis
func PeriodsPerYear(basis string) int {
	if basis == models.BasisWeekly {
		return 52
	}
	return 12
}

// HistoricalCAGR computes the compound annual growth rate between the first
// and last close of an ascending series
func HistoricalCAGR(points []models.TimeSeriesPoint) (float64, error) {
	if len(points) < 2 {
		return 0, ErrInsufficientData
	}

	first, last := points[0], points[len(points)-1]
	days := math.Floor(last.Date.Sub(first.Date).Hours() / 24)
	yearsSpan := days / 365.0
	if yearsSpan <= 0 || first.Close <= 0 {
		return 0, ErrInsufficientData
	}

	cagr := math.Pow(last.Close/first.Close, 1/yearsSpan) - 1
	if !isFinite(cagr) {
		return 0, ErrInsufficientData
	}
	return cagr, nil
}

// FutureValue returns the value of periods equal contributions of amount
// compounding at periodicRate
func FutureValue(amount, periodicRate float64, periods int) float64 {
	if periodicRate == 0 {
		return amount * float64(periods)
	}
	return amount * ((math.Pow(1+periodicRate, float64(periods)) - 1) / periodicRate)
}

// ProjectFutureValue projects regular contributions over params.Years using the
// series' historical growth rate, or params.AnnualReturn when given. Money is
// rounded to cents and the rate to four places, half away from zero on the
// shortest decimal form of the value (2.675 becomes 2.68).
func ProjectFutureValue(points []models.TimeSeriesPoint, params ProjectionParams) (*models.FutureResponse, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(points) < 2 {
		return nil, ErrInsufficientData
	}

	var rate float64
	if params.AnnualReturn != nil {
		rate = *params.AnnualReturn
	} else {
		cagr, err := HistoricalCAGR(points)
		if err != nil {
			return nil, err
		}
		rate = cagr
	}

	n := PeriodsPerYear(params.Basis)
	periodic := math.Pow(1+rate, 1/float64(n)) - 1
	if !isFinite(periodic) {
		return nil, fmt.Errorf("%w: annual return %v", ErrInvalidProjection, rate)
	}

	total := params.Years * n
	resp := &models.FutureResponse{
		Symbol:                params.Symbol,
		Years:                 params.Years,
		Basis:                 params.Basis,
		ContributionPerPeriod: params.Amount,
		PeriodsPerYear:        n,
		AnnualReturnUsed:      round(rate, 4),
		TotalContributions:    round(params.Amount*float64(total), 2),
	}

	if params.Output == models.OutputAnnual {
		resp.AnnualBalances = make(map[int]float64, params.Years)
		for year := 1; year <= params.Years; year++ {
			fv := FutureValue(params.Amount, periodic, year*n)
			if !isFinite(fv) {
				return nil, fmt.Errorf("%w: balance overflows in year %d", ErrInvalidProjection, year)
			}
			resp.AnnualBalances[year] = round(fv, 2)
		}
		return resp, nil
	}

	fv := FutureValue(params.Amount, periodic, total)
	if !isFinite(fv) {
		return nil, fmt.Errorf("%w: projected value overflows", ErrInvalidProjection)
	}
	projected := round(fv, 2)
	resp.ProjectedValue = &projected
	return resp, nil
}

// Validate checks the parameters without touching any series
func (p ProjectionParams) Validate() error {
	if p.Years <= 0 {
		return fmt.Errorf("%w: years must be positive", ErrInvalidProjection)
	}
	if p.Years > MaxYears {
		return fmt.Errorf("%w: years must be at most %d", ErrInvalidProjection, MaxYears)
	}
	if !(p.Amount > 0) || !isFinite(p.Amount) {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidProjection)
	}
	if p.Basis != models.BasisWeekly && p.Basis != models.BasisMonthly {
		return fmt.Errorf("%w: basis must be weekly or monthly", ErrInvalidProjection)
	}
	if p.Output != models.OutputTotal && p.Output != models.OutputAnnual {
		return fmt.Errorf("%w: output must be total or annual", ErrInvalidProjection)
	}
	if p.AnnualReturn != nil && !isFinite(*p.AnnualReturn) {
		return fmt.Errorf("%w: annual return must be finite", ErrInvalidProjection)
	}
	return nil
}

func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
