package models

// Contribution basis constants
const (
	BasisWeekly  = "weekly"
	BasisMonthly = "monthly"
)

// Projection output modes
const (
	OutputTotal  = "total"
	OutputAnnual = "annual"
)

// FutureResponse is the result of a future value projection
type FutureResponse struct {
	Symbol                string          `json:"symbol"`
	Years                 int             `json:"years"`
	Basis                 string          `json:"basis"`
	ContributionPerPeriod float64         `json:"contribution_per_period"`
	PeriodsPerYear        int             `json:"periods_per_year"`
	AnnualReturnUsed      float64         `json:"annual_return_used"`
	TotalContributions    float64         `json:"total_contributions"`
	ProjectedValue        *float64        `json:"projected_value,omitempty"`
	AnnualBalances        map[int]float64 `json:"annual_balances,omitempty"`
}
