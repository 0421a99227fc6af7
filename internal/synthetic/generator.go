package synthetic

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/trogers1052/stock-history-cache/internal/models"
)

// Store is the write side of the series cache
type Store interface {
	Put(ctx context.Context, key models.CacheKey, data models.RawSeries) error
}

// Rand is the random source the generator draws from
type Rand interface {
	Float64() float64
	IntN(n int) int
}

// globalRand draws from math/rand's auto-seeded top-level source
type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }
func (globalRand) IntN(n int) int   { return rand.Intn(n) }

// Generator produces fake OHLCV series for seeding the cache without calling upstream.
// Values are random on every run; only their shape is fixed.
type Generator struct {
	store Store
	rand  Rand
	now   func() time.Time
}

// NewGenerator creates a generator writing into store
func NewGenerator(store Store) *Generator {
	return &Generator{store: store, rand: globalRand{}, now: time.Now}
}

// WithRand replaces the random source
func (g *Generator) WithRand(r Rand) *Generator {
	g.rand = r
	return g
}

// WithClock replaces the time source
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// GenerateAndStore replaces the cached series for key with periods fake rows
func (g *Generator) GenerateAndStore(ctx context.Context, key models.CacheKey, periods int, interval models.Interval) error {
	series, err := g.Generate(periods, interval)
	if err != nil {
		return err
	}
	if err := g.store.Put(ctx, key, series); err != nil {
		return fmt.Errorf("failed to store synthetic series for %s: %w", key, err)
	}
	return nil
}

// Generate builds periods rows spaced one interval apart, counting back from now.
// Row i trends around 100 + 0.5*i, so prices fall toward the present.
func (g *Generator) Generate(periods int, interval models.Interval) (models.RawSeries, error) {
	if periods <= 0 {
		return nil, fmt.Errorf("periods must be positive, got %d", periods)
	}
	step, err := stepDays(interval)
	if err != nil {
		return nil, err
	}

	now := g.now()
	series := make(models.RawSeries, periods)
	for i := 0; i < periods; i++ {
		date := now.AddDate(0, 0, -step*i).Format(models.DateLayout)

		base := 100 + float64(i)*0.5
		open := base + g.uniform(-1, 1)
		high := open + g.uniform(0, 2)
		low := math.Max(0, open-g.uniform(0, 2))
		closePrice := low + g.uniform(0, high-low)
		volume := 1000 + g.rand.IntN(9001)

		series[date] = models.Bar{
			models.FieldOpen:   formatPrice(open),
			models.FieldHigh:   formatPrice(high),
			models.FieldLow:    formatPrice(low),
			models.FieldClose:  formatPrice(closePrice),
			models.FieldVolume: strconv.Itoa(volume),
		}
	}
	return series, nil
}

func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*g.rand.Float64()
}

// stepDays maps an interval onto calendar days; a month is always 30 days
func stepDays(interval models.Interval) (int, error) {
	switch interval {
	case models.IntervalDaily:
		return 1, nil
	case models.IntervalWeekly:
		return 7, nil
	case models.IntervalMonthly:
		return 30, nil
	}
	return 0, fmt.Errorf("invalid interval: %s", interval)
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
