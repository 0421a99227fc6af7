package cache

import (
	"context"

	"github.com/trogers1052/stock-history-cache/internal/models"
	"golang.org/x/sync/singleflight"
)

// Deduplicated collapses concurrent FetchSeries calls for the same key and
// output size into one trip through the underlying Service. The shared call
// runs detached from any caller's cancellation and is bounded by the upstream
// client timeout; a caller whose context ends stops waiting without failing
// the others. Refresh and Seed pass straight through.
type Deduplicated struct {
	*Service
	group singleflight.Group
}

// NewDeduplicated wraps s
func NewDeduplicated(s *Service) *Deduplicated {
	return &Deduplicated{Service: s}
}

// FetchSeries is Service.FetchSeries with in-flight de-duplication
func (d *Deduplicated) FetchSeries(ctx context.Context, key models.CacheKey, outputSize models.OutputSize) (models.RawSeries, error) {
	shared := context.WithoutCancel(ctx)
	ch := d.group.DoChan(key.String()+"|"+string(outputSize), func() (interface{}, error) {
		return d.Service.FetchSeries(shared, key, outputSize)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(models.RawSeries), nil
	}
}
