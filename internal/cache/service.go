// Package cache implements the cache-aside fetch path shared by history,
// projection, forced refresh and synthetic seeding.
//
// Concurrent misses for the same key are not collapsed: each one goes
// upstream and writes back, and the last write wins. Wrap a Service in
// Deduplicated to collapse concurrent identical fetches.
package cache

import (
	"context"
	"log"

	"github.com/trogers1052/stock-history-cache/internal/models"
	"github.com/trogers1052/stock-history-cache/internal/synthetic"
)

// Store is the persistent side of the cache
type Store interface {
	Get(ctx context.Context, key models.CacheKey) (*models.CacheEntry, error)
	Put(ctx context.Context, key models.CacheKey, data models.RawSeries) error
	Delete(ctx context.Context, key models.CacheKey) error
}

// Fetcher retrieves a series from the upstream provider
type Fetcher interface {
	Fetch(ctx context.Context, key models.CacheKey, outputSize models.OutputSize) (models.RawSeries, error)
}

// Publisher announces cache writes
type Publisher interface {
	PublishCacheEvent(ctx context.Context, eventType string, key models.CacheKey, points int) error
}

// Service is the cache-aside orchestrator
type Service struct {
	store     Store
	fetcher   Fetcher
	generator *synthetic.Generator
	publisher Publisher
}

// NewService creates a Service over store and fetcher
func NewService(store Store, fetcher Fetcher) *Service {
	return &Service{
		store:     store,
		fetcher:   fetcher,
		generator: synthetic.NewGenerator(store),
	}
}

// WithPublisher attaches an event publisher; nil disables publishing
func (s *Service) WithPublisher(p Publisher) *Service {
	s.publisher = p
	return s
}

// WithGenerator replaces the synthetic data generator
func (s *Service) WithGenerator(g *synthetic.Generator) *Service {
	s.generator = g
	return s
}

// FetchSeries returns the fresh cached series for key, or fetches it upstream
// and stores it. Upstream errors are returned unchanged; stale data is never served.
func (s *Service) FetchSeries(ctx context.Context, key models.CacheKey, outputSize models.OutputSize) (models.RawSeries, error) {
	entry, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		return entry.Data, nil
	}

	return s.fill(ctx, key, outputSize, models.EventCacheFilled)
}

// Refresh drops the cached entry for key and refetches it, regardless of freshness
func (s *Service) Refresh(ctx context.Context, key models.CacheKey, outputSize models.OutputSize) (models.RawSeries, error) {
	if err := s.store.Delete(ctx, key); err != nil {
		return nil, err
	}

	return s.fill(ctx, key, outputSize, models.EventCacheRefreshed)
}

// Seed overwrites the entry for key with a synthetic series
func (s *Service) Seed(ctx context.Context, key models.CacheKey, periods int, interval models.Interval) error {
	if err := s.generator.GenerateAndStore(ctx, key, periods, interval); err != nil {
		return err
	}

	log.Printf("Inserted %d fake points for %s", periods, key)
	s.publish(ctx, models.EventCacheSeeded, key, periods)
	return nil
}

func (s *Service) fill(ctx context.Context, key models.CacheKey, outputSize models.OutputSize, eventType string) (models.RawSeries, error) {
	series, err := s.fetcher.Fetch(ctx, key, outputSize)
	if err != nil {
		return nil, err
	}

	if err := s.store.Put(ctx, key, series); err != nil {
		return nil, err
	}

	log.Printf("Cached %d points for %s (outputsize=%s)", len(series), key, outputSize)
	s.publish(ctx, eventType, key, len(series))
	return series, nil
}

func (s *Service) publish(ctx context.Context, eventType string, key models.CacheKey, points int) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishCacheEvent(ctx, eventType, key, points); err != nil {
		log.Printf("Failed to publish %s for %s: %v", eventType, key, err)
	}
}
