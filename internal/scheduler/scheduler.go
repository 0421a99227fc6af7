package scheduler

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/trogers1052/stock-history-cache/internal/models"
)

// SeriesFetcher reads a series through the cache
type SeriesFetcher interface {
	FetchSeries(ctx context.Context, key models.CacheKey, outputSize models.OutputSize) (models.RawSeries, error)
}

// Scheduler periodically reads every watched series through the cache so that
// users hit a warm entry. Fresh entries are left alone.
type Scheduler struct {
	Cron    *cron.Cron
	fetcher SeriesFetcher
	watch   []models.CacheKey
	timeout time.Duration
	ctx     context.Context
}

// NewScheduler creates a new Scheduler
func NewScheduler(ctx context.Context, fetcher SeriesFetcher, watch []models.CacheKey) *Scheduler {
	return &Scheduler{
		Cron:    cron.New(cron.WithSeconds()),
		fetcher: fetcher,
		watch:   watch,
		timeout: time.Minute,
		ctx:     ctx,
	}
}

// Register schedules the warm-up task with a six-field cron expression
func (s *Scheduler) Register(expr string) error {
	if _, err := s.Cron.AddFunc(expr, func() { s.RunNow(s.ctx) }); err != nil {
		return fmt.Errorf("register warm-up task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Printf("Scheduler started, watching %d series", len(s.watch))
}

// Stop stops the cron scheduler and waits for a running task to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Println("Scheduler stopped")
}

// RunNow warms every watched series once and returns how many failed.
// Series skipped because ctx ended count as failed.
func (s *Scheduler) RunNow(ctx context.Context) int {
	failed := 0
	for i, key := range s.watch {
		if ctx.Err() != nil {
			return failed + len(s.watch) - i
		}

		fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
		_, err := s.fetcher.FetchSeries(fetchCtx, key, models.OutputSizeFull)
		cancel()
		if err != nil {
			failed++
			log.Printf("Warm-up failed for %s: %v", key, err)
		}
	}
	log.Printf("Warm-up finished: %d series, %d failed", len(s.watch), failed)
	return failed
}

// ParseWatchList turns entries of the form SYMBOL or SYMBOL:interval into cache
// keys. The interval defaults to monthly; blank entries are skipped.
func ParseWatchList(entries []string) ([]models.CacheKey, error) {
	var keys []models.CacheKey
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		symbol, intervalName, hasInterval := strings.Cut(entry, ":")
		interval := models.IntervalMonthly
		if hasInterval {
			parsed, err := models.ParseInterval(strings.TrimSpace(intervalName))
			if err != nil {
				return nil, fmt.Errorf("watch entry %q: %w", entry, err)
			}
			interval = parsed
		}

		symbol = strings.TrimSpace(symbol)
		if symbol == "" {
			return nil, fmt.Errorf("watch entry %q: symbol is required", entry)
		}
		keys = append(keys, models.CacheKey{Symbol: symbol, Function: interval.Function()})
	}
	return keys, nil
}
