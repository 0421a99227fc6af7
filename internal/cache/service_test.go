package cache

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/stock-history-cache/internal/alphavantage"
	"github.com/trogers1052/stock-history-cache/internal/database"
	"github.com/trogers1052/stock-history-cache/internal/models"
)

// MockStore is an in-memory Store; entries listed in stale are treated as expired
type MockStore struct {
	mu      sync.Mutex
	entries map[models.CacheKey]*models.CacheEntry
	stale   map[models.CacheKey]bool
	getErr  error
	putErr  error

	GetCalls    int
	PutCalls    int
	DeleteCalls int
}

func NewMockStore() *MockStore {
	return &MockStore{
		entries: make(map[models.CacheKey]*models.CacheEntry),
		stale:   make(map[models.CacheKey]bool),
	}
}

func (m *MockStore) Get(ctx context.Context, key models.CacheKey) (*models.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetCalls++
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.stale[key] {
		return nil, nil
	}
	return m.entries[key], nil
}

func (m *MockStore) Put(ctx context.Context, key models.CacheKey, data models.RawSeries) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PutCalls++
	if m.putErr != nil {
		return m.putErr
	}
	m.entries[key] = &models.CacheEntry{Key: key, FetchedAt: time.Now(), Data: data}
	delete(m.stale, key)
	return nil
}

func (m *MockStore) Delete(ctx context.Context, key models.CacheKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls++
	delete(m.entries, key)
	delete(m.stale, key)
	return nil
}

// MockFetcher returns a fixed series and counts calls
type MockFetcher struct {
	mu     sync.Mutex
	series models.RawSeries
	err    error
	delay  time.Duration
	// barrier, when set, holds each call until every expected caller has arrived.
	barrier *sync.WaitGroup

	FetchCalls     int
	LastOutputSize models.OutputSize
}

func (m *MockFetcher) Fetch(ctx context.Context, key models.CacheKey, outputSize models.OutputSize) (models.RawSeries, error) {
	if m.barrier != nil {
		m.barrier.Done()
		m.barrier.Wait()
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FetchCalls++
	m.LastOutputSize = outputSize
	if m.err != nil {
		return nil, m.err
	}
	return m.series, nil
}

// MockPublisher records published events
type MockPublisher struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (m *MockPublisher) PublishCacheEvent(ctx context.Context, eventType string, key models.CacheKey, points int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, eventType)
	return m.err
}

var (
	testKey    = models.CacheKey{Symbol: "IBM", Function: models.FunctionMonthly}
	upstream   = models.RawSeries{"2024-01-31": {models.FieldClose: "183.66"}, "2024-02-29": {models.FieldClose: "185.03"}}
	cachedData = models.RawSeries{"2023-12-29": {models.FieldClose: "163.55"}}
)

func TestFetchSeries(t *testing.T) {
	ctx := context.Background()

	t.Run("fresh entry never calls upstream", func(t *testing.T) {
		store := NewMockStore()
		require.NoError(t, store.Put(ctx, testKey, cachedData))
		fetcher := &MockFetcher{series: upstream}

		got, err := NewService(store, fetcher).FetchSeries(ctx, testKey, models.OutputSizeFull)
		require.NoError(t, err)
		assert.Equal(t, cachedData, got)
		assert.Equal(t, 0, fetcher.FetchCalls)
	})

	t.Run("missing entry is fetched once and stored", func(t *testing.T) {
		store := NewMockStore()
		fetcher := &MockFetcher{series: upstream}

		got, err := NewService(store, fetcher).FetchSeries(ctx, testKey, models.OutputSizeCompact)
		require.NoError(t, err)
		assert.Equal(t, upstream, got)
		assert.Equal(t, 1, fetcher.FetchCalls)
		assert.Equal(t, models.OutputSizeCompact, fetcher.LastOutputSize)
		assert.Equal(t, upstream, store.entries[testKey].Data)
	})

	t.Run("stale entry is refetched", func(t *testing.T) {
		store := NewMockStore()
		require.NoError(t, store.Put(ctx, testKey, cachedData))
		store.stale[testKey] = true
		fetcher := &MockFetcher{series: upstream}

		got, err := NewService(store, fetcher).FetchSeries(ctx, testKey, models.OutputSizeFull)
		require.NoError(t, err)
		assert.Equal(t, upstream, got)
		assert.Equal(t, 1, fetcher.FetchCalls)
		assert.Equal(t, upstream, store.entries[testKey].Data)
	})

	t.Run("upstream error propagates and nothing is stored", func(t *testing.T) {
		store := NewMockStore()
		upErr := &alphavantage.UpstreamError{Kind: alphavantage.KindProviderMessage, Message: "Invalid API call."}
		fetcher := &MockFetcher{err: upErr}

		got, err := NewService(store, fetcher).FetchSeries(ctx, testKey, models.OutputSizeFull)
		assert.Nil(t, got)
		assert.Same(t, upErr, err)
		assert.Equal(t, 0, store.PutCalls)
	})

	t.Run("upstream error does not fall back to stale data", func(t *testing.T) {
		store := NewMockStore()
		require.NoError(t, store.Put(ctx, testKey, cachedData))
		store.stale[testKey] = true
		fetcher := &MockFetcher{err: errors.New("boom")}

		got, err := NewService(store, fetcher).FetchSeries(ctx, testKey, models.OutputSizeFull)
		assert.Nil(t, got)
		assert.Error(t, err)
	})

	t.Run("store read error propagates", func(t *testing.T) {
		store := NewMockStore()
		store.getErr = errors.New("disk I/O error")
		fetcher := &MockFetcher{series: upstream}

		_, err := NewService(store, fetcher).FetchSeries(ctx, testKey, models.OutputSizeFull)
		assert.ErrorIs(t, err, store.getErr)
		assert.Equal(t, 0, fetcher.FetchCalls)
	})

	t.Run("store write error fails the call", func(t *testing.T) {
		store := NewMockStore()
		store.putErr = errors.New("database is locked")
		fetcher := &MockFetcher{series: upstream}

		got, err := NewService(store, fetcher).FetchSeries(ctx, testKey, models.OutputSizeFull)
		assert.Nil(t, got)
		assert.ErrorIs(t, err, store.putErr)
	})

	t.Run("concurrent misses may each go upstream", func(t *testing.T) {
		store := NewMockStore()
		barrier := &sync.WaitGroup{}
		barrier.Add(2)
		fetcher := &MockFetcher{series: upstream, barrier: barrier}
		svc := NewService(store, fetcher)

		var wg sync.WaitGroup
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				got, err := svc.FetchSeries(ctx, testKey, models.OutputSizeFull)
				assert.NoError(t, err)
				assert.Equal(t, upstream, got)
			}()
		}
		wg.Wait()

		assert.Equal(t, 2, fetcher.FetchCalls)
		assert.Equal(t, 2, store.PutCalls)
	})
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("refresh bypasses a fresh entry", func(t *testing.T) {
		store := NewMockStore()
		require.NoError(t, store.Put(ctx, testKey, cachedData))
		fetcher := &MockFetcher{series: upstream}

		got, err := NewService(store, fetcher).Refresh(ctx, testKey, models.OutputSizeFull)
		require.NoError(t, err)
		assert.Equal(t, upstream, got)
		assert.Equal(t, 1, store.DeleteCalls)
		assert.Equal(t, 1, fetcher.FetchCalls)
		assert.Equal(t, upstream, store.entries[testKey].Data)
	})

	t.Run("failed refresh leaves the key empty", func(t *testing.T) {
		store := NewMockStore()
		require.NoError(t, store.Put(ctx, testKey, cachedData))
		fetcher := &MockFetcher{err: errors.New("timeout")}

		_, err := NewService(store, fetcher).Refresh(ctx, testKey, models.OutputSizeFull)
		assert.Error(t, err)
		assert.NotContains(t, store.entries, testKey)
	})
}

func TestServiceWithSQLiteStore(t *testing.T) {
	ctx := context.Background()

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.RunMigrations())

	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local)
	clock := func() time.Time { return now }
	store := database.NewSeriesCache(db, database.DefaultTTL).WithClock(clock)
	fetcher := &MockFetcher{series: upstream}
	svc := NewService(store, fetcher)

	t.Run("stale entry is refetched with a new fetched_at", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, testKey, cachedData))
		now = now.Add(25 * time.Hour)

		got, err := svc.FetchSeries(ctx, testKey, models.OutputSizeFull)
		require.NoError(t, err)
		assert.Equal(t, upstream, got)
		assert.Equal(t, 1, fetcher.FetchCalls)

		entry, err := store.Lookup(ctx, testKey)
		require.NoError(t, err)
		assert.True(t, now.Equal(entry.FetchedAt))
		assert.Equal(t, upstream, entry.Data)
	})

	t.Run("fresh entry is served from the store", func(t *testing.T) {
		now = now.Add(time.Hour)

		_, err := svc.FetchSeries(ctx, testKey, models.OutputSizeFull)
		require.NoError(t, err)
		assert.Equal(t, 1, fetcher.FetchCalls)
	})

	t.Run("refresh moves fetched_at forward even when fresh", func(t *testing.T) {
		before, err := store.Lookup(ctx, testKey)
		require.NoError(t, err)

		now = now.Add(time.Minute)
		_, err = svc.Refresh(ctx, testKey, models.OutputSizeFull)
		require.NoError(t, err)

		after, err := store.Lookup(ctx, testKey)
		require.NoError(t, err)
		assert.True(t, after.FetchedAt.After(before.FetchedAt))
		assert.Equal(t, 2, fetcher.FetchCalls)
	})

	t.Run("seed overwrites without calling upstream", func(t *testing.T) {
		require.NoError(t, svc.Seed(ctx, testKey, 24, models.IntervalMonthly))

		entry, err := store.Get(ctx, testKey)
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Len(t, entry.Data, 24)
		assert.Equal(t, 2, fetcher.FetchCalls)
	})
}

func TestPublishing(t *testing.T) {
	ctx := context.Background()

	t.Run("each write path publishes its event", func(t *testing.T) {
		store := NewMockStore()
		fetcher := &MockFetcher{series: upstream}
		publisher := &MockPublisher{}
		svc := NewService(store, fetcher).WithPublisher(publisher)

		_, err := svc.FetchSeries(ctx, testKey, models.OutputSizeFull)
		require.NoError(t, err)
		_, err = svc.FetchSeries(ctx, testKey, models.OutputSizeFull)
		require.NoError(t, err)
		_, err = svc.Refresh(ctx, testKey, models.OutputSizeFull)
		require.NoError(t, err)
		require.NoError(t, svc.Seed(ctx, testKey, 3, models.IntervalDaily))

		assert.Equal(t, []string{
			models.EventCacheFilled,
			models.EventCacheRefreshed,
			models.EventCacheSeeded,
		}, publisher.events)
	})

	t.Run("publish failures do not fail the call", func(t *testing.T) {
		store := NewMockStore()
		fetcher := &MockFetcher{series: upstream}
		publisher := &MockPublisher{err: errors.New("broker down")}

		got, err := NewService(store, fetcher).WithPublisher(publisher).FetchSeries(ctx, testKey, models.OutputSizeFull)
		require.NoError(t, err)
		assert.Equal(t, upstream, got)
	})
}
