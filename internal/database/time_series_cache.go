package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/trogers1052/stock-history-cache/internal/models"
)

// DefaultTTL is how long a cached series stays fresh
const DefaultTTL = 24 * time.Hour

// fetchedAtLayout matches the ISO-8601 local timestamps already present in existing cache files
const fetchedAtLayout = "2006-01-02T15:04:05.000000"

// StorageError reports a failed cache storage operation
type StorageError struct {
	Op  string
	Key models.CacheKey
	Err error
}

func (e *StorageError) Error() string {
	if e.Key.Symbol == "" {
		return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s failed for %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// SeriesCache is the time_series_cache table. Staleness is judged at read
// time; stale rows stay in place until overwritten or deleted.
type SeriesCache struct {
	db  *DB
	ttl time.Duration
	now func() time.Time
}

// NewSeriesCache creates a cache over db. A non-positive ttl selects DefaultTTL.
func NewSeriesCache(db *DB, ttl time.Duration) *SeriesCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SeriesCache{db: db, ttl: ttl, now: time.Now}
}

// WithClock replaces the cache's time source
func (c *SeriesCache) WithClock(now func() time.Time) *SeriesCache {
	c.now = now
	return c
}

// TTL returns the freshness window
func (c *SeriesCache) TTL() time.Duration {
	return c.ttl
}

// Get returns the entry for key, or nil when it is missing or stale
func (c *SeriesCache) Get(ctx context.Context, key models.CacheKey) (*models.CacheEntry, error) {
	entry, err := c.Lookup(ctx, key)
	if err != nil || entry == nil {
		return nil, err
	}
	if !c.IsFresh(entry.FetchedAt) {
		return nil, nil
	}
	return entry, nil
}

// Lookup returns the stored entry for key regardless of its age, or nil when no row exists
func (c *SeriesCache) Lookup(ctx context.Context, key models.CacheKey) (*models.CacheEntry, error) {
	query := c.db.rebind(`
		SELECT fetched_at, data
		FROM time_series_cache
		WHERE symbol = ? AND function = ?
	`)

	var fetchedAt, data string
	err := c.db.conn.QueryRowContext(ctx, query, key.Symbol, string(key.Function)).Scan(&fetchedAt, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "get", Key: key, Err: err}
	}

	ts, err := parseFetchedAt(fetchedAt)
	if err != nil {
		return nil, &StorageError{Op: "get", Key: key, Err: err}
	}

	var series models.RawSeries
	if err := json.Unmarshal([]byte(data), &series); err != nil {
		return nil, &StorageError{Op: "get", Key: key, Err: fmt.Errorf("failed to decode data: %w", err)}
	}

	return &models.CacheEntry{Key: key, FetchedAt: ts, Data: series}, nil
}

// Put upserts the series for key and stamps it with the current time
func (c *SeriesCache) Put(ctx context.Context, key models.CacheKey, data models.RawSeries) error {
	if data == nil {
		data = models.RawSeries{}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return &StorageError{Op: "put", Key: key, Err: fmt.Errorf("failed to encode data: %w", err)}
	}

	query := c.db.rebind(`
		INSERT INTO time_series_cache (symbol, function, fetched_at, data)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (symbol, function) DO UPDATE SET
			fetched_at = excluded.fetched_at,
			data = excluded.data
	`)
	now := c.now().Local().Format(fetchedAtLayout)
	if _, err := c.db.conn.ExecContext(ctx, query, key.Symbol, string(key.Function), now, string(payload)); err != nil {
		return &StorageError{Op: "put", Key: key, Err: err}
	}
	return nil
}

// Delete removes the entry for key; deleting a missing key is not an error
func (c *SeriesCache) Delete(ctx context.Context, key models.CacheKey) error {
	query := c.db.rebind(`DELETE FROM time_series_cache WHERE symbol = ? AND function = ?`)
	if _, err := c.db.conn.ExecContext(ctx, query, key.Symbol, string(key.Function)); err != nil {
		return &StorageError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

// ListEntries summarizes every stored row, stale ones included
func (c *SeriesCache) ListEntries(ctx context.Context) ([]*models.CacheEntryInfo, error) {
	query := `
		SELECT symbol, function, fetched_at, data
		FROM time_series_cache
		ORDER BY symbol ASC, function ASC
	`
	rows, err := c.db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}
	defer rows.Close()

	var entries []*models.CacheEntryInfo
	for rows.Next() {
		var symbol, function, fetchedAt, data string
		if err := rows.Scan(&symbol, &function, &fetchedAt, &data); err != nil {
			return nil, &StorageError{Op: "list", Err: fmt.Errorf("failed to scan row: %w", err)}
		}

		ts, err := parseFetchedAt(fetchedAt)
		if err != nil {
			return nil, &StorageError{Op: "list", Err: err}
		}

		var points map[string]json.RawMessage
		if err := json.Unmarshal([]byte(data), &points); err != nil {
			return nil, &StorageError{Op: "list", Err: fmt.Errorf("failed to decode data for %s: %w", symbol, err)}
		}

		entries = append(entries, &models.CacheEntryInfo{
			Symbol:    symbol,
			Function:  models.Function(function),
			FetchedAt: ts,
			Points:    len(points),
			Fresh:     c.IsFresh(ts),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}

	return entries, nil
}

// IsFresh reports whether a row fetched at t is still inside the TTL
func (c *SeriesCache) IsFresh(t time.Time) bool {
	return c.now().Sub(t) < c.ttl
}

func parseFetchedAt(s string) (time.Time, error) {
	// The fractional part is optional in this layout.
	if t, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", s, time.Local); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid fetched_at %q", s)
}
