package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trogers1052/stock-history-cache/internal/models"
)

// Backend is the durable store behind the Redis tier
type Backend interface {
	Get(ctx context.Context, key models.CacheKey) (*models.CacheEntry, error)
	Put(ctx context.Context, key models.CacheKey, data models.RawSeries) error
	Delete(ctx context.Context, key models.CacheKey) error
}

// Store serves fresh entries from Redis and falls through to the backend on a
// Redis miss or failure. The backend stays the source of truth: writes land
// there first, and a Redis outage only costs latency.
type Store struct {
	rdb     *redis.Client
	backend Backend
	ttl     time.Duration
	now     func() time.Time
}

type redisEntry struct {
	FetchedAt time.Time        `json:"fetched_at"`
	Data      models.RawSeries `json:"data"`
}

// NewClient creates a Redis client and pings it
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

// NewStore layers rdb over backend with the same freshness window
func NewStore(rdb *redis.Client, backend Backend, ttl time.Duration) *Store {
	return &Store{rdb: rdb, backend: backend, ttl: ttl, now: time.Now}
}

// WithClock replaces the time source
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func seriesKey(key models.CacheKey) string {
	return fmt.Sprintf("series:%s:%s", key.Function, key.Symbol)
}

// Get returns a fresh entry from Redis, else from the backend (warming Redis on the way out)
func (s *Store) Get(ctx context.Context, key models.CacheKey) (*models.CacheEntry, error) {
	b, err := s.rdb.Get(ctx, seriesKey(key)).Bytes()
	switch {
	case err == nil:
		var cached redisEntry
		if err := json.Unmarshal(b, &cached); err == nil && s.fresh(cached.FetchedAt) {
			return &models.CacheEntry{Key: key, FetchedAt: cached.FetchedAt, Data: cached.Data}, nil
		}
	case !errors.Is(err, redis.Nil):
		log.Printf("Redis get failed for %s, using backend: %v", key, err)
	}

	entry, err := s.backend.Get(ctx, key)
	if err != nil || entry == nil {
		return entry, err
	}

	s.set(ctx, key, entry.FetchedAt, entry.Data)
	return entry, nil
}

// Put writes through to the backend, then to Redis
func (s *Store) Put(ctx context.Context, key models.CacheKey, data models.RawSeries) error {
	if err := s.backend.Put(ctx, key, data); err != nil {
		return err
	}
	s.set(ctx, key, s.now(), data)
	return nil
}

// Delete removes the entry from both tiers
func (s *Store) Delete(ctx context.Context, key models.CacheKey) error {
	if err := s.rdb.Del(ctx, seriesKey(key)).Err(); err != nil {
		log.Printf("Redis delete failed for %s: %v", key, err)
	}
	return s.backend.Delete(ctx, key)
}

// Close closes the Redis client
func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) fresh(fetchedAt time.Time) bool {
	return s.now().Sub(fetchedAt) < s.ttl
}

// set caches an entry for whatever is left of its freshness window
func (s *Store) set(ctx context.Context, key models.CacheKey, fetchedAt time.Time, data models.RawSeries) {
	remaining := s.ttl - s.now().Sub(fetchedAt)
	if remaining <= 0 {
		return
	}

	b, err := json.Marshal(redisEntry{FetchedAt: fetchedAt, Data: data})
	if err != nil {
		log.Printf("Failed to encode %s for Redis: %v", key, err)
		return
	}
	if err := s.rdb.Set(ctx, seriesKey(key), b, remaining).Err(); err != nil {
		log.Printf("Redis set failed for %s: %v", key, err)
	}
}
