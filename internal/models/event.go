package models

import "time"

// Cache event type constants
const (
	EventCacheFilled    = "CACHE_FILLED"
	EventCacheRefreshed = "CACHE_REFRESHED"
	EventCacheSeeded    = "CACHE_SEEDED"
)

// CacheEvent is published to Kafka whenever a cache row is written
type CacheEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Symbol    string    `json:"symbol"`
	Function  Function  `json:"function"`
	Points    int       `json:"points"`
	Timestamp time.Time `json:"timestamp"`
}

// RefreshRequest asks the service to force-refresh a series
type RefreshRequest struct {
	Symbol     string `json:"symbol"`
	Interval   string `json:"interval"`
	OutputSize string `json:"outputsize,omitempty"`
}
