package models

import (
	"fmt"
	"time"
)

// Function is the provider's series identifier
type Function string

// Supported series functions
const (
	FunctionDaily   Function = "TIME_SERIES_DAILY"
	FunctionWeekly  Function = "TIME_SERIES_WEEKLY"
	FunctionMonthly Function = "TIME_SERIES_MONTHLY"
)

// Interval is the user-facing name of a series granularity
type Interval string

// Supported intervals
const (
	IntervalDaily   Interval = "daily"
	IntervalWeekly  Interval = "weekly"
	IntervalMonthly Interval = "monthly"
)

// OutputSize controls how much history the provider returns
type OutputSize string

// Output size constants
const (
	OutputSizeCompact OutputSize = "compact"
	OutputSizeFull    OutputSize = "full"
)

// Bar field names as sent by the provider
const (
	FieldOpen   = "1. open"
	FieldHigh   = "2. high"
	FieldLow    = "3. low"
	FieldClose  = "4. close"
	FieldVolume = "5. volume"
)

// DateLayout is the layout of every RawSeries key
const DateLayout = "2006-01-02"

// ParseFunction validates a function name
func ParseFunction(s string) (Function, error) {
	switch f := Function(s); f {
	case FunctionDaily, FunctionWeekly, FunctionMonthly:
		return f, nil
	}
	return "", fmt.Errorf("invalid function: %s", s)
}

// ParseInterval validates an interval name
func ParseInterval(s string) (Interval, error) {
	switch i := Interval(s); i {
	case IntervalDaily, IntervalWeekly, IntervalMonthly:
		return i, nil
	}
	return "", fmt.Errorf("invalid interval: %s", s)
}

// ParseOutputSize validates an output size
func ParseOutputSize(s string) (OutputSize, error) {
	switch o := OutputSize(s); o {
	case OutputSizeCompact, OutputSizeFull:
		return o, nil
	}
	return "", fmt.Errorf("invalid outputsize: %s", s)
}

// Function returns the series function backing the interval
func (i Interval) Function() Function {
	switch i {
	case IntervalDaily:
		return FunctionDaily
	case IntervalWeekly:
		return FunctionWeekly
	default:
		return FunctionMonthly
	}
}

// CacheKey identifies one cached series. Symbol is case-sensitive.
type CacheKey struct {
	Symbol   string   `json:"symbol"`
	Function Function `json:"function"`
}

func (k CacheKey) String() string {
	return k.Symbol + "/" + string(k.Function)
}

// Bar is one provider record, keyed by the provider's field names
type Bar map[string]string

// RawSeries maps a YYYY-MM-DD date to its bar, exactly as the provider sent it
type RawSeries map[string]Bar

// CacheEntry is one row of the time-series cache
type CacheEntry struct {
	Key       CacheKey  `json:"key"`
	FetchedAt time.Time `json:"fetched_at"`
	Data      RawSeries `json:"data"`
}

// CacheEntryInfo summarizes a cache row without its data
type CacheEntryInfo struct {
	Symbol    string    `json:"symbol"`
	Function  Function  `json:"function"`
	FetchedAt time.Time `json:"fetched_at"`
	Points    int       `json:"points"`
	Fresh     bool      `json:"fresh"`
}

// TimeSeriesPoint is a typed view of one bar
type TimeSeriesPoint struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}
