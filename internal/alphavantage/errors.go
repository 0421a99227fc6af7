package alphavantage

import "fmt"

// ErrorKind classifies an upstream failure
type ErrorKind int

// Upstream failure kinds
const (
	// KindTransport covers network errors, non-200 responses and undecodable bodies.
	KindTransport ErrorKind = iota
	// KindProviderMessage means the payload carried an explicit "Error Message".
	KindProviderMessage
	// KindMissingSeries means the expected time series field was absent.
	KindMissingSeries
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProviderMessage:
		return "provider"
	case KindMissingSeries:
		return "missing_series"
	default:
		return "unknown"
	}
}

// UpstreamError represents a failed fetch from the quote provider
type UpstreamError struct {
	Kind       ErrorKind
	StatusCode int
	// Message is text supplied by the provider, empty when it sent none.
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("alphavantage %s error (status %d): %s", e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("alphavantage %s error: %s", e.Kind, msg)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
