package alphavantage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/trogers1052/stock-history-cache/internal/models"
)

// DefaultBaseURL is the Alpha Vantage query endpoint
const DefaultBaseURL = "https://www.alphavantage.co/query"

// DefaultTimeout bounds a single upstream call
const DefaultTimeout = 10 * time.Second

// seriesFields names the payload field holding the series for each function
var seriesFields = map[models.Function]string{
	models.FunctionDaily:   "Time Series (Daily)",
	models.FunctionWeekly:  "Weekly Time Series",
	models.FunctionMonthly: "Monthly Time Series",
}

// SeriesField returns the payload field the provider uses for function
func SeriesField(function models.Function) (string, bool) {
	field, ok := seriesFields[function]
	return field, ok
}

// Client fetches raw OHLCV series from Alpha Vantage. It never retries.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new quote client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithBaseURL points the client at a different endpoint.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Fetch retrieves the series for key and returns the provider's mapping untouched
func (c *Client) Fetch(ctx context.Context, key models.CacheKey, outputSize models.OutputSize) (models.RawSeries, error) {
	field, ok := SeriesField(key.Function)
	if !ok {
		return nil, fmt.Errorf("unsupported function: %s", key.Function)
	}

	query := url.Values{}
	query.Set("function", string(key.Function))
	query.Set("symbol", key.Symbol)
	query.Set("apikey", c.apiKey)
	query.Set("outputsize", string(outputSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{Kind: KindTransport, Err: redact(err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{Kind: KindTransport, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	var payload map[string]json.RawMessage
	decodeErr := json.Unmarshal(body, &payload)

	if resp.StatusCode != http.StatusOK {
		upErr := &UpstreamError{Kind: KindTransport, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status: %s", http.StatusText(resp.StatusCode))}
		if decodeErr == nil {
			if msg := stringField(payload, "Error Message"); msg != "" {
				upErr.Message = msg
			}
		}
		return nil, upErr
	}
	if decodeErr != nil {
		return nil, &UpstreamError{Kind: KindTransport, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", decodeErr)}
	}

	if msg := stringField(payload, "Error Message"); msg != "" {
		return nil, &UpstreamError{Kind: KindProviderMessage, StatusCode: resp.StatusCode, Message: msg}
	}

	raw, ok := payload[field]
	if !ok {
		msg := "Time series data missing in API response"
		// Throttled requests come back 200 with a notice instead of data.
		for _, notice := range []string{"Note", "Information"} {
			if s := stringField(payload, notice); s != "" {
				msg = s
				break
			}
		}
		return nil, &UpstreamError{Kind: KindMissingSeries, StatusCode: resp.StatusCode, Message: msg}
	}

	var series models.RawSeries
	if err := json.Unmarshal(raw, &series); err != nil {
		return nil, &UpstreamError{Kind: KindTransport, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode %q: %w", field, err)}
	}
	if series == nil {
		series = models.RawSeries{}
	}

	return series, nil
}

func stringField(payload map[string]json.RawMessage, name string) string {
	raw, ok := payload[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// redact strips the request URL, and with it the API key, from transport errors
func redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s request failed: %w", urlErr.Op, urlErr.Err)
	}
	return err
}
