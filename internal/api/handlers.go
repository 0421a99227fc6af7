package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/trogers1052/stock-history-cache/internal/alphavantage"
	"github.com/trogers1052/stock-history-cache/internal/database"
	"github.com/trogers1052/stock-history-cache/internal/models"
	"github.com/trogers1052/stock-history-cache/internal/series"
)

// SeriesService is the cache orchestrator used by the handlers
type SeriesService interface {
	FetchSeries(ctx context.Context, key models.CacheKey, outputSize models.OutputSize) (models.RawSeries, error)
	Refresh(ctx context.Context, key models.CacheKey, outputSize models.OutputSize) (models.RawSeries, error)
	Seed(ctx context.Context, key models.CacheKey, periods int, interval models.Interval) error
}

// EntryLister reports what the cache currently holds
type EntryLister interface {
	ListEntries(ctx context.Context) ([]*models.CacheEntryInfo, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	service SeriesService
	entries EntryLister
}

// NewHandler creates a new Handler
func NewHandler(service SeriesService, entries EntryLister) *Handler {
	return &Handler{
		service: service,
		entries: entries,
	}
}

// validationError marks a bad query parameter
type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}

func invalidf(format string, args ...interface{}) error {
	return &validationError{msg: fmt.Sprintf(format, args...)}
}

// Root handles GET /
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, "Hi")
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// GetHistory handles GET /stock/history
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	symbol, err := requiredSymbol(q.Get("symbol"))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	interval, err := models.ParseInterval(queryDefault(q.Get("interval"), string(models.IntervalMonthly)))
	if err != nil {
		h.respondErr(w, r, invalidf("%v", err))
		return
	}
	outputSize, err := models.ParseOutputSize(queryDefault(q.Get("outputsize"), string(models.OutputSizeFull)))
	if err != nil {
		h.respondErr(w, r, invalidf("%v", err))
		return
	}
	start, err := parseQueryDate("start_date", q.Get("start_date"))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	end, err := parseQueryDate("end_date", q.Get("end_date"))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}

	key := models.CacheKey{Symbol: symbol, Function: interval.Function()}
	raw, err := h.service.FetchSeries(r.Context(), key, outputSize)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}

	points, err := series.FilterAndSort(raw, start, end)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, points)
}

// GetFuture handles GET /stock/future
func (h *Handler) GetFuture(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	symbol, err := requiredSymbol(q.Get("symbol"))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	years, err := positiveInt("years", q.Get("years"), 5)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	amount, err := positiveFloat("amount", q.Get("amount"), 100)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}

	params := series.ProjectionParams{
		Symbol: symbol,
		Years:  years,
		Amount: amount,
		Basis:  queryDefault(q.Get("basis"), models.BasisMonthly),
		Output: queryDefault(q.Get("output"), models.OutputTotal),
	}
	if v := q.Get("annual_return"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			h.respondErr(w, r, invalidf("invalid annual_return: %s", v))
			return
		}
		params.AnnualReturn = &rate
	}
	if err := params.Validate(); err != nil {
		h.respondErr(w, r, err)
		return
	}

	key := models.CacheKey{Symbol: symbol, Function: models.FunctionMonthly}
	raw, err := h.service.FetchSeries(r.Context(), key, models.OutputSizeFull)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}

	points, err := series.FilterAndSort(raw, nil, nil)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}

	resp, err := series.ProjectFutureValue(points, params)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// RefreshCache handles GET /stock/refresh
func (h *Handler) RefreshCache(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	symbol, err := requiredSymbol(q.Get("symbol"))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	interval, err := models.ParseInterval(queryDefault(q.Get("interval"), string(models.IntervalMonthly)))
	if err != nil {
		h.respondErr(w, r, invalidf("%v", err))
		return
	}
	outputSize, err := models.ParseOutputSize(queryDefault(q.Get("outputsize"), string(models.OutputSizeFull)))
	if err != nil {
		h.respondErr(w, r, invalidf("%v", err))
		return
	}

	key := models.CacheKey{Symbol: symbol, Function: interval.Function()}
	raw, err := h.service.Refresh(r.Context(), key, outputSize)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":       "Cache refreshed",
		"symbol":        symbol,
		"interval":      interval,
		"points_cached": len(raw),
	})
}

// SeedFake handles GET /stock/seed-fake
func (h *Handler) SeedFake(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	symbol, err := requiredSymbol(q.Get("symbol"))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	function, err := models.ParseFunction(queryDefault(q.Get("function"), string(models.FunctionMonthly)))
	if err != nil {
		h.respondErr(w, r, invalidf("%v", err))
		return
	}
	periods, err := positiveInt("periods", q.Get("periods"), 24)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	interval, err := models.ParseInterval(queryDefault(q.Get("interval"), string(models.IntervalMonthly)))
	if err != nil {
		h.respondErr(w, r, invalidf("%v", err))
		return
	}

	key := models.CacheKey{Symbol: symbol, Function: function}
	if err := h.service.Seed(r.Context(), key, periods, interval); err != nil {
		h.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Inserted %d fake points for %s / %s", periods, symbol, function),
	})
}

// ListCache handles GET /stock/cache
func (h *Handler) ListCache(w http.ResponseWriter, r *http.Request) {
	entries, err := h.entries.ListEntries(r.Context())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	if entries == nil {
		entries = []*models.CacheEntryInfo{}
	}

	respondJSON(w, http.StatusOK, entries)
}

// statusFor maps a handler error to its HTTP status and detail text
func statusFor(err error) (int, string) {
	var (
		valErr     *validationError
		upErr      *alphavantage.UpstreamError
		parseErr   *series.ParseError
		storageErr *database.StorageError
	)

	switch {
	case errors.As(err, &valErr):
		return http.StatusBadRequest, valErr.msg
	case errors.As(err, &upErr):
		if upErr.Kind == alphavantage.KindMissingSeries {
			return http.StatusInternalServerError, queryDefault(upErr.Message, "Time series data missing in API response")
		}
		return http.StatusBadGateway, queryDefault(upErr.Message, "Failed to fetch data")
	case errors.As(err, &parseErr):
		return http.StatusUnprocessableEntity, parseErr.Error()
	case errors.Is(err, series.ErrInsufficientData):
		return http.StatusBadGateway, "Not enough data to compute growth rate"
	case errors.Is(err, series.ErrInvalidProjection):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &storageErr):
		return http.StatusInternalServerError, "Cache storage error"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("%s %s failed: %v", r.Method, r.URL.Path, err)
	}
	respondJSON(w, status, map[string]string{"detail": detail})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func queryDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}

func requiredSymbol(symbol string) (string, error) {
	if symbol == "" {
		return "", invalidf("symbol is required")
	}
	return symbol, nil
}

func positiveInt(name, value string, defaultValue int) (int, error) {
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return 0, invalidf("%s must be a positive integer", name)
	}
	return n, nil
}

func positiveFloat(name, value string, defaultValue float64) (float64, error) {
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || !(f > 0) || f > 1e300 {
		return 0, invalidf("%s must be a positive number", name)
	}
	return f, nil
}

// parseQueryDate accepts YYYY-MM-DD or RFC 3339; an empty value means unbounded
func parseQueryDate(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(models.DateLayout, value); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, invalidf("invalid %s: %s", name, value)
	}
	return &t, nil
}
