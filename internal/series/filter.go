package series

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/trogers1052/stock-history-cache/internal/models"
)

// ParseErrorKind classifies a malformed series value
type ParseErrorKind int

// Parse error kinds
const (
	MalformedDate ParseErrorKind = iota
	MalformedNumber
)

// ParseError reports a series entry that could not be converted to a point
type ParseError struct {
	Kind  ParseErrorKind
	Date  string
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Kind == MalformedDate {
		return fmt.Sprintf("malformed date %q", e.Date)
	}
	return fmt.Sprintf("malformed %s %q on %s", e.Field, e.Value, e.Date)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseDate parses a YYYY-MM-DD series key as a UTC midnight
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		return time.Time{}, &ParseError{Kind: MalformedDate, Date: s, Err: err}
	}
	return t, nil
}

// FilterAndSort converts raw into points dated within [start, end], ascending.
// Nil bounds are open. Any malformed entry fails the whole call.
func FilterAndSort(raw models.RawSeries, start, end *time.Time) ([]models.TimeSeriesPoint, error) {
	points := make([]models.TimeSeriesPoint, 0, len(raw))

	for dateStr, bar := range raw {
		date, err := ParseDate(dateStr)
		if err != nil {
			return nil, err
		}
		if start != nil && date.Before(*start) {
			continue
		}
		if end != nil && date.After(*end) {
			continue
		}

		point, err := toPoint(date, dateStr, bar)
		if err != nil {
			return nil, err
		}
		points = append(points, point)
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points, nil
}

func toPoint(date time.Time, dateStr string, bar models.Bar) (models.TimeSeriesPoint, error) {
	p := models.TimeSeriesPoint{Date: date}

	floats := []struct {
		field string
		dst   *float64
	}{
		{models.FieldOpen, &p.Open},
		{models.FieldHigh, &p.High},
		{models.FieldLow, &p.Low},
		{models.FieldClose, &p.Close},
	}
	for _, f := range floats {
		v, err := strconv.ParseFloat(bar[f.field], 64)
		if err != nil {
			return p, &ParseError{Kind: MalformedNumber, Date: dateStr, Field: f.field, Value: bar[f.field], Err: err}
		}
		*f.dst = v
	}

	volume, err := strconv.ParseInt(bar[models.FieldVolume], 10, 64)
	if err != nil {
		return p, &ParseError{Kind: MalformedNumber, Date: dateStr, Field: models.FieldVolume, Value: bar[models.FieldVolume], Err: err}
	}
	p.Volume = volume

	return p, nil
}
