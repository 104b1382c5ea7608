package parser

import (
	"context"
	"time"

	dps "github.com/markusmobius/go-dateparser"
	"github.com/markusmobius/go-dateparser/date"

	"github.com/pathakanu/nhacnho/internal/clock"
)

// DateparserFallback resolves free-form Vietnamese dates with go-dateparser.
// Matches that carry only a calendar date are ignored.
type DateparserFallback struct {
	clock *clock.Clock
}

// NewDateparserFallback returns a DateparserFallback reading civil times in
// c's zone.
func NewDateparserFallback(c *clock.Clock) *DateparserFallback {
	return &DateparserFallback{clock: c}
}

func (f *DateparserFallback) config(ref time.Time) *dps.Configuration {
	return &dps.Configuration{
		Languages:           []string{"vi"},
		CurrentTime:         f.clock.ToLocal(ref),
		DefaultTimezone:     f.clock.Location(),
		PreferredDateSource: dps.Future,
		ReturnTimeAsPeriod:  true,
	}
}

// ResolveInstant implements Fallback. Parse errors mean "nothing found".
func (f *DateparserFallback) ResolveInstant(_ context.Context, text string, ref time.Time) (time.Time, bool, error) {
	text = Normalize(text)
	if text == "" {
		return time.Time{}, false, nil
	}
	cfg := f.config(ref)

	if d, err := dps.Parse(cfg, text); err == nil {
		if t, ok := instantOf(d); ok {
			return t, true, nil
		}
	}

	_, results, err := dps.Search(cfg, text)
	if err != nil {
		return time.Time{}, false, nil
	}
	dates := make([]date.Date, 0, len(results))
	for _, r := range results {
		dates = append(dates, r.Date)
	}
	t, ok := firstInstant(dates)
	return t, ok, nil
}

// firstInstant returns the first date that names a time of day.
func firstInstant(dates []date.Date) (time.Time, bool) {
	for _, d := range dates {
		if t, ok := instantOf(d); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func instantOf(d date.Date) (time.Time, bool) {
	if d.Time.IsZero() {
		return time.Time{}, false
	}
	switch d.Period {
	case date.Day, date.Month, date.Year:
		return time.Time{}, false
	}
	return d.Time.UTC(), true
}
