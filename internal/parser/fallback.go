package parser

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pathakanu/nhacnho/internal/clock"
)

// maxOffset is the furthest a relative offset may reach.
const maxOffset = 3650 * 24 * time.Hour

var (
	isoRe      = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})[T ](\d{1,2}):(\d{2})(?::(\d{2}))?(Z|[+-]\d{2}:\d{2})?`)
	clockRe    = regexp.MustCompile(`(?:^|[^\d:])(\d{1,2}):(\d{2})(?:$|[^\d:])`)
	inNRe      = regexp.MustCompile(`(?i)(\d+)\s*(phút|giờ|tiếng|ngày)\s+nữa`)
	afterNRe   = regexp.MustCompile(`(?i)sau\s+(\d+)\s*(phút|giờ|tiếng|ngày)`)
	isoLayouts = []string{time.RFC3339, "2006-01-02T15:04Z07:00", "2006-01-02 15:04:05Z07:00", "2006-01-02 15:04Z07:00"}
)

// GenericFallback understands ISO timestamps, HH:MM clock times and
// "N phút nữa" / "sau N giờ" offsets.
type GenericFallback struct {
	clock *clock.Clock
}

// NewGenericFallback returns a GenericFallback reading civil times in c's zone.
func NewGenericFallback(c *clock.Clock) *GenericFallback {
	return &GenericFallback{clock: c}
}

// ResolveInstant implements Fallback. It never returns an error.
func (g *GenericFallback) ResolveInstant(_ context.Context, text string, ref time.Time) (time.Time, bool, error) {
	text = Normalize(text)

	if isoRe.MatchString(text) {
		t, ok := g.iso(text)
		return t, ok, nil
	}
	if t, ok := g.clockTime(text, ref); ok {
		return t, true, nil
	}
	if t, ok := relativeOffset(text, ref); ok {
		return t, true, nil
	}
	return time.Time{}, false, nil
}

func (g *GenericFallback) iso(text string) (time.Time, bool) {
	match := isoRe.FindStringSubmatch(text)
	if match == nil {
		return time.Time{}, false
	}

	if match[7] != "" {
		for _, layout := range isoLayouts {
			if t, err := time.Parse(layout, match[0]); err == nil {
				return t.UTC(), true
			}
		}
	}

	y, _ := strconv.Atoi(match[1])
	mo, _ := strconv.Atoi(match[2])
	d, _ := strconv.Atoi(match[3])
	h, _ := strconv.Atoi(match[4])
	mi, _ := strconv.Atoi(match[5])
	if mo < 1 || mo > 12 || d < 1 || d > 31 || h > 23 || mi > 59 {
		return time.Time{}, false
	}
	return g.clock.AtClock(y, time.Month(mo), d, h, mi), true
}

func (g *GenericFallback) clockTime(text string, ref time.Time) (time.Time, bool) {
	match := clockRe.FindStringSubmatch(text)
	if match == nil {
		return time.Time{}, false
	}
	h, _ := strconv.Atoi(match[1])
	mi, _ := strconv.Atoi(match[2])
	if h > 23 || mi > 59 {
		return time.Time{}, false
	}
	y, m, d := dateStage(g.clock, text, ref)
	return g.clock.AtClock(y, m, d, h, mi), true
}

func relativeOffset(text string, ref time.Time) (time.Time, bool) {
	match := inNRe.FindStringSubmatch(text)
	if match == nil {
		match = afterNRe.FindStringSubmatch(text)
	}
	if match == nil {
		return time.Time{}, false
	}
	n, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return time.Time{}, false
	}

	var unit time.Duration
	switch strings.ToLower(match[2]) {
	case "phút":
		unit = time.Minute
	case "giờ", "tiếng":
		unit = time.Hour
	case "ngày":
		unit = 24 * time.Hour
	default:
		return time.Time{}, false
	}
	if n > int64(maxOffset/unit) {
		return time.Time{}, false
	}
	return ref.Add(time.Duration(n) * unit).UTC(), true
}
