// Package parser turns Vietnamese reminder sentences into absolute instants,
// labels, recurrence tags and participants.
package parser

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/pathakanu/nhacnho/internal/clock"
)

// Instant is an optional point in time.
type Instant struct {
	Time  time.Time
	Valid bool
}

// Some wraps t as a present Instant.
func Some(t time.Time) Instant {
	return Instant{Time: t, Valid: true}
}

// Fallback resolves text the deterministic rules could not. Implementations
// report ok=false when they find nothing; err is reserved for faults such as
// an unreachable remote model.
type Fallback interface {
	ResolveInstant(ctx context.Context, text string, ref time.Time) (time.Time, bool, error)
}

const boundary = `[\s,.;:!?]`

var (
	dateRe     = regexp.MustCompile(`(?i)ngày\s+(\d{1,2})/(\d{1,2})(?:/(\d{4}))?`)
	// A bare "mai"/"nay" must be lowercase; capitalized it is usually a name.
	tomorrowRe = regexp.MustCompile(`(?:^|` + boundary + `)(?:(?i:ngày\s+mai)|mai)(?:$|` + boundary + `)`)
	todayRe    = regexp.MustCompile(`(?:^|` + boundary + `)(?:(?i:hôm\s+nay)|nay)(?:$|` + boundary + `)`)
	hourRe     = regexp.MustCompile(`(?i)(\d{1,2})h\s*(sáng|chiều)?`)
)

// Parser implements the layered date/hour rules and consults fallbacks when
// they find nothing.
type Parser struct {
	clock     *clock.Clock
	fallbacks []Fallback
	logger    *zap.Logger
}

// New creates a Parser. Fallbacks are tried in the given order.
func New(c *clock.Clock, logger *zap.Logger, fallbacks ...Fallback) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{
		clock:     c,
		fallbacks: fallbacks,
		logger:    logger.With(zap.String("component", "parser")),
	}
}

// Normalize trims s and converts it to NFC so precomposed and combining
// Vietnamese diacritics match the same patterns.
func Normalize(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// ParseInstant applies the deterministic rules only. An explicit date wins
// over a relative keyword; without either the reference's local date is used.
// A date without an hour is not an instant.
func (p *Parser) ParseInstant(text string, ref time.Time) (time.Time, bool) {
	text = Normalize(text)

	hour, ok := parseHour(text)
	if !ok {
		return time.Time{}, false
	}
	y, m, d := dateStage(p.clock, text, ref)
	return p.clock.At(y, m, d, hour), true
}

// Resolve runs ParseInstant and then each fallback on the same unmodified text.
func (p *Parser) Resolve(ctx context.Context, text string, ref time.Time) Instant {
	if t, ok := p.ParseInstant(text, ref); ok {
		return Some(t)
	}
	for _, fb := range p.fallbacks {
		t, ok, err := fb.ResolveInstant(ctx, text, ref)
		if err != nil {
			p.logger.Warn("fallback resolver failed", zap.Error(err))
			continue
		}
		if ok {
			return Some(t.UTC().Truncate(time.Second))
		}
	}
	return Instant{}
}

// dateStage returns the local civil date named by text, defaulting to the
// reference's local date. Components are not validated.
func dateStage(c *clock.Clock, text string, ref time.Time) (int, time.Month, int) {
	y, m, d := c.LocalDate(ref)

	switch {
	case dateRe.MatchString(text):
		match := dateRe.FindStringSubmatch(text)
		day, _ := strconv.Atoi(match[1])
		month, _ := strconv.Atoi(match[2])
		if match[3] != "" {
			y, _ = strconv.Atoi(match[3])
		}
		return y, time.Month(month), day
	case tomorrowRe.MatchString(text):
		return y, m, d + 1
	case todayRe.MatchString(text):
		return y, m, d
	}
	return y, m, d
}

// parseHour reads "Nh" with an optional sáng/chiều qualifier.
func parseHour(text string) (int, bool) {
	match := hourRe.FindStringSubmatch(text)
	if match == nil {
		return 0, false
	}
	hour, _ := strconv.Atoi(match[1])

	switch strings.ToLower(match[2]) {
	case "chiều":
		if hour < 12 {
			hour += 12
		}
	case "sáng":
		if hour == 12 {
			hour = 0
		}
	}
	return hour, true
}
