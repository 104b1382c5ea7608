// Package clock converts between stored instants and the fixed-offset civil
// time reminders are written and read in.
package clock

import (
	"fmt"
	"time"
)

// DefaultOffsetHours is Indochina Time (UTC+7).
const DefaultOffsetHours = 7

// Clock is a fixed-offset time zone paired with a source of "now".
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// New returns a Clock for the given UTC offset. A nil now uses time.Now.
func New(offsetHours int, now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	name := fmt.Sprintf("UTC%+d", offsetHours)
	return &Clock{
		loc: time.FixedZone(name, offsetHours*60*60),
		now: now,
	}
}

// Default returns the UTC+7 wall clock.
func Default() *Clock {
	return New(DefaultOffsetHours, nil)
}

// Location exposes the fixed zone, e.g. for cron.WithLocation.
func (c *Clock) Location() *time.Location {
	return c.loc
}

// Now returns the current instant in UTC, truncated to whole seconds so it
// compares cleanly against stored due times.
func (c *Clock) Now() time.Time {
	return c.now().UTC().Truncate(time.Second)
}

// ToLocal views t in local civil time. The instant is unchanged.
func (c *Clock) ToLocal(t time.Time) time.Time {
	return t.In(c.loc)
}

// ToUTC returns the absolute instant of t in the storage representation.
func (c *Clock) ToUTC(t time.Time) time.Time {
	return t.UTC()
}

// LocalDate returns the local civil date of t.
func (c *Clock) LocalDate(t time.Time) (int, time.Month, int) {
	return t.In(c.loc).Date()
}

// At returns the instant for local civil y-m-d at hour:00:00. Out-of-range
// components are normalized the way time.Date does (month 13 rolls into the
// next year, day 0 is the last day of the previous month).
func (c *Clock) At(year int, month time.Month, day, hour int) time.Time {
	return time.Date(year, month, day, hour, 0, 0, 0, c.loc).UTC()
}

// AtClock is At with minutes.
func (c *Clock) AtClock(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, c.loc).UTC()
}

// StartOfTomorrow returns the instant of the next local midnight after now.
func (c *Clock) StartOfTomorrow(now time.Time) time.Time {
	y, m, d := c.LocalDate(now)
	return c.At(y, m, d+1, 0)
}

// Format renders t as DD/MM/YYYY HH:MM in local civil time.
func (c *Clock) Format(t time.Time) string {
	return t.In(c.loc).Format("02/01/2006 15:04")
}
