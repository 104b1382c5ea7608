package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"github.com/pathakanu/nhacnho/internal/model"
)

// RolloverPolicy decides how far a fired recurring reminder moves forward.
type RolloverPolicy interface {
	Next(dueAt time.Time, rec model.Recurrence) time.Time
	Name() string
}

// DailyPolicy advances every recurring reminder by one day, weekly ones included.
type DailyPolicy struct{}

func (DailyPolicy) Next(dueAt time.Time, _ model.Recurrence) time.Time {
	return dueAt.AddDate(0, 0, 1)
}

func (DailyPolicy) Name() string { return "daily" }

// CalendarPolicy advances daily reminders by one day and weekly ones by seven.
type CalendarPolicy struct{}

func (CalendarPolicy) Next(dueAt time.Time, rec model.Recurrence) time.Time {
	if rec == model.RecurrenceWeekly {
		return dueAt.AddDate(0, 0, 7)
	}
	return dueAt.AddDate(0, 0, 1)
}

func (CalendarPolicy) Name() string { return "calendar" }

// PolicyFromName maps a configuration value to a policy. Empty means daily.
func PolicyFromName(name string) (RolloverPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "daily":
		return DailyPolicy{}, nil
	case "calendar":
		return CalendarPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown recurrence policy %q", name)
	}
}
