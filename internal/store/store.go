// Package store persists reminders. The lifecycle engine and the command
// handlers depend only on the Store interface.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/pathakanu/nhacnho/internal/model"
)

// ErrNotFound is returned when no reminder matches a lookup key.
var ErrNotFound = errors.New("store: reminder not found")

// Key is the (owner, label, dueAt) triple cancel and reschedule look up by.
// It is not unique; when several records share a key, any one may match.
type Key struct {
	Owner string
	Label string
	DueAt time.Time
}

// Window selects reminders by due time. The upper bound is always inclusive.
// The lower bound is exclusive unless FromInclusive is set, and ignored
// entirely when Unbounded is set.
type Window struct {
	From          time.Time
	FromInclusive bool
	Unbounded     bool
	To            time.Time
}

// Contains reports whether t falls inside w.
func (w Window) Contains(t time.Time) bool {
	if t.After(w.To) {
		return false
	}
	if w.Unbounded {
		return true
	}
	if w.FromInclusive {
		return !t.Before(w.From)
	}
	return t.After(w.From)
}

// Store is the persistence boundary for reminders.
type Store interface {
	Insert(ctx context.Context, r *model.Reminder) (string, error)
	FindOneByKey(ctx context.Context, key Key) (*model.Reminder, error)
	// DeleteByKey removes at most one matching record and reports whether it did.
	DeleteByKey(ctx context.Context, key Key) (bool, error)
	UpdateDueAtByKey(ctx context.Context, key Key, newDueAt time.Time) (*model.Reminder, error)
	FindDueWindow(ctx context.Context, w Window, status model.Status) ([]model.Reminder, error)
	// Save persists the status and due time of an existing record.
	Save(ctx context.Context, r *model.Reminder) error
	// MarkNotice records that the advance notice n went out for dueAt. Nothing
	// is written, and ErrNotFound returned, when the record has moved on.
	MarkNotice(ctx context.Context, id string, n model.Notice, dueAt time.Time) error
}

// instant is the storage form of t: UTC, whole seconds.
func instant(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func normalizeKey(key Key) Key {
	key.DueAt = instant(key.DueAt)
	return key
}

func prepareInsert(r *model.Reminder) {
	r.DueAt = instant(r.DueAt)
	if r.Status == "" {
		r.Status = model.StatusPending
	}
	if r.Recurrence == "" {
		r.Recurrence = model.RecurrenceNone
	}
	if r.Participants == nil {
		r.Participants = []string{}
	}
}

func validate(r *model.Reminder) error {
	if r.DueAt.IsZero() {
		return errors.New("store: reminder has no due time")
	}
	if r.Label == "" {
		return errors.New("store: reminder has no label")
	}
	return nil
}
