package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Recurrence is how often a reminder repeats.
type Recurrence string

const (
	RecurrenceNone   Recurrence = "none"
	RecurrenceDaily  Recurrence = "daily"
	RecurrenceWeekly Recurrence = "weekly"
)

// IsRecurring reports whether the reminder rolls over after firing.
func (r Recurrence) IsRecurring() bool {
	return r == RecurrenceDaily || r == RecurrenceWeekly
}

// Status is the lifecycle state of a reminder.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
)

// Reminder is a scheduled notification requested by a sender.
//
// (Owner, Label, DueAt) is the lookup key used by cancel and reschedule. It is
// not unique; a lookup against duplicates matches an arbitrary record.
type Reminder struct {
	ID           string     `gorm:"primaryKey;type:varchar(36)" bson:"_id"`
	Owner        string     `gorm:"index:idx_reminders_key,priority:1;not null" bson:"owner"`
	Label        string     `gorm:"index:idx_reminders_key,priority:2;not null" bson:"label"`
	DueAt        time.Time  `gorm:"index:idx_reminders_key,priority:3;index:idx_reminders_due,priority:2;not null" bson:"dueAt"`
	Recurrence   Recurrence `gorm:"type:varchar(16);not null;default:none" bson:"recurrence"`
	Participants []string   `gorm:"serializer:json" bson:"participants"`
	Status       Status     `gorm:"type:varchar(16);index:idx_reminders_due,priority:1;not null;default:pending" bson:"status"`

	// SoonNoticeFor and FarNoticeFor hold the DueAt an advance notice was
	// last sent for. A notice is due again once DueAt moves.
	SoonNoticeFor *time.Time `bson:"soonNoticeFor,omitempty"`
	FarNoticeFor  *time.Time `bson:"farNoticeFor,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" bson:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" bson:"updatedAt"`
}

// BeforeCreate assigns a UUID when the caller did not.
func (r *Reminder) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// Notice names an advance-notice kind.
type Notice string

const (
	NoticeSoon Notice = "soon"
	NoticeFar  Notice = "far"
)

// NoticeMarker returns the marker field for kind n.
func (r *Reminder) NoticeMarker(n Notice) *time.Time {
	if n == NoticeFar {
		return r.FarNoticeFor
	}
	return r.SoonNoticeFor
}

// NoticeSent reports whether the advance notice recorded in marker already
// covers the current due time.
func (r *Reminder) NoticeSent(marker *time.Time) bool {
	return marker != nil && marker.Equal(r.DueAt)
}
