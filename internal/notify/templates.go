package notify

import (
	"fmt"
	"time"

	"github.com/pathakanu/nhacnho/internal/clock"
)

// Window names one of the three due windows a fired notice belongs to.
type Window string

const (
	WindowDue  Window = "due"
	WindowSoon Window = "soon"
	WindowFar  Window = "far"
)

const (
	dueNowPrefix = "🔔 Đã đến giờ: "
	soonPrefix   = "🔔 Nhắc nhở trước 1 giờ: "
	farPrefix    = "🔔 Nhắc nhở trước 1 ngày: "

	parseFailure     = `Không thể xác định thời gian. Vui lòng thử lại với định dạng như: "Họp ngày 15/10 lúc 9h sáng".`
	newTimeFailure   = `Không thể xác định thời gian mới. Vui lòng thử lại với định dạng như: "lúc 10h sáng ngày mai".`
	unknownTimeLabel = "(không rõ thời gian)"
)

// Templates renders the fixed user-facing messages. Times are shown in the
// clock's civil zone.
type Templates struct {
	clock *clock.Clock
}

// NewTemplates binds templates to c.
func NewTemplates(c *clock.Clock) Templates {
	return Templates{clock: c}
}

func (t Templates) format(at time.Time) string {
	if at.IsZero() {
		return unknownTimeLabel
	}
	return t.clock.Format(at)
}

// Scheduled confirms a created reminder.
func (t Templates) Scheduled(label string, dueAt time.Time) string {
	return fmt.Sprintf("Đã lên lịch: %s: %s", t.format(dueAt), label)
}

// ParseFailure asks the sender to retry a create with a recognised time.
func (t Templates) ParseFailure() string {
	return parseFailure
}

// NewTimeFailure asks the sender to retry a reschedule with a recognised new time.
func (t Templates) NewTimeFailure() string {
	return newTimeFailure
}

// Cancelled confirms a cancellation.
func (t Templates) Cancelled(label string, dueAt time.Time) string {
	return fmt.Sprintf("Đã hủy: %s vào %s", label, t.format(dueAt))
}

// CancelNotFound reports that nothing matched a cancel request. A zero dueAt
// means no time could be read from the request.
func (t Templates) CancelNotFound(label string, dueAt time.Time) string {
	return fmt.Sprintf("Không tìm thấy sự kiện: %s vào %s để hủy.", label, t.format(dueAt))
}

// Rescheduled confirms a moved reminder.
func (t Templates) Rescheduled(label string, from, to time.Time) string {
	return fmt.Sprintf("Đã đổi: %s từ %s thành %s", label, t.format(from), t.format(to))
}

// RescheduleNotFound reports that nothing matched the old half of a reschedule.
func (t Templates) RescheduleNotFound(label string, dueAt time.Time) string {
	return fmt.Sprintf("Không tìm thấy sự kiện: %s vào %s để thay đổi.", label, t.format(dueAt))
}

// Fired renders the notice sent for a reminder in window w.
func (t Templates) Fired(w Window, label string, dueAt time.Time) string {
	prefix := dueNowPrefix
	switch w {
	case WindowSoon:
		prefix = soonPrefix
	case WindowFar:
		prefix = farPrefix
	}
	return prefix + t.format(dueAt) + ": " + label
}
