// Package notify renders the fixed message templates and sends them through
// the outbound channel.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pathakanu/nhacnho/internal/metrics"
)

// ErrNoRecipient is returned when a message has nobody to go to.
var ErrNoRecipient = errors.New("notify: no recipient")

// DefaultTimeout bounds a single outbound call when none is configured.
const DefaultTimeout = 10 * time.Second

// Sender delivers a text body to a recipient over some channel.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// Dispatcher makes one best-effort delivery attempt per message.
type Dispatcher struct {
	sender  Sender
	timeout time.Duration
	logger  *zap.Logger
	metrics metrics.Recorder
}

// NewDispatcher wraps sender. A nil recorder disables metrics.
func NewDispatcher(sender Sender, timeout time.Duration, logger *zap.Logger, rec metrics.Recorder) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Dispatcher{
		sender:  sender,
		timeout: timeout,
		logger:  logger.With(zap.String("component", "dispatcher")),
		metrics: rec,
	}
}

// Dispatch sends body to to for the given window. Failures are logged and
// returned; no retry is attempted.
func (d *Dispatcher) Dispatch(ctx context.Context, w Window, to, body string) error {
	if strings.TrimSpace(to) == "" {
		d.metrics.RecordNotification(string(w), "failed")
		return ErrNoRecipient
	}
	if d.sender == nil {
		d.metrics.RecordNotification(string(w), "failed")
		return errors.New("notify: no sender configured")
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.sender.Send(ctx, to, body); err != nil {
		d.metrics.RecordNotification(string(w), "failed")
		d.logger.Warn("notification failed",
			zap.String("window", string(w)),
			zap.String("to", to),
			zap.Error(err),
		)
		return fmt.Errorf("dispatch %s notice: %w", w, err)
	}

	d.metrics.RecordNotification(string(w), "sent")
	d.logger.Debug("notification sent", zap.String("window", string(w)), zap.String("to", to))
	return nil
}
