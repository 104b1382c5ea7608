// Package lifecycle drives reminders through their states on each scheduler
// tick: firing what is due, sending advance notices and rolling recurring
// reminders forward.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pathakanu/nhacnho/internal/clock"
	"github.com/pathakanu/nhacnho/internal/metrics"
	"github.com/pathakanu/nhacnho/internal/model"
	"github.com/pathakanu/nhacnho/internal/notify"
	"github.com/pathakanu/nhacnho/internal/store"
)

// ErrTickInProgress is returned when Tick is called while a previous tick is
// still running.
var ErrTickInProgress = errors.New("lifecycle: tick already in progress")

const (
	soonHorizon = time.Hour
	farHorizon  = 24 * time.Hour

	defaultConcurrency = 8
)

// Notifier sends one rendered notice for a window.
type Notifier interface {
	Dispatch(ctx context.Context, w notify.Window, to, body string) error
}

// Options configures an Engine.
type Options struct {
	Store       store.Store
	Notifier    Notifier
	Clock       *clock.Clock
	Policy      RolloverPolicy
	Concurrency int
	Logger      *zap.Logger
	Metrics     metrics.Recorder
}

// Engine evaluates the due-now, soon and far windows on every tick.
type Engine struct {
	store       store.Store
	notifier    Notifier
	clock       *clock.Clock
	templates   notify.Templates
	policy      RolloverPolicy
	concurrency int
	logger      *zap.Logger
	metrics     metrics.Recorder

	locks   *keyedMutex
	running atomic.Bool
}

// NewEngine builds an engine. Clock, Policy, Logger and Metrics fall back to
// defaults when unset.
func NewEngine(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clock.Default()
	}
	if opts.Policy == nil {
		opts.Policy = DailyPolicy{}
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	return &Engine{
		store:       opts.Store,
		notifier:    opts.Notifier,
		clock:       opts.Clock,
		templates:   notify.NewTemplates(opts.Clock),
		policy:      opts.Policy,
		concurrency: opts.Concurrency,
		logger:      opts.Logger.With(zap.String("component", "lifecycle")),
		metrics:     opts.Metrics,
		locks:       newKeyedMutex(),
	}
}

// WindowResult tallies one window of a tick.
type WindowResult struct {
	Matched int
	// Sent counts successful dispatches.
	Sent int
	// Failed counts dispatch failures; the record is left for the next tick.
	Failed int
	// Skipped counts advance notices already sent for the current due time.
	Skipped int
	// Rolled counts recurring reminders moved to their next occurrence.
	Rolled int
	// StoreErrors counts writes that failed after a successful dispatch.
	StoreErrors int
}

// TickResult is the outcome of one tick.
type TickResult struct {
	Now  time.Time
	Due  WindowResult
	Soon WindowResult
	Far  WindowResult
}

type windowSpec struct {
	kind   notify.Window
	window store.Window
}

// Windows returns the three due windows evaluated at now. All bounds are
// absolute instants.
func (e *Engine) Windows(now time.Time) (due, soon, far store.Window) {
	due = store.Window{Unbounded: true, To: now}
	soon = store.Window{From: now, To: now.Add(soonHorizon)}
	far = store.Window{From: e.clock.StartOfTomorrow(now), To: now.Add(farHorizon)}
	return due, soon, far
}

// Tick runs one evaluation of all windows. Windows are processed
// concurrently; a failed window query does not stop the others and is
// reported in the joined error.
func (e *Engine) Tick(ctx context.Context) (TickResult, error) {
	if !e.running.CompareAndSwap(false, true) {
		e.metrics.RecordTickSkipped()
		return TickResult{}, ErrTickInProgress
	}
	defer e.running.Store(false)

	start := time.Now()
	defer func() { e.metrics.RecordTickDuration(time.Since(start)) }()

	now := e.clock.Now()
	due, soon, far := e.Windows(now)
	specs := []windowSpec{
		{kind: notify.WindowDue, window: due},
		{kind: notify.WindowSoon, window: soon},
		{kind: notify.WindowFar, window: far},
	}

	results := make([]WindowResult, len(specs))
	errs := make([]error, len(specs))

	var g errgroup.Group
	for i, spec := range specs {
		i, spec := i, spec
		g.Go(func() error {
			results[i], errs[i] = e.runWindow(ctx, spec)
			return nil
		})
	}
	_ = g.Wait()

	res := TickResult{Now: now, Due: results[0], Soon: results[1], Far: results[2]}
	e.logger.Debug("tick finished",
		zap.Time("now", now),
		zap.Int("due_sent", res.Due.Sent),
		zap.Int("soon_sent", res.Soon.Sent),
		zap.Int("far_sent", res.Far.Sent),
		zap.Int("failed", res.Due.Failed+res.Soon.Failed+res.Far.Failed),
	)
	return res, errors.Join(errs...)
}

func (e *Engine) runWindow(ctx context.Context, spec windowSpec) (WindowResult, error) {
	reminders, err := e.store.FindDueWindow(ctx, spec.window, model.StatusPending)
	if err != nil {
		e.logger.Error("due window query failed", zap.String("window", string(spec.kind)), zap.Error(err))
		return WindowResult{}, fmt.Errorf("%s window: %w", spec.kind, err)
	}

	var (
		mu  sync.Mutex
		res = WindowResult{Matched: len(reminders)}
		g   errgroup.Group
	)
	g.SetLimit(e.concurrency)

	for i := range reminders {
		r := reminders[i]
		g.Go(func() error {
			var o outcome
			if spec.kind == notify.WindowDue {
				o = e.fireDue(ctx, &r)
			} else {
				o = e.fireNotice(ctx, spec.kind, &r)
			}
			mu.Lock()
			res.add(o)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return res, nil
}

type outcome struct {
	sent, failed, skipped, rolled, storeErr bool
}

func (r *WindowResult) add(o outcome) {
	if o.sent {
		r.Sent++
	}
	if o.failed {
		r.Failed++
	}
	if o.skipped {
		r.Skipped++
	}
	if o.rolled {
		r.Rolled++
	}
	if o.storeErr {
		r.StoreErrors++
	}
}

// fireDue sends the arrival notice, marks the reminder sent and, when it
// recurs, moves it to the next occurrence and back to pending.
func (e *Engine) fireDue(ctx context.Context, r *model.Reminder) outcome {
	unlock := e.locks.Lock(r.ID)
	defer unlock()

	log := e.logger.With(zap.String("reminder_id", r.ID), zap.String("window", string(notify.WindowDue)))

	body := e.templates.Fired(notify.WindowDue, r.Label, r.DueAt)
	if err := e.notifier.Dispatch(ctx, notify.WindowDue, r.Owner, body); err != nil {
		return outcome{failed: true}
	}

	r.Status = model.StatusSent
	if err := e.store.Save(ctx, r); err != nil {
		log.Error("mark reminder sent failed", zap.Error(err))
		return outcome{sent: true, storeErr: true}
	}

	if !r.Recurrence.IsRecurring() {
		return outcome{sent: true}
	}

	r.DueAt = e.policy.Next(r.DueAt, r.Recurrence)
	r.Status = model.StatusPending
	if err := e.store.Save(ctx, r); err != nil {
		log.Error("roll over recurring reminder failed", zap.Error(err))
		return outcome{sent: true, storeErr: true}
	}
	log.Debug("recurring reminder rolled over", zap.Time("next_due_at", r.DueAt))
	return outcome{sent: true, rolled: true}
}

// fireNotice sends an advance notice once per due time. Status is never
// touched; the due-now window alone moves a reminder to sent.
func (e *Engine) fireNotice(ctx context.Context, w notify.Window, r *model.Reminder) outcome {
	notice := model.NoticeSoon
	if w == notify.WindowFar {
		notice = model.NoticeFar
	}
	if r.NoticeSent(r.NoticeMarker(notice)) {
		return outcome{skipped: true}
	}

	unlock := e.locks.Lock(r.ID)
	defer unlock()

	body := e.templates.Fired(w, r.Label, r.DueAt)
	if err := e.notifier.Dispatch(ctx, w, r.Owner, body); err != nil {
		return outcome{failed: true}
	}

	if err := e.store.MarkNotice(ctx, r.ID, notice, r.DueAt); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.logger.Debug("reminder moved before notice was recorded",
				zap.String("reminder_id", r.ID), zap.String("window", string(w)))
			return outcome{sent: true}
		}
		e.logger.Error("record notice failed",
			zap.String("reminder_id", r.ID), zap.String("window", string(w)), zap.Error(err))
		return outcome{sent: true, storeErr: true}
	}
	return outcome{sent: true}
}
