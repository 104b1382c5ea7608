package bot

import (
	"context"
	"encoding/xml"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/pathakanu/nhacnho/internal/clock"
	"github.com/pathakanu/nhacnho/internal/command"
	"github.com/pathakanu/nhacnho/internal/config"
	"github.com/pathakanu/nhacnho/internal/lifecycle"
	"github.com/pathakanu/nhacnho/internal/metrics"
	"github.com/pathakanu/nhacnho/internal/middleware"
	"github.com/pathakanu/nhacnho/internal/model"
	"github.com/pathakanu/nhacnho/internal/notify"
	"github.com/pathakanu/nhacnho/internal/store"
	"github.com/pathakanu/nhacnho/internal/twilio"
)

const (
	unreadableRequest = "Xin lỗi, không đọc được yêu cầu của bạn."
	emptyMessage      = "Vui lòng gửi nội dung nhắc nhở, ví dụ: \"Họp ngày 15/10 lúc 9h sáng\"."
)

// Deps are the collaborators a Bot is built from.
type Deps struct {
	Store       store.Store
	Interpreter *command.Interpreter
	Engine      *lifecycle.Engine
	Clock       *clock.Clock
	Limiter     *middleware.RateLimiter
	Metrics     metrics.Recorder
	// Gatherer backs /metrics; the route is omitted when nil.
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// Bot receives reminder requests over the Twilio webhook and drives the
// lifecycle engine from a cron schedule.
type Bot struct {
	cfg         *config.Config
	store       store.Store
	interpreter *command.Interpreter
	engine      *lifecycle.Engine
	clock       *clock.Clock
	templates   notify.Templates
	limiter     *middleware.RateLimiter
	metrics     metrics.Recorder
	gatherer    prometheus.Gatherer
	cron        *cron.Cron
	logger      *zap.Logger

	tickCtx    context.Context
	cancelTick context.CancelFunc
}

// New creates a fully configured Bot instance.
func New(cfg *config.Config, deps Deps) *Bot {
	if deps.Clock == nil {
		deps.Clock = clock.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	logger := deps.Logger.With(zap.String("component", "bot"))

	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger))
	c := cron.New(
		cron.WithLocation(deps.Clock.Location()),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	tickCtx, cancel := context.WithCancel(context.Background())
	return &Bot{
		cfg:         cfg,
		store:       deps.Store,
		interpreter: deps.Interpreter,
		engine:      deps.Engine,
		clock:       deps.Clock,
		templates:   notify.NewTemplates(deps.Clock),
		limiter:     deps.Limiter,
		metrics:     deps.Metrics,
		gatherer:    deps.Gatherer,
		cron:        c,
		logger:      logger,
		tickCtx:     tickCtx,
		cancelTick:  cancel,
	}
}

// StartScheduler registers the lifecycle tick and starts the scheduler loop.
func (b *Bot) StartScheduler() error {
	spec := b.cfg.TickSchedule
	if spec == "" {
		spec = "@every 1m"
	}
	if _, err := b.cron.AddFunc(spec, b.runTick); err != nil {
		return err
	}
	b.cron.Start()
	b.logger.Info("scheduler started", zap.String("schedule", spec))
	return nil
}

// StopScheduler stops the cron scheduler gracefully, cancelling a running tick.
func (b *Bot) StopScheduler() {
	ctx := b.cron.Stop()
	b.cancelTick()
	<-ctx.Done()
}

func (b *Bot) runTick() {
	res, err := b.engine.Tick(b.tickCtx)
	switch {
	case errors.Is(err, lifecycle.ErrTickInProgress):
		b.logger.Warn("tick skipped, previous tick still running")
		return
	case err != nil:
		b.logger.Error("tick finished with errors", zap.Error(err))
	}
	if sent := res.Due.Sent + res.Soon.Sent + res.Far.Sent; sent > 0 {
		b.logger.Info("notifications sent",
			zap.Int("due", res.Due.Sent),
			zap.Int("soon", res.Soon.Sent),
			zap.Int("far", res.Far.Sent),
			zap.Int("rolled_over", res.Due.Rolled),
		)
	}
}

// Routes returns the HTTP handler serving the webhook, health and metrics.
func (b *Bot) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/", b.handleHealth)
	r.Get("/healthz", b.handleHealth)
	if b.gatherer != nil {
		r.Handle("/metrics", metrics.Handler(b.gatherer))
	}

	r.Group(func(r chi.Router) {
		if b.cfg.TwilioValidateSignature {
			r.Use(b.verifySignature)
		}
		if b.limiter != nil {
			r.Use(b.limiter.Middleware)
		}
		r.Post("/twilio/webhook", b.handleIncomingMessage)
	})
	return r
}

func (b *Bot) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// verifySignature rejects webhook calls whose X-Twilio-Signature does not
// match the configured auth token and public URL.
func (b *Bot) verifySignature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		signature := r.Header.Get("X-Twilio-Signature")
		params := DecodeTwilioForm(r.PostForm)
		if !twilio.ValidateRequest(b.cfg.TwilioAuthToken, b.cfg.PublicWebhookURL, params, signature) {
			b.logger.Warn("webhook signature rejected", zap.String("remote", r.RemoteAddr))
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleIncomingMessage processes Twilio webhook POST requests.
func (b *Bot) handleIncomingMessage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		b.logger.Warn("webhook: parse error", zap.Error(err))
		b.writeTwilioResponse(w, unreadableRequest)
		return
	}

	from := r.FormValue("From")
	body := strings.TrimSpace(r.FormValue("Body"))
	if from == "" || body == "" {
		b.writeTwilioResponse(w, emptyMessage)
		return
	}
	owner := sanitizeWhatsAppNumber(from)

	reply, err := b.handleMessage(r.Context(), owner, body)
	if err != nil {
		b.logger.Error("webhook: command failed", zap.String("owner", owner), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	b.writeTwilioResponse(w, reply)
}

// handleMessage interprets body and runs the matching command handler. Only
// store failures are returned as errors; everything else becomes a reply.
func (b *Bot) handleMessage(ctx context.Context, owner, body string) (string, error) {
	cmd, err := b.interpreter.Interpret(ctx, body, b.clock.Now())
	if err != nil {
		var ie *command.InstantError
		if errors.As(err, &ie) && ie.Kind == command.KindReschedule {
			b.metrics.RecordCommand(string(command.KindReschedule), "parse_failure")
			return b.templates.NewTimeFailure(), nil
		}
		if errors.Is(err, command.ErrNoInstant) {
			b.metrics.RecordCommand(string(command.KindCreate), "parse_failure")
			return b.templates.ParseFailure(), nil
		}
		return "", err
	}

	var (
		reply   string
		outcome string
	)
	switch c := cmd.(type) {
	case command.Create:
		reply, outcome, err = b.handleCreate(ctx, owner, c)
	case command.Cancel:
		reply, outcome, err = b.handleCancel(ctx, owner, c)
	case command.Reschedule:
		reply, outcome, err = b.handleReschedule(ctx, owner, c)
	}
	if err != nil {
		b.metrics.RecordCommand(string(cmd.Kind()), "error")
		return "", err
	}
	b.metrics.RecordCommand(string(cmd.Kind()), outcome)
	return reply, nil
}

func (b *Bot) handleCreate(ctx context.Context, owner string, c command.Create) (string, string, error) {
	r := &model.Reminder{
		Owner:        owner,
		Label:        c.Label,
		DueAt:        c.DueAt,
		Recurrence:   c.Recurrence,
		Participants: c.Participants,
		Status:       model.StatusPending,
	}
	if _, err := b.store.Insert(ctx, r); err != nil {
		return "", "", err
	}
	b.logger.Info("reminder scheduled",
		zap.String("reminder_id", r.ID),
		zap.String("owner", owner),
		zap.Time("due_at", r.DueAt),
		zap.String("recurrence", string(r.Recurrence)),
	)
	return b.templates.Scheduled(r.Label, r.DueAt), "ok", nil
}

func (b *Bot) handleCancel(ctx context.Context, owner string, c command.Cancel) (string, string, error) {
	if !c.DueAt.Valid {
		return b.templates.CancelNotFound(c.Label, time.Time{}), "not_found", nil
	}
	deleted, err := b.store.DeleteByKey(ctx, store.Key{Owner: owner, Label: c.Label, DueAt: c.DueAt.Time})
	if err != nil {
		return "", "", err
	}
	if !deleted {
		return b.templates.CancelNotFound(c.Label, c.DueAt.Time), "not_found", nil
	}
	return b.templates.Cancelled(c.Label, c.DueAt.Time), "ok", nil
}

func (b *Bot) handleReschedule(ctx context.Context, owner string, c command.Reschedule) (string, string, error) {
	if !c.OldDueAt.Valid {
		return b.templates.RescheduleNotFound(c.OldLabel, time.Time{}), "not_found", nil
	}
	key := store.Key{Owner: owner, Label: c.OldLabel, DueAt: c.OldDueAt.Time}
	updated, err := b.store.UpdateDueAtByKey(ctx, key, c.NewDueAt)
	if errors.Is(err, store.ErrNotFound) {
		return b.templates.RescheduleNotFound(c.OldLabel, c.OldDueAt.Time), "not_found", nil
	}
	if err != nil {
		return "", "", err
	}
	return b.templates.Rescheduled(updated.Label, c.OldDueAt.Time, updated.DueAt), "ok", nil
}

func (b *Bot) writeTwilioResponse(w http.ResponseWriter, message string) {
	twiml := struct {
		XMLName xml.Name `xml:"Response"`
		Message string   `xml:"Message"`
	}{
		Message: message,
	}

	w.Header().Set("Content-Type", "application/xml")
	if err := xml.NewEncoder(w).Encode(twiml); err != nil {
		b.logger.Warn("twilio response encode", zap.Error(err))
	}
}

func sanitizeWhatsAppNumber(from string) string {
	// Twilio prepends whatsapp: to the number.
	return strings.TrimPrefix(from, "whatsapp:")
}

// DecodeTwilioForm extracts the POST form data into a map for convenience.
func DecodeTwilioForm(values url.Values) map[string]string {
	result := make(map[string]string, len(values))
	for key, value := range values {
		if len(value) > 0 {
			result[key] = value[0]
		}
	}
	return result
}
