package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/pathakanu/nhacnho/internal/bot"
	"github.com/pathakanu/nhacnho/internal/clock"
	"github.com/pathakanu/nhacnho/internal/command"
	"github.com/pathakanu/nhacnho/internal/config"
	"github.com/pathakanu/nhacnho/internal/database"
	"github.com/pathakanu/nhacnho/internal/lifecycle"
	"github.com/pathakanu/nhacnho/internal/logging"
	"github.com/pathakanu/nhacnho/internal/metrics"
	"github.com/pathakanu/nhacnho/internal/middleware"
	"github.com/pathakanu/nhacnho/internal/notify"
	myopenai "github.com/pathakanu/nhacnho/internal/openai"
	"github.com/pathakanu/nhacnho/internal/parser"
	"github.com/pathakanu/nhacnho/internal/store"
	"github.com/pathakanu/nhacnho/internal/twilio"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.IsProduction(), cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	for _, w := range cfg.Warnings {
		logger.Warn("config: using default", zap.String("detail", w))
	}

	reminderStore, closeStore, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatal("database init failed", zap.Error(err))
	}
	defer closeStore()

	policy, err := lifecycle.PolicyFromName(cfg.RecurrencePolicy)
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	c := clock.New(cfg.UTCOffsetHours, nil)

	fallbacks := []parser.Fallback{parser.NewGenericFallback(c), parser.NewDateparserFallback(c)}
	openAIClient := myopenai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel, c.Location())
	if openAIClient.Enabled() {
		fallbacks = append(fallbacks, openAIClient)
	}
	p := parser.New(c, logger, fallbacks...)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	twilioClient := twilio.New(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppNumber, logger)
	dispatcher := notify.NewDispatcher(twilioClient, cfg.DispatchTimeout, logger, collector)

	engine := lifecycle.NewEngine(lifecycle.Options{
		Store:       reminderStore,
		Notifier:    dispatcher,
		Clock:       c,
		Policy:      policy,
		Concurrency: cfg.DispatchConcurrency,
		Logger:      logger,
		Metrics:     collector,
	})

	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		PerMinute: cfg.WebhookRatePerMinute,
		Burst:     cfg.WebhookBurst,
	}, middleware.SenderKey, logger)
	defer limiter.Stop()

	reminderBot := bot.New(cfg, bot.Deps{
		Store:       reminderStore,
		Interpreter: command.NewInterpreter(p),
		Engine:      engine,
		Clock:       c,
		Limiter:     limiter,
		Metrics:     collector,
		Gatherer:    reg,
		Logger:      logger,
	})
	if err := reminderBot.StartScheduler(); err != nil {
		logger.Fatal("scheduler start failed", zap.Error(err))
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           reminderBot.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("port", cfg.Port),
			zap.String("recurrence_policy", policy.Name()),
			zap.Bool("openai_fallback", openAIClient.Enabled()),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	waitForShutdown(server, reminderBot, logger)
}

// openStore picks the backend from DATABASE_URL: MongoDB for mongodb:// URIs,
// PostgreSQL for other URLs, SQLite when empty.
func openStore(cfg *config.Config, logger *zap.Logger) (store.Store, func(), error) {
	if cfg.UsesMongo() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		client, err := database.NewMongo(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		s, err := store.NewMongoStore(ctx, client.Database(cfg.MongoDatabase))
		if err != nil {
			disconnect(client, logger)
			return nil, nil, fmt.Errorf("prepare reminders collection: %w", err)
		}
		return s, func() { disconnect(client, logger) }, nil
	}

	db, err := database.New(cfg.DatabaseURL, logger)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return store.NewGormStore(db), closeDB, nil
}

func disconnect(client *mongo.Client, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		logger.Warn("mongo disconnect", zap.Error(err))
	}
}

func waitForShutdown(server *http.Server, reminderBot *bot.Bot, logger *zap.Logger) {
	stopCtx := make(chan os.Signal, 1)
	signal.Notify(stopCtx, syscall.SIGINT, syscall.SIGTERM)
	<-stopCtx
	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("server shutdown error", zap.Error(err))
	}
	reminderBot.StopScheduler()
}
