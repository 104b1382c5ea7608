package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	Port     string
	Env      string
	LogLevel string

	TwilioAccountSID        string
	TwilioAuthToken         string
	TwilioWhatsAppNumber    string
	TwilioValidateSignature bool
	PublicWebhookURL        string

	OpenAIAPIKey string
	OpenAIModel  string

	DatabaseURL   string
	MongoDatabase string

	// UTCOffsetHours is the fixed civil offset used to read and display times.
	UTCOffsetHours int

	TickSchedule        string
	DispatchTimeout     time.Duration
	DispatchConcurrency int
	RecurrencePolicy    string

	WebhookRatePerMinute int
	WebhookBurst         int

	// Warnings lists values that could not be parsed and fell back to their
	// defaults. Load runs before the logger exists, so the caller logs them.
	Warnings []string
}

// Load reads configuration values and prepares defaults where applicable.
func Load() *Config {
	_ = godotenv.Load()
	env := &envReader{}

	cfg := &Config{
		Port:     getenvDefault("PORT", "8080"),
		Env:      getenvDefault("APP_ENV", "development"),
		LogLevel: getenvDefault("LOG_LEVEL", "info"),

		TwilioAccountSID:        os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:         os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioWhatsAppNumber:    os.Getenv("TWILIO_WHATSAPP_NUMBER"),
		TwilioValidateSignature: env.Bool("TWILIO_VALIDATE_SIGNATURE", false),
		PublicWebhookURL:        os.Getenv("PUBLIC_WEBHOOK_URL"),

		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:  getenvDefault("OPENAI_MODEL", "gpt-4o-mini"),

		DatabaseURL:   os.Getenv("DATABASE_URL"),
		MongoDatabase: getenvDefault("MONGO_DATABASE", "nhacnho"),

		UTCOffsetHours: env.Int("LOCAL_UTC_OFFSET_HOURS", 7),

		TickSchedule:        getenvDefault("TICK_SCHEDULE", "@every 1m"),
		DispatchTimeout:     env.Duration("DISPATCH_TIMEOUT", 10*time.Second),
		DispatchConcurrency: env.Int("DISPATCH_CONCURRENCY", 8),
		RecurrencePolicy:    strings.ToLower(getenvDefault("RECURRENCE_POLICY", "daily")),

		WebhookRatePerMinute: env.Int("WEBHOOK_RATE_PER_MIN", 30),
		WebhookBurst:         env.Int("WEBHOOK_BURST", 10),
	}
	cfg.Warnings = env.warnings
	return cfg
}

// UsesMongo reports whether DatabaseURL points at a MongoDB deployment.
func (c *Config) UsesMongo() bool {
	return strings.HasPrefix(c.DatabaseURL, "mongodb://") ||
		strings.HasPrefix(c.DatabaseURL, "mongodb+srv://")
}

// IsProduction reports whether the service runs with production defaults.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getenvDefault(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		return def
	}
	return value
}

// envReader reads typed environment values and records the ones it had to
// replace with defaults.
type envReader struct {
	warnings []string
}

func (e *envReader) warn(key, value, kind string, err error) {
	e.warnings = append(e.warnings, fmt.Sprintf("unable to parse %s=%q as %s: %v", key, value, kind, err))
}

// Int returns the integer value for an environment variable or the provided default.
func (e *envReader) Int(key string, def int) int {
	value := os.Getenv(key)
	if value == "" {
		return def
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		e.warn(key, value, "int", err)
		return def
	}
	return parsed
}

// Duration returns the duration value for an environment variable or the provided default.
func (e *envReader) Duration(key string, def time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return def
	}

	parsed, err := time.ParseDuration(value)
	if err == nil && parsed <= 0 {
		err = errors.New("must be positive")
	}
	if err != nil {
		e.warn(key, value, "duration", err)
		return def
	}
	return parsed
}

// Bool returns the boolean value for an environment variable or the provided default.
func (e *envReader) Bool(key string, def bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return def
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		e.warn(key, value, "bool", err)
		return def
	}
	return parsed
}
