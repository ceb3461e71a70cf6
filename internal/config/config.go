package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port             int
	DatabaseDriver   string
	DatabaseURL      string
	DatabaseMaxConns int32
	Notify           NotifyConfig
}

type NotifyConfig struct {
	Channel       string
	Workers       int
	QueueSize     int
	MaxAttempts   int
	RetryBackoff  time.Duration
	RetrySchedule string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPTLS      bool

	WebhookURL   string
	SlackToken   string
	SlackChannel string
}

// Load reads the process environment, falling back to ./.env and then to
// defaults.
func Load() (Config, error) {
	envPath := filepath.Join(".", ".env")

	values := map[string]string{}
	fileValues, err := godotenv.Read(envPath)
	switch {
	case err == nil:
		values = fileValues
	case errors.Is(err, fs.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("read %s: %w", envPath, err)
	}

	get := func(key string) string {
		return firstNonEmpty(os.Getenv(key), values[key])
	}

	cfg := Config{
		Port:             8080,
		DatabaseDriver:   "postgres",
		DatabaseMaxConns: 10,
		Notify: NotifyConfig{
			Channel:       "log",
			Workers:       2,
			QueueSize:     256,
			MaxAttempts:   3,
			RetryBackoff:  2 * time.Second,
			RetrySchedule: "@every 5m",
			SMTPPort:      587,
		},
	}

	if err := positiveInt(get("PORT"), "PORT", &cfg.Port); err != nil {
		return Config{}, err
	}

	if driver := strings.ToLower(get("DATABASE_DRIVER")); driver != "" {
		cfg.DatabaseDriver = driver
	}
	if cfg.DatabaseDriver != "postgres" && cfg.DatabaseDriver != "sqlite" {
		return Config{}, fmt.Errorf("invalid DATABASE_DRIVER: %q (want postgres or sqlite)", cfg.DatabaseDriver)
	}

	cfg.DatabaseURL = get("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required (environment variable or .env)")
	}

	maxConns := int(cfg.DatabaseMaxConns)
	if err := positiveInt(get("DATABASE_MAX_CONNS"), "DATABASE_MAX_CONNS", &maxConns); err != nil {
		return Config{}, err
	}
	cfg.DatabaseMaxConns = int32(maxConns)

	n := &cfg.Notify
	if channel := strings.ToLower(get("NOTIFY_CHANNEL")); channel != "" {
		n.Channel = channel
	}
	if err := positiveInt(get("NOTIFY_WORKERS"), "NOTIFY_WORKERS", &n.Workers); err != nil {
		return Config{}, err
	}
	if err := positiveInt(get("NOTIFY_QUEUE_SIZE"), "NOTIFY_QUEUE_SIZE", &n.QueueSize); err != nil {
		return Config{}, err
	}
	if err := positiveInt(get("NOTIFY_MAX_ATTEMPTS"), "NOTIFY_MAX_ATTEMPTS", &n.MaxAttempts); err != nil {
		return Config{}, err
	}
	if raw := get("NOTIFY_RETRY_BACKOFF"); raw != "" {
		backoff, err := time.ParseDuration(raw)
		if err != nil || backoff < 0 {
			return Config{}, fmt.Errorf("invalid NOTIFY_RETRY_BACKOFF: %q", raw)
		}
		n.RetryBackoff = backoff
	}
	if raw, ok := lookup("NOTIFY_RETRY_SCHEDULE", values); ok {
		n.RetrySchedule = raw
	}

	n.SMTPHost = get("SMTP_HOST")
	if err := positiveInt(get("SMTP_PORT"), "SMTP_PORT", &n.SMTPPort); err != nil {
		return Config{}, err
	}
	n.SMTPUsername = get("SMTP_USERNAME")
	n.SMTPPassword = get("SMTP_PASSWORD")
	n.SMTPFrom = get("SMTP_FROM")
	if raw := get("SMTP_TLS"); raw != "" {
		tls, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SMTP_TLS: %q", raw)
		}
		n.SMTPTLS = tls
	}

	n.WebhookURL = get("NOTIFY_WEBHOOK_URL")
	n.SlackToken = get("SLACK_TOKEN")
	n.SlackChannel = get("SLACK_CHANNEL")

	return cfg, nil
}

func positiveInt(raw, key string, dst *int) error {
	if raw == "" {
		return nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	*dst = value
	return nil
}

// lookup distinguishes a key set to "" from an absent one, so the sweep can
// be disabled explicitly.
func lookup(key string, values map[string]string) (string, bool) {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v), true
	}
	v, ok := values[key]
	return strings.TrimSpace(v), ok
}

func firstNonEmpty(candidates ...string) string {
	for _, candidate := range candidates {
		if value := strings.TrimSpace(candidate); value != "" {
			return value
		}
	}
	return ""
}
