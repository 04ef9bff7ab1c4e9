// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the process configuration.
type Config struct {
	HTTPAddr string
	LogLevel slog.Level

	Database DatabaseConfig
	Stripe   StripeConfig
	Admin    AdminConfig

	DefaultCurrency      string
	OnboardingRefreshURL string
	OnboardingReturnURL  string
	// TenantSettingsFile switches per-tenant settings from the database to a YAML file.
	TenantSettingsFile string

	RedisURL        string
	MetricsCacheTTL time.Duration

	ReconcileInterval    time.Duration
	ReconcileMaxAttempts int

	OTLPEndpoint string
}

type DatabaseConfig struct {
	Driver string
	DSN    string
}

// AdminConfig holds the basic auth credentials of the /admin routes. An empty
// password disables them.
type AdminConfig struct {
	User     string
	Password string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
	// BaseURL overrides the API host; empty in production.
	BaseURL string
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds the config from the current environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		LogLevel: parseLevel(getEnv("LOG_LEVEL", "info")),
		Database: DatabaseConfig{
			Driver: getEnv("DB_DRIVER", "sqlite3"),
			DSN:    getEnv("DB_DSN", "./billing.db"),
		},
		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			Timeout:       getEnvAsDuration("STRIPE_TIMEOUT", 30*time.Second),
			BaseURL:       getEnv("STRIPE_API_BASE", ""),
		},
		Admin: AdminConfig{
			User:     getEnv("ADMIN_USER", "admin"),
			Password: getEnv("ADMIN_PASSWORD", ""),
		},
		DefaultCurrency:      strings.ToLower(getEnv("DEFAULT_CURRENCY", "usd")),
		OnboardingRefreshURL: getEnv("ONBOARDING_REFRESH_URL", "http://localhost:3000/settings/billing?refresh=1"),
		OnboardingReturnURL:  getEnv("ONBOARDING_RETURN_URL", "http://localhost:3000/settings/billing"),
		TenantSettingsFile:   getEnv("TENANT_SETTINGS_FILE", ""),
		RedisURL:             getEnv("REDIS_URL", ""),
		MetricsCacheTTL:      getEnvAsDuration("METRICS_CACHE_TTL", time.Minute),
		ReconcileInterval:    getEnvAsDuration("RECONCILE_INTERVAL", 5*time.Minute),
		ReconcileMaxAttempts: getEnvAsInt("RECONCILE_MAX_ATTEMPTS", 10),
		OTLPEndpoint:         getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	var problems []string

	if c.Stripe.SecretKey == "" {
		problems = append(problems, "STRIPE_SECRET_KEY is required")
	}
	if c.Stripe.WebhookSecret == "" {
		problems = append(problems, "STRIPE_WEBHOOK_SECRET is required")
	}
	if c.Database.Driver != "sqlite3" && c.Database.Driver != "postgres" {
		problems = append(problems, fmt.Sprintf("DB_DRIVER must be sqlite3 or postgres, got %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		problems = append(problems, "DB_DSN is required")
	}
	if c.ReconcileMaxAttempts < 1 {
		problems = append(problems, "RECONCILE_MAX_ATTEMPTS must be at least 1")
	}
	if c.Stripe.Timeout <= 0 {
		problems = append(problems, "STRIPE_TIMEOUT must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("90s") or bare seconds ("90").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
