package config

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "./billing.db", cfg.Database.DSN)
	assert.Equal(t, 30*time.Second, cfg.Stripe.Timeout)
	assert.Equal(t, "usd", cfg.DefaultCurrency)
	assert.Equal(t, time.Minute, cfg.MetricsCacheTTL)
	assert.Equal(t, 5*time.Minute, cfg.ReconcileInterval)
	assert.Equal(t, 10, cfg.ReconcileMaxAttempts)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "admin", cfg.Admin.User)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_DSN", "postgres://localhost/billing")
	t.Setenv("RECONCILE_INTERVAL", "0")
	t.Setenv("METRICS_CACHE_TTL", "2m")
	t.Setenv("DEFAULT_CURRENCY", "EUR")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ADMIN_USER", "ops")
	t.Setenv("ADMIN_PASSWORD", "s3cret")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, time.Duration(0), cfg.ReconcileInterval)
	assert.Equal(t, 2*time.Minute, cfg.MetricsCacheTTL)
	assert.Equal(t, "eur", cfg.DefaultCurrency)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, AdminConfig{User: "ops", Password: "s3cret"}, cfg.Admin)
}

func TestFromEnv_CollectsAllProblems(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")
	t.Setenv("DB_DRIVER", "mysql")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STRIPE_SECRET_KEY is required")
	assert.Contains(t, err.Error(), "STRIPE_WEBHOOK_SECRET is required")
	assert.Contains(t, err.Error(), "DB_DRIVER must be sqlite3 or postgres")
}

func TestParseSettings(t *testing.T) {
	raw := []byte(`
tenants:
  studio-a:
    enrollment_fee_price_id: price_fee
    audition_fee_product_id: prod_audition
  studio-b:
    currency: eur
`)
	store, err := ParseSettings(raw, "usd")
	require.NoError(t, err)

	a, err := store.Get(context.Background(), "studio-a")
	require.NoError(t, err)
	assert.Equal(t, "price_fee", a.EnrollmentFeePriceID)
	assert.Equal(t, "prod_audition", a.AuditionFeeProductID)
	assert.Equal(t, "usd", a.Currency)

	b, _ := store.Get(context.Background(), "studio-b")
	assert.Equal(t, "eur", b.Currency)
	assert.Empty(t, b.EnrollmentFeePriceID)

	unknown, err := store.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Equal(t, "usd", unknown.Currency)
	assert.Empty(t, unknown.EnrollmentFeePriceID)
}

func TestParseSettings_Invalid(t *testing.T) {
	_, err := ParseSettings([]byte("tenants: [unclosed"), "usd")
	assert.Error(t, err)
}
