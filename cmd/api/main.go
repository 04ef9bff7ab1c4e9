package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	_ "github.com/dessignio/lusa-app-sub001/docs" // registers the swagger docs

	"github.com/dessignio/lusa-app-sub001/internal/cache"
	"github.com/dessignio/lusa-app-sub001/internal/config"
	"github.com/dessignio/lusa-app-sub001/internal/domain"
	httphandler "github.com/dessignio/lusa-app-sub001/internal/handler/http"
	"github.com/dessignio/lusa-app-sub001/internal/processor"
	"github.com/dessignio/lusa-app-sub001/internal/repository"
	"github.com/dessignio/lusa-app-sub001/internal/service"
	"github.com/dessignio/lusa-app-sub001/internal/telemetry"
)

// @title           Studio Billing API
// @version         1.0
// @description     Multi-tenant studio billing and subscription reconciliation on Stripe Connect.
//
// @host      localhost:8080
// @BasePath  /
func main() {
	if err := run(); err != nil {
		slog.Error("billing api stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	slog.Info("starting billing api", "addr", cfg.HTTPAddr, "db_driver", cfg.Database.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			slog.Warn("tracer shutdown failed", "error", err)
		}
	}()

	// --- storage ---
	db, err := repository.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := repository.Migrate(db); err != nil {
		return err
	}
	slog.Info("database ready")

	tenants := repository.NewTenantRepository(db)
	students := repository.NewStudentRepository(db)
	plans := repository.NewPlanRepository(db)
	ledger := repository.NewLedgerRepository(db)
	events := repository.NewWebhookEventRepository(db)
	notifications := repository.NewNotificationRepository(db)

	settings, err := settingsStore(cfg, db)
	if err != nil {
		return err
	}

	// --- processor ---
	gateway := processor.NewStripeGateway(processor.StripeConfig{
		SecretKey: cfg.Stripe.SecretKey,
		BaseURL:   cfg.Stripe.BaseURL,
		HTTPClient: &http.Client{
			Timeout:   cfg.Stripe.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	})

	snapshots, closeCache := metricsCache(ctx, cfg)
	defer closeCache()

	// --- services ---
	accounts := service.NewAccountService(tenants, gateway, cfg.OnboardingRefreshURL, cfg.OnboardingReturnURL)
	planService := service.NewPlanService(tenants, plans, settings, gateway, cfg.DefaultCurrency)
	subscriptions := service.NewSubscriptionService(tenants, students, plans, settings, notifications, gateway)
	metrics := service.NewMetricsService(tenants, gateway, snapshots)
	ledgerService := service.NewLedgerService(students, plans, ledger)
	webhooks := service.NewWebhookService(service.WebhookDeps{
		Verifier: processor.NewVerifier(cfg.Stripe.WebhookSecret),
		Events:   events,
		Tenants:  tenants,
		Students: students,
		Plans:    plans,
		Ledger:   ledger,
		Settings: settings,
		Notifier: notifications,
		Gateway:  gateway,
	})
	reconciler := service.NewReconciler(events, webhooks, cfg.ReconcileInterval, cfg.ReconcileMaxAttempts)

	// --- router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(prometheusMiddleware)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("billing api is up"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger/*", httpSwagger.WrapHandler)

	r.Post("/webhooks/stripe", httphandler.NewWebhookHandler(webhooks).HandleStripeWebhook)
	r.Mount("/api", httphandler.NewBillingHandler(httphandler.Services{
		Accounts:      accounts,
		Plans:         planService,
		Subscriptions: subscriptions,
		Metrics:       metrics,
		Ledger:        ledgerService,
		Notifications: notifications,
	}).Routes())
	if cfg.Admin.Password == "" {
		slog.Warn("ADMIN_PASSWORD not set, admin routes disabled")
	}
	r.Mount("/admin", httphandler.NewAdminHandler(webhooks, httphandler.AdminCredentials{
		User:     cfg.Admin.User,
		Password: cfg.Admin.Password,
	}).Routes())

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(r, "billing-api"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return reconciler.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

func settingsStore(cfg *config.Config, db *sqlx.DB) (domain.SettingsStore, error) {
	if cfg.TenantSettingsFile == "" {
		return repository.NewSettingsRepository(db), nil
	}
	s, err := config.LoadSettingsFile(cfg.TenantSettingsFile, cfg.DefaultCurrency)
	if err != nil {
		return nil, err
	}
	slog.Info("tenant settings loaded from file", "path", cfg.TenantSettingsFile)
	return s, nil
}

// metricsCache falls back to no caching when Redis is not configured or not
// reachable at startup.
func metricsCache(ctx context.Context, cfg *config.Config) (cache.MetricsCache, func()) {
	if cfg.RedisURL == "" {
		return cache.Noop{}, func() {}
	}
	c, err := cache.Dial(ctx, cfg.RedisURL, cfg.MetricsCacheTTL)
	if err != nil {
		slog.Warn("redis unavailable, metrics cache disabled", "error", err)
		return cache.Noop{}, func() {}
	}
	return c, func() { c.Close() }
}
