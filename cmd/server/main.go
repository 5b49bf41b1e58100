// Package main is the entrypoint for the settlement API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mimanitas/settlement/internal/api"
	"github.com/mimanitas/settlement/internal/api/handler"
	mw "github.com/mimanitas/settlement/internal/api/middleware"
	"github.com/mimanitas/settlement/internal/cache"
	"github.com/mimanitas/settlement/internal/config"
	"github.com/mimanitas/settlement/internal/events"
	"github.com/mimanitas/settlement/internal/gateway"
	"github.com/mimanitas/settlement/internal/logging"
	"github.com/mimanitas/settlement/internal/payment"
	"github.com/mimanitas/settlement/internal/store"
	"github.com/mimanitas/settlement/internal/webhook"
)

const shutdownTimeout = 30 * time.Second

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := loadDotEnv(".env"); err != nil {
		slog.Error("load .env", "error", err)
		os.Exit(1)
	}

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// loadDotEnv applies a .env file when one exists. Variables already set win.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(cfg.Logging, os.Stdout)
	slog.SetDefault(logger)
	logger.Info("config loaded",
		"env", cfg.Server.Env,
		"currency", cfg.Stripe.Currency,
		"platform_fee_percent", cfg.Payments.PlatformFeePercent)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	logger.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("redis connected")

	// 5. Event publisher
	publisher, closePublisher, err := newPublisher(cfg.RabbitMQ, logger)
	if err != nil {
		return fmt.Errorf("connect rabbitmq: %w", err)
	}
	defer closePublisher()

	// 6. Services
	pgStore := store.NewPostgresStore(pool)
	gw := gateway.NewHTTPClient(cfg.Stripe.BaseURL, cfg.Stripe.SecretKey, cfg.Stripe.Timeout)
	router := newRouter(cfg, pgStore, redisCache, gw, publisher, logger)

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}

// newPublisher connects to RabbitMQ when configured and falls back to dropping events.
func newPublisher(cfg config.RabbitMQConfig, logger *slog.Logger) (events.Publisher, func(), error) {
	if cfg.URL == "" {
		logger.Info("rabbitmq not configured, domain events disabled")
		return events.NopPublisher{}, func() {}, nil
	}
	p, err := events.NewAMQPPublisher(cfg.URL, cfg.Exchange, logger)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("rabbitmq connected", "exchange", cfg.Exchange)
	return p, func() {
		if err := p.Close(); err != nil {
			logger.Warn("close rabbitmq", "error", err)
		}
	}, nil
}

// newRouter wires services, webhook dispatch, and HTTP handlers.
func newRouter(cfg *config.Config, s store.Store, c cache.Cache, gw gateway.Client, pub events.Publisher, logger *slog.Logger) http.Handler {
	settings := payment.Settings{
		FeePercent: cfg.Payments.PlatformFeePercent,
		Currency:   cfg.Stripe.Currency,
		Platform:   cfg.Stripe.Platform,
	}

	coordinator := payment.NewCoordinator(s, gw, pub, settings, logger)
	checkout := payment.NewCheckout(s, gw, settings, logger)
	handlers := payment.EventHandlers{
		Coordinator:   coordinator,
		Compensator:   payment.NewCompensator(s, pub, logger),
		PayoutTracker: payment.NewPayoutTracker(s, pub, logger),
		AccountSync:   payment.NewAccountSync(s, logger),
	}

	verifier := webhook.NewVerifier(cfg.Stripe.WebhookSecrets(), cfg.Payments.SignatureTolerance)
	dispatcher := webhook.NewRouter(handlers, c, cfg.Payments.EventDedupTTL, logger)

	return api.NewRouter(api.Dependencies{
		Logger:     logger,
		CallerAuth: mw.NewCallerAuth(cfg.Auth.JWTSecret),
		KeyAuth:    mw.NewAuth(s, logger),
		RateLimit:  mw.NewRateLimit(c, cfg.Auth.RequestsPerMinute, logger),

		HealthHandler:         handler.NewHealthHandler(s, c),
		WebhookHandler:        handler.NewWebhookHandler(verifier, dispatcher, logger),
		CreateIntentHandler:   handler.NewCreateIntentHandler(checkout, logger),
		CreateCheckoutHandler: handler.NewCreateCheckoutHandler(checkout, logger),
		ConfirmHandler:        handler.NewConfirmHandler(coordinator, logger),
		VerifyCheckoutHandler: handler.NewVerifyCheckoutHandler(coordinator, logger),
		ReconcileHandler:      handler.NewReconcileHandler(coordinator, logger),
	})
}
