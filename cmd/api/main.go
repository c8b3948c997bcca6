package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // postgres driver

	"github.com/quizlm/fitiq-backend/internal/api"
	"github.com/quizlm/fitiq-backend/internal/checkout"
	"github.com/quizlm/fitiq-backend/internal/config"
	"github.com/quizlm/fitiq-backend/internal/email"
	"github.com/quizlm/fitiq-backend/internal/fulfillment"
	"github.com/quizlm/fitiq-backend/internal/mercadopago"
)

func main() {
	// ── Logger ────────────────────────────────────────────────────────────────
	// JSON in production, pretty text in development.
	var logger *slog.Logger
	if os.Getenv("ENV") == "production" {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// ── Config ────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger.Info("config loaded", "env", cfg.Env, "port", cfg.Port)

	// ── Fulfillment store ─────────────────────────────────────────────────────
	// Postgres when DATABASE_URL is set; in-memory otherwise. The in-memory
	// store loses issued download tokens on restart, so it is only acceptable
	// for development.
	var store fulfillment.Store
	if cfg.DatabaseURL != "" {
		pool, err := openDB(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer pool.Close()

		pg := fulfillment.NewPostgresStore(pool)

		schemaCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := pg.EnsureSchema(schemaCtx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}

		store = pg
		logger.Info("fulfillment store: postgres")
	} else {
		store = fulfillment.NewMemoryStore()
		logger.Warn("fulfillment store: in-memory (state lost on restart)")
	}

	// ── Mercado Pago ──────────────────────────────────────────────────────────
	gateway := mercadopago.NewClient(cfg.MPAccessToken)

	// ── Checkout ──────────────────────────────────────────────────────────────
	checkoutSvc := checkout.NewService(gateway, checkout.Config{
		PlanAmount:        cfg.PlanAmount,
		UpsellAmount:      cfg.UpsellAmount,
		CurrencyID:        cfg.CurrencyID,
		PlanDescription:   "FitIQ • Plano Personalizado",
		UpsellDescription: "FitIQ • Protocolo Avançado",
		SuccessURL:        cfg.FrontendSuccessURL,
		FailureURL:        cfg.FrontendFailureURL,
	}, logger)

	// ── Email (Resend) ────────────────────────────────────────────────────────
	var mailer email.Sender
	if cfg.ResendAPIKey != "" {
		mailer = email.NewResendClient(
			cfg.ResendAPIKey,
			cfg.EmailFromAddr,
			cfg.EmailFromName,
			cfg.BaseURL,
		)
		logger.Info("email: resend configured", "from", cfg.EmailFromAddr)
	} else {
		mailer = email.NoopSender{}
		logger.Warn("email: no RESEND_API_KEY, delivery emails disabled")
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	handler := api.NewServer(
		store,
		gateway,
		checkoutSvc,
		mailer,
		api.Config{
			Env:            cfg.Env,
			AllowedOrigins: cfg.AllowedOrigins,
			WebhookSecret:  cfg.MPWebhookSecret,
			DownloadDir:    cfg.DownloadDir,
		},
		logger,
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	// Root context cancelled by OS signal.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until either a signal arrives or the server dies unexpectedly.
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	// Give in-flight requests (including a webhook mid-processing) up to 20
	// seconds to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// openDB opens the connection pool and verifies it is reachable before the
// server starts taking traffic.
func openDB(dsn string) (*sql.DB, error) {
	pool, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	// Tune the connection pool.
	pool.SetMaxOpenConns(25)
	pool.SetMaxIdleConns(10)
	pool.SetConnMaxLifetime(5 * time.Minute)
	pool.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return pool, nil
}
