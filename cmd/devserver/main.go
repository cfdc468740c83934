// Package main runs the local development server for the notification
// pipeline. It exposes the drain cycle and the mention fan-out as HTTP
// triggers so both flows can be exercised against a local Postgres and a
// push gateway stub without any AWS plumbing.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"dealwire/internal/config"
	"dealwire/internal/db"
	"dealwire/internal/external"
	"dealwire/internal/mentions"
	"dealwire/internal/notify"
	"dealwire/internal/ops"
	"dealwire/internal/scheduler"
	"dealwire/internal/types"
)

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

var _ types.Logger = (*slogAdapter)(nil)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})).With("service", cfg.Service, "env", cfg.Environment)
	typedLogger := &slogAdapter{logger: logger}

	logger.Info("dealwire devserver starting", "port", cfg.Server.Port)

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.Database.URL.Unmask())
	if err != nil {
		return fmt.Errorf("creating database pool: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	queueRepo := db.NewQueueRepository(pool)
	prefRepo := db.NewPreferenceRepository(pool)
	deviceRepo := db.NewDeviceRepository(pool)
	userRepo := db.NewUserRepository(pool)

	gateway := external.NewPushGatewayClient(cfg.Gateway, typedLogger)
	targets := notify.NewTargetResolver(deviceRepo)

	// CloudWatch and SQS are deliberately absent here: the devserver reports
	// outcomes through its HTTP responses and logs.
	drain := scheduler.NewDrainScheduler(scheduler.DrainSchedulerConfig{
		Queue:      queueRepo,
		Prefs:      prefRepo,
		Targets:    targets,
		Dispatcher: notify.NewDispatcher(gateway, queueRepo, notify.NoopMetrics{}, typedLogger, cfg.Gateway.SubBatchSize),
		Policy:     notify.NewPolicyEngine(types.RealClock{}, typedLogger),
		Logger:     logger,
		Config: scheduler.DrainConfig{
			BatchSize:   cfg.Pipeline.DrainBatchSize,
			MaxAttempts: cfg.Pipeline.MaxAttempts,
		},
	})

	fanout := mentions.NewFanoutService(userRepo, targets, gateway, notify.NoopMetrics{}, logger, cfg.Gateway.SubBatchSize)

	srv := ops.NewServer(drain, fanout, logger)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      srv.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("devserver listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("devserver stopped")
	return nil
}
