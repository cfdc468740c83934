// Package main is the entrypoint for the DrainWorker Lambda function.
//
// The DrainWorker is triggered on a fixed schedule (EventBridge rule). Each
// invocation runs one drain cycle: read ready queue items, apply per-recipient
// delivery policy, deduplicate, resolve push destinations, and dispatch in
// sub-batches through the push gateway.
//
// This file handles dependency wiring (Cold Start) and delegates all business
// logic to the internal/scheduler package.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"dealwire/internal/config"
	"dealwire/internal/db"
	"dealwire/internal/external"
	"dealwire/internal/notify"
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

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func main() {
	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	bootLogger.Info("DrainWorker Lambda initializing (cold start)")

	cfg, err := config.LoadConfig()
	if err != nil {
		bootLogger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})).With("service", cfg.Service, "env", cfg.Environment)
	typedLogger := &slogAdapter{logger: logger}

	ctx := context.Background()

	// Initialize database connection pool.
	pool, err := pgxpool.New(ctx, cfg.Database.URL.Unmask())
	if err != nil {
		logger.Error("Failed to create database pool", "error", err)
		os.Exit(1)
	}

	// Verify database connectivity.
	pingCtx, cancel := context.WithTimeout(ctx, cfg.Database.ConnectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.Error("Failed to ping database", "error", err)
		os.Exit(1)
	}

	// Load AWS SDK configuration for CloudWatch metrics and the dead-letter
	// queue. In local mode both degrade to no-op/log-only, so a failed load
	// is not fatal there.
	var metrics notify.PipelineMetrics = notify.NoopMetrics{}
	var deadletter scheduler.DeadLetterPublisher
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		if cfg.Environment != "local" {
			logger.Error("Failed to load AWS SDK config", "error", err)
			os.Exit(1)
		}
		logger.Warn("AWS SDK config unavailable, metrics and dead-letter disabled", "error", err)
	} else {
		metrics = notify.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg), cfg.AWS.MetricNamespace, typedLogger)
		deadletter = scheduler.NewSQSDeadLetter(sqs.NewFromConfig(awsCfg), cfg.AWS.DeadLetterQueueURL, logger)
	}

	// Initialize database repositories.
	queueRepo := db.NewQueueRepository(pool)
	prefRepo := db.NewPreferenceRepository(pool)
	deviceRepo := db.NewDeviceRepository(pool)

	// Initialize the push gateway client and the dispatch stack.
	gateway := external.NewPushGatewayClient(cfg.Gateway, typedLogger)
	dispatcher := notify.NewDispatcher(gateway, queueRepo, metrics, typedLogger, cfg.Gateway.SubBatchSize)
	policy := notify.NewPolicyEngine(types.RealClock{}, typedLogger)

	drain := scheduler.NewDrainScheduler(scheduler.DrainSchedulerConfig{
		Queue:      queueRepo,
		Prefs:      prefRepo,
		Targets:    notify.NewTargetResolver(deviceRepo),
		Dispatcher: dispatcher,
		Policy:     policy,
		DeadLetter: deadletter,
		Metrics:    metrics,
		Clock:      types.RealClock{},
		Logger:     logger,
		Config: scheduler.DrainConfig{
			BatchSize:   cfg.Pipeline.DrainBatchSize,
			MaxAttempts: cfg.Pipeline.MaxAttempts,
		},
	})

	logger.Info("DrainWorker Lambda initialized",
		"drain_batch_size", cfg.Pipeline.DrainBatchSize,
		"max_attempts", cfg.Pipeline.MaxAttempts,
		"sub_batch_size", cfg.Gateway.SubBatchSize,
		"gateway_url", cfg.Gateway.URL,
	)

	// The scheduled-event payload carries no information the cycle needs;
	// every invocation drains whatever is ready now.
	handler := func(ctx context.Context, _ json.RawMessage) error {
		ctx = types.WithTraceID(ctx, uuid.New().String())
		report, err := drain.Drain(ctx)
		if err != nil {
			logger.ErrorContext(ctx, "Drain cycle failed", "error", err)
			return err
		}
		logger.InfoContext(ctx, "Drain cycle completed",
			"processed", report.Processed,
			"sent", report.Sent,
			"skipped", report.Skipped,
			"rescheduled", report.Rescheduled,
			"dead_lettered", report.DeadLettered,
		)
		return nil
	}

	// Local mode: run a single drain cycle and exit instead of starting the
	// Lambda runtime. Usage: APP_ENV=local go run ./cmd/drain-worker
	if cfg.Environment == "local" {
		logger.Info("APP_ENV=local: running one drain cycle")
		if err := handler(ctx, nil); err != nil {
			os.Exit(1)
		}
		pool.Close()
		return
	}

	lambda.Start(handler)
}
