// Package main is the entrypoint for the MentionWorker Lambda function.
//
// The MentionWorker is triggered by comment-created events from the app
// backend (EventBridge or direct invocation). It extracts @mentions from the
// comment body, resolves them to users, and sends push notifications directly
// through the gateway without queueing.
//
// This file handles dependency wiring (Cold Start) and delegates all business
// logic to the internal/mentions package.
package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"dealwire/internal/config"
	"dealwire/internal/db"
	"dealwire/internal/external"
	"dealwire/internal/mentions"
	"dealwire/internal/notify"
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
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("MentionWorker Lambda initializing (cold start)")

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger = logger.With("service", cfg.Service, "env", cfg.Environment)
	typedLogger := &slogAdapter{logger: logger}

	ctx := context.Background()

	// Initialize database connection pool.
	pool, err := pgxpool.New(ctx, cfg.Database.URL.Unmask())
	if err != nil {
		logger.Error("Failed to create database pool", "error", err)
		os.Exit(1)
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Error("Failed to ping database", "error", err)
		os.Exit(1)
	}

	var metrics notify.PipelineMetrics = notify.NoopMetrics{}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		if cfg.Environment != "local" {
			logger.Error("Failed to load AWS SDK config", "error", err)
			os.Exit(1)
		}
		logger.Warn("AWS SDK config unavailable, metrics disabled", "error", err)
	} else {
		metrics = notify.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg), cfg.AWS.MetricNamespace, typedLogger)
	}

	userRepo := db.NewUserRepository(pool)
	deviceRepo := db.NewDeviceRepository(pool)
	gateway := external.NewPushGatewayClient(cfg.Gateway, typedLogger)

	fanout := mentions.NewFanoutService(
		userRepo,
		notify.NewTargetResolver(deviceRepo),
		gateway,
		metrics,
		logger,
		cfg.Gateway.SubBatchSize,
	)

	logger.Info("MentionWorker Lambda initialized",
		"sub_batch_size", cfg.Gateway.SubBatchSize,
		"gateway_url", cfg.Gateway.URL,
	)

	handler := func(ctx context.Context, ev mentions.CommentEvent) error {
		ctx = types.WithTraceID(ctx, uuid.New().String())
		sent, err := fanout.Handle(ctx, ev)
		if err != nil {
			logger.ErrorContext(ctx, "Mention fan-out failed",
				"comment_id", ev.CommentID,
				"error", err,
			)
			return err
		}
		logger.InfoContext(ctx, "Mention fan-out completed",
			"comment_id", ev.CommentID,
			"entries_sent", sent,
		)
		return nil
	}

	// Local mode: read one comment event as JSON from stdin instead of
	// starting the Lambda runtime.
	// Usage: echo '{"deal_id":"...","comment_id":"..."}' | go run ./cmd/mention-worker
	if cfg.Environment == "local" {
		logger.Info("APP_ENV=local: reading comment event from stdin")
		payload, err := io.ReadAll(os.Stdin)
		if err != nil {
			logger.Error("Failed to read stdin", "error", err)
			os.Exit(1)
		}
		var ev mentions.CommentEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			logger.Error("Failed to decode comment event", "error", err)
			os.Exit(1)
		}
		if err := handler(ctx, ev); err != nil {
			os.Exit(1)
		}
		pool.Close()
		return
	}

	lambda.Start(handler)
}
