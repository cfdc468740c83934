// Package config defines the global configuration for the dealwire
// notification pipeline. Configuration is loaded once at process
// initialization (Lambda cold start) and is immutable thereafter, following
// 12-Factor principles: OS environment first, then an optional .env file.
//
// Any missing required value or invalid format fails the load immediately
// (fail fast); workers exit rather than run half-configured.
package config

import (
	"time"

	"dealwire/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used in configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the specific subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"dealwire-notify"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Database DatabaseConfig
	Gateway  GatewayConfig
	Pipeline PipelineConfig
	AWS      AWSConfig
	Server   ServerConfig
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL             SecretString  `envconfig:"DATABASE_URL" validate:"required"`
	MaxConns        int32         `envconfig:"DATABASE_MAX_CONNS" default:"4"`
	ConnectTimeout  time.Duration `envconfig:"DATABASE_CONNECT_TIMEOUT" default:"5s"`
}

// GatewayConfig holds push gateway client settings.
type GatewayConfig struct {
	// URL is the bulk-send endpoint of the push gateway
	// (e.g. https://exp.host/--/api/v2/push/send).
	URL     string        `envconfig:"PUSH_GATEWAY_URL" validate:"required,url"`
	APIKey  SecretString  `envconfig:"PUSH_GATEWAY_API_KEY"`
	Timeout time.Duration `envconfig:"PUSH_GATEWAY_TIMEOUT" default:"15s"`
	// SubBatchSize is the number of dispatch entries per gateway call.
	SubBatchSize int `envconfig:"PUSH_SUB_BATCH_SIZE" default:"100" validate:"min=1,max=500"`
	// Compress enables gzip encoding of request bodies.
	Compress bool `envconfig:"PUSH_GATEWAY_COMPRESS" default:"true"`
}

// PipelineConfig holds drain-cycle tuning parameters.
type PipelineConfig struct {
	// DrainBatchSize caps how many ready queue items one cycle reads.
	DrainBatchSize int `envconfig:"DRAIN_BATCH_SIZE" default:"500" validate:"min=1"`
	// MaxAttempts is the poison-item cap: items that have already been
	// attempted this many times are dead-lettered instead of re-dispatched.
	MaxAttempts int `envconfig:"DRAIN_MAX_ATTEMPTS" default:"8" validate:"min=1"`
}

// AWSConfig holds AWS integration settings.
type AWSConfig struct {
	Region          string `envconfig:"AWS_REGION" default:"us-east-1"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Dealwire"`
	// DeadLetterQueueURL receives poison queue items. Optional; when empty,
	// dead-lettering degrades to log-only.
	DeadLetterQueueURL string `envconfig:"SQS_DEAD_LETTER_URL"`
}

// ServerConfig holds settings for the local dev trigger server.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
}
