// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs. Quiet-hours evaluation and
//     scheduled_for comparisons assume a single consistent clock reference.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Validate the struct using go-playground/validator.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// LoadConfig loads and validates the dealwire configuration from the
// environment. It is called once per cold start; any error is fatal to the
// worker.
func LoadConfig() (*Config, error) {
	// Quiet hours and scheduling compare wall-clock hours; everything runs
	// in UTC so the scheduler and the stored preferences agree.
	time.Local = time.UTC

	// godotenv.Load() silently succeeds if no .env file exists and does NOT
	// override variables already set in the environment.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to process environment: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return &cfg, nil
}
