package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"neonnova/internal/core"
)

// Load reads configuration from the environment and validates it. A .env
// file in the working directory is merged in when present; real environment
// variables take precedence. All timestamps in the service are UTC.
func Load() (*Config, error) {
	time.Local = time.UTC

	if err := godotenv.Load(); err == nil {
		slog.Info("loaded configuration overrides from .env")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing environment config: %w", err)
	}

	if err := core.Validator().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
