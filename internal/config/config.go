// Package config loads and validates service configuration from the
// environment, with optional .env support for local development.
package config

import (
	"time"

	"neonnova/internal/types"
)

// Config is the root configuration for the checkout service.
type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development" validate:"required,oneof=development staging production"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"required,oneof=debug info warn error"`

	Server        ServerConfig
	Database      DatabaseConfig
	Provider      ProviderConfig
	Sweeper       SweeperConfig
	Observability ObservabilityConfig
}

// ServerConfig holds the HTTP listener settings and the URLs the provider
// redirects buyers to after a hosted payment page completes or is abandoned.
// The redirect URLs are server-owned; values supplied by clients are ignored.
type ServerConfig struct {
	Port               int    `envconfig:"SERVER_PORT" default:"8080" validate:"required,gt=0,lte=65535"`
	CheckoutSuccessURL string `envconfig:"CHECKOUT_SUCCESS_URL" validate:"required,url"`
	CheckoutCancelURL  string `envconfig:"CHECKOUT_CANCEL_URL" validate:"required,url"`
	Currency           string `envconfig:"CHECKOUT_CURRENCY" default:"eur" validate:"required,len=3"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             types.SecretString `envconfig:"DATABASE_URL" validate:"required"`
	MaxConns        int32              `envconfig:"DATABASE_MAX_CONNS" default:"10" validate:"gt=0"`
	MinConns        int32              `envconfig:"DATABASE_MIN_CONNS" default:"2" validate:"gte=0"`
	MaxConnLifetime time.Duration      `envconfig:"DATABASE_MAX_CONN_LIFETIME" default:"30m"`
}

// ProviderConfig holds payment provider credentials and webhook settings.
type ProviderConfig struct {
	SecretKey          types.SecretString `envconfig:"PROVIDER_SECRET_KEY" validate:"required"`
	WebhookSecret      types.SecretString `envconfig:"PROVIDER_WEBHOOK_SECRET" validate:"required"`
	BaseURL            string             `envconfig:"PROVIDER_BASE_URL" default:"https://api.stripe.com" validate:"required,url"`
	SignatureTolerance time.Duration      `envconfig:"PROVIDER_SIGNATURE_TOLERANCE" default:"5m" validate:"required"`
	RequestTimeout     time.Duration      `envconfig:"PROVIDER_REQUEST_TIMEOUT" default:"20s"`
}

// SweeperConfig holds the background maintenance settings: how long a
// pending session may live, how often sweeps run, and how long processed
// webhook event ids are retained for deduplication.
type SweeperConfig struct {
	SessionTTL      time.Duration `envconfig:"SWEEPER_SESSION_TTL" default:"24h" validate:"required"`
	SweepInterval   time.Duration `envconfig:"SWEEPER_INTERVAL" default:"5m" validate:"required"`
	LedgerRetention time.Duration `envconfig:"SWEEPER_LEDGER_RETENTION" default:"720h" validate:"required"`
}

// ObservabilityConfig controls metric emission.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"NeonNova/Checkout"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"false"`
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
