package config

import (
	"fmt"
	"net/url"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the storefront client.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Backend API
	APIBaseURL     string `env:"STOREFRONT_API_URL" envDefault:"http://localhost:8080"`
	HTTPTimeoutSec int    `env:"STOREFRONT_HTTP_TIMEOUT_SECONDS" envDefault:"30"`

	// Ops HTTP server (health + metrics)
	HTTPPort int `env:"STOREFRONT_HTTP_PORT" envDefault:"8090"`

	// Redis (guest cart/wishlist buffer)
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Guest buffer TTL in hours (default: 7 days)
	GuestBufferTTL int `env:"GUEST_BUFFER_TTL_HOURS" envDefault:"168"`

	// Token refresh
	RefreshMaxTries int `env:"REFRESH_MAX_TRIES" envDefault:"3"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables via the struct's env
// tags, then checks invariants.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse storefront config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid API base URL: %q", c.APIBaseURL)
	}
	if c.RefreshMaxTries < 1 {
		return fmt.Errorf("refresh max tries must be at least 1, got %d", c.RefreshMaxTries)
	}
	if c.GuestBufferTTL < 1 {
		return fmt.Errorf("guest buffer TTL must be at least 1 hour, got %d", c.GuestBufferTTL)
	}
	return nil
}
