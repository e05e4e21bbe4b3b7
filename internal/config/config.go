// Package config loads runtime configuration: caarlos0/env/v11 struct
// tags, an optional joho/godotenv .env file, then range/enum validation.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Bus holds every runtime-tunable knob the bus's ambient and domain
// stack expose. These are compile-time constants in the embedded target
// this design descends from; here they're made runtime-tunable since the
// host process, not the library, owns them.
type Bus struct {
	MaxHSMDepth           int     `env:"BUS_MAX_HSM_DEPTH" envDefault:"8"`
	MailboxCapacity       int     `env:"BUS_MAILBOX_CAPACITY" envDefault:"256"`
	DefaultBrokerEnabled  bool    `env:"BUS_DEFAULT_BROKER_ENABLED" envDefault:"true"`
	PublishRate           float64 `env:"BUS_PUBLISH_RATE" envDefault:"1000"`
	PublishBurst          int     `env:"BUS_PUBLISH_BURST" envDefault:"100"`

	MetricsAddr     string        `env:"BUS_METRICS_ADDR" envDefault:":9090"`
	IntrospectAddr  string        `env:"BUS_INTROSPECT_ADDR" envDefault:":9091"`
	MetricsInterval time.Duration `env:"BUS_METRICS_INTERVAL" envDefault:"15s"`

	NATSURL     string `env:"BUS_NATS_URL" envDefault:"nats://127.0.0.1:4222"`
	NATSEnabled bool   `env:"BUS_NATS_ENABLED" envDefault:"false"`

	LogLevel  string `env:"BUS_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"BUS_LOG_FORMAT" envDefault:"json"`

	Environment string `env:"BUS_ENVIRONMENT" envDefault:"development"`
}

// Load reads a .env file (optional, missing is not an error), then
// environment variables, then validates. Priority: env vars > .env >
// defaults.
func Load(logger *zerolog.Logger) (*Bus, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found (using environment variables only)")
		}
	} else if logger != nil {
		logger.Info().Msg("loaded configuration from .env file")
	}

	cfg := &Bus{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration for internally-inconsistent values.
func (c *Bus) Validate() error {
	if c.MaxHSMDepth < 1 {
		return fmt.Errorf("BUS_MAX_HSM_DEPTH must be > 0, got %d", c.MaxHSMDepth)
	}
	if c.MailboxCapacity < 1 {
		return fmt.Errorf("BUS_MAILBOX_CAPACITY must be > 0, got %d", c.MailboxCapacity)
	}
	if c.PublishRate <= 0 {
		return fmt.Errorf("BUS_PUBLISH_RATE must be > 0, got %.1f", c.PublishRate)
	}
	if c.PublishBurst < 1 {
		return fmt.Errorf("BUS_PUBLISH_BURST must be > 0, got %d", c.PublishBurst)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("BUS_LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}
	validLogFormats := map[string]bool{"json": true, "text": true, "pretty": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("BUS_LOG_FORMAT must be one of: json, text, pretty (got: %s)", c.LogFormat)
	}
	return nil
}

// LogConfig logs the loaded configuration using structured logging.
func (c *Bus) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("environment", c.Environment).
		Int("max_hsm_depth", c.MaxHSMDepth).
		Int("mailbox_capacity", c.MailboxCapacity).
		Bool("default_broker_enabled", c.DefaultBrokerEnabled).
		Float64("publish_rate", c.PublishRate).
		Int("publish_burst", c.PublishBurst).
		Str("metrics_addr", c.MetricsAddr).
		Str("introspect_addr", c.IntrospectAddr).
		Dur("metrics_interval", c.MetricsInterval).
		Bool("nats_enabled", c.NATSEnabled).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("bus configuration loaded")
}
