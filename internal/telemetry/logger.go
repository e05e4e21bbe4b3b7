// Package telemetry carries the ambient logging and metrics stack: zerolog
// for structured logs, prometheus/client_golang for counters/gauges.
package telemetry

import (
	"os"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// LoggerConfig controls output level and rendering.
type LoggerConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, text, pretty
}

// NewLogger builds a zerolog.Logger configured from cfg, tagged with a
// "service" field for downstream log aggregation.
func NewLogger(cfg LoggerConfig, service string) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var logger zerolog.Logger
	if cfg.Format == "pretty" {
		writer := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		logger = zerolog.New(writer)
	} else {
		logger = zerolog.New(os.Stdout)
	}

	return logger.With().
		Timestamp().
		Caller().
		Str("service", service).
		Logger()
}

// LogError logs err at Error level with a message.
func LogError(logger zerolog.Logger, err error, msg string) {
	logger.Error().Err(err).Msg(msg)
}

// LogErrorWithStack additionally attaches the current goroutine's stack,
// for errors surfaced far from their origin (e.g. inside a worker loop).
func LogErrorWithStack(logger zerolog.Logger, err error, msg string) {
	logger.Error().Err(err).Str("stack", string(debug.Stack())).Msg(msg)
}

// LogPanic logs a recovered panic at Error level with its stack.
func LogPanic(logger zerolog.Logger, recovered any) {
	logger.Error().
		Interface("panic", recovered).
		Str("stack", string(debug.Stack())).
		Msg("recovered panic")
}
