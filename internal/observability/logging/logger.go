// Package logging provides structured logging with zerolog.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	TimeFormat string // RFC3339, Unix, etc.
}

// DefaultConfig returns sensible default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "json",
		TimeFormat: time.RFC3339,
	}
}

// Init initializes the global zerolog logger.
func Init(cfg Config) {
	InitWithWriter(cfg, os.Stdout)
}

// InitWithWriter initializes the global zerolog logger writing to out.
func InitWithWriter(cfg Config, out io.Writer) {
	zerolog.TimeFieldFormat = cfg.TimeFormat

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := out
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.Kitchen,
		}
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()
}

// Logger returns the global service logger.
func Logger() zerolog.Logger {
	return log.Logger
}

// WithLearner returns a logger with learner and exercise context.
func WithLearner(learnerId, exerciseId string) zerolog.Logger {
	return log.With().
		Str("learnerId", learnerId).
		Str("exerciseId", exerciseId).
		Logger()
}

// WithAttempt returns a logger with recording attempt context.
func WithAttempt(learnerId, exerciseId, attemptId string) zerolog.Logger {
	return log.With().
		Str("learnerId", learnerId).
		Str("exerciseId", exerciseId).
		Str("attemptId", attemptId).
		Logger()
}

// WithComponent returns a logger with a component tag.
func WithComponent(component string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Logger()
}
