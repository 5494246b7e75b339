// Package logger provides structured logging using zerolog.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Config represents logger configuration.
type Config struct {
	Level  string // "debug", "info", "warn", "error"
	Output string // "stderr", "discard", or a file path
}

// Option adjusts logger initialization.
type Option func(*options)

type options struct {
	consoleOut io.Writer
}

// WithConsoleOut overrides the writer used for the "stderr" output
// mode. Needed when fd 2 is captured: logging through os.Stderr would
// feed every message back into the capture pipe.
func WithConsoleOut(w io.Writer) Option {
	return func(o *options) {
		o.consoleOut = w
	}
}

// Init initializes the global zerolog logger. The terminal UI owns
// stdout, so console output goes to stderr and file output is JSON.
func Init(cfg Config, opts ...Option) error {
	o := options{consoleOut: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.TimeOnly

	var logger zerolog.Logger
	switch strings.ToLower(cfg.Output) {
	case "stderr", "":
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        o.consoleOut,
			TimeFormat: time.TimeOnly,
		}).With().Timestamp().Logger()
	case "discard":
		logger = zerolog.New(io.Discard)
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
		logger = zerolog.New(f).With().Timestamp().Logger()
	}

	zerolog.DefaultContextLogger = &logger
	zlog.Logger = logger
	return nil
}

// parseLevel parses the log level string.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
