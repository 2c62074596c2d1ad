package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// New builds a logger instance from cfg.
// Components receive the returned logger through their constructors.
func New(cfg Config) zerolog.Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	var logger zerolog.Logger
	if cfg.JSONOutput {
		logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}

	return logger.Level(ParseLevel(cfg.Level))
}

// ParseLevel converts a Level into a zerolog level, defaulting to info
func ParseLevel(level Level) zerolog.Level {
	switch level {
	case DebugLevel:
		return zerolog.DebugLevel
	case InfoLevel:
		return zerolog.InfoLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Nop returns a logger that discards everything
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

// WithComponent creates a child logger with component field
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// Bypass logs the activation of a development bypass switch.
// Bypasses are always logged at warn level regardless of the configured level floor.
func Bypass(logger zerolog.Logger, name, detail string) {
	if logger.GetLevel() > zerolog.WarnLevel {
		logger = logger.Level(zerolog.WarnLevel)
	}
	logger.Warn().
		Str("bypass", name).
		Msg("SECURITY BYPASS ACTIVE: " + detail + " (development only, never enable in production)")
}
