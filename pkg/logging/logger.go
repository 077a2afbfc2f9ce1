// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	var output io.Writer = cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

var levels = map[LogLevel]zerolog.Level{
	LevelDebug: zerolog.DebugLevel,
	LevelInfo:  zerolog.InfoLevel,
	LevelWarn:  zerolog.WarnLevel,
	"warning":  zerolog.WarnLevel,
	LevelError: zerolog.ErrorLevel,
}

// Valid reports whether l names a known level. Case is ignored.
func (l LogLevel) Valid() bool {
	_, ok := levels[LogLevel(strings.ToLower(string(l)))]
	return ok
}

// parseLevel converts LogLevel to zerolog.Level. Unknown levels map to info.
func parseLevel(level LogLevel) zerolog.Level {
	if zl, ok := levels[LogLevel(strings.ToLower(string(level)))]; ok {
		return zl
	}
	return zerolog.InfoLevel
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// WithSweep tags a logger with a sweep run id so every line of one bulk
// sweep can be correlated.
func WithSweep(logger zerolog.Logger, sweepID string) zerolog.Logger {
	return logger.With().Str("sweep_id", sweepID).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache operations (hit/miss, key, TTL)
//   - One line per fetched page (section, offset, rows)
//   - Column re-alignment
//
// Info: Normal operation events
//   - Pagination completed (rows, pages, duration)
//   - Sweep progress and completion
//   - Server startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Failed attempts that will be retried
//   - ISS overload cooldowns
//   - Cache errors (fallback to direct request)
//   - Truncated datasets
//
// Error: Error conditions requiring attention
//   - Exhausted retries
//   - Every 10th consecutive failure of an unbounded retry
//   - Column set mismatch between pages
//   - Configuration errors
//
// Context Fields:
//   - endpoint: ISS path
//   - section: ISS response section
//   - offset: page start offset
//   - secid: entity identifier
//   - attempt / max_attempts: retry position
//   - status: HTTP status code
//   - error_class: client, server, rate_limit, network
//   - sweep_id: bulk sweep run id
