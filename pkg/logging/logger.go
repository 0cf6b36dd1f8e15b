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
	// Set global log level
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	// Configure output
	var output io.Writer = cfg.Output
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: cfg.Output}
	}

	// Create logger with timestamp
	logger := zerolog.New(output).With().Timestamp().Logger()

	// Set as global logger
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Component names used in the "component" field.
const (
	ComponentClient     = "uts-client"
	ComponentAuth       = "uts-auth"
	ComponentRateLimit  = "uts-ratelimit"
	ComponentCache      = "uts-cache"
	ComponentPagination = "uts-pagination"
	ComponentProxy      = "uts-proxy"
)

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// ParseConfig builds a Config from LOG_LEVEL / LOG_PRETTY style values.
// Unknown levels fall back to info.
func ParseConfig(level, pretty string) Config {
	cfg := DefaultConfig()
	if level != "" {
		cfg.Level = LogLevel(strings.ToLower(strings.TrimSpace(level)))
	}
	switch strings.ToLower(strings.TrimSpace(pretty)) {
	case "1", "true", "yes", "on":
		cfg.Pretty = true
	}
	return cfg
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache operations (hit/miss, key, TTL)
//   - Individual page requests and limiter waits
//   - Page limit reached
//
// Info: Normal operation events
//   - Login and ticket-granting renewal
//   - Completed multi-page fetches
//   - Server startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Structured UTS service errors ("No results found")
//   - HTTP error statuses that still carry a parseable body
//   - Cache errors (fallback to direct request)
//   - Shared limiter falling back to the local window
//
// Error: Error conditions requiring attention
//   - Authentication failures
//   - UTS overload (fatal status)
//   - Transport and decode failures
//   - Configuration errors
//
// Context Fields:
//   - resource: UTS resource URL
//   - page: page number
//   - status: HTTP status code
//   - duration: fetch duration
//   - error_class: client, server, overload, network, decode, auth
//   - op: login or ticket
//   - strategy: rate limiter strategy
//   - ttl: Cache entry TTL
