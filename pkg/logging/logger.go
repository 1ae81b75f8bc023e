// Package logging configures the zerolog logger shared by the proxy packages.
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

	// LevelDisabled turns logging off. Used by tests.
	LevelDisabled LogLevel = "disabled"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer

	// Service is added to every entry as the "service" field when set.
	Service string
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:   LevelInfo,
		Pretty:  false,
		Output:  os.Stderr,
		Service: "dkhp-proxy",
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	level, _ := ParseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	ctx := zerolog.New(output).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	logger := ctx.Logger()

	log.Logger = logger

	return logger
}

// ParseLevel converts a LogLevel to a zerolog.Level.
// Unknown levels map to info and report ok=false.
func ParseLevel(level LogLevel) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(string(level))) {
	case "debug":
		return zerolog.DebugLevel, true
	case "info", "":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Every upstream call (endpoint, method)
//   - Aggregation start (subjects, waves)
//
// Info: Normal operation events
//   - Access log lines
//   - Completed aggregations (records, degraded count, duration)
//   - Registrations rejected by the portal
//   - Server startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Upstream 4xx/5xx and malformed bodies
//   - Degraded sub-fetches during aggregation
//   - Health state writes that failed
//
// Error: Error conditions requiring attention
//   - Portal unreachable
//   - Portal degraded (failure threshold reached)
//   - Panics recovered in handlers
//   - Configuration errors
//
// Context Fields:
//   - component: emitting package (portal-client, aggregator, registrar, api)
//   - request_id: inbound X-Request-ID, forwarded upstream
//   - endpoint: portal endpoint name (getDot, getHocPhanHocMoi, ...)
//   - status: upstream HTTP status
//   - error_class: client, server, network, malformed, rejected, contract
//   - period_id, subject, class_id: identifiers of the portal entities involved
//
// Never log bearer tokens, passwords or full exchange URLs.
