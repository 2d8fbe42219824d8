// Package logging sets up the zerolog logger shared by the assembler's
// components.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ServiceName is attached to every log line.
const ServiceName = "esi-assembler"

// LogLevel is a level name as it appears in configuration.
type LogLevel string

// Accepted level names.
const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

var levels = map[LogLevel]zerolog.Level{
	LevelDebug: zerolog.DebugLevel,
	LevelInfo:  zerolog.InfoLevel,
	LevelWarn:  zerolog.WarnLevel,
	"warning":  zerolog.WarnLevel,
	LevelError: zerolog.ErrorLevel,
}

// Config holds logger configuration.
type Config struct {
	Level LogLevel

	// Pretty switches from JSON lines to zerolog's console writer.
	Pretty bool

	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig logs JSON at info level to stderr.
func DefaultConfig() Config {
	return Config{Level: LevelInfo, Output: os.Stderr}
}

// ParseLevel normalizes a configured level name. "warning" is accepted as
// an alias of "warn".
func ParseLevel(name string) (LogLevel, error) {
	level := LogLevel(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := levels[level]; !ok {
		return "", fmt.Errorf("unknown log level %q", name)
	}
	if level == "warning" {
		return LevelWarn, nil
	}
	return level, nil
}

// zerologLevel maps a level name to zerolog, falling back to info.
func zerologLevel(level LogLevel) zerolog.Level {
	if l, ok := levels[LogLevel(strings.ToLower(string(level)))]; ok {
		return l
	}
	return zerolog.InfoLevel
}

// Setup installs the global logger and level and returns the logger.
// Component loggers created afterwards with NewLogger inherit its output
// and the service field.
func Setup(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	zerolog.SetGlobalLevel(zerologLevel(cfg.Level))
	log.Logger = zerolog.New(out).With().
		Timestamp().
		Str("service", ServiceName).
		Logger()
	return log.Logger
}

// NewLogger returns a child of the global logger tagged with component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// What goes where:
//
// Debug: per fragment and per include
//   - fetches (url, status, duration, cache_hit) and chased redirects
//   - resolved includes (src, depth, bytes), invalid includes dropped in lenient mode
//   - served requests (method, path, status, size, duration)
//
// Info: lifecycle
//   - startup, shutdown, cache provider, Redis connection
//   - fetch succeeded after retry
//
// Warn: degraded but serving
//   - include recovered through alt or onerror="continue"
//   - non-2xx fragment responses, cache errors, failed back-fills
//   - nesting limit reached in lenient mode
//
// Error: the page could not be served as intended
//   - include resolution failed (answered with 500), upstream unreachable (502)
//
// Common fields: component (fetcher, resolver, filter, cache, server),
// policy, url, src, alt, depth, status, duration, cache_hit.
