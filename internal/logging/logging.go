// Package logging configures the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// EnvLogLevel overrides the configured log level when set
const EnvLogLevel = "LABELCOMPOSER_LOG_LEVEL"

// Config controls handler selection and verbosity
type Config struct {
	Level     slog.Level
	Format    string
	Output    io.Writer
	AddSource bool
}

// DefaultConfig logs text at info level to stderr
func DefaultConfig() Config {
	return Config{
		Level:  slog.LevelInfo,
		Format: "text",
		Output: os.Stderr,
	}
}

// ParseLevel accepts debug, info, warn/warning and error, case-insensitively
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// New builds a logger for cfg without touching the default logger
func New(cfg Config) *slog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		handler = slog.NewTextHandler(cfg.Output, opts)
	}
	return slog.New(handler)
}

// Init installs a logger for cfg as the slog default. A valid level in
// $LABELCOMPOSER_LOG_LEVEL takes precedence over cfg.Level.
func Init(cfg Config) *slog.Logger {
	if env := os.Getenv(EnvLogLevel); env != "" {
		if level, err := ParseLevel(env); err == nil {
			cfg.Level = level
		}
	}
	logger := New(cfg)
	slog.SetDefault(logger)
	return logger
}

// ForComponent returns the default logger tagged with a component name
func ForComponent(component string) *slog.Logger {
	return slog.Default().With("component", component)
}

// Discard returns a logger that drops everything, for tests
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
