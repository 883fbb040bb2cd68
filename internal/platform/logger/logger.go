// Package logger provides structured logging functionality for the application.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/phrazzld/taskrelay/internal/config"
)

// Setup builds the application's JSON logger from the server configuration
// and installs it as the slog default. Under a CI environment the handler is
// wrapped so every record carries the run's metadata.
func Setup(cfg config.ServerConfig) (*slog.Logger, error) {
	level, ok := parseLevel(cfg.LogLevel)
	if !ok {
		level = slog.LevelInfo
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Warn(
			"invalid log level configured, using default level",
			"configured_level", cfg.LogLevel,
			"default_level", "info")
	}

	logger := slog.New(newHandler(os.Stdout, level))
	slog.SetDefault(logger)
	return logger, nil
}

// newHandler picks the handler for the runtime environment.
func newHandler(out io.Writer, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if RunningInCI() {
		return NewCIHandler(out, opts)
	}
	return slog.NewJSONHandler(out, opts)
}

// parseLevel maps a case-insensitive level name to its slog level.
func parseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
