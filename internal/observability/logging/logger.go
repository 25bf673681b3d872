package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

const defaultService = "evidence-pipeline"

// NewJSONLogger builds the service-tagged JSON logger shared by the worker
// and the backend adapters. Log lines carry a "service" key so the worker
// and any future binaries can be told apart in aggregated output.
func NewJSONLogger(service, level string) *slog.Logger {
	if strings.TrimSpace(service) == "" {
		service = defaultService
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	return slog.New(handler).With("service", service)
}

// Discard returns a logger for tests that do not assert on log output.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps the LOG_LEVEL config value to a slog level, defaulting to
// info on anything unrecognized.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
