// Package logger builds the structured logger of the ghgcast server.
//
// The logger is a log/slog Logger configured from config.Config. LogFormat
// selects the handler ("json" for slog.JSONHandler, anything else for
// slog.TextHandler) and LogLevel sets the minimum level (debug, info, warn,
// error). Both values are matched case-insensitively and unknown levels fall
// back to info.
//
// Output goes to stdout so container runtimes collect it without extra
// configuration.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/HatiCode/ghgcast/cmd/ghgserver/config"
)

// New returns a logger writing to stdout.
func New(cfg *config.Config) *slog.Logger {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter returns a logger writing to w. Tests use it to capture output.
func NewWithWriter(cfg *config.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.LogFormat, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}
