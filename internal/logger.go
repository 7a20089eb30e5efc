package internal

import (
	"io"
	"log/slog"
)

// NewLogger returns a text logger in development and a JSON logger
// elsewhere. An empty level means debug in development and info otherwise.
func NewLogger(w io.Writer, env string, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: levelFor(env, level)}

	var handler slog.Handler
	if env == "development" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

func levelFor(env, level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	if env == "development" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
