package logging

import (
	"io"
	"log/slog"

	"github.com/twelves/apiserver/config"
)

// New returns the process logger: JSON in production, text everywhere else.
func New(env string, w io.Writer) *slog.Logger {
	if env == config.EnvProduction {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// Discard is a logger that drops every record. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
