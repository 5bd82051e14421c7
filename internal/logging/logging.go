// Package logging builds the service's structured loggers.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// New returns a JSON logger writing to stderr at the given level.
func New(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// Nop returns a logger that discards all output.
// Use this when you want silent operation with no logging overhead.
func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
