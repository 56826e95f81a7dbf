// Package xlog provides the structured, leveled logger threaded through
// internal/maincmd and cmd/sage, a dependency-light log/slog wrapper in
// the same spirit as the reference architecture's own logging style (no
// third-party structured logger appears anywhere in that dependency
// family, so log/slog, stdlib since the reference architecture's own Go
// version floor, is the idiomatic choice rather than a gap to fill).
package xlog

import (
	"io"
	"log/slog"
	"os"
)

// New returns a text-handler slog.Logger writing to w at the given level.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Default returns the logger used by cmd/sage: text output to stderr, so
// log lines never interleave with a program's own stdout.
func Default(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return New(os.Stderr, level)
}
