// Package logging configures slog for recurd.
//
// The daemon logs JSON to stdout for journald; recurctl logs text to stderr
// so its stdout carries only results. Both shorten source locations to the
// path below the module root.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// SetupLogger creates the daemon's JSON logger on stdout and installs it as
// the slog default. Unknown levels fall back to info.
func SetupLogger(level string) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, handlerOptions(level)))
	slog.SetDefault(logger)
	return logger
}

// NewTextLogger creates a human-readable logger writing to w.
func NewTextLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, handlerOptions(level)))
}

func handlerOptions(level string) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level:       ParseLevel(level),
		AddSource:   true,
		ReplaceAttr: shortenSource,
	}
}

// shortenSource trims file and function names to start at internal/ or cmd/.
func shortenSource(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.SourceKey {
		return a
	}
	source, ok := a.Value.Any().(*slog.Source)
	if !ok {
		return a
	}
	source.File = trimToModule(source.File, filepath.Base(source.File))
	source.Function = trimToModule(source.Function, source.Function)
	return a
}

func trimToModule(s, fallback string) string {
	for _, marker := range []string{"internal/", "cmd/"} {
		if idx := strings.Index(s, marker); idx != -1 {
			return s[idx:]
		}
	}
	return fallback
}

// ParseLevel converts "debug", "info", "warn"/"warning" or "error"
// (case-insensitive) to a slog.Level, defaulting to info.
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

// WithComponent returns a logger tagged with a component attribute.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(slog.String("component", component))
}
