// Package logging adapts log/slog to the identity Logger interface.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config selects the handler and level
type Config struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Logger implements the printf style identity logger on top of slog
type Logger struct {
	log *slog.Logger
}

// New creates a logger writing to w
func New(w io.Writer, cfg Config) *Logger {
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{log: slog.New(handler)}
}

// FromSlog wraps an existing slog logger
func FromSlog(l *slog.Logger) *Logger {
	if l == nil {
		l = slog.Default()
	}
	return &Logger{log: l}
}

// With returns a logger carrying extra attributes
func (l *Logger) With(args ...any) *Logger {
	return &Logger{log: l.log.With(args...)}
}

// Slog returns the underlying logger
func (l *Logger) Slog() *slog.Logger {
	return l.log
}

func (l *Logger) Debug(format string, args ...any) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

func (l *Logger) Info(format string, args ...any) {
	l.log.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Warn(format string, args ...any) {
	l.log.Warn(fmt.Sprintf(format, args...))
}

func (l *Logger) Error(format string, args ...any) {
	l.log.Error(fmt.Sprintf(format, args...))
}

// ParseLevel maps a level name to a slog level, defaulting to info
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
