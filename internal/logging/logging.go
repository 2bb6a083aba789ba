package logging

import (
	"log/slog"
	"os"
)

// Logger is the application logger. It accepts alternating key-value pairs
// after the message, matching slog conventions.
type Logger struct {
	sl *slog.Logger
}

// NewLogger creates a Logger writing text lines to stdout.
func NewLogger() *Logger {
	return &Logger{
		sl: slog.New(slog.NewTextHandler(os.Stdout, nil)),
	}
}

// NewLoggerWithLevel creates a Logger with an explicit minimum level
// ("debug", "warn", "error"; anything else means info).
func NewLoggerWithLevel(level string) *Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return &Logger{
		sl: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})),
	}
}

// Info logs an informational message.
func (l *Logger) Info(msg string, args ...any) {
	l.sl.Info(msg, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...any) {
	l.sl.Warn(msg, args...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, args ...any) {
	l.sl.Error(msg, args...)
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...any) {
	l.sl.Debug(msg, args...)
}
