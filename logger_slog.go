package auth

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// SlogLogger adapts a *slog.Logger to Logger. Args are key/value
// attributes.
type SlogLogger struct {
	logger *slog.Logger
}

var _ Logger = (*SlogLogger)(nil)

// NewSlogLogger returns a JSON logger for service at level
func NewSlogLogger(service, level string) *SlogLogger {
	return NewSlogLoggerWithWriter(service, level, os.Stdout)
}

// NewSlogLoggerWithWriter returns a JSON logger writing to w
func NewSlogLoggerWithWriter(service, level string, w io.Writer) *SlogLogger {
	lvl := parseLogLevel(level)
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	})

	return &SlogLogger{
		logger: slog.New(handler).With(slog.String("service", service)),
	}
}

// Slog returns the wrapped logger
func (l *SlogLogger) Slog() *slog.Logger {
	return l.logger
}

func (l *SlogLogger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, msg, args...)
}

func (l *SlogLogger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, msg, args...)
}

func (l *SlogLogger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, msg, args...)
}

func (l *SlogLogger) Error(msg string, args ...any) {
	l.log(slog.LevelError, msg, args...)
}

func (l *SlogLogger) log(level slog.Level, msg string, args ...any) {
	l.logger.Log(context.Background(), level, msg, args...)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
