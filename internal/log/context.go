package log

import (
	"context"
	"log/slog"
	"net/http"

	"fintrack/internal/core"
)

// ContextKey type for context keys
type ContextKey string

const (
	// LoggerContextKey is the context key for the logger
	LoggerContextKey ContextKey = "logger"
)

// NewContext returns a copy of ctx carrying logger
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

// FromContext returns the logger stored by NewContext, or the default
// logger when there is none.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// StructuredLogger provides structured logging methods with context awareness
type StructuredLogger struct {
	logger *Logger
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{
		logger: logger,
	}
}

// LogHTTPEnd logs the completion of an HTTP request
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, statusCode int, durationMs int64, clientIP string) {
	level := slog.LevelInfo
	if statusCode >= 400 && statusCode < 500 {
		level = slog.LevelWarn
	} else if statusCode >= 500 {
		level = slog.LevelError
	}

	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent")).
		WithHTTPResponse(statusCode, durationMs, statusCode < 400).
		WithClientIP(clientIP).
		WithComponent(ComponentHTTP)

	sl.logger.Logger.Log(ctx, level, "HTTP request completed", fields.ToSlice()...)
}

// LogCommitted logs a committed ledger mutation
func (sl *StructuredLogger) LogCommitted(ctx context.Context, op string, tx core.Transaction, version uint64) {
	fields := NewFields().
		WithTransaction(tx).
		WithOperation(op).
		WithComponent(ComponentLedger)
	fields[FieldVersion] = version

	sl.logger.Logger.InfoContext(ctx, "Ledger mutation committed", fields.ToSlice()...)
}

// LogAlert logs an alert raised by a budget check
func (sl *StructuredLogger) LogAlert(ctx context.Context, a core.Alert) {
	level := slog.LevelInfo
	if a.Kind == core.AlertOverBudget {
		level = slog.LevelWarn
	}
	fields := NewFields().
		WithAlert(a).
		WithOperation(OpNotify).
		WithComponent(ComponentMonitor)

	sl.logger.Logger.Log(ctx, level, a.Message(), fields.ToSlice()...)
}
