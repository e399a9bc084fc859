package log

import (
	"context"
	"log/slog"
	"net/http"
)

type ctxKey struct{}

// LoggerContextKey carries the request-scoped *Logger.
var LoggerContextKey = ctxKey{}

// FromContext returns the request-scoped logger, or one over slog.Default.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return l
	}
	return &Logger{Logger: slog.Default(), component: "unknown"}
}

// StructuredLogger emits the ledger's well-known events with a fixed field
// set so they can be queried by name.
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger}
}

func levelForStatus(code int) slog.Level {
	switch {
	case code >= 500:
		return slog.LevelError
	case code >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, statusCode int, durationMs int64, clientIP string) {
	f := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent")).
		WithHTTPResponse(statusCode, durationMs, statusCode < 400).
		WithClientIP(clientIP).
		WithComponent(ComponentHTTP)
	sl.logger.Logger.Log(ctx, levelForStatus(statusCode), "HTTP request completed", f.ToSlice()...)
}

func (sl *StructuredLogger) LogTransactionCreated(ctx context.Context, id, ownerID, category, kind, amount string) {
	f := NewFields().
		WithTransaction(id, ownerID, category, kind, amount).
		WithOperation(OpCreate).
		WithComponent(ComponentLedger)
	sl.logger.InfoContext(ctx, "Transaction created", f.ToSlice()...)
}

func (sl *StructuredLogger) LogAlertRaised(ctx context.Context, kind, ownerID, category, spent, limit string) {
	f := NewFields().
		WithAlert(kind, ownerID, category, spent, limit).
		WithOperation(OpEvaluate).
		WithComponent(ComponentBudget)
	sl.logger.InfoContext(ctx, "Budget alert raised", f.ToSlice()...)
}

// LogError logs err under component/operation. extra may be nil.
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component, operation string, extra LogFields) {
	if extra == nil {
		extra = NewFields()
	}
	f := extra.WithError(err).WithOperation(operation).WithComponent(component)
	sl.logger.ErrorContext(ctx, msg, f.ToSlice()...)
}
