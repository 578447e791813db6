package logger

import (
	"context"
	"os"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.SugaredLogger

func init() {
	// Replaced by Setup; keeps package funcs safe before wiring.
	logger = zap.NewNop().Sugar()
}

const (
	TraceIDKey = "traceid" // Key for trace ID in logs
	SpanIDKey  = "spanid"  // Key for span ID in logs
)

type ctxKey string

const ctxTraceID ctxKey = "traceid"

// Setup initializes the global logger. level accepts zap level names
// ("debug", "info", ...); anything unparsable falls back to info.
func Setup(level string) error {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.LevelKey = "severity"
	cfg.EncoderConfig.CallerKey = "caller"
	cfg.EncoderConfig.StacktraceKey = "stacktrace"
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	base, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	logger = base.Sugar()
	return nil
}

// WithTraceID returns a new context carrying the given trace ID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxTraceID, traceID)
}

// TraceIDFromContext extracts the trace ID from context or the current
// OpenTelemetry span.
func TraceIDFromContext(ctx context.Context) string {
	if v := ctx.Value(ctxTraceID); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			return sc.TraceID().String()
		}
	}
	return ""
}

// SpanIDFromContext extracts the span ID from the current OpenTelemetry span.
func SpanIDFromContext(ctx context.Context) string {
	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			return sc.SpanID().String()
		}
	}
	return ""
}

func ctxFields(ctx context.Context) []any {
	return []any{TraceIDKey, TraceIDFromContext(ctx), SpanIDKey, SpanIDFromContext(ctx)}
}

// DebugCtx logs a debug message with trace and span IDs from context.
func DebugCtx(ctx context.Context, msg string, attrs ...any) {
	logger.With(ctxFields(ctx)...).Debugf(msg, attrs...)
}

// InfoCtx logs an info message with trace and span IDs from context.
func InfoCtx(ctx context.Context, msg string, attrs ...any) {
	logger.With(ctxFields(ctx)...).Infof(msg, attrs...)
}

// WarnCtx logs a warning message with trace and span IDs from context.
func WarnCtx(ctx context.Context, msg string, attrs ...any) {
	logger.With(ctxFields(ctx)...).Warnf(msg, attrs...)
}

// ErrorCtx logs an error message with trace and span IDs from context.
func ErrorCtx(ctx context.Context, msg string, attrs ...any) {
	logger.With(ctxFields(ctx)...).Errorf(msg, attrs...)
}

// Debug logs a debug message (without context).
func Debug(msg string, attrs ...any) {
	logger.Debugf(msg, attrs...)
}

// Info logs an info message (without context).
func Info(msg string, attrs ...any) {
	logger.Infof(msg, attrs...)
}

// Warn logs a warning message (without context).
func Warn(msg string, attrs ...any) {
	logger.Warnf(msg, attrs...)
}

// Error logs an error message (without context).
func Error(msg string, attrs ...any) {
	logger.Errorf(msg, attrs...)
}

// Fatal logs an error message and exits the process.
func Fatal(msg string, attrs ...any) {
	logger.Errorf(msg, attrs...)
	os.Exit(1)
}
