// Package logger provides a zap-based application logger.
package logger

import (
	"context"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level aliases zap's level so callers don't import zapcore.
type Level = zapcore.Level

const (
	LevelDebug = zapcore.DebugLevel
	LevelInfo  = zapcore.InfoLevel
	LevelWarn  = zapcore.WarnLevel
	LevelError = zapcore.ErrorLevel
)

// TraceIDFn extracts the current trace id from the context, if any.
type TraceIDFn func(ctx context.Context) string

// Logger stamps every line with the service name and, when available, the
// trace id of the request being handled.
type Logger struct {
	sl      *zap.SugaredLogger
	traceID TraceIDFn
}

// New constructs a JSON logger writing to w at the given level.
func New(w io.Writer, level Level, service string, traceID TraceIDFn) *Logger {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(w), level)
	zl := zap.New(core).With(zap.String("service", service))
	return &Logger{sl: zl.Sugar(), traceID: traceID}
}

// Debug logs at debug level.
func (l *Logger) Debug(ctx context.Context, msg string, kv ...any) {
	l.sl.Debugw(msg, l.with(ctx, kv)...)
}

// Info logs at info level.
func (l *Logger) Info(ctx context.Context, msg string, kv ...any) {
	l.sl.Infow(msg, l.with(ctx, kv)...)
}

// Warn logs at warn level.
func (l *Logger) Warn(ctx context.Context, msg string, kv ...any) {
	l.sl.Warnw(msg, l.with(ctx, kv)...)
}

// Error logs at error level.
func (l *Logger) Error(ctx context.Context, msg string, kv ...any) {
	l.sl.Errorw(msg, l.with(ctx, kv)...)
}

// Sync flushes buffered log entries.
func (l *Logger) Sync() error {
	return l.sl.Sync()
}

func (l *Logger) with(ctx context.Context, kv []any) []any {
	if l.traceID == nil {
		return kv
	}
	id := l.traceID(ctx)
	if id == "" {
		return kv
	}
	return append(kv, "trace_id", id)
}
