package events

import (
	"context"
	"os"
	"sync/atomic"
)

type contextKey int

const (
	loggerKey contextKey = iota
	fieldsKey
)

// Field names carried on a context.
const (
	FieldIdentity = "identity"
	FieldRunID    = "run_id"
)

var defaultLogger atomic.Pointer[Logger]

func init() {
	defaultLogger.Store(&Logger{out: &sink{w: os.Stderr}, level: InfoLevel})
}

// SetDefault replaces the logger FromContext falls back to.
func SetDefault(logger *Logger) {
	if logger != nil {
		defaultLogger.Store(logger)
	}
}

// Default returns the process-wide logger.
func Default() *Logger {
	return defaultLogger.Load()
}

// WithLogger attaches logger to ctx.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger attached to ctx, or the default logger,
// with any context fields applied.
func FromContext(ctx context.Context) *Logger {
	l, ok := ctx.Value(loggerKey).(*Logger)
	if !ok {
		l = Default()
	}
	return l.WithContext(ctx)
}

// WithContext returns l with the fields carried by ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	fields, _ := ctx.Value(fieldsKey).(Fields)
	if len(fields) == 0 {
		return l
	}
	return l.WithFields(fields)
}

// WithValue returns a context carrying key=value for every logger that
// reads it through WithContext or FromContext.
func WithValue(ctx context.Context, key string, value interface{}) context.Context {
	parent, _ := ctx.Value(fieldsKey).(Fields)
	fields := make(Fields, len(parent)+1)
	for k, v := range parent {
		fields[k] = v
	}
	fields[key] = value
	return context.WithValue(ctx, fieldsKey, fields)
}

// WithIdentity tags ctx with the connected wallet identity.
func WithIdentity(ctx context.Context, identity string) context.Context {
	return WithValue(ctx, FieldIdentity, identity)
}

// WithRunID tags ctx with the id of one CLI invocation.
func WithRunID(ctx context.Context, id string) context.Context {
	return WithValue(ctx, FieldRunID, id)
}

// IdentityFrom returns the identity tagged on ctx, if any.
func IdentityFrom(ctx context.Context) string {
	return stringValue(ctx, FieldIdentity)
}

// RunIDFrom returns the run id tagged on ctx, if any.
func RunIDFrom(ctx context.Context) string {
	return stringValue(ctx, FieldRunID)
}

func stringValue(ctx context.Context, key string) string {
	fields, _ := ctx.Value(fieldsKey).(Fields)
	s, _ := fields[key].(string)
	return s
}
