package logger

import (
	"context"
	"sync"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// loggerKey is the key used to store the logger in context
var loggerKey = contextKey{}

// defaultLogger is used when no logger is found in context
var (
	defaultLogger   *Logger
	defaultLoggerMu sync.RWMutex
)

func init() {
	defaultLogger = New(nil)
}

// SetDefault sets the process-wide fallback logger.
// Parameters:
//   - l: logger to set as default; nil is ignored.
// Returns: none.
func SetDefault(l *Logger) {
	if l != nil {
		defaultLoggerMu.Lock()
		defaultLogger = l
		defaultLoggerMu.Unlock()
	}
}

// WithContext returns a new context with the logger attached.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext extracts the logger from context, falling back to the default.
// Parameters:
//   - ctx: context to inspect; may be nil.
// Returns:
//   - *Logger: logger with injected fields or the default logger.
func FromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey).(*Logger); ok {
			return l
		}
	}
	defaultLoggerMu.RLock()
	l := defaultLogger
	defaultLoggerMu.RUnlock()
	return l
}

// WithField creates a new context with a single additional logger field.
func WithField(ctx context.Context, key string, value interface{}) context.Context {
	l := FromContext(ctx).WithField(key, value)
	return l.WithContext(ctx)
}

// WithFields creates a new context with additional logger fields.
func WithFields(ctx context.Context, fields Fields) context.Context {
	l := FromContext(ctx).WithFields(fields)
	return l.WithContext(ctx)
}

// GetRequestID extracts the request ID from the context's logger fields.
func GetRequestID(ctx context.Context) string {
	val, ok := FromContext(ctx).Data[FieldRequestID]
	if !ok {
		return ""
	}
	s, _ := val.(string)
	return s
}
