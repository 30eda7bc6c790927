package logging

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey string

const (
	// JobIDKey is the context key for the compression job ID.
	JobIDKey ctxKey = "job_id"
	// SourceKey is the context key for the source file name.
	SourceKey ctxKey = "source"
)

// WithContext creates a child logger carrying job_id and source from ctx.
func WithContext(logger Logger, ctx context.Context) Logger {
	if ctx == nil {
		return logger
	}

	var fields []zap.Field
	if id := GetJobID(ctx); id != "" {
		fields = append(fields, zap.String("job_id", id))
	}
	if src := GetSource(ctx); src != "" {
		fields = append(fields, zap.String("source", src))
	}

	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if s, ok := ctx.Value(key).(string); ok {
		return s
	}
	return ""
}

// GetJobID extracts the job ID from context.
func GetJobID(ctx context.Context) string {
	return stringValue(ctx, JobIDKey)
}

// GetSource extracts the source name from context.
func GetSource(ctx context.Context) string {
	return stringValue(ctx, SourceKey)
}

// SetJobID adds a job ID to context.
func SetJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, JobIDKey, id)
}

// SetSource adds a source name to context.
func SetSource(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, SourceKey, name)
}

type loggerKey struct{}

// FromContext returns the Logger stored in the context, or the global logger if none.
func FromContext(ctx context.Context) Logger {
	if l, ok := Lookup(ctx); ok {
		return l
	}
	return Global()
}

// Lookup returns the Logger stored in the context, if any.
func Lookup(ctx context.Context) (Logger, bool) {
	if ctx == nil {
		return nil, false
	}
	l, ok := ctx.Value(loggerKey{}).(Logger)
	return l, ok
}

// ToContext stores the Logger in the context.
func ToContext(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}
