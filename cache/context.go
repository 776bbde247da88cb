package cache

import (
	"context"

	"go.uber.org/zap"
)

type requestIDContextKey struct{}

// WithRequestID attaches a request id to ctx. Log lines emitted while serving
// the request, including background rebuilds it schedules, carry the id.
func WithRequestID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDContextKey{}, id)
}

// RequestIDFromContext returns the request id stored in ctx, if any.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(requestIDContextKey{}).(string)
	return id, ok && id != ""
}

func loggerFor(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if id, ok := RequestIDFromContext(ctx); ok {
		return logger.With(zap.String("request_id", id))
	}
	return logger
}
