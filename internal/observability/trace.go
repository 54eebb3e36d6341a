package observability

import (
	"context"

	"go.uber.org/zap"
)

type traceKey struct{}

// WithTraceID returns ctx carrying traceID for downstream log lines.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceKey{}, traceID)
}

// TraceID returns the trace id stored by WithTraceID, or "".
func TraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(traceKey{}).(string)
	return v
}

// TraceField is the zap field for the trace id in ctx.
func TraceField(ctx context.Context) zap.Field {
	return zap.String("trace_id", TraceID(ctx))
}
