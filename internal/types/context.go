package types

import "context"

type contextKey string

const traceIDKey contextKey = "trace_id"

// WithTraceID stores the trace ID in the context. Entrypoints mint one per
// invocation (drain cycle or mention event) so every log line and outbound
// gateway call can be correlated.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey, id)
}

// GetTraceID retrieves the trace ID from the context, or "" if unset.
func GetTraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}
