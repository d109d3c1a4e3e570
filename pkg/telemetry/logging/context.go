package logging

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Context keys for common log fields.
type contextKey string

const (
	// ConnectionIDKey is the context key for connection IDs.
	ConnectionIDKey contextKey = "conn_id"

	// ListenerKey is the context key for listener names.
	ListenerKey contextKey = "listener"
)

// WithConnectionID adds a connection ID to the context.
func WithConnectionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ConnectionIDKey, id)
}

// GetConnectionID retrieves the connection ID from the context.
func GetConnectionID(ctx context.Context) string {
	if id, ok := ctx.Value(ConnectionIDKey).(string); ok {
		return id
	}
	return ""
}

// WithListener adds a listener name to the context.
func WithListener(ctx context.Context, listener string) context.Context {
	return context.WithValue(ctx, ListenerKey, listener)
}

// GetListener retrieves the listener name from the context.
func GetListener(ctx context.Context) string {
	if listener, ok := ctx.Value(ListenerKey).(string); ok {
		return listener
	}
	return ""
}

// contextAttrs extracts the log fields carried by ctx, including the ids of
// the active trace span.
func contextAttrs(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}

	var attrs []slog.Attr
	if id := GetConnectionID(ctx); id != "" {
		attrs = append(attrs, slog.String(string(ConnectionIDKey), id))
	}
	if listener := GetListener(ctx); listener != "" {
		attrs = append(attrs, slog.String(string(ListenerKey), listener))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return attrs
}
