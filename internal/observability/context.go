package observability

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// DetachTraceContextFrom copies the span context of src into base. Background
// jobs use it to outlive the request that started them while staying in its
// trace, and to keep base's cancellation (server shutdown).
func DetachTraceContextFrom(src, base context.Context) context.Context {
	sc := trace.SpanContextFromContext(src)
	if !sc.IsValid() {
		return base
	}
	return trace.ContextWithRemoteSpanContext(base, sc)
}

// DetachTraceContext is DetachTraceContextFrom with a background base.
func DetachTraceContext(ctx context.Context) context.Context {
	return DetachTraceContextFrom(ctx, context.Background())
}
