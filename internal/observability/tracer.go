package observability

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an otel.Tracer handle supplied by the caller at construction.
// Components that need tracing take a *Tracer via constructor injection,
// never a package-level variable, so two servers in one process never
// share a tracer (spec's "no global serverTracer singleton" note, applied
// beyond just the HTTP server).
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer wraps t. A nil t yields a Tracer whose StartSpan is a no-op,
// so components can unconditionally hold a *Tracer even when the caller
// never wired a real OTEL SDK (e.g. cmd/mcpserver without tracing enabled).
func NewTracer(t trace.Tracer) *Tracer {
	return &Tracer{tracer: t}
}

// StartSpan starts a span named name, returning the derived context and the
// span. Safe to call on a nil *Tracer or one built from a nil trace.Tracer.
func (t *Tracer) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if t == nil || t.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, name)
}
