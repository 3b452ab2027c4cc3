package cli

import "github.com/casys-ai/mcpserver/internal/observability"

// tracer is set by cmd/mcpserver before Execute runs, wiring the process's
// configured OTEL SDK tracer provider into the serve command. Left nil in
// tests and for any caller that builds the cli package without its own
// tracer provider; httpmcp.New treats a nil *observability.Tracer as a
// functioning no-op.
var tracer *observability.Tracer

// SetTracer installs the tracer the serve command hands to the HTTP
// transport.
func SetTracer(t *observability.Tracer) {
	tracer = t
}
