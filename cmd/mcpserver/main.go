package main

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/casys-ai/mcpserver/internal/cli"
	"github.com/casys-ai/mcpserver/internal/observability"
)

func main() {
	shutdown, err := setupTracing()
	if err != nil {
		fmt.Fprintln(os.Stderr, "tracing setup:", err)
		os.Exit(1)
	}
	defer shutdown(context.Background())

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupTracing wires a stdout span exporter behind the SDK trace provider.
// It's deliberately the only place in the module holding a concrete OTEL
// SDK import; everything downstream consumes the vendor-neutral
// go.opentelemetry.io/otel/trace.Tracer interface via
// internal/observability.Tracer.
func setupTracing() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("building stdout trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRate()))),
	)
	otel.SetTracerProvider(tp)

	cli.SetTracer(observability.NewTracer(tp.Tracer("mcpserver")))

	return tp.Shutdown, nil
}

func sampleRate() float64 {
	if v, ok := os.LookupEnv("MCPSERVER_TRACE_SAMPLE_RATE"); ok {
		var rate float64
		if _, err := fmt.Sscanf(v, "%f", &rate); err == nil {
			return rate
		}
	}
	return 1.0
}
