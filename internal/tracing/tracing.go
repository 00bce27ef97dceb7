// Package tracing installs the OpenTelemetry tracer provider used by the
// graph and provider spans.
package tracing

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const ServiceName = "chatgraph"

// Setup configures tracing for mode. "stdout" exports every span as JSON to w;
// "" and "off" keep the global no-op provider. The returned shutdown flushes
// the exporter and is always non-nil.
func Setup(mode string, w io.Writer) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "off":
		return noop, nil
	case "stdout":
	default:
		return noop, fmt.Errorf("tracing: unknown mode %q", mode)
	}

	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return noop, fmt.Errorf("tracing: stdout exporter: %w", err)
	}
	res := resource.NewSchemaless(attribute.String("service.name", ServiceName))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}
