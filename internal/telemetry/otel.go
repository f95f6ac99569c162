// Package telemetry wires OpenTelemetry tracing for the orchestrator and
// HTTP surface, adapted from telemetry/otel.go's provider-with-shutdown
// shape but trimmed to the trace-only exporter set the module vendors
// (OTLP/gRPC for production, stdout for local development).
package telemetry

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	stdouttrace "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// Provider owns the process-wide TracerProvider and its shutdown.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	shutdownOnce   sync.Once
}

// NewProvider builds a Provider for serviceName. When env is "development"
// (or endpoint is empty) spans are written to stdout; otherwise they are
// batched to the OTLP/gRPC collector at endpoint.
func NewProvider(serviceName, env, endpoint string) (*Provider, error) {
	if serviceName == "" {
		return nil, fmt.Errorf("telemetry: service name cannot be empty")
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String("0.1.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: building resource: %w", err)
	}

	var spanExporter sdktrace.SpanExporter
	if env == "development" || endpoint == "" {
		spanExporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		spanExporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("telemetry: building span exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spanExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return &Provider{
		tracerProvider: tp,
		tracer:         tp.Tracer(serviceName),
	}, nil
}

// Tracer returns the provider's tracer for starting spans.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// StartSpan starts a child span named name under ctx, tagging it with attrs.
func (p *Provider) StartSpan(ctx context.Context, name string, attrs ...trace.SpanStartOption) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name, attrs...)
}

// Shutdown flushes and stops the exporter. Safe to call multiple times.
func (p *Provider) Shutdown(ctx context.Context) error {
	var err error
	p.shutdownOnce.Do(func() {
		err = p.tracerProvider.Shutdown(ctx)
	})
	return err
}

// NoOpEndpoint resolves OTEL_EXPORTER_OTLP_ENDPOINT, defaulting to empty
// (stdout exporter) when unset, matching the teacher's "safe local default"
// convention.
func NoOpEndpoint() string {
	return os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
}
