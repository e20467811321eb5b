// Package telemetry sets up OpenTelemetry tracing for a harvest run.
package telemetry

import (
	"context"
	"fmt"

	texporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// Config names the traced service and where its spans go.
type Config struct {
	ServiceName string
	Version     string
	// ProjectID enables export to Google Cloud Trace. Empty keeps spans
	// in-process; their context still reaches consumers through published
	// message attributes.
	ProjectID string
}

// Option customizes InitTracing.
type Option func(*options)

type options struct {
	exporter sdktrace.SpanExporter
}

// WithExporter sends spans to exporter instead of Cloud Trace.
func WithExporter(exporter sdktrace.SpanExporter) Option {
	return func(o *options) { o.exporter = exporter }
}

// InitTracing installs a global tracer provider and the W3C trace-context
// propagator. The returned function flushes and stops the provider.
func InitTracing(ctx context.Context, cfg Config, opts ...Option) (func(context.Context) error, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	attrs := []resource.Option{resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.Version),
	)}
	if cfg.ProjectID != "" {
		attrs = append(attrs, resource.WithAttributes(
			semconv.CloudProviderGCP,
			semconv.CloudAccountID(cfg.ProjectID),
		))
	}
	res, err := resource.New(ctx, attrs...)
	if err != nil {
		return nil, fmt.Errorf("create trace resource: %w", err)
	}

	exporter := o.exporter
	if exporter == nil && cfg.ProjectID != "" {
		exporter, err = texporter.New(texporter.WithProjectID(cfg.ProjectID))
		if err != nil {
			return nil, fmt.Errorf("create cloud trace exporter: %w", err)
		}
	}

	providerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}
	if exporter != nil {
		providerOpts = append(providerOpts, sdktrace.WithBatcher(exporter))
	}
	tp := sdktrace.NewTracerProvider(providerOpts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return tp.Shutdown, nil
}
