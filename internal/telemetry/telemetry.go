// Package telemetry sets up OpenTelemetry tracing for step execution.
package telemetry

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/DomeenoH/dual/internal/logging"
)

const serviceName = "dual"

// Config holds the configuration for telemetry
type Config struct {
	Enabled        bool
	Endpoint       string // host:port or a full URL of the OTLP/HTTP collector
	ServiceVersion string
}

// Provider owns the process tracer provider
type Provider struct {
	tracerProvider trace.TracerProvider
	shutdown       func(context.Context) error
	log            *logrus.Entry
}

// NewProvider installs a global tracer provider exporting to the configured collector. When telemetry is disabled a
// no-op provider is installed instead.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	log := logging.NewLogger("telemetry")
	if !cfg.Enabled {
		log.Debug("Telemetry disabled")
		tp := noop.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return &Provider{tracerProvider: tp, shutdown: func(context.Context) error { return nil }, log: log}, nil
	}

	var opts []otlptracehttp.Option
	switch {
	case strings.HasPrefix(cfg.Endpoint, "http://") || strings.HasPrefix(cfg.Endpoint, "https://"):
		opts = append(opts, otlptracehttp.WithEndpointURL(cfg.Endpoint))
	case cfg.Endpoint != "":
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	version := cfg.ServiceVersion
	if version == "" {
		version = "dev"
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", version),
		)),
	)
	otel.SetTracerProvider(tp)
	log.WithField("endpoint", cfg.Endpoint).Info("Telemetry enabled")

	return &Provider{tracerProvider: tp, shutdown: tp.Shutdown, log: log}, nil
}

func (p *Provider) TracerProvider() trace.TracerProvider {
	return p.tracerProvider
}

// Shutdown flushes pending spans
func (p *Provider) Shutdown(ctx context.Context) error {
	if err := p.shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down tracer provider: %w", err)
	}
	return nil
}

// StartApply opens a span for applying a directive batch, using the global tracer provider. source names where the
// notepad came from: a file path, or "http" for the server.
func StartApply(ctx context.Context, source string) (context.Context, trace.Span) {
	return otel.Tracer(serviceName).Start(ctx, "dual.apply", trace.WithAttributes(
		attribute.String("notepad.source", source),
	))
}

// RecordApply annotates the span in ctx with the outcome of a directive batch
func RecordApply(ctx context.Context, applied, failed, rejected int) {
	trace.SpanFromContext(ctx).AddEvent("directives applied", trace.WithAttributes(
		attribute.Int("directives.applied", applied),
		attribute.Int("directives.failed", failed),
		attribute.Int("directives.rejected", rejected),
	))
}

// NewStepID generates a new step UUID
func NewStepID() string {
	return uuid.New().String()
}
