// Package otelexport exports run spans over OTLP/HTTP so they can land in
// Jaeger, Grafana Tempo, or any OpenTelemetry collector.
package otelexport

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/driftware/deskhand/internal/store"
)

// Config configures the OTLP/HTTP exporter.
type Config struct {
	Endpoint    string            // OTLP endpoint (e.g. "localhost:4318")
	Insecure    bool              // skip TLS for local dev
	ServiceName string            // OTEL service name (default "deskhand")
	Headers     map[string]string // extra headers (auth tokens, etc.)
}

// Exporter converts run spans to OTel spans and exports them via OTLP.
// It implements the tracing.SpanExporter interface.
type Exporter struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// New creates an OTLP exporter with the given config.
func New(ctx context.Context, cfg Config) (*Exporter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("OTLP endpoint is required")
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "deskhand"
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otel exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithMaxExportBatchSize(100),
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(res),
	)

	return &Exporter{
		provider: tp,
		tracer:   tp.Tracer("deskhand"),
	}, nil
}

// ExportSpans converts run spans to OTel spans and exports them. Called
// by the Collector during flush alongside the SQLite batch insert.
func (e *Exporter) ExportSpans(ctx context.Context, spans []store.Span) {
	if e == nil || len(spans) == 0 {
		return
	}
	for _, s := range spans {
		e.exportSpan(ctx, s)
	}
}

func (e *Exporter) exportSpan(ctx context.Context, s store.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("deskhand.span_kind", s.Kind),
		attribute.String("deskhand.run_id", s.RunID),
		attribute.String("deskhand.span_id", s.SpanID),
	}
	if s.Input != "" {
		attrs = append(attrs, attribute.String("deskhand.input_preview", s.Input))
	}
	if s.Output != "" {
		attrs = append(attrs, attribute.String("deskhand.output_preview", s.Output))
	}

	// Place the span in its run's trace. The OTel SDK generates its own
	// span IDs; ours travel as attributes for correlation with SQLite.
	parentCtx := ctx
	if s.ParentID != "" {
		parentSpanCtx := trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    runTraceID(s.RunID),
			SpanID:     hashSpanID(s.ParentID),
			TraceFlags: trace.FlagsSampled,
			Remote:     true,
		})
		parentCtx = trace.ContextWithRemoteSpanContext(parentCtx, parentSpanCtx)
	}

	kind := trace.SpanKindInternal
	if s.Kind == "model" {
		kind = trace.SpanKindClient
	}

	_, span := e.tracer.Start(parentCtx, s.Name,
		trace.WithTimestamp(s.StartAt),
		trace.WithSpanKind(kind),
		trace.WithAttributes(attrs...),
	)

	if s.Status == "error" {
		span.SetStatus(codes.Error, s.Output)
	} else {
		span.SetStatus(codes.Ok, "")
	}

	endTime := s.EndAt
	if endTime.IsZero() {
		endTime = s.StartAt
	}
	span.End(trace.WithTimestamp(endTime))
}

// Shutdown flushes remaining spans and shuts the exporter down.
func (e *Exporter) Shutdown(ctx context.Context) error {
	if e == nil {
		return nil
	}
	slog.Debug("otel exporter shutting down")
	return e.provider.Shutdown(ctx)
}

// runTraceID derives a stable 16-byte OTel trace ID from a run ID.
func runTraceID(runID string) trace.TraceID {
	sum := sha256.Sum256([]byte(runID))
	var tid trace.TraceID
	copy(tid[:], sum[:16])
	return tid
}

// hashSpanID derives a stable 8-byte OTel span ID from a span ID.
func hashSpanID(spanID string) trace.SpanID {
	sum := sha256.Sum256([]byte(spanID))
	var sid trace.SpanID
	copy(sid[:], sum[:8])
	return sid
}
