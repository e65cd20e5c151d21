package core

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// OTelTelemetry is the Telemetry implementation wired into the
// execution and orchestrator packages when NewConfig builds a
// Config with observability enabled, grounded on the teacher's
// resilience telemetry integration but expressed directly against
// the OTel SDK instead of a hand-rolled span wrapper.
type OTelTelemetry struct {
	tracer trace.Tracer
	meter  metric.Meter
}

// NewOTelTelemetry wires a tracer/meter pair off the global OTel
// providers. Callers that want real export configure those providers
// (OTLP exporter, etc.) at process startup; pulse itself only needs
// the API surface to stay provider-agnostic.
func NewOTelTelemetry(serviceName string) *OTelTelemetry {
	return &OTelTelemetry{
		tracer: otel.Tracer(serviceName),
		meter:  otel.Meter(serviceName),
	}
}

func (t *OTelTelemetry) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

func (t *OTelTelemetry) RecordMetric(name string, value float64, labels map[string]string) {
	counter, err := t.meter.Float64Counter(name)
	if err != nil {
		return
	}
	counter.Add(context.Background(), value, metric.WithAttributes(attrsFromLabels(labels)...))
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() {
	s.span.End()
}

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

func (s *otelSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
}

// OTelMetricsRegistry implements MetricsRegistry over the OTel metric
// API, the concrete registry SetMetricsRegistry installs when a
// Config is built with observability enabled.
type OTelMetricsRegistry struct {
	meter metric.Meter
}

func NewOTelMetricsRegistry(serviceName string) *OTelMetricsRegistry {
	return &OTelMetricsRegistry{meter: otel.Meter(serviceName)}
}

func (r *OTelMetricsRegistry) Counter(name string, labels ...string) {
	counter, err := r.meter.Int64Counter(name)
	if err != nil {
		return
	}
	counter.Add(context.Background(), 1, metric.WithAttributes(attrsFromPairs(labels)...))
}

func (r *OTelMetricsRegistry) Gauge(name string, value float64, labels ...string) {
	gauge, err := r.meter.Float64Gauge(name)
	if err != nil {
		return
	}
	gauge.Record(context.Background(), value, metric.WithAttributes(attrsFromPairs(labels)...))
}

func (r *OTelMetricsRegistry) Histogram(name string, value float64, labels ...string) {
	hist, err := r.meter.Float64Histogram(name)
	if err != nil {
		return
	}
	hist.Record(context.Background(), value, metric.WithAttributes(attrsFromPairs(labels)...))
}

func (r *OTelMetricsRegistry) EmitWithContext(ctx context.Context, name string, value float64, labels ...string) {
	hist, err := r.meter.Float64Histogram(name)
	if err != nil {
		return
	}
	hist.Record(ctx, value, metric.WithAttributes(attrsFromPairs(labels)...))
}

func attrsFromLabels(labels map[string]string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

// attrsFromPairs turns a flat "key", "value", "key", "value", ... list
// (MetricsRegistry's variadic label convention) into attributes.
func attrsFromPairs(pairs []string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		attrs = append(attrs, attribute.String(pairs[i], pairs[i+1]))
	}
	return attrs
}

var _ sdktrace.SpanProcessor = (*noopSpanProcessor)(nil)

// noopSpanProcessor lets pulse construct a local TracerProvider with
// no configured exporter when the caller hasn't wired one (tests,
// offline CLI runs) without otel silently becoming a global no-op
// tracer that drops SetAttribute/RecordError calls differently.
type noopSpanProcessor struct{}

func (noopSpanProcessor) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {}
func (noopSpanProcessor) OnEnd(s sdktrace.ReadOnlySpan)                            {}
func (noopSpanProcessor) Shutdown(ctx context.Context) error                      { return nil }
func (noopSpanProcessor) ForceFlush(ctx context.Context) error                    { return nil }

// NewLocalTracerProvider builds a TracerProvider with no exporter
// wired; NewConfig installs it whenever observability is enabled —
// spans are created and propagated (so context cancellation and span
// hierarchies still work) but never exported.
func NewLocalTracerProvider() *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(noopSpanProcessor{}))
}
