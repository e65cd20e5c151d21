package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOTelTelemetry_StartSpanReturnsUsableSpan(t *testing.T) {
	tel := NewOTelTelemetry("pulse-test")
	ctx, span := tel.StartSpan(context.Background(), "test.span")
	assert.NotNil(t, ctx)
	assert.NotNil(t, span)

	span.SetAttribute("model", "gpt-4-turbo")
	span.SetAttribute("attempt", 1)
	span.SetAttribute("success", true)
	span.RecordError(errors.New("boom"))
	span.End()
}

func TestOTelTelemetry_RecordMetricDoesNotPanic(t *testing.T) {
	tel := NewOTelTelemetry("pulse-test")
	assert.NotPanics(t, func() {
		tel.RecordMetric("pulse.test.counter", 1, map[string]string{"kind": "unit-test"})
	})
}

func TestOTelMetricsRegistry_ImplementsMetricsRegistry(t *testing.T) {
	var _ MetricsRegistry = NewOTelMetricsRegistry("pulse-test")
}

func TestOTelMetricsRegistry_RecordingMethodsDoNotPanic(t *testing.T) {
	registry := NewOTelMetricsRegistry("pulse-test")
	assert.NotPanics(t, func() {
		registry.Counter("pulse.test.requests", "status", "ok")
		registry.Gauge("pulse.test.gauge", 42, "component", "cache")
		registry.Histogram("pulse.test.latency", 12.5, "component", "execution")
		registry.EmitWithContext(context.Background(), "pulse.test.emit", 1.0, "component", "routing")
	})
}

func TestNewLocalTracerProvider_BuildsWithoutExporter(t *testing.T) {
	tp := NewLocalTracerProvider()
	assert.NotNil(t, tp)
	assert.NoError(t, tp.Shutdown(context.Background()))
}
