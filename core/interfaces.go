package core

import (
	"context"
	"sync"
)

// Logger is the minimal structured logging interface every pulse
// component depends on by interface rather than concrete type.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})

	InfoWithContext(ctx context.Context, msg string, fields map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, fields map[string]interface{})
	DebugWithContext(ctx context.Context, msg string, fields map[string]interface{})
}

// ComponentAwareLogger extends Logger with a component label so
// structured log output can be filtered by subsystem.
//
// Component naming convention used throughout pulse:
//   - "pulse/cache"         - Response Cache (C1)
//   - "pulse/remote"        - Remote Aggregator Client (C2)
//   - "pulse/localmanager"  - Local Model Service Manager (C3/C4)
//   - "pulse/classifier"    - Intent Classifier (C5)
//   - "pulse/routing"       - Routing Table (C6)
//   - "pulse/execution"     - Execution Flow (C7)
//   - "pulse/errors"        - Error Taxonomy & Monitor (C8)
//   - "pulse/commands"      - Command Parser (C9)
//   - "pulse/orchestrator"  - Orchestrator (C10)
type ComponentAwareLogger interface {
	Logger
	WithComponent(component string) Logger
}

// Telemetry is optional span/metric support, injected the same way
// the teacher's resilience package does.
type Telemetry interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
	RecordMetric(name string, value float64, labels map[string]string)
}

type Span interface {
	End()
	SetAttribute(key string, value interface{})
	RecordError(err error)
}

// ResponseKind closes over the provenance of a model response — spec.md
// §3's ModelResponse.kind set. Shared between remote and execution so
// neither package has to import the other just to tag a response.
type ResponseKind string

const (
	ResponseKindRemote    ResponseKind = "remote"
	ResponseKindLocal     ResponseKind = "local"
	ResponseKindSimulated ResponseKind = "simulated"
)

type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// NoOpLogger discards everything; the zero-value default before a
// Config wires in a ProductionLogger.
type NoOpLogger struct{}

func (n *NoOpLogger) Info(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Error(msg string, fields map[string]interface{}) {}
func (n *NoOpLogger) Warn(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Debug(msg string, fields map[string]interface{}) {}

func (n *NoOpLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}

type NoOpTelemetry struct{}

func (n *NoOpTelemetry) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	return ctx, &NoOpSpan{}
}

func (n *NoOpTelemetry) RecordMetric(name string, value float64, labels map[string]string) {}

type NoOpSpan struct{}

func (n *NoOpSpan) End()                                       {}
func (n *NoOpSpan) SetAttribute(key string, value interface{}) {}
func (n *NoOpSpan) RecordError(err error)                      {}

// MetricsRegistry lets the execution package register counters/gauges
// without the core package importing it back (teacher's global
// registry pattern from core/interfaces.go, kept to avoid a cycle
// between core and execution).
type MetricsRegistry interface {
	Counter(name string, labels ...string)
	Gauge(name string, value float64, labels ...string)
	Histogram(name string, value float64, labels ...string)
	EmitWithContext(ctx context.Context, name string, value float64, labels ...string)
}

var globalMetricsRegistry MetricsRegistry
var metricsMu sync.RWMutex

func SetMetricsRegistry(registry MetricsRegistry) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	globalMetricsRegistry = registry
}

func GetGlobalMetricsRegistry() MetricsRegistry {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return globalMetricsRegistry
}
