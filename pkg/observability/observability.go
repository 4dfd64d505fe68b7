// Package observability wires Prometheus metrics and OpenTelemetry tracing
// for the conversation pipeline. All collectors live on one registry served
// at /metrics; OTel-instrumented meters are bridged onto the same registry
// through the prometheus exporter.
package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Span names used across the pipeline.
const (
	SpanTurn       = "vigila.turn"
	SpanLLMRequest = "vigila.llm.request"
	SpanGraphNode  = "vigila.graph.node"
	SpanToolCall   = "vigila.tool.call"
)

// Attribute keys.
const (
	AttrLLMModel     = "llm.model"
	AttrLLMOperation = "llm.operation"
	AttrNodeName     = "graph.node"
	AttrIntent       = "conversation.intent"
	AttrToolName     = "tool.name"
)

// Manager owns the metrics registry and the tracer/meter providers.
type Manager struct {
	registry       *prometheus.Registry
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	metrics        *Metrics
}

// NewManager builds the registry, providers, and pipeline collectors, and
// installs the providers as the otel globals.
func NewManager() (*Manager, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, err
	}
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(meterProvider)

	tracerProvider := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tracerProvider)

	metrics, err := newMetrics(registry)
	if err != nil {
		return nil, err
	}

	return &Manager{
		registry:       registry,
		tracerProvider: tracerProvider,
		meterProvider:  meterProvider,
		metrics:        metrics,
	}, nil
}

// Tracer returns a named tracer from the manager's provider.
func (m *Manager) Tracer(name string) trace.Tracer {
	return m.tracerProvider.Tracer(name)
}

// Metrics returns the pipeline metric collectors.
func (m *Manager) Metrics() *Metrics {
	return m.metrics
}

// Handler serves the registry in Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops both providers.
func (m *Manager) Shutdown(ctx context.Context) error {
	if err := m.meterProvider.Shutdown(ctx); err != nil {
		return err
	}
	return m.tracerProvider.Shutdown(ctx)
}

// GetTracer returns a tracer from the global provider. Used by packages
// that do not hold a Manager reference (LLM backends, graph nodes).
func GetTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

var globalMetrics *Metrics

// SetGlobalMetrics installs the process-wide metric collectors.
func SetGlobalMetrics(m *Metrics) {
	globalMetrics = m
}

// GetGlobalMetrics returns the installed collectors, or nil before startup.
// Callers must tolerate nil (unit tests run without a Manager).
func GetGlobalMetrics() *Metrics {
	return globalMetrics
}
