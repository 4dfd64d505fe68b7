package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline collectors.
type Metrics struct {
	turnsTotal    *prometheus.CounterVec
	turnDuration  *prometheus.HistogramVec
	nodeDuration  *prometheus.HistogramVec
	llmCallsTotal *prometheus.CounterVec
	llmDuration   *prometheus.HistogramVec
	llmTokens     *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	sessionsAlive prometheus.Gauge
	cacheEvents   *prometheus.CounterVec
}

func newMetrics(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vigila_turns_total",
			Help: "Completed conversation turns by intent and outcome.",
		}, []string{"intent", "outcome"}),
		turnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vigila_turn_duration_seconds",
			Help:    "Wall time of a full conversation turn.",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30, 50},
		}, []string{"intent"}),
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vigila_graph_node_duration_seconds",
			Help:    "Wall time per conversation graph node.",
			Buckets: prometheus.DefBuckets,
		}, []string{"node"}),
		llmCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vigila_llm_calls_total",
			Help: "LLM calls by model, operation, and status.",
		}, []string{"model", "operation", "status"}),
		llmDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vigila_llm_call_duration_seconds",
			Help:    "LLM call latency by model and operation.",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 15, 30},
		}, []string{"model", "operation"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vigila_llm_tokens_total",
			Help: "Tokens consumed by model and direction.",
		}, []string{"model", "direction"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vigila_http_requests_total",
			Help: "HTTP requests by route, method, and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vigila_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		sessionsAlive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vigila_sessions_alive",
			Help: "Session entries currently held in the store.",
		}),
		cacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vigila_classification_cache_events_total",
			Help: "Classification cache hits and misses.",
		}, []string{"event"}),
	}

	for _, c := range []prometheus.Collector{
		m.turnsTotal, m.turnDuration, m.nodeDuration,
		m.llmCallsTotal, m.llmDuration, m.llmTokens,
		m.httpRequests, m.httpDuration, m.sessionsAlive, m.cacheEvents,
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// RecordTurn records a completed turn.
func (m *Metrics) RecordTurn(intent, outcome string, duration time.Duration) {
	m.turnsTotal.WithLabelValues(intent, outcome).Inc()
	m.turnDuration.WithLabelValues(intent).Observe(duration.Seconds())
}

// RecordNode records one graph node execution.
func (m *Metrics) RecordNode(node string, duration time.Duration) {
	m.nodeDuration.WithLabelValues(node).Observe(duration.Seconds())
}

// RecordLLMCall records one LLM round trip.
func (m *Metrics) RecordLLMCall(model, operation string, duration time.Duration, inputTokens, outputTokens int, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.llmCallsTotal.WithLabelValues(model, operation, status).Inc()
	m.llmDuration.WithLabelValues(model, operation).Observe(duration.Seconds())
	if inputTokens > 0 {
		m.llmTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.llmTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
}

// RecordHTTP records one served request.
func (m *Metrics) RecordHTTP(route, method, status string, duration time.Duration) {
	m.httpRequests.WithLabelValues(route, method, status).Inc()
	m.httpDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// SetSessionsAlive updates the live session gauge.
func (m *Metrics) SetSessionsAlive(n int) {
	m.sessionsAlive.Set(float64(n))
}

// RecordCacheEvent counts a classification cache hit or miss.
func (m *Metrics) RecordCacheEvent(event string) {
	m.cacheEvents.WithLabelValues(event).Inc()
}
