package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes Prometheus gauges/counters for the components the spec
// identifies as concurrency boundaries worth watching in production: the
// event bus's retained history, each memory tier's occupancy, the tool
// executor's in-flight batches, and the agent loop's iteration counts.
type Metrics struct {
	registry *prometheus.Registry

	BusRetained    prometheus.Gauge
	BusPublished   *prometheus.CounterVec
	BusDropped     *prometheus.CounterVec
	TierOccupancy  *prometheus.GaugeVec
	TierPromotions *prometheus.CounterVec
	ToolCalls      *prometheus.CounterVec
	ToolDuration    *prometheus.HistogramVec
	AgentIterations *prometheus.HistogramVec
	DelegationDepth prometheus.Histogram
	BudgetRemaining prometheus.Gauge
}

// NewMetrics builds and registers every gauge/counter under a fresh registry.
// Passing enabled=false returns nil so callers can no-op cheaply.
func NewMetrics(enabled bool) *Metrics {
	if !enabled {
		return nil
	}

	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		BusRetained: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agentcore_bus_retained_events",
			Help: "Number of events currently retained in the bus's bounded history.",
		}),
		BusPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_bus_published_total",
			Help: "Total events published to the bus, by event_type.",
		}, []string{"event_type"}),
		BusDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_bus_dropped_total",
			Help: "Total events dropped under backpressure, by event_type.",
		}, []string{"event_type"}),
		TierOccupancy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agentcore_memory_tier_occupancy",
			Help: "Current number of tasks held in a memory tier.",
		}, []string{"tier"}),
		TierPromotions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_memory_tier_promotions_total",
			Help: "Total promotions between memory tiers.",
		}, []string{"from_tier", "to_tier"}),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_tool_calls_total",
			Help: "Total tool invocations, by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		ToolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "agentcore_tool_call_duration_seconds",
			Help: "Tool call latency.",
		}, []string{"tool"}),
		AgentIterations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentcore_agent_iterations",
			Help:    "Reason-act iterations consumed per task.",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}, []string{"agent"}),
		DelegationDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentcore_delegation_depth",
			Help:    "Depth reached in the delegation tree per root task.",
			Buckets: prometheus.LinearBuckets(0, 1, 8),
		}),
		BudgetRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agentcore_budget_remaining",
			Help: "Remaining shared budget units (tokens and/or iterations).",
		}),
	}

	reg.MustRegister(
		m.BusRetained, m.BusPublished, m.BusDropped,
		m.TierOccupancy, m.TierPromotions,
		m.ToolCalls, m.ToolDuration,
		m.AgentIterations, m.DelegationDepth, m.BudgetRemaining,
	)
	return m
}

// Handler exposes the registry over /metrics for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
