// Package observability bridges the framework's internals to Prometheus
// metrics and OpenTelemetry tracing. Both the registry and the tracer are
// held as fields on constructed values — never package-level globals — so
// multiple servers in one process (as in tests) never share state.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics wraps a dedicated prometheus.Registry with the named
// counters/gauges/histogram the framework reports.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal       *prometheus.CounterVec
	AuthEventsTotal     *prometheus.CounterVec
	SessionsExpiredTotal prometheus.Counter

	InFlightRequests prometheus.Gauge
	QueuedRequests   prometheus.Gauge
	ActiveSessions   prometheus.Gauge

	RequestDuration *prometheus.HistogramVec
}

// NewMetrics builds and registers every metric against a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_requests_total",
			Help: "Total JSON-RPC requests handled, by method and outcome.",
		}, []string{"method", "outcome"}),
		AuthEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_auth_events_total",
			Help: "Auth subsystem events by outcome (verify, reject, cache_hit).",
		}, []string{"outcome"}),
		SessionsExpiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mcp_sessions_expired_total",
			Help: "Total sessions removed by the TTL reaper.",
		}),
		InFlightRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mcp_inflight_requests",
			Help: "Current number of admitted, in-flight tool calls.",
		}),
		QueuedRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mcp_queued_requests",
			Help: "Current number of tool calls parked on the backpressure queue.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mcp_active_sessions",
			Help: "Current number of live MCP sessions.",
		}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mcp_request_duration_seconds",
			Help:    "Tool call latency in seconds, by method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.AuthEventsTotal,
		m.SessionsExpiredTotal,
		m.InFlightRequests,
		m.QueuedRequests,
		m.ActiveSessions,
		m.RequestDuration,
	)
	return m
}
