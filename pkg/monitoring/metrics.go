// Package monitoring exposes the shell's operational metrics in
// Prometheus format. The API server mounts the registry handler at
// /metrics.
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every instrument the shell records. All instruments
// live on a private registry so tests never collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	ConnectsTotal       *prometheus.CounterVec
	ToolCallsTotal      *prometheus.CounterVec
	ConnectedServers    prometheus.Gauge
	ContextUpdatesTotal *prometheus.CounterVec
	ToolCallDuration    prometheus.Histogram
}

// NewMetrics builds a metrics set on its own registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		ConnectsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spyglass",
			Subsystem: "mcp",
			Name:      "connects_total",
			Help:      "Tool server connection attempts by result.",
		}, []string{"result"}),
		ToolCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spyglass",
			Subsystem: "mcp",
			Name:      "tool_calls_total",
			Help:      "Tool invocations by server and result.",
		}, []string{"server", "result"}),
		ConnectedServers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "spyglass",
			Subsystem: "mcp",
			Name:      "connected_servers",
			Help:      "Number of currently connected tool servers.",
		}),
		ContextUpdatesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spyglass",
			Subsystem: "context",
			Name:      "updates_total",
			Help:      "Page context updates by redaction outcome.",
		}, []string{"redacted"}),
		ToolCallDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "spyglass",
			Subsystem: "mcp",
			Name:      "tool_call_duration_seconds",
			Help:      "Tool invocation latency.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Handler returns the HTTP handler serving this metrics set.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for additional collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordConnect counts one connection attempt.
func (m *Metrics) RecordConnect(success bool) {
	m.ConnectsTotal.WithLabelValues(resultLabel(success)).Inc()
}

// RecordToolCall counts one tool invocation and its latency.
func (m *Metrics) RecordToolCall(serverID string, success bool, seconds float64) {
	m.ToolCallsTotal.WithLabelValues(serverID, resultLabel(success)).Inc()
	m.ToolCallDuration.Observe(seconds)
}

// RecordContextUpdate counts one page context update.
func (m *Metrics) RecordContextUpdate(redacted bool) {
	label := "false"
	if redacted {
		label = "true"
	}
	m.ContextUpdatesTotal.WithLabelValues(label).Inc()
}

// SetConnectedServers tracks the live connection count.
func (m *Metrics) SetConnectedServers(n int) {
	m.ConnectedServers.Set(float64(n))
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
