// Package metrics exposes controller instrumentation via Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the controller's instrument set backed by one registry.
type Metrics struct {
	registry *prometheus.Registry

	probesTotal      *prometheus.CounterVec
	probeLatency     *prometheus.HistogramVec
	transitionsTotal *prometheus.CounterVec
	activeTierRank   prometheus.Gauge
	consecutiveFails prometheus.Gauge
	degraded         prometheus.Gauge
}

// New creates a registry with controller and runtime collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		probesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "circuitwarden_probes_total",
			Help: "Probe attempts by tier and result.",
		}, []string{"tier", "result"}),
		probeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "circuitwarden_probe_latency_seconds",
			Help:    "Probe round-trip latency by tier.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"tier"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "circuitwarden_transitions_total",
			Help: "Active-circuit transitions by reason.",
		}, []string{"reason"}),
		activeTierRank: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "circuitwarden_active_tier_rank",
			Help: "Rank of the currently active tier (1 = preferred).",
		}),
		consecutiveFails: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "circuitwarden_consecutive_failures",
			Help: "Consecutive probe failures on the active tier.",
		}),
		degraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "circuitwarden_all_tiers_degraded",
			Help: "1 while the lowest tier is active and still failing.",
		}),
	}
	reg.MustRegister(m.probesTotal, m.probeLatency, m.transitionsTotal,
		m.activeTierRank, m.consecutiveFails, m.degraded)
	return m
}

// ObserveProbe records one probe attempt.
func (m *Metrics) ObserveProbe(tier string, success bool, latency time.Duration) {
	result := "failure"
	if success {
		result = "success"
	}
	m.probesTotal.WithLabelValues(tier, result).Inc()
	m.probeLatency.WithLabelValues(tier).Observe(latency.Seconds())
}

// ObserveTransition records an active-circuit transition.
func (m *Metrics) ObserveTransition(reason string) {
	m.transitionsTotal.WithLabelValues(reason).Inc()
}

// SetActiveTier updates the active tier gauge.
func (m *Metrics) SetActiveTier(rank int) {
	m.activeTierRank.Set(float64(rank))
}

// SetConsecutiveFailures updates the failure counter gauge.
func (m *Metrics) SetConsecutiveFailures(n int) {
	m.consecutiveFails.Set(float64(n))
}

// SetDegraded flags the all-tiers-exhausted condition.
func (m *Metrics) SetDegraded(degraded bool) {
	if degraded {
		m.degraded.Set(1)
	} else {
		m.degraded.Set(0)
	}
}

// Handler returns the Prometheus scrape handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
