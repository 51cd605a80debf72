// Package metrics exposes dues computations to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/society/dues-engine/maintenance"
)

// Metrics holds the dues collectors on a dedicated registry.
type Metrics struct {
	registry *prometheus.Registry

	computation prometheus.Histogram
	overdue     prometheus.Gauge
	members     prometheus.Gauge
	malformed   *prometheus.CounterVec
	scans       *prometheus.CounterVec
}

var _ maintenance.Recorder = (*Metrics)(nil)

// New registers the collectors plus Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		computation: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dues_computation_seconds",
			Help:    "Time spent computing dues for a category.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		overdue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dues_members_overdue",
			Help: "Members with dues as of the last computation.",
		}),
		members: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dues_members_total",
			Help: "Members considered by the last computation.",
		}),
		malformed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dues_malformed_records_total",
			Help: "Payment records excluded from coverage, by reason.",
		}, []string{"reason"}),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dues_scans_total",
			Help: "Scheduled dues scans, by status.",
		}, []string{"status"}),
	}

	m.registry.MustRegister(
		m.computation,
		m.overdue,
		m.members,
		m.malformed,
		m.scans,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveDues implements maintenance.Recorder.
func (m *Metrics) ObserveDues(elapsed time.Duration, res *maintenance.DueResult) {
	m.computation.Observe(elapsed.Seconds())
	m.overdue.Set(float64(res.OverdueCount()))
	m.members.Set(float64(res.MemberCount()))

	if n := res.Diagnostics.MissingPeriod; n > 0 {
		m.malformed.WithLabelValues(string(maintenance.ReasonMissingPeriod)).Add(float64(n))
	}
	if n := res.Diagnostics.InvertedPeriod; n > 0 {
		m.malformed.WithLabelValues(string(maintenance.ReasonInvertedPeriod)).Add(float64(n))
	}
}

// ObserveScan counts a scheduled scan outcome.
func (m *Metrics) ObserveScan(status string) {
	m.scans.WithLabelValues(status).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
