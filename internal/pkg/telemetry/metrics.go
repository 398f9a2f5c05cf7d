// Package telemetry exposes Prometheus instruments for the monitor.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every instrument on a private registry, so independent
// instances never collide.
type Metrics struct {
	registry *prometheus.Registry

	ActiveSessions  prometheus.Gauge
	ActivePollers   prometheus.Gauge
	EventsTotal     *prometheus.CounterVec
	DroppedTotal    prometheus.Counter
	PollErrorsTotal prometheus.Counter
	RebasesTotal    prometheus.Counter
	ResetsTotal     prometheus.Counter

	SystemRefreshSeconds prometheus.Histogram
	SystemMissingTotal   *prometheus.CounterVec
}

// New creates and registers all instruments.
func New() *Metrics {
	r := prometheus.NewRegistry()
	m := &Metrics{
		registry: r,
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mtmon",
			Name:      "sessions_active",
			Help:      "Connected viewer sessions.",
		}),
		ActivePollers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mtmon",
			Name:      "pollers_active",
			Help:      "Running per-session polling loops.",
		}),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mtmon",
			Name:      "events_emitted_total",
			Help:      "Events emitted to viewers, by event name.",
		}, []string{"event"}),
		DroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mtmon",
			Name:      "events_dropped_total",
			Help:      "Events dropped because a viewer queue was full or gone.",
		}),
		PollErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mtmon",
			Name:      "poll_errors_total",
			Help:      "Counter reads that failed.",
		}),
		RebasesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mtmon",
			Name:      "poll_rebases_total",
			Help:      "Samples discarded as a new baseline by the interval gate.",
		}),
		ResetsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mtmon",
			Name:      "counter_resets_total",
			Help:      "Sample pairs skipped because an interface counter went back by a full wrap or more.",
		}),
		SystemRefreshSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mtmon",
			Name:      "system_refresh_seconds",
			Help:      "Duration of one CPU/memory/latency refresh cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
		SystemMissingTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mtmon",
			Name:      "system_missing_total",
			Help:      "Refresh cycles in which a system metric was unavailable, by field.",
		}, []string{"field"}),
	}
	r.MustRegister(
		m.ActiveSessions,
		m.ActivePollers,
		m.EventsTotal,
		m.DroppedTotal,
		m.PollErrorsTotal,
		m.RebasesTotal,
		m.ResetsTotal,
		m.SystemRefreshSeconds,
		m.SystemMissingTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry holding the instruments.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
