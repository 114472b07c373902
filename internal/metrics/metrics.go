// Package metrics exposes Prometheus counters for redirect serving and
// metadata history, fed from seo.Hooks events.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"almaseo-go/internal/seo"
)

const namespace = "almaseo"

// Metrics owns a private registry so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	RedirectsServed   *prometheus.CounterVec
	RedirectLoops     prometheus.Counter
	SnapshotsCaptured *prometheus.CounterVec
	Restores          *prometheus.CounterVec
	AdminRequests     *prometheus.HistogramVec
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RedirectsServed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "redirects_served_total",
				Help:      "Redirect responses sent to visitors",
			},
			[]string{"status"},
		),
		RedirectLoops: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "redirect_loops_total",
				Help:      "Matched redirects suppressed because the target resolves to the request path",
			},
		),
		SnapshotsCaptured: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshots_captured_total",
				Help:      "Metadata history versions written",
			},
			[]string{"source"},
		),
		Restores: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "restores_total",
				Help:      "Snapshot restores and imports applied",
			},
			[]string{"source"},
		),
		AdminRequests: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "admin_api",
				Name:      "request_duration_seconds",
				Help:      "Admin API request duration in seconds",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "route", "status"},
		),
	}
}

// Observe subscribes the counters to service events.
func (m *Metrics) Observe(hooks *seo.Hooks) {
	hooks.OnRedirect(func(_ context.Context, ev seo.RedirectEvent) {
		if ev.Suppressed {
			m.RedirectLoops.Inc()
			return
		}
		m.RedirectsServed.WithLabelValues(strconv.Itoa(ev.Status)).Inc()
	})
	hooks.OnCaptured(func(_ context.Context, ev seo.CaptureEvent) {
		m.SnapshotsCaptured.WithLabelValues(string(ev.Source)).Inc()
	})
	hooks.OnRestored(func(_ context.Context, ev seo.RestoreEvent) {
		m.Restores.WithLabelValues(string(ev.Source)).Inc()
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
