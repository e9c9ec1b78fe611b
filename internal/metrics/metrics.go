// Package metrics defines the Prometheus collectors of labelcomposer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "labelcomposer"

// Metrics holds every collector, registered on its own registry so tests and
// multiple servers in one process do not collide.
type Metrics struct {
	Registry *prometheus.Registry

	// Closure state per scheme.
	// Labels: scheme
	UniverseAtoms   *prometheus.GaugeVec
	ComputableAtoms *prometheus.GaugeVec
	ComputableSets  *prometheus.GaugeVec
	GrowthWarnings  *prometheus.CounterVec
	BuildDuration   prometheus.Histogram

	// Queries counts reachability checks.
	// Labels: scheme, result (computable, not_computable)
	Queries *prometheus.CounterVec

	SchemesLoaded prometheus.Gauge

	// WatcherReloads counts scheme file reloads.
	// Labels: result (ok, error, removed)
	WatcherReloads *prometheus.CounterVec

	// HTTP server.
	// Labels: method, route, status
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry that also carries the Go
// runtime and process collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		UniverseAtoms: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "closure",
			Name:      "universe_atoms",
			Help:      "Number of atoms in the scheme universe",
		}, []string{"scheme"}),
		ComputableAtoms: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "closure",
			Name:      "computable_atoms",
			Help:      "Number of atoms that can be isolated from the registered labels",
		}, []string{"scheme"}),
		ComputableSets: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "closure",
			Name:      "computable_sets",
			Help:      "Number of derivable multi-atom sets not yet split into atoms",
		}, []string{"scheme"}),
		GrowthWarnings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "closure",
			Name:      "growth_warnings_total",
			Help:      "Times the computable set count crossed its warning threshold",
		}, []string{"scheme"}),
		BuildDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "closure",
			Name:      "build_duration_seconds",
			Help:      "Time to build a collection from a scheme",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}),
		Queries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "closure",
			Name:      "queries_total",
			Help:      "Reachability checks by outcome",
		}, []string{"scheme", "result"}),
		SchemesLoaded: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "schemes_loaded",
			Help:      "Number of schemes held by the service",
		}),
		WatcherReloads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "reloads_total",
			Help:      "Scheme file reloads by result",
		}, []string{"result"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// ClosureStats is the closure state reported for one scheme
type ClosureStats struct {
	Atoms           int
	ComputableAtoms int
	ComputableSets  int
}

// ObserveClosure records the current closure state of a scheme
func (m *Metrics) ObserveClosure(scheme string, stats ClosureStats) {
	m.UniverseAtoms.WithLabelValues(scheme).Set(float64(stats.Atoms))
	m.ComputableAtoms.WithLabelValues(scheme).Set(float64(stats.ComputableAtoms))
	m.ComputableSets.WithLabelValues(scheme).Set(float64(stats.ComputableSets))
}

// ForgetScheme drops every per-scheme series
func (m *Metrics) ForgetScheme(scheme string) {
	m.UniverseAtoms.DeleteLabelValues(scheme)
	m.ComputableAtoms.DeleteLabelValues(scheme)
	m.ComputableSets.DeleteLabelValues(scheme)
	m.GrowthWarnings.DeleteLabelValues(scheme)
	m.Queries.DeletePartialMatch(prometheus.Labels{"scheme": scheme})
}

// ObserveQuery counts one reachability check
func (m *Metrics) ObserveQuery(scheme string, computable bool) {
	result := "not_computable"
	if computable {
		result = "computable"
	}
	m.Queries.WithLabelValues(scheme, result).Inc()
}

// ObserveHTTP records one served request
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
