// Package metrics implements the Metrics port with Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.trai.ch/kiln/internal/core/ports"
)

const namespace = "kiln"

var _ ports.Metrics = (*Recorder)(nil)

// Recorder implements ports.Metrics on a private Prometheus registry.
type Recorder struct {
	registry        *prom.Registry
	units           *prom.CounterVec
	builds          *prom.CounterVec
	buildDuration   prom.Histogram
	resolves        *prom.CounterVec
	resolveDuration prom.Histogram
	sessions        prom.Gauge
}

// NewRecorder creates a Recorder and registers its collectors, plus the Go
// runtime and process collectors, on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prom.NewRegistry(),
		units: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "units_total",
			Help:      "Build units processed, by outcome (compiled, cached, failed)",
		}, []string{"outcome"}),
		builds: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "builds_total",
			Help:      "Driver runs, by outcome",
		}, []string{"outcome"}),
		buildDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Duration of driver runs",
			Buckets:   prom.DefBuckets,
		}),
		resolves: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "resolves_total",
			Help:      "Dependency resolutions, by outcome",
		}, []string{"outcome"}),
		resolveDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "resolve_duration_seconds",
			Help:      "Duration of dependency resolutions",
			Buckets:   prom.DefBuckets,
		}),
		sessions: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "reload_sessions",
			Help:      "Connected live reload sessions",
		}),
	}

	r.registry.MustRegister(
		r.units, r.builds, r.buildDuration, r.resolves, r.resolveDuration, r.sessions,
		promcollect.NewGoCollector(),
		promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveUnit counts a unit outcome.
func (r *Recorder) ObserveUnit(outcome string) {
	r.units.WithLabelValues(outcome).Inc()
}

// ObserveBuild records a driver run.
func (r *Recorder) ObserveBuild(outcome string, d time.Duration) {
	r.builds.WithLabelValues(outcome).Inc()
	r.buildDuration.Observe(d.Seconds())
}

// ObserveResolve records a dependency resolution.
func (r *Recorder) ObserveResolve(outcome string, d time.Duration) {
	r.resolves.WithLabelValues(outcome).Inc()
	r.resolveDuration.Observe(d.Seconds())
}

// SetSessions sets the number of connected reload sessions.
func (r *Recorder) SetSessions(n int) {
	r.sessions.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prom.Registry {
	return r.registry
}
