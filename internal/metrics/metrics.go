// Package metrics exposes Prometheus counters for simulation runs. All
// methods are safe on a nil *Recorder and do nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"demosim/internal/model"
)

const namespace = "demosim"

type Recorder struct {
	registry *prometheus.Registry

	runs     *prometheus.CounterVec
	births   prometheus.Counter
	deaths   prometheus.Counter
	steps    prometheus.Counter
	duration prometheus.Histogram
	inFlight prometheus.Gauge
}

// NewRecorder registers the demosim collectors on a private registry.
// Process and Go runtime collectors are included when withRuntime is set.
func NewRecorder(withRuntime bool) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished simulation runs by status.",
		}, []string{"status"}),
		births: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "births_total",
			Help:      "Agents born across all runs.",
		}),
		deaths: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deaths_total",
			Help:      "Agents removed by mortality across all runs.",
		}),
		steps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Simulation steps executed across all runs.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of one simulation run.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_in_flight",
			Help:      "Simulation runs currently executing.",
		}),
	}
	r.registry.MustRegister(r.runs, r.births, r.deaths, r.steps, r.duration, r.inFlight)
	if withRuntime {
		r.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	for _, status := range []model.Status{model.StatusSuccessful, model.StatusError, model.StatusSkipped} {
		r.runs.WithLabelValues(status.String())
	}
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) ObserveOutcome(status model.Status, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(status.String()).Inc()
	if status != model.StatusSkipped {
		r.duration.Observe(elapsed.Seconds())
	}
}

func (r *Recorder) ObserveStep(m model.StepMetrics) {
	if r == nil {
		return
	}
	r.steps.Inc()
	r.births.Add(float64(m.Births))
	r.deaths.Add(float64(m.Deaths))
}

// InFlight marks one run as started and returns the func that marks it done.
func (r *Recorder) InFlight() func() {
	if r == nil {
		return func() {}
	}
	r.inFlight.Inc()
	return r.inFlight.Dec
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
