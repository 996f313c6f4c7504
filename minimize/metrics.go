package minimize

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts minimization runs and their cost.
type Metrics struct {
	Runs                *prometheus.CounterVec
	FunctionEvaluations prometheus.Counter
	GradientEvaluations prometheus.Counter
	Iterations          prometheus.Histogram
}

// NewMetrics registers the minimizer metrics on reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dvar",
			Subsystem: "minimizer",
			Name:      "runs_total",
			Help:      "Minimization runs by termination flag.",
		}, []string{"warn"}),
		FunctionEvaluations: f.NewCounter(prometheus.CounterOpts{
			Namespace: "dvar",
			Subsystem: "minimizer",
			Name:      "function_evaluations_total",
			Help:      "Cost function evaluations.",
		}),
		GradientEvaluations: f.NewCounter(prometheus.CounterOpts{
			Namespace: "dvar",
			Subsystem: "minimizer",
			Name:      "gradient_evaluations_total",
			Help:      "Cost gradient evaluations.",
		}),
		Iterations: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dvar",
			Subsystem: "minimizer",
			Name:      "iterations",
			Help:      "BFGS iterations per run.",
			Buckets:   prometheus.LinearBuckets(0, 5, 11),
		}),
	}
}

func (m *Metrics) observe(r *Result, iterations int) {
	m.Runs.WithLabelValues(r.Warn().String()).Inc()
	m.FunctionEvaluations.Add(float64(r.FCalls()))
	m.GradientEvaluations.Add(float64(r.GCalls()))
	m.Iterations.Observe(float64(iterations))
}
