package ranking

import "github.com/prometheus/client_golang/prometheus"

var (
	optimizationRuns    *prometheus.CounterVec
	candidatesEvaluated prometheus.Counter
	optimizationLatency prometheus.Histogram
	continuityPreserved prometheus.Gauge
)

func newCollectors() (*prometheus.CounterVec, prometheus.Counter, prometheus.Histogram, prometheus.Gauge) {
	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rescheduling_optimizations_total",
			Help: "Rescheduling searches by outcome",
		},
		[]string{"outcome"},
	)
	evaluated := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rescheduling_candidates_evaluated_total",
			Help: "Candidate slots scored by the evaluator",
		},
	)
	latency := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rescheduling_optimization_seconds",
			Help:    "Duration of a rescheduling search",
			Buckets: prometheus.DefBuckets,
		},
	)
	preserved := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rescheduling_continuity_preservation_ratio",
			Help: "Share of returned options keeping the original RBT in the last search",
		},
	)
	return runs, evaluated, latency, preserved
}

func init() {
	optimizationRuns, candidatesEvaluated, optimizationLatency, continuityPreserved = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers the ranking collectors on reg, or on the
// default registerer when reg is nil.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(optimizationRuns, candidatesEvaluated, optimizationLatency, continuityPreserved)
}

// ResetMetrics recreates the collectors for tests and registers them on reg
// when it is not nil.
func ResetMetrics(reg prometheus.Registerer) {
	optimizationRuns, candidatesEvaluated, optimizationLatency, continuityPreserved = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
