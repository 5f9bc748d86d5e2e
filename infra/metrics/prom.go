package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/rbtsched/core/metrics"
)

// PromSink records scheduling events in Prometheus collectors.
type PromSink struct {
	searches   *prometheus.CounterVec
	options    prometheus.Histogram
	impact     *prometheus.HistogramVec
	degraded   prometheus.Counter
	auditTotal *prometheus.CounterVec
}

// NewPromSink registers the collectors on the default Prometheus registerer.
// The /metrics endpoint is served separately.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers the collectors on reg. A nil registerer
// defaults to the global one. Collectors already registered by a previous
// sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schedule_searches_total",
			Help: "Alternative searches by outcome and completeness",
		}, []string{"outcome", "partial"}),
		options: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "schedule_search_options",
			Help:    "Options returned per search",
			Buckets: []float64{0, 1, 2, 5, 10, 20},
		}),
		impact: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "schedule_impact_complexity",
			Help:    "Operational complexity of analyzed changes",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}, []string{"provider_changed"}),
		degraded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schedule_impact_degraded_total",
			Help: "Impact analyses that fell back to an empty report",
		}),
		auditTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schedule_audit_events_total",
			Help: "Audit events appended by type",
		}, []string{"type"}),
	}
	var err error
	if s.searches, err = register(reg, s.searches); err != nil {
		return nil, err
	}
	if s.options, err = register(reg, s.options); err != nil {
		return nil, err
	}
	if s.impact, err = register(reg, s.impact); err != nil {
		return nil, err
	}
	if s.degraded, err = register(reg, s.degraded); err != nil {
		return nil, err
	}
	if s.auditTotal, err = register(reg, s.auditTotal); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, err
}

func (s *PromSink) RecordOptimization(ev coremetrics.OptimizationEvent) error {
	s.searches.WithLabelValues(ev.Outcome, strconv.FormatBool(ev.Partial)).Inc()
	if ev.Outcome != coremetrics.OutcomeRejected && ev.Outcome != coremetrics.OutcomeError {
		s.options.Observe(float64(ev.Options))
	}
	return nil
}

func (s *PromSink) RecordImpact(ev coremetrics.ImpactEvent) error {
	if ev.Degraded {
		s.degraded.Inc()
		return nil
	}
	s.impact.WithLabelValues(strconv.FormatBool(ev.ProviderChanged)).Observe(ev.OperationalComplexity)
	return nil
}

func (s *PromSink) RecordAuditEvent(ev coremetrics.AuditEvent) error {
	s.auditTotal.WithLabelValues(string(ev.Type)).Inc()
	return nil
}
