package metrics

import "errors"

// MultiSink forwards events to several sinks. Every sink is called even when
// an earlier one fails; the errors are joined.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

func (m *MultiSink) RecordOptimization(ev OptimizationEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, s.RecordOptimization(ev))
	}
	return errors.Join(errs...)
}

// RecordImpact forwards to sinks implementing ImpactRecorder.
func (m *MultiSink) RecordImpact(ev ImpactEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(ImpactRecorder); ok {
			errs = append(errs, r.RecordImpact(ev))
		}
	}
	return errors.Join(errs...)
}

// RecordAuditEvent forwards to sinks implementing AuditRecorder.
func (m *MultiSink) RecordAuditEvent(ev AuditEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(AuditRecorder); ok {
			errs = append(errs, r.RecordAuditEvent(ev))
		}
	}
	return errors.Join(errs...)
}
