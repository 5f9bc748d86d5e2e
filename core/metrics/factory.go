package metrics

import "github.com/kilianp07/rbtsched/core/factory"

var sinkRegistry = factory.NewRegistry[MetricsSink]()

// RegisterMetricsSink adds a sink factory under name.
func RegisterMetricsSink(name string, f factory.Factory[MetricsSink]) error {
	return sinkRegistry.Register(name, f)
}

// NewMetricsSink builds the configured sinks. No configuration yields a
// NopSink and several yield a MultiSink.
func NewMetricsSink(cfgs []factory.ModuleConfig) (MetricsSink, error) {
	if len(cfgs) == 0 {
		return NopSink{}, nil
	}
	if len(cfgs) == 1 {
		return sinkRegistry.Create(cfgs[0])
	}
	sinks := make([]MetricsSink, len(cfgs))
	for i, c := range cfgs {
		s, err := sinkRegistry.Create(c)
		if err != nil {
			return nil, err
		}
		sinks[i] = s
	}
	return NewMultiSink(sinks...), nil
}

// RecordImpact sends ev to s when it supports impact events.
func RecordImpact(s MetricsSink, ev ImpactEvent) error {
	if r, ok := s.(ImpactRecorder); ok {
		return r.RecordImpact(ev)
	}
	return nil
}

// RecordAuditEvent sends ev to s when it supports audit events.
func RecordAuditEvent(s MetricsSink, ev AuditEvent) error {
	if r, ok := s.(AuditRecorder); ok {
		return r.RecordAuditEvent(ev)
	}
	return nil
}
