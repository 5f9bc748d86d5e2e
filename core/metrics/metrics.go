package metrics

import (
	"time"

	"github.com/kilianp07/rbtsched/core/model"
)

// Optimization outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeNoOptions = "no_options"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
)

// OptimizationEvent summarizes one rescheduling or alternative search.
type OptimizationEvent struct {
	SessionID        string
	Outcome          string
	Evaluated        int
	Options          int
	PreservationRate float64
	ConflictFreeRate float64
	Partial          bool
	Duration         time.Duration
	Time             time.Time
}

// MetricsSink is the mandatory capability of every sink.
type MetricsSink interface {
	RecordOptimization(ev OptimizationEvent) error
}

// ImpactEvent summarizes one disruption impact analysis.
type ImpactEvent struct {
	SessionID             string
	AffectedSessions      int
	CascadingChanges      int
	NotificationCount     int
	ContinuityDisruption  float64
	OperationalComplexity float64
	ProviderChanged       bool
	Degraded              bool
	Time                  time.Time
}

// ImpactRecorder records impact analyses.
type ImpactRecorder interface {
	RecordImpact(ev ImpactEvent) error
}

// AuditEvent is emitted for every appended audit record.
type AuditEvent struct {
	Type model.EventType
	Time time.Time
}

// AuditRecorder records audit appends.
type AuditRecorder interface {
	RecordAuditEvent(ev AuditEvent) error
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) RecordOptimization(OptimizationEvent) error { return nil }
func (NopSink) RecordImpact(ImpactEvent) error             { return nil }
func (NopSink) RecordAuditEvent(AuditEvent) error          { return nil }

// OrNop returns s, or NopSink when s is nil.
func OrNop(s MetricsSink) MetricsSink {
	if s == nil {
		return NopSink{}
	}
	return s
}
