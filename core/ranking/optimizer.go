package ranking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/rbtsched/core/candidates"
	"github.com/kilianp07/rbtsched/core/clock"
	"github.com/kilianp07/rbtsched/core/constraints"
	"github.com/kilianp07/rbtsched/core/logger"
	"github.com/kilianp07/rbtsched/core/metrics"
	"github.com/kilianp07/rbtsched/core/model"
	"github.com/kilianp07/rbtsched/core/store"
)

// MaxSearchDays bounds MaxDaysFromOriginal in requests.
const MaxSearchDays = 60

// Constraints are per-request overrides.
type Constraints struct {
	// MinNoticeHours overrides the configured minimum notice when set.
	MinNoticeHours *float64 `json:"min_notice_hours,omitempty"`
	MaxOptions     int      `json:"max_options,omitempty"`
}

// Request asks for alternatives to an existing session.
type Request struct {
	SessionID   string                 `json:"session_id"`
	Reason      string                 `json:"reason"`
	Preferences candidates.Preferences `json:"preferences"`
	Constraints Constraints            `json:"constraints"`
}

// Result is the outcome of a rescheduling search. Business-rule failures are
// reported through Success and Violations, never as errors.
type Result struct {
	Success    bool                    `json:"success"`
	Options    []Option                `json:"recommended_options"`
	Metrics    Metrics                 `json:"optimization_metrics"`
	Violations []constraints.Violation `json:"violations,omitempty"`
	Message    string                  `json:"message"`
}

// Optimizer runs the full rescheduling search: checks, candidate generation,
// evaluation and ranking.
type Optimizer struct {
	sessions  store.SessionRepository
	generator *candidates.Generator
	evaluator *Evaluator
	validator *constraints.Validator
	clock     clock.Clock
	log       logger.Logger
	sink      metrics.MetricsSink
}

// NewOptimizer wires an optimizer.
func NewOptimizer(sessions store.SessionRepository, gen *candidates.Generator, eval *Evaluator, v *constraints.Validator, c clock.Clock, log logger.Logger, sink metrics.MetricsSink) *Optimizer {
	return &Optimizer{
		sessions:  sessions,
		generator: gen,
		evaluator: eval,
		validator: v,
		clock:     clock.OrSystem(c),
		log:       logger.OrNop(log),
		sink:      metrics.OrNop(sink),
	}
}

// ValidateRequest rejects malformed requests.
func ValidateRequest(req Request) error {
	var c constraints.Collector
	c.Require("session_id", req.SessionID)
	if d := req.Preferences.MaxDaysFromOriginal; d < 0 || d > MaxSearchDays {
		c.Add(constraints.RuleDateRange, fmt.Sprintf("max_days_from_original must be between 0 and %d", MaxSearchDays))
	}
	for _, t := range req.Preferences.PreferredTimes {
		if _, err := constraints.ParseClock(t); err != nil {
			c.Add(constraints.RuleFormat, err.Error())
		}
	}
	if n := req.Constraints.MinNoticeHours; n != nil && *n < 0 {
		c.Add(constraints.RuleNotice, "min_notice_hours must not be negative")
	}
	if req.Constraints.MaxOptions < 0 {
		c.Add(constraints.RuleRequired, "max_options must not be negative")
	}
	return c.Err()
}

// FindReschedulingOptions ranks alternatives for an existing session. A
// missing session, a terminal status or insufficient notice yields a
// non-success result. Errors are reserved for invalid input and repository
// failures.
func (o *Optimizer) FindReschedulingOptions(ctx context.Context, req Request) (Result, error) {
	if err := ValidateRequest(req); err != nil {
		return Result{}, err
	}
	began := time.Now()

	ref, err := o.sessions.FindByID(ctx, req.SessionID)
	if errors.Is(err, store.ErrNotFound) {
		return o.reject(req.SessionID, began, constraints.Violation{
			Rule: constraints.RuleNotFound, Message: fmt.Sprintf("session %s not found", req.SessionID),
		}), nil
	}
	if err != nil {
		o.observe(req.SessionID, metrics.OutcomeError, began, Metrics{}, 0)
		return Result{}, fmt.Errorf("load session %s: %w", req.SessionID, err)
	}
	if ref.Status.IsTerminal() {
		return o.reject(ref.ID, began, constraints.Violation{
			Rule: constraints.RuleStatus, Message: fmt.Sprintf("session is %s and cannot be rescheduled", ref.Status),
		}), nil
	}
	notice := o.validator.MinNotice()
	if n := req.Constraints.MinNoticeHours; n != nil {
		notice = time.Duration(*n * float64(time.Hour))
	}
	if v := constraints.CheckNotice(o.clock.Now(), ref.Start, notice); v != nil {
		return o.reject(ref.ID, began, *v), nil
	}

	opts, m, err := o.Search(ctx, ref, req.Preferences, req.Constraints.MaxOptions)
	if err != nil {
		o.observe(ref.ID, metrics.OutcomeError, began, Metrics{}, 0)
		return Result{}, err
	}
	res := Result{Success: len(opts) > 0, Options: opts, Metrics: m}
	if res.Success {
		res.Message = fmt.Sprintf("found %d rescheduling options", len(opts))
		o.observe(ref.ID, metrics.OutcomeSuccess, began, m, len(opts))
	} else {
		res.Message = "no conflict-free options in the search window"
		o.observe(ref.ID, metrics.OutcomeNoOptions, began, m, 0)
	}
	if req.Reason != "" {
		o.log.Infof("rescheduling search for session %s (%s): %d options", ref.ID, req.Reason, len(opts))
	}
	return res, nil
}

// Search generates, evaluates and ranks alternatives to ref without any
// status or notice check. ref does not need to be stored. limit <= 0 uses
// the configured maximum.
func (o *Optimizer) Search(ctx context.Context, ref model.Session, prefs candidates.Preferences, limit int) ([]Option, Metrics, error) {
	started := time.Now()
	history, err := o.sessions.FindByClientID(ctx, ref.ClientID)
	if err != nil {
		return nil, Metrics{}, fmt.Errorf("load history for client %s: %w", ref.ClientID, err)
	}
	gen, err := o.generator.Generate(ctx, ref, prefs)
	if err != nil {
		return nil, Metrics{}, err
	}
	// Generated candidates are scored even after the deadline.
	scored, partial := o.evaluator.Evaluate(context.WithoutCancel(ctx), ref, gen.Candidates, history, prefs)
	if limit <= 0 {
		limit = o.evaluator.Config().MaxOptions
	}
	top := Rank(scored, prefs.PrioritizeContinuity, limit)
	m := ComputeMetrics(gen, len(scored), top, partial)
	m.ProcessingTimeMS = time.Since(started).Milliseconds()
	if m.Partial {
		o.log.Warnf("search for session %s cut short: %d of %d slots checked", ref.ID, gen.Checked, gen.Generated)
	}
	return top, m, nil
}

func (o *Optimizer) reject(sessionID string, began time.Time, v constraints.Violation) Result {
	o.log.Debugw("rescheduling rejected", map[string]any{"session_id": sessionID, "rule": v.Rule})
	o.observe(sessionID, metrics.OutcomeRejected, began, Metrics{}, 0)
	return Result{
		Violations: []constraints.Violation{v},
		Message:    v.Message,
	}
}

func (o *Optimizer) observe(sessionID, outcome string, began time.Time, m Metrics, options int) {
	elapsed := time.Since(began)
	optimizationRuns.WithLabelValues(outcome).Inc()
	candidatesEvaluated.Add(float64(m.TotalCandidatesEvaluated))
	optimizationLatency.Observe(elapsed.Seconds())
	if outcome == metrics.OutcomeSuccess {
		continuityPreserved.Set(m.ContinuityPreservationRate)
	}
	err := o.sink.RecordOptimization(metrics.OptimizationEvent{
		SessionID:        sessionID,
		Outcome:          outcome,
		Evaluated:        m.TotalCandidatesEvaluated,
		Options:          options,
		PreservationRate: m.ContinuityPreservationRate,
		ConflictFreeRate: m.ConflictFreeRate,
		Partial:          m.Partial,
		Duration:         elapsed,
		Time:             o.clock.Now(),
	})
	if err != nil {
		o.log.Warnf("record optimization metrics: %v", err)
	}
}
