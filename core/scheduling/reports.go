package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/rbtsched/core/audit"
	"github.com/kilianp07/rbtsched/core/conflict"
	"github.com/kilianp07/rbtsched/core/constraints"
	"github.com/kilianp07/rbtsched/core/impact"
	"github.com/kilianp07/rbtsched/core/model"
	"github.com/kilianp07/rbtsched/core/store"
)

// AnalyzeReschedulingImpact estimates the disruption of moving a session.
// An unknown session is reported as a *ValidationError.
func (s *Service) AnalyzeReschedulingImpact(ctx context.Context, sessionID string, newStart time.Time, newRBTID string) (impact.Report, error) {
	rep, err := s.analyzer.Analyze(ctx, sessionID, newStart, newRBTID)
	if errors.Is(err, store.ErrNotFound) {
		return impact.Report{}, &ValidationError{Violations: []constraints.Violation{
			violation(constraints.RuleNotFound, "session %s not found", sessionID),
		}}
	}
	return rep, err
}

// TimeRange is an optional [From, To) filter. Zero bounds are open.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// GetAuditTrail returns the chronological events of one entity. entityType
// is one of session, rbt or client.
func (s *Service) GetAuditTrail(ctx context.Context, entityType, entityID string, r *TimeRange) (audit.Trail, error) {
	var c constraints.Collector
	kind, err := model.ParseEntityType(entityType)
	if err != nil {
		c.Add(constraints.RuleFormat, err.Error())
	}
	c.Require("entity_id", entityID)
	var from, to time.Time
	if r != nil {
		from, to = r.From, r.To
		if !from.IsZero() && !to.IsZero() && !to.After(from) {
			c.Add(constraints.RuleDateRange, "to must be after from")
		}
	}
	if err := c.Err(); err != nil {
		return audit.Trail{}, err
	}
	tr, err := s.audit.Trail(ctx, kind, entityID, from, to)
	if err != nil {
		return audit.Trail{}, s.infra("audit trail", err)
	}
	return tr, nil
}

// DoubleBookings lists overlapping active sessions of an RBT between from
// and to. It reports data inconsistencies that bypassed the conflict check.
func (s *Service) DoubleBookings(ctx context.Context, rbtID string, from, to time.Time) ([]conflict.DoubleBooking, error) {
	var c constraints.Collector
	c.Require("rbt_id", rbtID)
	if !from.IsZero() && !to.IsZero() && !to.After(from) {
		c.Add(constraints.RuleDateRange, "to must be after from")
	}
	if err := c.Err(); err != nil {
		return nil, err
	}
	all, err := s.repos.Sessions.FindByRBTID(ctx, rbtID)
	if err != nil {
		return nil, s.infra("load rbt sessions", err)
	}
	var window []model.Session
	for _, sess := range all {
		if !from.IsZero() && !sess.End.After(from) {
			continue
		}
		if !to.IsZero() && !sess.Start.Before(to) {
			continue
		}
		window = append(window, sess)
	}
	out := conflict.FindDoubleBookings(window)
	if out == nil {
		out = []conflict.DoubleBooking{}
	}
	return out, nil
}
