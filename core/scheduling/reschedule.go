package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/rbtsched/core/constraints"
	"github.com/kilianp07/rbtsched/core/impact"
	"github.com/kilianp07/rbtsched/core/model"
	"github.com/kilianp07/rbtsched/core/ranking"
	"github.com/kilianp07/rbtsched/core/store"
)

type (
	ReschedulingRequest = ranking.Request
	ReschedulingResult  = ranking.Result
)

// FindReschedulingOptions ranks alternatives for an existing session.
func (s *Service) FindReschedulingOptions(ctx context.Context, req ReschedulingRequest) (ReschedulingResult, error) {
	res, err := s.optimizer.FindReschedulingOptions(ctx, req)
	var verr *ValidationError
	if err != nil && !errors.As(err, &verr) {
		return res, s.infra("find rescheduling options", err)
	}
	return res, err
}

// ExecuteRequest moves a session to a new slot, usually one returned by
// FindReschedulingOptions.
type ExecuteRequest struct {
	SessionID   string    `json:"session_id"`
	NewStart    time.Time `json:"new_start"`
	NewRBTID    string    `json:"new_rbt_id,omitempty"`
	Reason      string    `json:"reason"`
	RequestedBy string    `json:"requested_by,omitempty"`
	// MinNoticeHours overrides the configured minimum notice when set.
	MinNoticeHours *float64 `json:"min_notice_hours,omitempty"`
}

// ExecuteResult is the outcome of ExecuteReschedule. Previous is the closed
// occurrence and Session its replacement.
type ExecuteResult struct {
	Success    bool                    `json:"success"`
	Session    *model.Session          `json:"session,omitempty"`
	Previous   *model.Session          `json:"previous,omitempty"`
	Impact     *impact.Report          `json:"impact,omitempty"`
	Conflicts  []model.Session         `json:"conflicts,omitempty"`
	Violations []constraints.Violation `json:"violations,omitempty"`
	Message    string                  `json:"message"`
}

func executeRejected(vs ...constraints.Violation) ExecuteResult {
	return ExecuteResult{Violations: vs, Message: vs[0].Message}
}

func validateExecute(req ExecuteRequest) error {
	var c constraints.Collector
	c.Require("session_id", req.SessionID)
	c.Require("reason", req.Reason)
	if req.NewStart.IsZero() {
		c.Add(constraints.RuleRequired, "new_start is required")
	}
	if n := req.MinNoticeHours; n != nil && *n < 0 {
		c.Add(constraints.RuleNotice, "min_notice_hours must not be negative")
	}
	return c.Err()
}

// ExecuteReschedule replaces a session by a new occurrence at NewStart. The
// new session links back through RescheduledFrom and the old one is
// cancelled. One session_rescheduled event records both snapshots.
func (s *Service) ExecuteReschedule(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	if err := validateExecute(req); err != nil {
		return ExecuteResult{}, err
	}
	now := s.clock.Now()

	orig, err := s.repos.Sessions.FindByID(ctx, req.SessionID)
	if errors.Is(err, store.ErrNotFound) {
		return executeRejected(violation(constraints.RuleNotFound, "session %s not found", req.SessionID)), nil
	}
	if err != nil {
		return ExecuteResult{}, s.infra("load session", err)
	}
	if orig.Status.IsTerminal() {
		return executeRejected(violation(constraints.RuleStatus, "session is %s and cannot be rescheduled", orig.Status)), nil
	}
	notice := s.validator.MinNotice()
	if n := req.MinNoticeHours; n != nil {
		notice = time.Duration(*n * float64(time.Hour))
	}
	if v := constraints.CheckNotice(now, orig.Start, notice); v != nil {
		return executeRejected(*v), nil
	}

	start := req.NewStart.In(s.validator.Location())
	end := s.sessionEnd(start)
	if vs := s.validator.ValidateSlot(start, end); len(vs) > 0 {
		return executeRejected(vs...), nil
	}
	if !start.After(now) {
		return executeRejected(violation(constraints.RuleDateRange, "new start must be in the future")), nil
	}

	rbtID := req.NewRBTID
	if rbtID == "" {
		rbtID = orig.RBTID
	}
	if rbtID != orig.RBTID {
		v, err := s.checkProvider(ctx, rbtID)
		if err != nil {
			return ExecuteResult{}, err
		}
		if v != nil {
			return executeRejected(*v), nil
		}
		team, err := s.activeTeam(ctx, orig.ClientID)
		if err != nil {
			return ExecuteResult{}, err
		}
		if team != nil && !team.Has(rbtID) {
			return executeRejected(violation(constraints.RuleProvider, "rbt %s is not on the team of client %s", rbtID, orig.ClientID)), nil
		}
	}

	conflicts, err := s.detector.Conflicts(ctx, orig.ClientID, rbtID, start, end, orig.ID)
	if err != nil {
		return ExecuteResult{}, s.infra("check conflicts", err)
	}
	if len(conflicts) > 0 {
		res := executeRejected(violation(constraints.RuleConflict, "new slot overlaps %d existing sessions", len(conflicts)))
		res.Conflicts = conflicts
		return res, nil
	}

	var rep *impact.Report
	if r, err := s.analyzer.Analyze(ctx, orig.ID, start, rbtID); err != nil {
		s.log.Warnf("impact of rescheduling %s: %v", orig.ID, err)
	} else {
		rep = &r
	}

	next := model.Session{
		ID:              s.newID(),
		ClientID:        orig.ClientID,
		RBTID:           rbtID,
		Start:           start,
		End:             end,
		Status:          model.StatusScheduled,
		Location:        orig.Location,
		Notes:           orig.Notes,
		RescheduledFrom: orig.ID,
		CreatedBy:       req.RequestedBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repos.Sessions.Create(ctx, next); err != nil {
		return ExecuteResult{}, s.infra("create session", err)
	}
	prev := orig
	prev.Status = model.StatusCancelled
	prev.CancellationReason = "rescheduled: " + req.Reason
	prev.UpdatedAt = now
	if err := s.repos.Sessions.Update(ctx, prev); err != nil {
		s.rollback(ctx, next, now)
		return ExecuteResult{}, s.infra("cancel rescheduled session", err)
	}

	meta := map[string]any{
		"new_session_id":   next.ID,
		"provider_changed": rbtID != orig.RBTID,
	}
	if rep != nil {
		meta["affected_sessions"] = rep.AffectedSessions
		meta["continuity_disruption"] = rep.ContinuityDisruption
		meta["operational_complexity"] = rep.OperationalComplexity
	}
	s.record(ctx, model.ScheduleEvent{
		Type:      model.EventSessionRescheduled,
		SessionID: orig.ID,
		RBTID:     rbtID,
		ClientID:  orig.ClientID,
		OldValues: orig.Snapshot(),
		NewValues: next.Snapshot(),
		Reason:    req.Reason,
		Metadata:  meta,
		CreatedBy: req.RequestedBy,
	})
	s.log.Infof("session %s rescheduled to %s (%s)", orig.ID, next.ID, start.Format(time.RFC3339))
	return ExecuteResult{
		Success:  true,
		Session:  &next,
		Previous: &prev,
		Impact:   rep,
		Message:  fmt.Sprintf("session moved to %s", start.Format(time.RFC3339)),
	}, nil
}

// rollback cancels a replacement whose predecessor could not be closed.
func (s *Service) rollback(ctx context.Context, next model.Session, now time.Time) {
	next.Status = model.StatusCancelled
	next.CancellationReason = "reschedule rolled back"
	next.UpdatedAt = now
	if err := s.repos.Sessions.Update(ctx, next); err != nil {
		s.log.Errorf("rollback session %s: %v", next.ID, err)
	}
}
