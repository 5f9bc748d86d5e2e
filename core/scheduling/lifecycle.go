package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/rbtsched/core/candidates"
	"github.com/kilianp07/rbtsched/core/constraints"
	"github.com/kilianp07/rbtsched/core/model"
	"github.com/kilianp07/rbtsched/core/ranking"
	"github.com/kilianp07/rbtsched/core/store"
)

// SessionResult is the outcome of a status change.
type SessionResult struct {
	Success    bool                    `json:"success"`
	Session    *model.Session          `json:"session,omitempty"`
	Violations []constraints.Violation `json:"violations,omitempty"`
	Message    string                  `json:"message"`
}

func sessionRejected(v constraints.Violation) SessionResult {
	return SessionResult{Violations: []constraints.Violation{v}, Message: v.Message}
}

// CancelRequest cancels a session.
type CancelRequest struct {
	SessionID   string `json:"session_id"`
	Reason      string `json:"reason"`
	CancelledBy string `json:"cancelled_by,omitempty"`
}

// CompleteRequest closes a session that took place, or did not when NoShow
// is set.
type CompleteRequest struct {
	SessionID   string `json:"session_id"`
	NoShow      bool   `json:"no_show,omitempty"`
	Notes       string `json:"notes,omitempty"`
	CompletedBy string `json:"completed_by,omitempty"`
}

// loadForTransition fetches a session and checks it may move to next.
func (s *Service) loadForTransition(ctx context.Context, id string, next model.SessionStatus) (model.Session, *constraints.Violation, error) {
	sess, err := s.repos.Sessions.FindByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		v := violation(constraints.RuleNotFound, "session %s not found", id)
		return model.Session{}, &v, nil
	}
	if err != nil {
		return model.Session{}, nil, s.infra("load session", err)
	}
	if !sess.Status.CanTransition(next) {
		v := violation(constraints.RuleStatus, "session is %s and cannot become %s", sess.Status, next)
		return model.Session{}, &v, nil
	}
	return sess, nil, nil
}

// CancelSession releases the slot of a scheduled or confirmed session.
func (s *Service) CancelSession(ctx context.Context, req CancelRequest) (SessionResult, error) {
	var c constraints.Collector
	c.Require("session_id", req.SessionID)
	c.Require("reason", req.Reason)
	if err := c.Err(); err != nil {
		return SessionResult{}, err
	}
	orig, v, err := s.loadForTransition(ctx, req.SessionID, model.StatusCancelled)
	if err != nil {
		return SessionResult{}, err
	}
	if v != nil {
		return sessionRejected(*v), nil
	}

	sess := orig
	sess.Status = model.StatusCancelled
	sess.CancellationReason = req.Reason
	sess.UpdatedAt = s.clock.Now()
	if err := s.repos.Sessions.Update(ctx, sess); err != nil {
		return SessionResult{}, s.infra("cancel session", err)
	}
	s.record(ctx, model.ScheduleEvent{
		Type:      model.EventSessionCancelled,
		SessionID: sess.ID,
		RBTID:     sess.RBTID,
		ClientID:  sess.ClientID,
		OldValues: orig.Snapshot(),
		NewValues: sess.Snapshot(),
		Reason:    req.Reason,
		CreatedBy: req.CancelledBy,
	})
	return SessionResult{Success: true, Session: &sess, Message: "session cancelled"}, nil
}

// CompleteSession marks a started session as completed or no-show.
// Completion feeds continuity history and records no audit event.
func (s *Service) CompleteSession(ctx context.Context, req CompleteRequest) (SessionResult, error) {
	var c constraints.Collector
	c.Require("session_id", req.SessionID)
	if err := c.Err(); err != nil {
		return SessionResult{}, err
	}
	next := model.StatusCompleted
	if req.NoShow {
		next = model.StatusNoShow
	}
	sess, v, err := s.loadForTransition(ctx, req.SessionID, next)
	if err != nil {
		return SessionResult{}, err
	}
	if v != nil {
		return sessionRejected(*v), nil
	}
	now := s.clock.Now()
	if sess.Start.After(now) {
		return sessionRejected(violation(constraints.RuleStatus, "session has not started yet")), nil
	}

	sess.Status = next
	sess.CompletionNotes = req.Notes
	sess.UpdatedAt = now
	if err := s.repos.Sessions.Update(ctx, sess); err != nil {
		return SessionResult{}, s.infra("complete session", err)
	}
	s.log.Debugw("session closed", map[string]any{"session_id": sess.ID, "status": string(next), "by": req.CompletedBy})
	return SessionResult{Success: true, Session: &sess, Message: "session " + string(next)}, nil
}

// UnavailableRequest reports an RBT unable to work over [From, To).
type UnavailableRequest struct {
	RBTID      string    `json:"rbt_id"`
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`
	Reason     string    `json:"reason"`
	ReportedBy string    `json:"reported_by,omitempty"`
	// Suggest ranks replacement options for every disrupted session.
	Suggest bool `json:"suggest,omitempty"`
}

// Disruption is one session made impossible by an unavailability.
type Disruption struct {
	Session model.Session    `json:"session"`
	Options []ranking.Option `json:"options,omitempty"`
}

// UnavailableResult lists the disrupted sessions.
type UnavailableResult struct {
	RBTID     string       `json:"rbt_id"`
	Disrupted []Disruption `json:"disrupted"`
	Message   string       `json:"message"`
}

// MarkProviderUnavailable records an rbt_unavailable event and returns the
// scheduled or confirmed sessions overlapping the range. Sessions are left
// untouched; each one is expected to be rescheduled or cancelled by the
// caller.
func (s *Service) MarkProviderUnavailable(ctx context.Context, req UnavailableRequest) (UnavailableResult, error) {
	var c constraints.Collector
	c.Require("rbt_id", req.RBTID)
	c.Require("reason", req.Reason)
	switch {
	case req.From.IsZero() || req.To.IsZero():
		c.Add(constraints.RuleRequired, "from and to are required")
	case !req.To.After(req.From):
		c.Add(constraints.RuleDateRange, "to must be after from")
	case req.To.Sub(req.From) > time.Duration(s.cfg.MaxUnavailableDays)*24*time.Hour:
		c.Add(constraints.RuleDateRange, fmt.Sprintf("range must not exceed %d days", s.cfg.MaxUnavailableDays))
	}
	if err := c.Err(); err != nil {
		return UnavailableResult{}, err
	}

	all, err := s.repos.Sessions.FindByRBTID(ctx, req.RBTID)
	if err != nil {
		return UnavailableResult{}, s.infra("load rbt sessions", err)
	}
	res := UnavailableResult{RBTID: req.RBTID, Disrupted: []Disruption{}}
	ids := make([]any, 0)
	for _, sess := range all {
		if sess.Status.IsTerminal() || !sess.Overlaps(req.From, req.To) {
			continue
		}
		d := Disruption{Session: sess}
		if req.Suggest {
			if d.Options, err = s.replacements(ctx, sess); err != nil {
				return UnavailableResult{}, err
			}
		}
		res.Disrupted = append(res.Disrupted, d)
		ids = append(ids, sess.ID)
	}

	s.record(ctx, model.ScheduleEvent{
		Type:   model.EventRBTUnavailable,
		RBTID:  req.RBTID,
		Reason: req.Reason,
		Metadata: map[string]any{
			"from":                 req.From.UTC().Format(time.RFC3339),
			"to":                   req.To.UTC().Format(time.RFC3339),
			"affected_session_ids": ids,
		},
		CreatedBy: req.ReportedBy,
	})
	res.Message = fmt.Sprintf("%d sessions disrupted", len(res.Disrupted))
	return res, nil
}

// replacements ranks options for sess among the other members of the
// client's team.
func (s *Service) replacements(ctx context.Context, sess model.Session) ([]ranking.Option, error) {
	team, err := s.activeTeam(ctx, sess.ClientID)
	if err != nil || team == nil {
		return nil, err
	}
	var others []string
	for _, id := range team.RBTIDs {
		if id != sess.RBTID {
			others = append(others, id)
		}
	}
	if len(others) == 0 {
		return nil, nil
	}
	prefs := candidates.Preferences{AllowDifferentRBT: true, PreferredRBTIDs: others, PrioritizeContinuity: true}
	opts, _, err := s.optimizer.Search(ctx, sess, prefs, s.cfg.MaxAlternatives)
	if err != nil {
		return nil, s.infra("search replacements", err)
	}
	return opts, nil
}
