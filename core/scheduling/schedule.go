package scheduling

import (
	"context"
	"time"

	"github.com/kilianp07/rbtsched/core/candidates"
	"github.com/kilianp07/rbtsched/core/constraints"
	"github.com/kilianp07/rbtsched/core/continuity"
	"github.com/kilianp07/rbtsched/core/model"
	"github.com/kilianp07/rbtsched/core/ranking"
)

// ScheduleRequest books a new session. When RBTID is empty the provider is
// chosen among the free members of the client's active team.
type ScheduleRequest struct {
	ClientID    string                 `json:"client_id"`
	RBTID       string                 `json:"rbt_id,omitempty"`
	Start       time.Time              `json:"start"`
	Location    string                 `json:"location,omitempty"`
	Notes       string                 `json:"notes,omitempty"`
	CreatedBy   string                 `json:"created_by,omitempty"`
	Preferences candidates.Preferences `json:"preferences"`
}

// ScheduleResult is the outcome of ScheduleSession. On a conflict Session is
// nil and Conflicts lists the blocking sessions, with ranked Alternatives
// when any exist.
type ScheduleResult struct {
	Success      bool                    `json:"success"`
	Session      *model.Session          `json:"session,omitempty"`
	Selection    *continuity.Selection   `json:"selection,omitempty"`
	Alternatives []ranking.Option        `json:"alternatives,omitempty"`
	Conflicts    []model.Session         `json:"conflicts,omitempty"`
	Violations   []constraints.Violation `json:"violations,omitempty"`
	Message      string                  `json:"message"`
}

// Conflicted reports whether the request failed on an occupied slot.
func (r ScheduleResult) Conflicted() bool { return len(r.Conflicts) > 0 }

func rejected(vs ...constraints.Violation) ScheduleResult {
	return ScheduleResult{Violations: vs, Message: vs[0].Message}
}

func validateSchedule(req ScheduleRequest) error {
	var c constraints.Collector
	c.Require("client_id", req.ClientID)
	if req.Start.IsZero() {
		c.Add(constraints.RuleRequired, "start is required")
	}
	for _, t := range req.Preferences.PreferredTimes {
		if _, err := constraints.ParseClock(t); err != nil {
			c.Add(constraints.RuleFormat, err.Error())
		}
	}
	if d := req.Preferences.MaxDaysFromOriginal; d < 0 || d > ranking.MaxSearchDays {
		c.Add(constraints.RuleDateRange, "max_days_from_original out of range")
	}
	return c.Err()
}

// ScheduleSession validates and books a session. Calendar, notice and
// provider problems produce a non-success result. An occupied slot produces
// a non-success result carrying the conflicts and ranked alternatives.
func (s *Service) ScheduleSession(ctx context.Context, req ScheduleRequest) (ScheduleResult, error) {
	if err := validateSchedule(req); err != nil {
		return ScheduleResult{}, err
	}
	now := s.clock.Now()
	start := req.Start.In(s.validator.Location())
	end := s.sessionEnd(start)

	if vs := s.validator.ValidateSlot(start, end); len(vs) > 0 {
		return rejected(vs...), nil
	}
	if !start.After(now) {
		return rejected(violation(constraints.RuleDateRange, "start must be in the future")), nil
	}
	if v := s.validator.CheckNotice(now, start); v != nil {
		return rejected(*v), nil
	}

	team, err := s.activeTeam(ctx, req.ClientID)
	if err != nil {
		return ScheduleResult{}, err
	}

	var sel *continuity.Selection
	rbtID := req.RBTID
	prefs := req.Preferences
	if rbtID == "" {
		if team == nil {
			return rejected(violation(constraints.RuleProvider, "client %s has no active team and no rbt was given", req.ClientID)), nil
		}
		picked, err := s.pickProvider(ctx, team, req.ClientID, start, end)
		if err != nil {
			return ScheduleResult{}, err
		}
		if picked.Selected != "" {
			sel = &picked
			rbtID = picked.Selected
		} else {
			// everyone is busy: report against the primary and search the team
			rbtID = team.PrimaryRBTID
			prefs.AllowDifferentRBT = true
		}
	} else {
		v, err := s.checkProvider(ctx, rbtID)
		if err != nil {
			return ScheduleResult{}, err
		}
		if v != nil {
			return rejected(*v), nil
		}
		if team != nil && !team.Has(rbtID) {
			return rejected(violation(constraints.RuleProvider, "rbt %s is not on the team of client %s", rbtID, req.ClientID)), nil
		}
	}

	conflicts, err := s.detector.Conflicts(ctx, req.ClientID, rbtID, start, end, "")
	if err != nil {
		return ScheduleResult{}, s.infra("check conflicts", err)
	}
	if len(conflicts) > 0 {
		ref := model.Session{ClientID: req.ClientID, RBTID: rbtID, Start: start, End: end, Status: model.StatusScheduled}
		alts, _, err := s.optimizer.Search(ctx, ref, prefs, s.cfg.MaxAlternatives)
		if err != nil {
			return ScheduleResult{}, s.infra("search alternatives", err)
		}
		res := ScheduleResult{
			Selection:    sel,
			Conflicts:    conflicts,
			Alternatives: alts,
			Violations:   []constraints.Violation{violation(constraints.RuleConflict, "requested slot overlaps %d existing sessions", len(conflicts))},
			Message:      "requested slot is not available",
		}
		return res, nil
	}

	sess := model.Session{
		ID:        s.newID(),
		ClientID:  req.ClientID,
		RBTID:     rbtID,
		Start:     start,
		End:       end,
		Status:    model.StatusScheduled,
		Location:  req.Location,
		Notes:     req.Notes,
		CreatedBy: req.CreatedBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repos.Sessions.Create(ctx, sess); err != nil {
		return ScheduleResult{}, s.infra("create session", err)
	}
	s.record(ctx, model.ScheduleEvent{
		Type:      model.EventSessionCreated,
		SessionID: sess.ID,
		RBTID:     sess.RBTID,
		ClientID:  sess.ClientID,
		NewValues: sess.Snapshot(),
		CreatedBy: req.CreatedBy,
	})
	s.log.Debugw("session scheduled", map[string]any{"session_id": sess.ID, "rbt_id": rbtID, "client_id": req.ClientID})
	return ScheduleResult{Success: true, Session: &sess, Selection: sel, Message: "session scheduled"}, nil
}

// pickProvider selects among the active team members that are free for the
// slot. The returned selection is empty when no member is free.
func (s *Service) pickProvider(ctx context.Context, team *model.Team, clientID string, start, end time.Time) (continuity.Selection, error) {
	var free []string
	for _, id := range team.RBTIDs {
		v, err := s.checkProvider(ctx, id)
		if err != nil {
			return continuity.Selection{}, err
		}
		if v != nil {
			continue
		}
		busy, err := s.detector.HasConflict(ctx, clientID, id, start, end, "")
		if err != nil {
			return continuity.Selection{}, s.infra("check conflicts", err)
		}
		if !busy {
			free = append(free, id)
		}
	}
	if len(free) == 0 {
		return continuity.Selection{Reason: "no available provider"}, nil
	}
	history, err := s.repos.Sessions.FindByClientID(ctx, clientID)
	if err != nil {
		return continuity.Selection{}, s.infra("load history", err)
	}
	return s.scorer.SelectOptimalProvider(free, clientID, history, team), nil
}
