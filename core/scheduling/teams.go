package scheduling

import (
	"context"
	"slices"
	"time"

	"github.com/kilianp07/rbtsched/core/constraints"
	"github.com/kilianp07/rbtsched/core/model"
)

// TeamRequest sets the full roster of a client.
type TeamRequest struct {
	ClientID     string   `json:"client_id"`
	RBTIDs       []string `json:"rbt_ids"`
	PrimaryRBTID string   `json:"primary_rbt_id"`
	// EffectiveDate defaults to now.
	EffectiveDate time.Time `json:"effective_date,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	By            string    `json:"by,omitempty"`
}

// RosterChange edits one member of the active team, or ends the team.
type RosterChange struct {
	ClientID string `json:"client_id"`
	RBTID    string `json:"rbt_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
	By       string `json:"by,omitempty"`
}

// TeamResult is the outcome of a roster operation.
type TeamResult struct {
	Success    bool                    `json:"success"`
	Team       *model.Team             `json:"team,omitempty"`
	Violations []constraints.Violation `json:"violations,omitempty"`
	Message    string                  `json:"message"`
}

func teamRejected(v constraints.Violation) TeamResult {
	return TeamResult{Violations: []constraints.Violation{v}, Message: v.Message}
}

func validateRoster(req TeamRequest) error {
	var c constraints.Collector
	c.Require("client_id", req.ClientID)
	if len(req.RBTIDs) == 0 {
		c.Add(constraints.RuleRequired, "rbt_ids must not be empty")
	}
	for _, id := range req.RBTIDs {
		c.Require("rbt_ids[]", id)
	}
	if req.PrimaryRBTID != "" && !slices.Contains(req.RBTIDs, req.PrimaryRBTID) {
		c.Add(constraints.RuleProvider, model.ErrPrimaryNotMember.Error())
	}
	return c.Err()
}

// checkRoster returns the first unknown or inactive RBT.
func (s *Service) checkRoster(ctx context.Context, ids []string) (*constraints.Violation, error) {
	for _, id := range ids {
		v, err := s.checkProvider(ctx, id)
		if err != nil || v != nil {
			return v, err
		}
	}
	return nil, nil
}

func roster(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// CreateTeam installs a new active roster. A previous active team of the
// client is ended first.
func (s *Service) CreateTeam(ctx context.Context, req TeamRequest) (TeamResult, error) {
	if err := validateRoster(req); err != nil {
		return TeamResult{}, err
	}
	if v, err := s.checkRoster(ctx, req.RBTIDs); err != nil || v != nil {
		if err != nil {
			return TeamResult{}, err
		}
		return teamRejected(*v), nil
	}
	now := s.clock.Now()
	prev, err := s.activeTeam(ctx, req.ClientID)
	if err != nil {
		return TeamResult{}, err
	}
	if prev != nil {
		if err := s.endTeam(ctx, *prev, now, "replaced by a new team", req.By); err != nil {
			return TeamResult{}, err
		}
	}

	ids := roster(req.RBTIDs)
	t := model.Team{
		ID:            s.newID(),
		ClientID:      req.ClientID,
		RBTIDs:        ids,
		PrimaryRBTID:  req.PrimaryRBTID,
		EffectiveDate: req.EffectiveDate,
		Active:        true,
	}
	if t.PrimaryRBTID == "" {
		t.PrimaryRBTID = ids[0]
	}
	if t.EffectiveDate.IsZero() {
		t.EffectiveDate = now
	}
	if err := s.repos.Teams.Create(ctx, t); err != nil {
		return TeamResult{}, s.infra("create team", err)
	}
	s.record(ctx, model.ScheduleEvent{
		Type:      model.EventTeamCreated,
		RBTID:     t.PrimaryRBTID,
		ClientID:  t.ClientID,
		NewValues: t.Snapshot(),
		Reason:    req.Reason,
		Metadata:  map[string]any{"team_id": t.ID},
		CreatedBy: req.By,
	})
	return TeamResult{Success: true, Team: &t, Message: "team created"}, nil
}

// UpdateTeam replaces the members and primary of the active team in place.
func (s *Service) UpdateTeam(ctx context.Context, req TeamRequest) (TeamResult, error) {
	if err := validateRoster(req); err != nil {
		return TeamResult{}, err
	}
	if v, err := s.checkRoster(ctx, req.RBTIDs); err != nil || v != nil {
		if err != nil {
			return TeamResult{}, err
		}
		return teamRejected(*v), nil
	}
	return s.mutateTeam(ctx, req.ClientID, model.EventTeamUpdated, "", req.Reason, req.By, func(t *model.Team) *constraints.Violation {
		t.RBTIDs = roster(req.RBTIDs)
		if req.PrimaryRBTID != "" {
			t.PrimaryRBTID = req.PrimaryRBTID
		} else if !t.Has(t.PrimaryRBTID) {
			t.PrimaryRBTID = t.RBTIDs[0]
		}
		return nil
	})
}

// AddProvider adds an RBT to the active team.
func (s *Service) AddProvider(ctx context.Context, req RosterChange) (TeamResult, error) {
	if err := validateChange(req, true); err != nil {
		return TeamResult{}, err
	}
	v, err := s.checkProvider(ctx, req.RBTID)
	if err != nil {
		return TeamResult{}, err
	}
	if v != nil {
		return teamRejected(*v), nil
	}
	return s.mutateTeam(ctx, req.ClientID, model.EventRBTAdded, req.RBTID, req.Reason, req.By, func(t *model.Team) *constraints.Violation {
		if t.Has(req.RBTID) {
			v := violation(constraints.RuleProvider, "rbt %s is already on the team", req.RBTID)
			return &v
		}
		t.RBTIDs = append(t.RBTIDs, req.RBTID)
		return nil
	})
}

// RemoveProvider drops an RBT from the active team. The primary must be
// changed before it can be removed.
func (s *Service) RemoveProvider(ctx context.Context, req RosterChange) (TeamResult, error) {
	if err := validateChange(req, true); err != nil {
		return TeamResult{}, err
	}
	return s.mutateTeam(ctx, req.ClientID, model.EventRBTRemoved, req.RBTID, req.Reason, req.By, func(t *model.Team) *constraints.Violation {
		if !t.Has(req.RBTID) {
			v := violation(constraints.RuleProvider, "rbt %s is not on the team", req.RBTID)
			return &v
		}
		if t.IsPrimary(req.RBTID) {
			v := violation(constraints.RuleProvider, "rbt %s is the primary and cannot be removed", req.RBTID)
			return &v
		}
		t.RBTIDs = slices.DeleteFunc(t.RBTIDs, func(id string) bool { return id == req.RBTID })
		return nil
	})
}

// ChangePrimary designates another team member as primary.
func (s *Service) ChangePrimary(ctx context.Context, req RosterChange) (TeamResult, error) {
	if err := validateChange(req, true); err != nil {
		return TeamResult{}, err
	}
	return s.mutateTeam(ctx, req.ClientID, model.EventPrimaryChanged, req.RBTID, req.Reason, req.By, func(t *model.Team) *constraints.Violation {
		if !t.Has(req.RBTID) {
			v := violation(constraints.RuleProvider, "rbt %s is not on the team", req.RBTID)
			return &v
		}
		t.PrimaryRBTID = req.RBTID
		return nil
	})
}

// EndTeam deactivates the active team of a client.
func (s *Service) EndTeam(ctx context.Context, req RosterChange) (TeamResult, error) {
	if err := validateChange(req, false); err != nil {
		return TeamResult{}, err
	}
	t, err := s.activeTeam(ctx, req.ClientID)
	if err != nil {
		return TeamResult{}, err
	}
	if t == nil {
		return teamRejected(violation(constraints.RuleNotFound, "client %s has no active team", req.ClientID)), nil
	}
	now := s.clock.Now()
	if err := s.endTeam(ctx, *t, now, req.Reason, req.By); err != nil {
		return TeamResult{}, err
	}
	t.Active = false
	t.EndDate = &now
	return TeamResult{Success: true, Team: t, Message: "team ended"}, nil
}

func validateChange(req RosterChange, needRBT bool) error {
	var c constraints.Collector
	c.Require("client_id", req.ClientID)
	if needRBT {
		c.Require("rbt_id", req.RBTID)
	}
	return c.Err()
}

func (s *Service) endTeam(ctx context.Context, t model.Team, now time.Time, reason, by string) error {
	old := t.Snapshot()
	t.Active = false
	t.EndDate = &now
	if err := s.repos.Teams.Update(ctx, t); err != nil {
		return s.infra("end team", err)
	}
	s.record(ctx, model.ScheduleEvent{
		Type:      model.EventTeamEnded,
		ClientID:  t.ClientID,
		OldValues: old,
		NewValues: t.Snapshot(),
		Reason:    reason,
		Metadata:  map[string]any{"team_id": t.ID},
		CreatedBy: by,
	})
	return nil
}

// mutateTeam applies edit to the active team, validates the result, stores
// it and records one event of type typ.
func (s *Service) mutateTeam(ctx context.Context, clientID string, typ model.EventType, rbtID, reason, by string, edit func(*model.Team) *constraints.Violation) (TeamResult, error) {
	cur, err := s.activeTeam(ctx, clientID)
	if err != nil {
		return TeamResult{}, err
	}
	if cur == nil {
		return teamRejected(violation(constraints.RuleNotFound, "client %s has no active team", clientID)), nil
	}
	old := cur.Snapshot()
	next := *cur
	next.RBTIDs = slices.Clone(cur.RBTIDs)
	if v := edit(&next); v != nil {
		return teamRejected(*v), nil
	}
	if err := next.Validate(); err != nil {
		return teamRejected(violation(constraints.RuleProvider, "%v", err)), nil
	}
	if err := s.repos.Teams.Update(ctx, next); err != nil {
		return TeamResult{}, s.infra("update team", err)
	}
	s.record(ctx, model.ScheduleEvent{
		Type:      typ,
		RBTID:     rbtID,
		ClientID:  clientID,
		OldValues: old,
		NewValues: next.Snapshot(),
		Reason:    reason,
		Metadata:  map[string]any{"team_id": next.ID},
		CreatedBy: by,
	})
	return TeamResult{Success: true, Team: &next, Message: string(typ)}, nil
}
