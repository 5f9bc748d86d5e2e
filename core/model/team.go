package model

import (
	"errors"
	"slices"
	"time"
)

// Team is the standing roster of RBTs eligible to serve a client.
type Team struct {
	ID            string     `json:"id" yaml:"id"`
	ClientID      string     `json:"client_id" yaml:"client_id"`
	RBTIDs        []string   `json:"rbt_ids" yaml:"rbt_ids"`
	PrimaryRBTID  string     `json:"primary_rbt_id" yaml:"primary_rbt_id"`
	EffectiveDate time.Time  `json:"effective_date" yaml:"effective_date"`
	EndDate       *time.Time `json:"end_date,omitempty" yaml:"end_date"`
	Active        bool       `json:"active" yaml:"active"`
}

var (
	ErrPrimaryNotMember = errors.New("primary rbt is not a team member")
	ErrEmptyTeam        = errors.New("team has no rbts")
)

// Has reports whether the RBT belongs to the team.
func (t Team) Has(rbtID string) bool {
	return slices.Contains(t.RBTIDs, rbtID)
}

// IsPrimary reports whether the RBT is the designated primary.
func (t *Team) IsPrimary(rbtID string) bool {
	return t != nil && t.PrimaryRBTID != "" && t.PrimaryRBTID == rbtID
}

// Validate checks the team invariants while active.
func (t Team) Validate() error {
	if !t.Active {
		return nil
	}
	if len(t.RBTIDs) == 0 {
		return ErrEmptyTeam
	}
	if !t.Has(t.PrimaryRBTID) {
		return ErrPrimaryNotMember
	}
	return nil
}

// Snapshot returns the roster as an audit document.
func (t Team) Snapshot() map[string]any {
	ids := make([]any, len(t.RBTIDs))
	for i, id := range t.RBTIDs {
		ids[i] = id
	}
	return map[string]any{
		"id":             t.ID,
		"client_id":      t.ClientID,
		"rbt_ids":        ids,
		"primary_rbt_id": t.PrimaryRBTID,
		"active":         t.Active,
	}
}
