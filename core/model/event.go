package model

import (
	"errors"
	"fmt"
	"time"
)

// EventType enumerates schedule-affecting audit events.
type EventType string

const (
	EventSessionCreated     EventType = "session_created"
	EventSessionCancelled   EventType = "session_cancelled"
	EventSessionRescheduled EventType = "session_rescheduled"
	EventRBTUnavailable     EventType = "rbt_unavailable"
	EventTeamCreated        EventType = "team_created"
	EventTeamUpdated        EventType = "team_updated"
	EventTeamEnded          EventType = "team_ended"
	EventRBTAdded           EventType = "rbt_added"
	EventRBTRemoved         EventType = "rbt_removed"
	EventPrimaryChanged     EventType = "primary_changed"
)

// EventTypes lists every known event type.
var EventTypes = []EventType{
	EventSessionCreated, EventSessionCancelled, EventSessionRescheduled, EventRBTUnavailable,
	EventTeamCreated, EventTeamUpdated, EventTeamEnded, EventRBTAdded, EventRBTRemoved, EventPrimaryChanged,
}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	for _, k := range EventTypes {
		if k == t {
			return true
		}
	}
	return false
}

// EntityType identifies what an audit trail is assembled for.
type EntityType string

const (
	EntitySession EntityType = "session"
	EntityRBT     EntityType = "rbt"
	EntityClient  EntityType = "client"
)

// ParseEntityType converts a string into an EntityType.
func ParseEntityType(s string) (EntityType, error) {
	switch EntityType(s) {
	case EntitySession, EntityRBT, EntityClient:
		return EntityType(s), nil
	}
	return "", fmt.Errorf("unknown entity type %q", s)
}

var (
	ErrInvalidEventType = errors.New("invalid event type")
	ErrNoEntityRef      = errors.New("event must reference a session, rbt or client")
)

// ScheduleEvent is an immutable audit record.
type ScheduleEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	RBTID     string         `json:"rbt_id,omitempty"`
	ClientID  string         `json:"client_id,omitempty"`
	OldValues map[string]any `json:"old_values,omitempty"`
	NewValues map[string]any `json:"new_values,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedBy string         `json:"created_by,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Validate checks the event type and that at least one entity is referenced.
func (e ScheduleEvent) Validate() error {
	if !e.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidEventType, e.Type)
	}
	if e.SessionID == "" && e.RBTID == "" && e.ClientID == "" {
		return ErrNoEntityRef
	}
	return nil
}

// References reports whether the event concerns the given entity.
func (e ScheduleEvent) References(kind EntityType, id string) bool {
	switch kind {
	case EntitySession:
		return e.SessionID == id
	case EntityRBT:
		return e.RBTID == id
	case EntityClient:
		return e.ClientID == id
	}
	return false
}
