package model

import "time"

// SessionDuration is the fixed length of every therapy session.
const SessionDuration = 3 * time.Hour

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	StatusScheduled SessionStatus = "scheduled"
	StatusConfirmed SessionStatus = "confirmed"
	StatusCompleted SessionStatus = "completed"
	StatusCancelled SessionStatus = "cancelled"
	StatusNoShow    SessionStatus = "no_show"
)

// Valid reports whether s is a known status.
func (s SessionStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// IsActive returns true when the session still occupies its time slot. Only
// cancelled sessions release the slot.
func (s SessionStatus) IsActive() bool {
	return s.Valid() && s != StatusCancelled
}

// IsTerminal returns true for statuses that can no longer be rescheduled.
func (s SessionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// CanTransition reports whether a session may move from s to next. Transitions
// are one-directional; rescheduling closes the old occurrence instead.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	switch s {
	case StatusScheduled:
		return next == StatusConfirmed || next == StatusCompleted || next == StatusCancelled || next == StatusNoShow
	case StatusConfirmed:
		return next == StatusCompleted || next == StatusCancelled || next == StatusNoShow
	}
	return false
}

// Session is one scheduled occurrence between a client and an RBT.
type Session struct {
	ID                 string        `json:"id" yaml:"id"`
	ClientID           string        `json:"client_id" yaml:"client_id"`
	RBTID              string        `json:"rbt_id" yaml:"rbt_id"`
	Start              time.Time     `json:"start" yaml:"start"`
	End                time.Time     `json:"end" yaml:"end"`
	Status             SessionStatus `json:"status" yaml:"status"`
	Location           string        `json:"location,omitempty" yaml:"location"`
	Notes              string        `json:"notes,omitempty" yaml:"notes"`
	CancellationReason string        `json:"cancellation_reason,omitempty" yaml:"cancellation_reason"`
	CompletionNotes    string        `json:"completion_notes,omitempty" yaml:"completion_notes"`
	// RescheduledFrom links a session created by a reschedule to the
	// occurrence it replaced.
	RescheduledFrom string    `json:"rescheduled_from,omitempty" yaml:"rescheduled_from"`
	CreatedBy       string    `json:"created_by,omitempty" yaml:"created_by"`
	CreatedAt       time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" yaml:"updated_at"`
}

// Overlaps returns true when the session intersects the half-open window
// [start, end).
func (s Session) Overlaps(start, end time.Time) bool {
	return s.Start.Before(end) && s.End.After(start)
}

// Snapshot returns the schedule-relevant fields of the session as a generic
// document suitable for audit records.
func (s Session) Snapshot() map[string]any {
	return map[string]any{
		"id":        s.ID,
		"client_id": s.ClientID,
		"rbt_id":    s.RBTID,
		"start":     s.Start.UTC().Format(time.RFC3339),
		"end":       s.End.UTC().Format(time.RFC3339),
		"status":    string(s.Status),
		"location":  s.Location,
	}
}
