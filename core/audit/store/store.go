// Package store persists schedule events for the audit log. Every backend
// is append-only: there is no update or delete path.
package store

import (
	"context"
	"errors"
	"slices"
	"sort"
	"time"

	"github.com/kilianp07/rbtsched/core/model"
)

// ErrDuplicate is returned when an event ID was already stored.
var ErrDuplicate = errors.New("audit store: duplicate event id")

// ErrCorrupt is returned when a stored event cannot be decoded.
var ErrCorrupt = errors.New("audit store: corrupt event")

// Query filters events. Zero fields match everything. Start is inclusive
// and End exclusive.
type Query struct {
	Types     []model.EventType `json:"types,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	RBTID     string            `json:"rbt_id,omitempty"`
	ClientID  string            `json:"client_id,omitempty"`
	Start     time.Time         `json:"start,omitempty"`
	End       time.Time         `json:"end,omitempty"`
	// Limit keeps the first n events in chronological order.
	Limit int `json:"limit,omitempty"`
}

// Match reports whether ev satisfies the filter, ignoring Limit.
func (q Query) Match(ev model.ScheduleEvent) bool {
	if len(q.Types) > 0 && !slices.Contains(q.Types, ev.Type) {
		return false
	}
	if q.SessionID != "" && ev.SessionID != q.SessionID {
		return false
	}
	if q.RBTID != "" && ev.RBTID != q.RBTID {
		return false
	}
	if q.ClientID != "" && ev.ClientID != q.ClientID {
		return false
	}
	if !q.Start.IsZero() && ev.CreatedAt.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && !ev.CreatedAt.Before(q.End) {
		return false
	}
	return true
}

// Store persists schedule events.
type Store interface {
	// Append stores ev atomically. Duplicate IDs are rejected.
	Append(ctx context.Context, ev model.ScheduleEvent) error
	// Query returns matching events ordered by CreatedAt then ID.
	Query(ctx context.Context, q Query) ([]model.ScheduleEvent, error)
	Close() error
}

// finish sorts chronologically and applies the limit.
func finish(events []model.ScheduleEvent, limit int) []model.ScheduleEvent {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].CreatedAt.Before(events[j].CreatedAt)
		}
		return events[i].ID < events[j].ID
	})
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events
}
