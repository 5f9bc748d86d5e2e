// Package conflict detects overlapping sessions for clients and RBTs.
package conflict

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kilianp07/rbtsched/core/model"
	"github.com/kilianp07/rbtsched/core/store"
)

// Checker is the narrow query the detector relies on.
type Checker interface {
	CheckConflicts(ctx context.Context, clientID, rbtID string, start, end time.Time, excludeID string) ([]model.Session, error)
}

// Detector answers overlap questions against the session store.
type Detector struct {
	sessions Checker
}

// NewDetector wraps a conflict query.
func NewDetector(sessions Checker) *Detector {
	return &Detector{sessions: sessions}
}

// HasConflict reports whether any active session of the client or the RBT
// overlaps [start, end). The session with excludeID is skipped, typically
// the one being moved.
func (d *Detector) HasConflict(ctx context.Context, clientID, rbtID string, start, end time.Time, excludeID string) (bool, error) {
	found, err := d.Conflicts(ctx, clientID, rbtID, start, end, excludeID)
	if err != nil {
		return false, err
	}
	return len(found) > 0, nil
}

// Conflicts returns the overlapping active sessions. Results from the store
// are re-filtered so a loose repository cannot leak false positives.
func (d *Detector) Conflicts(ctx context.Context, clientID, rbtID string, start, end time.Time, excludeID string) ([]model.Session, error) {
	found, err := d.sessions.CheckConflicts(ctx, clientID, rbtID, start, end, excludeID)
	if err != nil {
		return nil, fmt.Errorf("check conflicts: %w", err)
	}
	out := found[:0:0]
	for _, s := range found {
		if Conflicts(s, clientID, rbtID, start, end, excludeID) {
			out = append(out, s)
		}
	}
	return out, nil
}

// Conflicts is the overlap predicate: existing.start < end AND
// existing.end > start, for an active session sharing the client or the RBT.
func Conflicts(s model.Session, clientID, rbtID string, start, end time.Time, excludeID string) bool {
	if excludeID != "" && s.ID == excludeID {
		return false
	}
	if !s.Status.IsActive() {
		return false
	}
	if s.ClientID != clientID && s.RBTID != rbtID {
		return false
	}
	return s.Overlaps(start, end)
}

// DoubleBooking is a pair of an RBT's sessions that overlap.
type DoubleBooking struct {
	RBTID   string        `json:"rbt_id"`
	First   model.Session `json:"first"`
	Second  model.Session `json:"second"`
	Overlap time.Duration `json:"overlap"`
}

// FindDoubleBookings groups active sessions per RBT, orders them by start and
// flags each adjacent pair where the current one ends after the next starts.
func FindDoubleBookings(sessions []model.Session) []DoubleBooking {
	byRBT := make(map[string][]model.Session)
	for _, s := range sessions {
		if !s.Status.IsActive() {
			continue
		}
		byRBT[s.RBTID] = append(byRBT[s.RBTID], s)
	}
	ids := make([]string, 0, len(byRBT))
	for id := range byRBT {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []DoubleBooking
	for _, id := range ids {
		list := byRBT[id]
		sort.SliceStable(list, func(i, j int) bool { return list[i].Start.Before(list[j].Start) })
		for i := 0; i+1 < len(list); i++ {
			cur, next := list[i], list[i+1]
			if cur.End.After(next.Start) {
				end := cur.End
				if next.End.Before(end) {
					end = next.End
				}
				out = append(out, DoubleBooking{RBTID: id, First: cur, Second: next, Overlap: end.Sub(next.Start)})
			}
		}
	}
	return out
}

var _ Checker = (store.SessionRepository)(nil)
