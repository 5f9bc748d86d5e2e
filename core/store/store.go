// Package store defines the repository contracts the scheduling core consumes.
// Implementations must be safe for concurrent use and provide consistent
// reads for the duration of a single optimization call.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/rbtsched/core/model"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// SessionRepository reads and writes sessions.
type SessionRepository interface {
	FindByID(ctx context.Context, id string) (model.Session, error)
	FindByClientID(ctx context.Context, clientID string) ([]model.Session, error)
	FindByRBTID(ctx context.Context, rbtID string) ([]model.Session, error)
	// FindActiveByDateRange returns non-cancelled sessions overlapping [start, end).
	FindActiveByDateRange(ctx context.Context, start, end time.Time) ([]model.Session, error)
	// CheckConflicts returns non-cancelled sessions of the client or the RBT
	// overlapping [start, end), ignoring excludeID when set.
	CheckConflicts(ctx context.Context, clientID, rbtID string, start, end time.Time, excludeID string) ([]model.Session, error)
	Create(ctx context.Context, s model.Session) error
	Update(ctx context.Context, s model.Session) error
}

// TeamRepository reads and writes client teams.
type TeamRepository interface {
	FindActiveByClientID(ctx context.Context, clientID string) (model.Team, error)
	Create(ctx context.Context, t model.Team) error
	Update(ctx context.Context, t model.Team) error
}

// ProviderRepository reads RBTs.
type ProviderRepository interface {
	FindByID(ctx context.Context, id string) (model.Provider, error)
}

// Repositories groups the contracts needed by the scheduling service.
type Repositories struct {
	Sessions  SessionRepository
	Teams     TeamRepository
	Providers ProviderRepository
}
