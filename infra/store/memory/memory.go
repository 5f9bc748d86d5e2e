// Package memory provides in-process repositories backed by maps. They are
// used by tests, the CLI and single-node deployments seeded from fixtures.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/rbtsched/core/model"
	"github.com/kilianp07/rbtsched/core/store"
)

// SessionStore implements store.SessionRepository.
type SessionStore struct {
	mu   sync.RWMutex
	data map[string]model.Session
}

// NewSessionStore returns a store preloaded with sessions.
func NewSessionStore(sessions ...model.Session) *SessionStore {
	s := &SessionStore{data: make(map[string]model.Session, len(sessions))}
	for _, ss := range sessions {
		s.data[ss.ID] = ss
	}
	return s
}

func (s *SessionStore) FindByID(_ context.Context, id string) (model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ss, ok := s.data[id]
	if !ok {
		return model.Session{}, store.ErrNotFound
	}
	return ss, nil
}

func (s *SessionStore) FindByClientID(_ context.Context, clientID string) ([]model.Session, error) {
	return s.filter(func(ss model.Session) bool { return ss.ClientID == clientID }), nil
}

func (s *SessionStore) FindByRBTID(_ context.Context, rbtID string) ([]model.Session, error) {
	return s.filter(func(ss model.Session) bool { return ss.RBTID == rbtID }), nil
}

func (s *SessionStore) FindActiveByDateRange(_ context.Context, start, end time.Time) ([]model.Session, error) {
	return s.filter(func(ss model.Session) bool {
		return ss.Status.IsActive() && ss.Overlaps(start, end)
	}), nil
}

func (s *SessionStore) CheckConflicts(_ context.Context, clientID, rbtID string, start, end time.Time, excludeID string) ([]model.Session, error) {
	return s.filter(func(ss model.Session) bool {
		if excludeID != "" && ss.ID == excludeID {
			return false
		}
		if ss.ClientID != clientID && ss.RBTID != rbtID {
			return false
		}
		return ss.Status.IsActive() && ss.Overlaps(start, end)
	}), nil
}

func (s *SessionStore) Create(_ context.Context, ss model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[ss.ID] = ss
	return nil
}

func (s *SessionStore) Update(_ context.Context, ss model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[ss.ID]; !ok {
		return store.ErrNotFound
	}
	s.data[ss.ID] = ss
	return nil
}

// filter returns matching sessions ordered by start then id.
func (s *SessionStore) filter(keep func(model.Session) bool) []model.Session {
	s.mu.RLock()
	out := make([]model.Session, 0)
	for _, ss := range s.data {
		if keep(ss) {
			out = append(out, ss)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// TeamStore implements store.TeamRepository.
type TeamStore struct {
	mu   sync.RWMutex
	data map[string]model.Team
}

// NewTeamStore returns a store preloaded with teams.
func NewTeamStore(teams ...model.Team) *TeamStore {
	s := &TeamStore{data: make(map[string]model.Team, len(teams))}
	for _, t := range teams {
		s.data[t.ID] = t
	}
	return s
}

func (s *TeamStore) FindActiveByClientID(_ context.Context, clientID string) (model.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		found model.Team
		ok    bool
	)
	for _, t := range s.data {
		if t.ClientID != clientID || !t.Active {
			continue
		}
		// the most recent effective roster wins
		if !ok || t.EffectiveDate.After(found.EffectiveDate) {
			found, ok = t, true
		}
	}
	if !ok {
		return model.Team{}, store.ErrNotFound
	}
	found.RBTIDs = append([]string(nil), found.RBTIDs...)
	return found, nil
}

func (s *TeamStore) Create(_ context.Context, t model.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.RBTIDs = append([]string(nil), t.RBTIDs...)
	s.data[t.ID] = t
	return nil
}

func (s *TeamStore) Update(_ context.Context, t model.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[t.ID]; !ok {
		return store.ErrNotFound
	}
	t.RBTIDs = append([]string(nil), t.RBTIDs...)
	s.data[t.ID] = t
	return nil
}

// ProviderStore implements store.ProviderRepository.
type ProviderStore struct {
	mu   sync.RWMutex
	data map[string]model.Provider
}

// NewProviderStore returns a store preloaded with providers.
func NewProviderStore(providers ...model.Provider) *ProviderStore {
	s := &ProviderStore{data: make(map[string]model.Provider, len(providers))}
	for _, p := range providers {
		s.data[p.ID] = p
	}
	return s
}

func (s *ProviderStore) FindByID(_ context.Context, id string) (model.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.data[id]
	if !ok {
		return model.Provider{}, store.ErrNotFound
	}
	return p, nil
}

// Put inserts or replaces a provider.
func (s *ProviderStore) Put(p model.Provider) {
	s.mu.Lock()
	s.data[p.ID] = p
	s.mu.Unlock()
}

// New returns empty repositories.
func New() store.Repositories {
	return store.Repositories{
		Sessions:  NewSessionStore(),
		Teams:     NewTeamStore(),
		Providers: NewProviderStore(),
	}
}
