package store

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/kilianp07/rbtsched/core/model"
)

// MemoryStore keeps events in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	events []model.ScheduleEvent
	ids    map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ids: make(map[string]struct{})}
}

func (s *MemoryStore) Append(_ context.Context, ev model.ScheduleEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.ids[ev.ID]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicate, ev.ID)
	}
	s.ids[ev.ID] = struct{}{}
	s.events = append(s.events, clone(ev))
	return nil
}

func (s *MemoryStore) Query(_ context.Context, q Query) ([]model.ScheduleEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.ScheduleEvent
	for _, ev := range s.events {
		if q.Match(ev) {
			out = append(out, clone(ev))
		}
	}
	return finish(out, q.Limit), nil
}

func (s *MemoryStore) Close() error { return nil }

// clone copies the snapshot maps so callers cannot alter stored history.
func clone(ev model.ScheduleEvent) model.ScheduleEvent {
	ev.OldValues = maps.Clone(ev.OldValues)
	ev.NewValues = maps.Clone(ev.NewValues)
	ev.Metadata = maps.Clone(ev.Metadata)
	return ev
}
