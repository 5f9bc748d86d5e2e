package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/kilianp07/rbtsched/core/model"
)

// JSONLStore appends one JSON document per event to a file.
type JSONLStore struct {
	path string
	mu   sync.Mutex
	ids  map[string]struct{}
}

// NewJSONLStore opens or creates the file at path.
func NewJSONLStore(path string) (*JSONLStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	s := &JSONLStore{path: path, ids: make(map[string]struct{})}
	err = scan(f, func(ev model.ScheduleEvent) { s.ids[ev.ID] = struct{}{} })
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return s, nil
}

// Append writes ev as a single line. The write is one syscall so a crash
// never leaves half an event followed by another.
func (s *JSONLStore) Append(_ context.Context, ev model.ScheduleEvent) error {
	line, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.ids[ev.ID]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicate, ev.ID)
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return err
	}
	s.ids[ev.ID] = struct{}{}
	return nil
}

func (s *JSONLStore) Query(_ context.Context, q Query) ([]model.ScheduleEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	var out []model.ScheduleEvent
	err = scan(f, func(ev model.ScheduleEvent) {
		if q.Match(ev) {
			out = append(out, ev)
		}
	})
	if err != nil {
		return nil, err
	}
	return finish(out, q.Limit), nil
}

func (s *JSONLStore) Close() error { return nil }

// scan decodes one event per line. Blank lines are skipped; any other line
// that fails to decode is an error naming its line number.
func scan(r io.Reader, fn func(model.ScheduleEvent)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for n := 1; sc.Scan(); n++ {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev model.ScheduleEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return fmt.Errorf("%w: line %d: %v", ErrCorrupt, n, err)
		}
		fn(ev)
	}
	return sc.Err()
}
