package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kilianp07/rbtsched/core/model"
)

// RotatingOptions bound the size and retention of rotated files.
type RotatingOptions struct {
	MaxSizeMB  int  `json:"max_size_mb"`
	MaxBackups int  `json:"max_backups"`
	MaxAgeDays int  `json:"max_age_days"`
	Compress   bool `json:"compress"`
}

// RotatingJSONLStore is a JSONL store whose file rotates by size. Queries
// read the active file and every uncompressed backup.
type RotatingJSONLStore struct {
	mu     sync.Mutex
	writer *lumberjack.Logger
	path   string
	ids    map[string]struct{}
}

// NewRotatingJSONLStore opens the store at path.
func NewRotatingJSONLStore(path string, opts RotatingOptions) (*RotatingJSONLStore, error) {
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 100
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	s := &RotatingJSONLStore{
		writer: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		},
		path: path,
		ids:  make(map[string]struct{}),
	}
	err := s.each(func(ev model.ScheduleEvent) { s.ids[ev.ID] = struct{}{} })
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Append writes ev, rotating the file when it would exceed the size limit.
func (s *RotatingJSONLStore) Append(_ context.Context, ev model.ScheduleEvent) error {
	line, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.ids[ev.ID]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicate, ev.ID)
	}
	if _, err := s.writer.Write(append(line, '\n')); err != nil {
		return err
	}
	s.ids[ev.ID] = struct{}{}
	return nil
}

func (s *RotatingJSONLStore) Query(_ context.Context, q Query) ([]model.ScheduleEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ScheduleEvent
	err := s.each(func(ev model.ScheduleEvent) {
		if q.Match(ev) {
			out = append(out, ev)
		}
	})
	if err != nil {
		return nil, err
	}
	return finish(out, q.Limit), nil
}

// each visits events in every file sharing the store's base name.
func (s *RotatingJSONLStore) each(fn func(model.ScheduleEvent)) error {
	ext := filepath.Ext(s.path)
	base := s.path[:len(s.path)-len(ext)]
	files, err := filepath.Glob(base + "*" + ext)
	if err != nil {
		return err
	}
	sort.Strings(files)
	for _, name := range files {
		f, err := os.Open(name)
		if err != nil {
			return err
		}
		err = scan(f, fn)
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
	}
	return nil
}

// Close closes the active file.
func (s *RotatingJSONLStore) Close() error {
	return s.writer.Close()
}
