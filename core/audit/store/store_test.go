package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/rbtsched/core/factory"
	"github.com/kilianp07/rbtsched/core/model"
)

var t0 = time.Date(2025, 3, 31, 9, 0, 0, 0, time.UTC)

func event(id string, typ model.EventType, session, rbt, client string, at time.Time) model.ScheduleEvent {
	return model.ScheduleEvent{
		ID: id, Type: typ, SessionID: session, RBTID: rbt, ClientID: client,
		NewValues: map[string]any{"status": "scheduled"},
		CreatedBy: "coordinator", CreatedAt: at,
	}
}

func backends(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	jsonl, err := NewJSONLStore(filepath.Join(dir, "audit.jsonl"))
	require.NoError(t, err)
	rot, err := NewRotatingJSONLStore(filepath.Join(dir, "rot", "audit.jsonl"), RotatingOptions{MaxSizeMB: 1})
	require.NoError(t, err)
	sq, err := NewSQLiteStore(filepath.Join(dir, "audit.db"))
	require.NoError(t, err)
	stores := map[string]Store{"memory": NewMemoryStore(), "jsonl": jsonl, "rotating": rot, "sqlite": sq}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			// appended out of order on purpose
			require.NoError(t, s.Append(ctx, event("e3", model.EventSessionCancelled, "s1", "a", "c1", t0.Add(2*time.Hour))))
			require.NoError(t, s.Append(ctx, event("e1", model.EventSessionCreated, "s1", "a", "c1", t0)))
			require.NoError(t, s.Append(ctx, event("e2", model.EventTeamCreated, "", "", "c1", t0.Add(time.Hour))))
			require.NoError(t, s.Append(ctx, event("e4", model.EventRBTUnavailable, "", "b", "", t0.Add(3*time.Hour))))

			all, err := s.Query(ctx, Query{})
			require.NoError(t, err)
			assert.Equal(t, []string{"e1", "e2", "e3", "e4"}, ids(all))
			assert.Equal(t, "scheduled", all[0].NewValues["status"])
			assert.True(t, all[0].CreatedAt.Equal(t0))

			bySession, _ := s.Query(ctx, Query{SessionID: "s1"})
			assert.Equal(t, []string{"e1", "e3"}, ids(bySession))
			byClient, _ := s.Query(ctx, Query{ClientID: "c1"})
			assert.Equal(t, []string{"e1", "e2", "e3"}, ids(byClient))
			byRBT, _ := s.Query(ctx, Query{RBTID: "b"})
			assert.Equal(t, []string{"e4"}, ids(byRBT))
			byType, _ := s.Query(ctx, Query{Types: []model.EventType{model.EventSessionCreated, model.EventSessionCancelled}})
			assert.Equal(t, []string{"e1", "e3"}, ids(byType))
			window, _ := s.Query(ctx, Query{Start: t0.Add(time.Hour), End: t0.Add(3 * time.Hour)})
			assert.Equal(t, []string{"e2", "e3"}, ids(window))
			limited, _ := s.Query(ctx, Query{Limit: 2})
			assert.Equal(t, []string{"e1", "e2"}, ids(limited))

			err = s.Append(ctx, event("e1", model.EventSessionCreated, "s9", "", "", t0))
			assert.ErrorIs(t, err, ErrDuplicate)
		})
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	ev := event("e1", model.EventSessionCreated, "s1", "a", "c1", t0)
	require.NoError(t, s.Append(ctx, ev))
	ev.NewValues["status"] = "tampered"

	got, _ := s.Query(ctx, Query{})
	got[0].NewValues["status"] = "tampered again"
	again, _ := s.Query(ctx, Query{})
	assert.Equal(t, "scheduled", again[0].NewValues["status"])
}

func TestSQLiteRejectsMutation(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	require.NoError(t, s.Append(ctx, event("e1", model.EventSessionCreated, "s1", "a", "c1", t0)))

	for i := 0; i < 3; i++ {
		_, err = s.db.ExecContext(ctx, `UPDATE schedule_events SET type = 'team_ended' WHERE id = 'e1'`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "immutable")
		_, err = s.db.ExecContext(ctx, `DELETE FROM schedule_events WHERE id = 'e1'`)
		require.Error(t, err)
	}
	out, _ := s.Query(ctx, Query{})
	require.Len(t, out, 1)
	assert.Equal(t, model.EventSessionCreated, out[0].Type)
}

func TestJSONLStoreReopenKeepsHistory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	s, err := NewJSONLStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, event("e1", model.EventSessionCreated, "s1", "a", "c1", t0)))

	reopened, err := NewJSONLStore(path)
	require.NoError(t, err)
	assert.ErrorIs(t, reopened.Append(ctx, event("e1", model.EventSessionCreated, "s1", "a", "c1", t0)), ErrDuplicate)
	out, _ := reopened.Query(ctx, Query{})
	assert.Len(t, out, 1)
}

func TestRotatingStoreQueriesBackups(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")
	s, err := NewRotatingJSONLStore(path, RotatingOptions{MaxSizeMB: 1})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	pad := strings.Repeat("x", 500)
	const n = 2200
	for i := 0; i < n; i++ {
		ev := event(fmt.Sprintf("e%05d", i), model.EventSessionCreated, "s1", "a", "c1", t0.Add(time.Duration(i)*time.Second))
		ev.Reason = pad
		require.NoError(t, s.Append(ctx, ev))
	}
	files, _ := filepath.Glob(filepath.Join(dir, "audit*.jsonl"))
	assert.Greater(t, len(files), 1, "expected a rotated backup")

	out, err := s.Query(ctx, Query{SessionID: "s1"})
	require.NoError(t, err)
	assert.Len(t, out, n)
	assert.Equal(t, "e00000", out[0].ID)
}

func TestJSONLStoresSurfaceCorruptLines(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	jsonl, err := NewJSONLStore(filepath.Join(dir, "audit.jsonl"))
	require.NoError(t, err)
	rot, err := NewRotatingJSONLStore(filepath.Join(dir, "rot", "audit.jsonl"), RotatingOptions{MaxSizeMB: 1})
	require.NoError(t, err)
	defer func() { _ = rot.Close() }()

	for name, tc := range map[string]struct {
		s    Store
		path string
	}{
		"jsonl":    {jsonl, filepath.Join(dir, "audit.jsonl")},
		"rotating": {rot, filepath.Join(dir, "rot", "audit.jsonl")},
	} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, tc.s.Append(ctx, event("e1", model.EventSessionCreated, "s1", "a", "c1", t0)))
			f, err := os.OpenFile(tc.path, os.O_APPEND|os.O_WRONLY, 0o644)
			require.NoError(t, err)
			_, err = f.WriteString(`{"id":"e2","type":"session_cancelled","session_id":"s1","created_at":"garbage"}` + "\n")
			require.NoError(t, err)
			require.NoError(t, f.Close())

			out, err := tc.s.Query(ctx, Query{SessionID: "s1"})
			require.ErrorIs(t, err, ErrCorrupt)
			assert.Contains(t, err.Error(), "line 2")
			assert.Nil(t, out)
		})
	}
}

func TestJSONLStoreSkipsBlankLines(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	s, err := NewJSONLStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, event("e1", model.EventSessionCreated, "s1", "a", "c1", t0)))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("\n  \n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	out, err := s.Query(ctx, Query{})
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestNewFromConfig(t *testing.T) {
	dir := t.TempDir()
	s, err := New(factory.ModuleConfig{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = New(factory.ModuleConfig{Type: "rotating", Conf: map[string]any{
		"path": filepath.Join(dir, "a.jsonl"), "max_size_mb": 5, "max_backups": 3,
	}})
	require.NoError(t, err)
	rot := s.(*RotatingJSONLStore)
	assert.Equal(t, 5, rot.writer.MaxSize)
	assert.Equal(t, 3, rot.writer.MaxBackups)

	_, err = New(factory.ModuleConfig{Type: "sqlite"})
	assert.ErrorContains(t, err, "path is required")
	_, err = New(factory.ModuleConfig{Type: "kafka"})
	assert.Error(t, err)
}

func ids(events []model.ScheduleEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}
