package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/rbtsched/core/model"
	"github.com/kilianp07/rbtsched/core/store"
	"github.com/kilianp07/rbtsched/infra/store/memory"
)

var monday = time.Date(2025, 3, 31, 10, 0, 0, 0, time.UTC)

func session(id, client, rbt string, start time.Time, status model.SessionStatus) model.Session {
	return model.Session{ID: id, ClientID: client, RBTID: rbt, Start: start, End: start.Add(model.SessionDuration), Status: status}
}

func openDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "sched.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSessionStore(t *testing.T) {
	ctx := context.Background()
	repos := openDB(t).Repositories()
	s := repos.Sessions

	s1 := session("s1", "c1", "a", monday, model.StatusScheduled)
	s1.Location = "home"
	s1.CreatedAt = monday.Add(-48 * time.Hour)
	require.NoError(t, s.Create(ctx, s1))
	require.NoError(t, s.Create(ctx, session("s2", "c2", "a", monday.Add(2*time.Hour), model.StatusScheduled)))
	require.NoError(t, s.Create(ctx, session("s3", "c1", "b", monday.Add(24*time.Hour), model.StatusCancelled)))
	assert.ErrorIs(t, s.Create(ctx, s1), ErrDuplicate)

	got, err := s.FindByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, s1, got)
	_, err = s.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	byClient, err := s.FindByClientID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s3"}, ids(byClient))

	byRBT, err := s.FindByRBTID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, ids(byRBT))

	active, err := s.FindActiveByDateRange(ctx, monday, monday.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, ids(active), "cancelled sessions release their slot")

	conflicts, err := s.CheckConflicts(ctx, "c3", "a", monday.Add(time.Hour), monday.Add(4*time.Hour), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, ids(conflicts))

	conflicts, err = s.CheckConflicts(ctx, "c3", "a", monday.Add(time.Hour), monday.Add(4*time.Hour), "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, ids(conflicts))

	// touching windows do not overlap
	conflicts, err = s.CheckConflicts(ctx, "c1", "z", monday.Add(3*time.Hour), monday.Add(6*time.Hour), "")
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	s1.Status = model.StatusCancelled
	s1.CancellationReason = "sick"
	require.NoError(t, s.Update(ctx, s1))
	got, err = s.FindByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)
	assert.Equal(t, "sick", got.CancellationReason)

	assert.ErrorIs(t, s.Update(ctx, session("nope", "c1", "a", monday, model.StatusScheduled)), store.ErrNotFound)
}

func TestTeamStore(t *testing.T) {
	ctx := context.Background()
	teams := openDB(t).Repositories().Teams

	_, err := teams.FindActiveByClientID(ctx, "c1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	old := model.Team{ID: "t1", ClientID: "c1", RBTIDs: []string{"a"}, PrimaryRBTID: "a", EffectiveDate: monday.AddDate(0, -2, 0), Active: true}
	cur := model.Team{ID: "t2", ClientID: "c1", RBTIDs: []string{"a", "b"}, PrimaryRBTID: "b", EffectiveDate: monday.AddDate(0, -1, 0), Active: true}
	require.NoError(t, teams.Create(ctx, old))
	require.NoError(t, teams.Create(ctx, cur))
	assert.ErrorIs(t, teams.Create(ctx, cur), ErrDuplicate)

	got, err := teams.FindActiveByClientID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, cur, got)

	end := monday
	cur.Active = false
	cur.EndDate = &end
	require.NoError(t, teams.Update(ctx, cur))
	got, err = teams.FindActiveByClientID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.ID)

	assert.ErrorIs(t, teams.Update(ctx, model.Team{ID: "t9"}), store.ErrNotFound)
}

func TestImportSeed(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	seed := memory.Seed{
		Providers: []model.Provider{{ID: "a", Name: "Alex", Active: true}, {ID: "d", Name: "Dana"}},
		Teams:     []model.Team{{ID: "t1", ClientID: "c1", RBTIDs: []string{"a"}, PrimaryRBTID: "a", EffectiveDate: monday, Active: true}},
		Sessions:  []model.Session{{ID: "s1", ClientID: "c1", RBTID: "a", Start: monday, Status: model.StatusScheduled}},
	}
	require.NoError(t, db.Import(ctx, seed))
	require.NoError(t, db.Import(ctx, seed), "import is idempotent")

	repos := db.Repositories()
	p, err := repos.Providers.FindByID(ctx, "d")
	require.NoError(t, err)
	assert.False(t, p.Active)
	_, err = repos.Providers.FindByID(ctx, "x")
	assert.ErrorIs(t, err, store.ErrNotFound)

	s, err := repos.Sessions.FindByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, monday.Add(model.SessionDuration), s.End)
}

func TestOpenInMemory(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	ctx := context.Background()
	require.NoError(t, db.Repositories().Sessions.Create(ctx, session("s1", "c1", "a", monday, model.StatusScheduled)))
	_, err = db.Repositories().Sessions.FindByID(ctx, "s1")
	assert.NoError(t, err)
}

func ids(ss []model.Session) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = s.ID
	}
	return out
}
