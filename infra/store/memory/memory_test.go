package memory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/rbtsched/core/model"
	"github.com/kilianp07/rbtsched/core/store"
)

var base = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

func session(id, client, rbt string, start time.Time, st model.SessionStatus) model.Session {
	return model.Session{ID: id, ClientID: client, RBTID: rbt, Start: start, End: start.Add(model.SessionDuration), Status: st}
}

func TestSessionStoreQueries(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore(
		session("s1", "c1", "a", base, model.StatusScheduled),
		session("s2", "c2", "a", base.Add(time.Hour), model.StatusCancelled),
		session("s3", "c1", "b", base.AddDate(0, 0, 1), model.StatusConfirmed),
	)

	got, err := s.FindByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ClientID)
	_, err = s.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	byClient, _ := s.FindByClientID(ctx, "c1")
	assert.Len(t, byClient, 2)
	byRBT, _ := s.FindByRBTID(ctx, "a")
	assert.Len(t, byRBT, 2)

	active, _ := s.FindActiveByDateRange(ctx, base, base.Add(24*time.Hour))
	require.Len(t, active, 1)
	assert.Equal(t, "s1", active[0].ID)
}

func TestSessionStoreCheckConflicts(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore(
		session("s1", "c1", "a", base, model.StatusScheduled),
		session("s2", "c2", "b", base, model.StatusCancelled),
	)
	found, _ := s.CheckConflicts(ctx, "c9", "a", base.Add(2*time.Hour), base.Add(5*time.Hour), "")
	assert.Len(t, found, 1)
	found, _ = s.CheckConflicts(ctx, "c9", "a", base.Add(2*time.Hour), base.Add(5*time.Hour), "s1")
	assert.Empty(t, found)
	found, _ = s.CheckConflicts(ctx, "c2", "b", base, base.Add(3*time.Hour), "")
	assert.Empty(t, found, "cancelled sessions never conflict")
	found, _ = s.CheckConflicts(ctx, "c1", "z", base.Add(3*time.Hour), base.Add(6*time.Hour), "")
	assert.Empty(t, found, "back-to-back sessions do not conflict")
}

func TestSessionStoreUpdateMissing(t *testing.T) {
	s := NewSessionStore()
	assert.ErrorIs(t, s.Update(context.Background(), model.Session{ID: "x"}), store.ErrNotFound)
}

func TestTeamStoreActiveRoster(t *testing.T) {
	ctx := context.Background()
	old := model.Team{ID: "t1", ClientID: "c1", RBTIDs: []string{"a"}, PrimaryRBTID: "a", Active: true, EffectiveDate: base.AddDate(-1, 0, 0)}
	cur := model.Team{ID: "t2", ClientID: "c1", RBTIDs: []string{"a", "b"}, PrimaryRBTID: "b", Active: true, EffectiveDate: base}
	ended := model.Team{ID: "t3", ClientID: "c1", RBTIDs: []string{"z"}, PrimaryRBTID: "z", EffectiveDate: base.AddDate(1, 0, 0)}
	s := NewTeamStore(old, cur, ended)

	team, err := s.FindActiveByClientID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "t2", team.ID)

	team.RBTIDs[0] = "mutated"
	again, _ := s.FindActiveByClientID(ctx, "c1")
	assert.Equal(t, "a", again.RBTIDs[0])

	_, err = s.FindActiveByClientID(ctx, "c2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProviderStore(t *testing.T) {
	s := NewProviderStore(model.Provider{ID: "a", Active: true})
	p, err := s.FindByID(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, p.Active)
	s.Put(model.Provider{ID: "a"})
	p, _ = s.FindByID(context.Background(), "a")
	assert.False(t, p.Active)
}

const seedYAML = `
providers:
  - id: rbt-a
    name: Alex
    active: true
teams:
  - id: team-1
    client_id: client-1
    rbt_ids: [rbt-a]
    primary_rbt_id: rbt-a
    active: true
sessions:
  - id: s-1
    client_id: client-1
    rbt_id: rbt-a
    start: 2025-03-03T09:00:00Z
    status: completed
`

func TestDecodeSeed(t *testing.T) {
	seed, err := DecodeSeed(strings.NewReader(seedYAML), "yaml")
	require.NoError(t, err)
	repos := seed.Repositories()
	ss, err := repos.Sessions.FindByID(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, ss.Start.Add(model.SessionDuration), ss.End)
	team, err := repos.Teams.FindActiveByClientID(context.Background(), "client-1")
	require.NoError(t, err)
	assert.Equal(t, "rbt-a", team.PrimaryRBTID)
}

func TestDecodeSeedErrors(t *testing.T) {
	_, err := DecodeSeed(strings.NewReader("{}"), "toml")
	assert.Error(t, err)
	_, err = DecodeSeed(strings.NewReader(`{"sessions":[{"id":"s","client_id":"c","rbt_id":"r","status":"lost"}]}`), "json")
	assert.Error(t, err)
	_, err = DecodeSeed(strings.NewReader(`{"teams":[{"id":"t","rbt_ids":["a"],"primary_rbt_id":"b","active":true}]}`), "json")
	assert.ErrorIs(t, err, model.ErrPrimaryNotMember)
}
