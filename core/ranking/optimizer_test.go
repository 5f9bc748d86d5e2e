package ranking

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/rbtsched/core/candidates"
	"github.com/kilianp07/rbtsched/core/clock"
	"github.com/kilianp07/rbtsched/core/conflict"
	"github.com/kilianp07/rbtsched/core/constraints"
	"github.com/kilianp07/rbtsched/core/continuity"
	"github.com/kilianp07/rbtsched/core/metrics"
	"github.com/kilianp07/rbtsched/core/model"
	"github.com/kilianp07/rbtsched/core/store"
	"github.com/kilianp07/rbtsched/infra/store/memory"
)

type recordingSink struct {
	events []metrics.OptimizationEvent
}

func (r *recordingSink) RecordOptimization(ev metrics.OptimizationEvent) error {
	r.events = append(r.events, ev)
	return nil
}

type harness struct {
	clock    *clock.Manual
	sessions *memory.SessionStore
	sink     *recordingSink
	opt      *Optimizer
}

// newHarness seeds client c1 with eight weekly completed sessions with a,
// the latest three days ago, one with b, and an upcoming session with a.
func newHarness(t *testing.T, sessions store.SessionRepository) harness {
	t.Helper()
	ResetMetrics(nil)
	t.Cleanup(func() { ResetMetrics(nil) })

	history := append(completedWeekly("a", 8, now.AddDate(0, 0, -3)), completedWeekly("b", 1, now.AddDate(0, 0, -20))...)
	mem := memory.NewSessionStore(append(history, refSession())...)
	if sessions == nil {
		sessions = mem
	}
	h := harness{clock: clock.NewManual(now), sessions: mem, sink: &recordingSink{}}
	v := constraints.MustValidator(constraints.Config{})
	teams := memory.NewTeamStore(model.Team{ID: "t1", ClientID: "c1", RBTIDs: []string{"a", "b"}, PrimaryRBTID: "a", Active: true})
	providers := memory.NewProviderStore(model.Provider{ID: "a", Active: true}, model.Provider{ID: "b", Active: true})
	gen := candidates.NewGenerator(v, conflict.NewDetector(sessions), teams, providers, h.clock, nil, candidates.Config{})
	eval := NewEvaluator(continuity.NewScorer(h.clock), v.Location(), h.clock, Config{})
	h.opt = NewOptimizer(sessions, gen, eval, v, h.clock, nil, h.sink)
	return h
}

func TestFindOptionsKeepsOriginalRBTWhenNotAllowedToChange(t *testing.T) {
	h := newHarness(t, nil)
	res, err := h.opt.FindReschedulingOptions(context.Background(), Request{SessionID: "ref", Reason: "family event"})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Len(t, res.Options, DefaultMaxOptions)
	for i, o := range res.Options {
		assert.Equal(t, "a", o.RBTID)
		assert.Equal(t, i+1, o.Rank)
	}
	assert.InDelta(t, 1.0, res.Metrics.ContinuityPreservationRate, 1e-9)
	assert.Greater(t, res.Metrics.TotalCandidatesEvaluated, DefaultMaxOptions)
	assert.False(t, res.Metrics.Partial)

	require.Len(t, h.sink.events, 1)
	assert.Equal(t, metrics.OutcomeSuccess, h.sink.events[0].Outcome)
	assert.Equal(t, 1.0, testutil.ToFloat64(optimizationRuns.WithLabelValues(metrics.OutcomeSuccess)))
}

func TestFindOptionsPrioritizeContinuityLeadsWithOriginal(t *testing.T) {
	h := newHarness(t, nil)
	res, err := h.opt.FindReschedulingOptions(context.Background(), Request{
		SessionID:   "ref",
		Preferences: candidates.Preferences{AllowDifferentRBT: true, PrioritizeContinuity: true, MaxDaysFromOriginal: 3},
		Constraints: Constraints{MaxOptions: 50},
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "a", res.Options[0].RBTID)

	seenOther := false
	for _, o := range res.Options {
		if o.RBTID != "a" {
			seenOther = true
			continue
		}
		assert.False(t, seenOther, "same-RBT options come first")
	}
	assert.True(t, seenOther)
}

func TestFindOptionsInsufficientNotice(t *testing.T) {
	h := newHarness(t, nil)
	h.clock.Set(refSession().Start.Add(-10 * time.Minute))
	notice := 24.0
	res, err := h.opt.FindReschedulingOptions(context.Background(), Request{
		SessionID:   "ref",
		Constraints: Constraints{MinNoticeHours: &notice},
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Empty(t, res.Options)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, constraints.RuleNotice, res.Violations[0].Rule)
	assert.Contains(t, res.Violations[0].Message, "insufficient notice")
	assert.Equal(t, 1.0, testutil.ToFloat64(optimizationRuns.WithLabelValues(metrics.OutcomeRejected)))
}

func TestFindOptionsBusinessRuleFailures(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	res, err := h.opt.FindReschedulingOptions(ctx, Request{SessionID: "missing"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, constraints.RuleNotFound, res.Violations[0].Rule)

	done := refSession()
	done.Status = model.StatusCompleted
	require.NoError(t, h.sessions.Update(ctx, done))
	res, err = h.opt.FindReschedulingOptions(ctx, Request{SessionID: "ref"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, constraints.RuleStatus, res.Violations[0].Rule)
}

func TestFindOptionsValidation(t *testing.T) {
	h := newHarness(t, nil)
	neg := -1.0
	_, err := h.opt.FindReschedulingOptions(context.Background(), Request{
		Preferences: candidates.Preferences{MaxDaysFromOriginal: 90, PreferredTimes: []string{"noon"}},
		Constraints: Constraints{MinNoticeHours: &neg},
	})
	var verr *constraints.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Violations, 4)
}

type brokenSessions struct {
	store.SessionRepository
}

func (brokenSessions) FindByID(context.Context, string) (model.Session, error) {
	return model.Session{}, errors.New("connection refused")
}

func TestFindOptionsRepositoryFailure(t *testing.T) {
	h := newHarness(t, brokenSessions{})
	_, err := h.opt.FindReschedulingOptions(context.Background(), Request{SessionID: "ref"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, metrics.OutcomeError, h.sink.events[0].Outcome)
}

func TestFindOptionsDeadlineReturnsPartial(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := h.opt.FindReschedulingOptions(ctx, Request{SessionID: "ref"})
	require.NoError(t, err)
	assert.True(t, res.Metrics.Partial)
	assert.False(t, res.Success)
}

// deadlineSessions cancels the search context once the conflict check has
// run limit times.
type deadlineSessions struct {
	store.SessionRepository
	limit  int64
	calls  atomic.Int64
	cancel context.CancelFunc
}

func (d *deadlineSessions) CheckConflicts(ctx context.Context, clientID, rbtID string, start, end time.Time, excludeID string) ([]model.Session, error) {
	if d.calls.Add(1) == d.limit {
		d.cancel()
	}
	return d.SessionRepository.CheckConflicts(ctx, clientID, rbtID, start, end, excludeID)
}

func TestFindOptionsDeadlineMidSearchKeepsCheckedSlots(t *testing.T) {
	ds := &deadlineSessions{limit: 30}
	h := newHarness(t, ds)
	ds.SessionRepository = h.sessions
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ds.cancel = cancel

	res, err := h.opt.FindReschedulingOptions(ctx, Request{SessionID: "ref"})
	require.NoError(t, err)
	assert.True(t, res.Metrics.Partial)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.Options)
	assert.Positive(t, res.Metrics.TotalCandidatesEvaluated)
	assert.GreaterOrEqual(t, ds.calls.Load(), int64(30))
}

func TestMetricsRegisterOnCustomRegistry(t *testing.T) {
	ResetMetrics(nil)
	t.Cleanup(func() { ResetMetrics(nil) })
	reg := prometheus.NewRegistry()
	MustRegisterMetrics(reg)
	optimizationRuns.WithLabelValues(metrics.OutcomeSuccess).Inc()
	n, err := testutil.GatherAndCount(reg, "rescheduling_optimizations_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
