package ranking

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/rbtsched/core/candidates"
	"github.com/kilianp07/rbtsched/core/clock"
	"github.com/kilianp07/rbtsched/core/continuity"
	"github.com/kilianp07/rbtsched/core/model"
)

var (
	now    = time.Date(2025, 3, 28, 8, 0, 0, 0, time.UTC) // Friday
	monday = time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
)

func at(offset, hour int) time.Time {
	return monday.AddDate(0, 0, offset).Add(time.Duration(hour) * time.Hour)
}

func refSession() model.Session {
	return model.Session{ID: "ref", ClientID: "c1", RBTID: "a", Start: at(0, 10), End: at(0, 13), Status: model.StatusScheduled}
}

func completedWeekly(rbt string, n int, last time.Time) []model.Session {
	out := make([]model.Session, n)
	for i := range out {
		start := last.AddDate(0, 0, -7*i)
		out[i] = model.Session{ID: rbt + string(rune('0'+i)), ClientID: "c1", RBTID: rbt, Start: start, End: start.Add(model.SessionDuration), Status: model.StatusCompleted}
	}
	return out
}

func cand(rbt string, offset, hour int) candidates.Candidate {
	return candidates.Candidate{RBTID: rbt, Start: at(offset, hour), End: at(offset, hour+3), DayOffset: offset, Tag: candidates.TagForOffset(offset)}
}

func newEvaluator() *Evaluator {
	c := clock.NewManual(now)
	return NewEvaluator(continuity.NewScorer(c), time.UTC, c, Config{Workers: 3})
}

func TestImpactScore(t *testing.T) {
	ref := refSession()
	score, hours, days := ImpactScore(time.UTC, ref, "b", at(1, 12))
	assert.InDelta(t, 72.0, score, 1e-9) // 100 - 2h*5 - 1d*3 - 15
	assert.InDelta(t, 2.0, hours, 1e-9)
	assert.Equal(t, 1, days)

	score, _, _ = ImpactScore(time.UTC, ref, "a", at(0, 9))
	assert.InDelta(t, 95.0, score, 1e-9)

	score, _, days = ImpactScore(time.UTC, ref, "b", at(30, 16))
	assert.Zero(t, score)
	assert.Equal(t, 30, days)
}

func TestFeasibilityScore(t *testing.T) {
	prefTimes := []time.Duration{10 * time.Hour}
	assert.InDelta(t, 100.0, FeasibilityScore(time.UTC, now, "b", at(0, 13), nil, nil), 1e-9)
	assert.InDelta(t, 75.0, FeasibilityScore(time.UTC, now, "b", at(0, 13), prefTimes, []string{"a"}), 1e-9)
	assert.InDelta(t, 100.0, FeasibilityScore(time.UTC, now, "a", at(0, 10), prefTimes, []string{"a"}), 1e-9)

	short := at(0, 8)
	assert.InDelta(t, 80.0, FeasibilityScore(time.UTC, short, "a", at(0, 13), nil, nil), 1e-9)
	assert.InDelta(t, 95.0, FeasibilityScore(time.UTC, now, "a", at(10, 13), nil, nil), 1e-9)
}

func TestRankTieBreakPrefersEarlierStart(t *testing.T) {
	opts := []Option{
		{RBTID: "a", Start: at(1, 10), OptimizationScore: 83},
		{RBTID: "b", Start: at(0, 10), OptimizationScore: 80},
		{RBTID: "c", Start: at(2, 10), OptimizationScore: 90},
	}
	ranked := Rank(opts, false, 0)
	require.Len(t, ranked, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{ranked[0].RBTID, ranked[1].RBTID, ranked[2].RBTID})
	assert.Equal(t, []int{1, 2, 3}, []int{ranked[0].Rank, ranked[1].Rank, ranked[2].Rank})
	assert.Zero(t, opts[0].Rank, "input is not modified")
}

func TestRankPrioritizeContinuityBubblesSameRBT(t *testing.T) {
	opts := []Option{
		{RBTID: "b", Start: at(0, 10), OptimizationScore: 95},
		{RBTID: "a", Start: at(1, 10), OptimizationScore: 70, SameRBT: true},
		{RBTID: "c", Start: at(2, 10), OptimizationScore: 60},
	}
	assert.Equal(t, "b", Rank(opts, false, 0)[0].RBTID)

	ranked := Rank(opts, true, 2)
	require.Len(t, ranked, 2)
	assert.Equal(t, "a", ranked[0].RBTID)
	assert.Equal(t, "b", ranked[1].RBTID)
}

func TestRankDeterministic(t *testing.T) {
	var opts []Option
	for i := 0; i < 30; i++ {
		opts = append(opts, Option{
			RBTID:             string(rune('a' + i%4)),
			Start:             at(i%5, 9+i%8),
			OptimizationScore: float64(50 + (i*37)%45),
			SameRBT:           i%4 == 0,
		})
	}
	want := Rank(opts, true, 0)
	rnd := rand.New(rand.NewSource(3))
	for i := 0; i < 20; i++ {
		shuffled := append([]Option(nil), opts...)
		rnd.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		assert.Equal(t, want, Rank(shuffled, true, 0))
	}
}

func TestEvaluateScoresCandidates(t *testing.T) {
	e := newEvaluator()
	history := completedWeekly("a", 8, now.AddDate(0, 0, -3))
	opts, partial := e.Evaluate(context.Background(), refSession(), []candidates.Candidate{cand("a", 1, 10), cand("b", 1, 10)}, history, candidates.Preferences{})
	require.False(t, partial)
	require.Len(t, opts, 2)

	a, b := opts[0], opts[1]
	assert.True(t, a.SameRBT)
	assert.Positive(t, a.ContinuityScore)
	assert.Zero(t, b.ContinuityScore)
	assert.InDelta(t, 97.0, a.ImpactScore, 1e-9)
	assert.InDelta(t, 82.0, b.ImpactScore, 1e-9)
	assert.InDelta(t, DefaultWeights.Combine(a.ContinuityScore, a.ImpactScore, a.FeasibilityScore), a.OptimizationScore, 1e-9)
	assert.Contains(t, a.Justification, "same RBT retained")
	assert.Contains(t, b.Justification, "no completed sessions")
	assert.Equal(t, []string{"client:c1", "rbt:a"}, a.RequiredNotifications)
	assert.Equal(t, []string{"client:c1", "rbt:a", "rbt:b"}, b.RequiredNotifications)
}

func TestPrioritizeContinuityNeverLowersTopContinuity(t *testing.T) {
	e := newEvaluator()
	history := append(completedWeekly("b", 8, now.AddDate(0, 0, -3)), completedWeekly("c", 1, now.AddDate(0, 0, -40))...)
	ref := refSession()
	ref.RBTID = "gone"
	cands := []candidates.Candidate{cand("c", 1, 10), cand("b", 1, 10), cand("c", 2, 10), cand("b", 2, 10)}

	top := func(prioritize bool) Option {
		prefs := candidates.Preferences{PrioritizeContinuity: prioritize, AllowDifferentRBT: true}
		opts, _ := e.Evaluate(context.Background(), ref, cands, history, prefs)
		return Rank(opts, prioritize, 0)[0]
	}
	plain, prioritized := top(false), top(true)
	assert.GreaterOrEqual(t, prioritized.ContinuityScore, plain.ContinuityScore)
	assert.Equal(t, "b", prioritized.RBTID)
}

func TestEvaluateHonoursCancelledContext(t *testing.T) {
	e := newEvaluator()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opts, partial := e.Evaluate(ctx, refSession(), []candidates.Candidate{cand("a", 1, 10)}, nil, candidates.Preferences{})
	assert.True(t, partial)
	assert.Empty(t, opts)
}

func TestComputeMetrics(t *testing.T) {
	gen := candidates.Result{Generated: 10, Checked: 8, Candidates: make([]candidates.Candidate, 6)}
	top := []Option{
		{SameRBT: true, TimeDeviationHours: 1, DateDeviationDays: 0},
		{SameRBT: false, TimeDeviationHours: 3, DateDeviationDays: 2},
	}
	m := ComputeMetrics(gen, 6, top, false)
	assert.Equal(t, 6, m.TotalCandidatesEvaluated)
	assert.InDelta(t, 0.5, m.ContinuityPreservationRate, 1e-9)
	assert.InDelta(t, 2.0, m.AverageTimeDeviationHours, 1e-9)
	assert.InDelta(t, 1.0, m.AverageDateDeviationDays, 1e-9)
	assert.InDelta(t, 0.75, m.ConflictFreeRate, 1e-9)
	assert.False(t, m.Partial)

	assert.True(t, ComputeMetrics(candidates.Result{Partial: true}, 0, nil, false).Partial)
}

func TestWeightsValidate(t *testing.T) {
	assert.NoError(t, DefaultWeights.Validate())
	assert.NoError(t, ContinuityWeights.Validate())
	assert.Error(t, Weights{Continuity: 0.5, Impact: 0.5, Feasibility: 0.5}.Validate())
	assert.Error(t, Weights{Continuity: -0.2, Impact: 1, Feasibility: 0.2}.Validate())

	var cfg Config
	cfg.SetDefaults()
	assert.Equal(t, DefaultWeights, cfg.Weights)
	assert.Equal(t, DefaultMaxOptions, cfg.MaxOptions)
	assert.NoError(t, cfg.Validate())
}
