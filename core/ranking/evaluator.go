// Package ranking scores candidate slots on continuity, schedule impact and
// feasibility, ranks them and runs the rescheduling search end to end.
package ranking

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/rbtsched/core/candidates"
	"github.com/kilianp07/rbtsched/core/clock"
	"github.com/kilianp07/rbtsched/core/constraints"
	"github.com/kilianp07/rbtsched/core/continuity"
	"github.com/kilianp07/rbtsched/core/model"
)

// Evaluator scores candidates. It is stateless and safe for concurrent use.
type Evaluator struct {
	scorer *continuity.Scorer
	loc    *time.Location
	clock  clock.Clock
	cfg    Config
}

// NewEvaluator builds an evaluator. loc is the business timezone used to
// measure time-of-day and calendar shifts.
func NewEvaluator(scorer *continuity.Scorer, loc *time.Location, c clock.Clock, cfg Config) *Evaluator {
	cfg.SetDefaults()
	if loc == nil {
		loc = time.UTC
	}
	c = clock.OrSystem(c)
	if scorer == nil {
		scorer = continuity.NewScorer(c)
	}
	return &Evaluator{scorer: scorer, loc: loc, clock: c, cfg: cfg}
}

// Config returns the effective configuration.
func (e *Evaluator) Config() Config { return e.cfg }

// Evaluate scores every candidate against ref. Continuity is computed once
// per RBT from history. Scoring stops early when ctx is done; the options
// scored so far are returned with partial set.
func (e *Evaluator) Evaluate(ctx context.Context, ref model.Session, cands []candidates.Candidate, history []model.Session, prefs candidates.Preferences) ([]Option, bool) {
	scores := make(map[string]float64)
	for _, c := range cands {
		if _, ok := scores[c.RBTID]; !ok {
			scores[c.RBTID] = e.scorer.Score(c.RBTID, ref.ClientID, history).Score
		}
	}
	preferredTimes := parseTimes(prefs.PreferredTimes)
	w := e.cfg.weightsFor(prefs.PrioritizeContinuity)
	now := e.clock.Now()

	out := make([]Option, len(cands))
	done := make([]bool, len(cands))
	var partial atomic.Bool

	var eg errgroup.Group
	eg.SetLimit(e.cfg.Workers)
	for i, c := range cands {
		if ctx.Err() != nil {
			partial.Store(true)
			break
		}
		eg.Go(func() error {
			if ctx.Err() != nil {
				partial.Store(true)
				return nil
			}
			out[i] = e.score(now, ref, c, scores[c.RBTID], preferredTimes, prefs, w)
			done[i] = true
			return nil
		})
	}
	_ = eg.Wait()

	scored := make([]Option, 0, len(cands))
	for i := range out {
		if done[i] {
			scored = append(scored, out[i])
		}
	}
	return scored, partial.Load()
}

func (e *Evaluator) score(now time.Time, ref model.Session, c candidates.Candidate, cont float64, preferredTimes []time.Duration, prefs candidates.Preferences, w Weights) Option {
	same := c.RBTID == ref.RBTID
	impact, hours, days := ImpactScore(e.loc, ref, c.RBTID, c.Start)
	feas := FeasibilityScore(e.loc, now, c.RBTID, c.Start, preferredTimes, prefs.PreferredRBTIDs)
	opt := Option{
		RBTID:              c.RBTID,
		Start:              c.Start,
		End:                c.End,
		Tag:                c.Tag,
		ContinuityScore:    cont,
		ImpactScore:        impact,
		FeasibilityScore:   feas,
		OptimizationScore:  w.Combine(cont, impact, feas),
		SameRBT:            same,
		TimeDeviationHours: hours,
		DateDeviationDays:  days,
	}
	opt.Justification = justify(opt)
	opt.RequiredNotifications = notifications(ref, c.RBTID)
	return opt
}

// ImpactScore is 100 minus the time-of-day, date and provider-change
// penalties, floored at 0. It also returns the absolute deviations.
func ImpactScore(loc *time.Location, ref model.Session, rbtID string, start time.Time) (score, hours float64, days int) {
	orig := ref.Start.In(loc)
	cand := start.In(loc)
	hours = math.Abs(timeOfDay(cand).Hours() - timeOfDay(orig).Hours())
	days = calendarDays(orig, cand)
	if days < 0 {
		days = -days
	}
	penalty := hours*ImpactPerHourShift + float64(days)*ImpactPerDayShift
	if rbtID != ref.RBTID {
		penalty += ImpactProviderChanged
	}
	return math.Max(0, 100-penalty), hours, days
}

// FeasibilityScore is 100 minus penalties for missed stated preferences and
// for notice under one day or over one week, floored at 0.
func FeasibilityScore(loc *time.Location, now time.Time, rbtID string, start time.Time, preferredTimes []time.Duration, preferredRBTs []string) float64 {
	penalty := 0.0
	if len(preferredTimes) > 0 && !slices.Contains(preferredTimes, timeOfDay(start.In(loc))) {
		penalty += PenaltyTimeNotPreferred
	}
	if len(preferredRBTs) > 0 && !slices.Contains(preferredRBTs, rbtID) {
		penalty += PenaltyProviderNotPreferred
	}
	notice := start.Sub(now).Hours()
	switch {
	case notice < ShortNoticeHours:
		penalty += PenaltyShortNotice
	case notice > LongNoticeHours:
		penalty += PenaltyLongNotice
	}
	return math.Max(0, 100-penalty)
}

func justify(o Option) string {
	var parts []string
	if o.SameRBT {
		parts = append(parts, "same RBT retained")
	}
	switch {
	case o.ContinuityScore >= 70:
		parts = append(parts, fmt.Sprintf("strong continuity (%.0f)", o.ContinuityScore))
	case o.ContinuityScore >= 40:
		parts = append(parts, fmt.Sprintf("moderate continuity (%.0f)", o.ContinuityScore))
	case o.ContinuityScore > 0:
		parts = append(parts, fmt.Sprintf("limited continuity (%.0f)", o.ContinuityScore))
	default:
		parts = append(parts, "no completed sessions with this RBT")
	}
	switch {
	case o.ImpactScore >= 85:
		parts = append(parts, "minimal schedule disruption")
	case o.ImpactScore >= 60:
		parts = append(parts, "moderate schedule change")
	default:
		parts = append(parts, "significant schedule change")
	}
	switch {
	case o.FeasibilityScore >= 90:
		parts = append(parts, "fits stated preferences")
	case o.FeasibilityScore >= 70:
		parts = append(parts, "acceptable fit")
	default:
		parts = append(parts, "short notice or outside preferences")
	}
	return strings.Join(parts, "; ")
}

func notifications(ref model.Session, rbtID string) []string {
	out := []string{"client:" + ref.ClientID, "rbt:" + ref.RBTID}
	if rbtID != ref.RBTID {
		out = append(out, "rbt:"+rbtID)
	}
	return out
}

// Rank orders options by optimization score, preferring the earlier start
// when two scores are within TieThreshold. With prioritizeContinuity options
// keeping the original RBT move ahead of the rest. Ranks are assigned from 1
// and the list is cut to limit when limit > 0. The input is not modified.
func Rank(opts []Option, prioritizeContinuity bool, limit int) []Option {
	out := append([]Option(nil), opts...)
	// canonical input order so the result never depends on evaluation order
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].RBTID < out[j].RBTID
	})
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if math.Abs(a.OptimizationScore-b.OptimizationScore) < TieThreshold {
			if !a.Start.Equal(b.Start) {
				return a.Start.Before(b.Start)
			}
		}
		return a.OptimizationScore > b.OptimizationScore
	})
	if prioritizeContinuity {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].SameRBT && !out[j].SameRBT
		})
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func timeOfDay(t time.Time) time.Duration {
	return t.Sub(constraints.StartOfDay(t))
}

func calendarDays(a, b time.Time) int {
	da := constraints.StartOfDay(a)
	db := constraints.StartOfDay(b.In(a.Location()))
	return int(math.Round(db.Sub(da).Hours() / 24))
}

func parseTimes(in []string) []time.Duration {
	out := make([]time.Duration, 0, len(in))
	for _, s := range in {
		if d, err := constraints.ParseClock(s); err == nil {
			out = append(out, d)
		}
	}
	return out
}
