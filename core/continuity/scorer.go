// Package continuity scores how consistently an RBT has served a client and
// uses that score to pick providers.
//
// A score is the capped sum of four components derived from completed
// sessions only:
//
//	history      min(total*2, 40)
//	recent       min(last30days*5, 25)
//	recency      20/15/10/5/0 for <=7/14/30/60/older days since the last session
//	consistency  min(max(0, 10-|avgInterval-7|) + max(0, 5-stdDev), 15), needs 3 sessions
package continuity

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/rbtsched/core/clock"
	"github.com/kilianp07/rbtsched/core/model"
)

const (
	MaxScore = 100.0

	HistoryPerSession = 2.0
	HistoryCap        = 40.0

	RecentWindow     = 30 * 24 * time.Hour
	RecentPerSession = 5.0
	RecentCap        = 25.0

	ConsistencyMinSessions = 3
	// IdealIntervalDays is the weekly cadence the consistency component rewards.
	IdealIntervalDays = 7.0
	IntervalScoreMax  = 10.0
	StdDevScoreMax    = 5.0
	ConsistencyCap    = 15.0
)

// recencyTiers maps the maximum number of days since the last session to its
// score. Evaluated in order.
var recencyTiers = []struct {
	maxDays int
	score   float64
}{
	{7, 20}, {14, 15}, {30, 10}, {60, 5},
}

// Scorer computes continuity scores relative to an injected clock. It is
// stateless and safe for concurrent use.
type Scorer struct {
	clock clock.Clock
}

// NewScorer returns a Scorer. A nil clock uses wall time.
func NewScorer(c clock.Clock) *Scorer {
	return &Scorer{clock: clock.OrSystem(c)}
}

// Score derives the continuity score for the pair from history. Sessions
// belonging to other pairs or not completed are ignored.
func (s *Scorer) Score(rbtID, clientID string, history []model.Session) model.ContinuityScore {
	res := model.ContinuityScore{RBTID: rbtID, ClientID: clientID}
	done := completed(rbtID, clientID, history)
	if len(done) == 0 {
		return res
	}
	now := s.clock.Now()
	last := done[len(done)-1].Start
	res.TotalSessions = len(done)
	res.LastSessionDate = &last
	for _, ss := range done {
		if !ss.Start.Before(now.Add(-RecentWindow)) {
			res.RecentSessions++
		}
	}

	b := model.Breakdown{
		History:        math.Min(float64(res.TotalSessions)*HistoryPerSession, HistoryCap),
		RecentActivity: math.Min(float64(res.RecentSessions)*RecentPerSession, RecentCap),
		Recency:        recencyScore(daysBetween(last, now)),
		Consistency:    consistencyScore(done),
	}
	res.Breakdown = b
	res.Score = math.Min(b.History+b.RecentActivity+b.Recency+b.Consistency, MaxScore)
	return res
}

// completed filters history to the pair's completed sessions in start order.
func completed(rbtID, clientID string, history []model.Session) []model.Session {
	var out []model.Session
	for _, ss := range history {
		if ss.Status == model.StatusCompleted && ss.RBTID == rbtID && ss.ClientID == clientID {
			out = append(out, ss)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func recencyScore(days int) float64 {
	for _, tier := range recencyTiers {
		if days <= tier.maxDays {
			return tier.score
		}
	}
	return 0
}

func consistencyScore(done []model.Session) float64 {
	if len(done) < ConsistencyMinSessions {
		return 0
	}
	intervals := make([]float64, 0, len(done)-1)
	for i := 1; i < len(done); i++ {
		intervals = append(intervals, done[i].Start.Sub(done[i-1].Start).Hours()/24)
	}
	avg, std := stat.PopMeanStdDev(intervals, nil)
	interval := math.Max(0, IntervalScoreMax-math.Abs(avg-IdealIntervalDays))
	spread := math.Max(0, StdDevScoreMax-std)
	return math.Min(interval+spread, ConsistencyCap)
}

// daysBetween returns the number of whole days from a to b.
func daysBetween(a, b time.Time) int {
	return int(math.Floor(b.Sub(a).Hours() / 24))
}
