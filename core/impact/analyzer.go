// Package impact estimates the operational and continuity cost of moving a
// session. The estimate is advisory: repository failures produce a zeroed,
// degraded report instead of an error.
package impact

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/kilianp07/rbtsched/core/clock"
	"github.com/kilianp07/rbtsched/core/constraints"
	"github.com/kilianp07/rbtsched/core/continuity"
	"github.com/kilianp07/rbtsched/core/logger"
	"github.com/kilianp07/rbtsched/core/metrics"
	"github.com/kilianp07/rbtsched/core/model"
	"github.com/kilianp07/rbtsched/core/monitoring"
	"github.com/kilianp07/rbtsched/core/store"
)

// Heuristic weights. They are coarse estimates kept as policy values.
const (
	// CascadeFactor estimates secondary changes per affected session.
	CascadeFactor         = 0.5
	AffectedWeight        = 10.0
	CascadeWeight         = 15.0
	ProviderChangePenalty = 20.0
	MaxComplexity         = 100.0

	// BaseNotifications covers the client and the original RBT.
	BaseNotifications = 2
	// ProviderChangeNotifications covers the new RBT and the team lead.
	ProviderChangeNotifications = 2

	// WindowPadding widens the affected-session window on both sides.
	WindowPadding = 24 * time.Hour
)

// Report is the estimated disruption of a change.
type Report struct {
	SessionID             string   `json:"session_id"`
	AffectedSessions      int      `json:"affected_sessions"`
	AffectedSessionIDs    []string `json:"affected_session_ids,omitempty"`
	CascadingChanges      int      `json:"cascading_changes"`
	NotificationCount     int      `json:"notification_count"`
	ContinuityDisruption  float64  `json:"continuity_disruption"`
	OperationalComplexity float64  `json:"operational_complexity"`
	ProviderChanged       bool     `json:"provider_changed"`
	Degraded              bool     `json:"degraded,omitempty"`
}

// Analyzer computes impact reports. It is stateless.
type Analyzer struct {
	sessions store.SessionRepository
	scorer   *continuity.Scorer
	clock    clock.Clock
	log      logger.Logger
	sink     metrics.MetricsSink
}

// NewAnalyzer wires an analyzer.
func NewAnalyzer(sessions store.SessionRepository, scorer *continuity.Scorer, c clock.Clock, log logger.Logger, sink metrics.MetricsSink) *Analyzer {
	c = clock.OrSystem(c)
	if scorer == nil {
		scorer = continuity.NewScorer(c)
	}
	return &Analyzer{sessions: sessions, scorer: scorer, clock: c, log: logger.OrNop(log), sink: metrics.OrNop(sink)}
}

// Analyze estimates the impact of moving sessionID to newStart with
// newRBTID, or with the same RBT when newRBTID is empty. It returns an error
// wrapping store.ErrNotFound for an unknown session and a
// *constraints.ValidationError for malformed input.
func (a *Analyzer) Analyze(ctx context.Context, sessionID string, newStart time.Time, newRBTID string) (Report, error) {
	var c constraints.Collector
	c.Require("session_id", sessionID)
	if newStart.IsZero() {
		c.Add(constraints.RuleRequired, "new_start is required")
	}
	if err := c.Err(); err != nil {
		return Report{}, err
	}

	orig, err := a.sessions.FindByID(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return Report{}, fmt.Errorf("session %s: %w", sessionID, err)
	}
	if err != nil {
		return a.degraded(sessionID, "load session", err), nil
	}

	target := newRBTID
	if target == "" {
		target = orig.RBTID
	}
	changed := target != orig.RBTID

	affected, err := a.affected(ctx, orig, newStart, target)
	if err != nil {
		return a.degraded(sessionID, "load affected sessions", err), nil
	}

	rep := Report{
		SessionID:         sessionID,
		AffectedSessions:  len(affected),
		CascadingChanges:  int(math.Floor(float64(len(affected)) * CascadeFactor)),
		NotificationCount: BaseNotifications,
		ProviderChanged:   changed,
	}
	for _, s := range affected {
		rep.AffectedSessionIDs = append(rep.AffectedSessionIDs, s.ID)
	}
	if changed {
		rep.NotificationCount += ProviderChangeNotifications
		history, err := a.sessions.FindByClientID(ctx, orig.ClientID)
		if err != nil {
			return a.degraded(sessionID, "load client history", err), nil
		}
		before := a.scorer.Score(orig.RBTID, orig.ClientID, history).Score
		after := a.scorer.Score(target, orig.ClientID, history).Score
		rep.ContinuityDisruption = math.Min(continuity.MaxScore, math.Max(0, before-after))
	}
	penalty := 0.0
	if changed {
		penalty = ProviderChangePenalty
	}
	rep.OperationalComplexity = math.Min(MaxComplexity,
		float64(rep.AffectedSessions)*AffectedWeight+float64(rep.CascadingChanges)*CascadeWeight+penalty)

	a.record(rep)
	return rep, nil
}

// affected returns active sessions in the padded window that share the
// original RBT, the target RBT or the client, excluding orig itself.
func (a *Analyzer) affected(ctx context.Context, orig model.Session, newStart time.Time, target string) ([]model.Session, error) {
	from, to := orig.Start, newStart
	if to.Before(from) {
		from, to = to, from
	}
	inWindow, err := a.sessions.FindActiveByDateRange(ctx, from.Add(-WindowPadding), to.Add(WindowPadding))
	if err != nil {
		return nil, err
	}
	var out []model.Session
	for _, s := range inWindow {
		if s.ID == orig.ID || !s.Status.IsActive() {
			continue
		}
		if s.RBTID == orig.RBTID || s.RBTID == target || s.ClientID == orig.ClientID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (a *Analyzer) degraded(sessionID, op string, err error) Report {
	a.log.Errorf("impact analysis for session %s degraded: %s: %v", sessionID, op, err)
	monitoring.Capture(err, "impact", op)
	rep := Report{SessionID: sessionID, Degraded: true}
	a.record(rep)
	return rep
}

func (a *Analyzer) record(rep Report) {
	err := metrics.RecordImpact(a.sink, metrics.ImpactEvent{
		SessionID:             rep.SessionID,
		AffectedSessions:      rep.AffectedSessions,
		CascadingChanges:      rep.CascadingChanges,
		NotificationCount:     rep.NotificationCount,
		ContinuityDisruption:  rep.ContinuityDisruption,
		OperationalComplexity: rep.OperationalComplexity,
		ProviderChanged:       rep.ProviderChanged,
		Degraded:              rep.Degraded,
		Time:                  a.clock.Now(),
	})
	if err != nil {
		a.log.Warnf("record impact metrics: %v", err)
	}
}
