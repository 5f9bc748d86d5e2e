// Package candidates enumerates conflict-free (RBT, slot) pairs around a
// reference session.
package candidates

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/rbtsched/core/clock"
	"github.com/kilianp07/rbtsched/core/conflict"
	"github.com/kilianp07/rbtsched/core/constraints"
	"github.com/kilianp07/rbtsched/core/logger"
	"github.com/kilianp07/rbtsched/core/model"
	"github.com/kilianp07/rbtsched/core/store"
)

// Config tunes the search.
type Config struct {
	MaxDays int `json:"max_days"`
	Workers int `json:"workers"`
	// SlotStep is the spacing of the default start-time ladder.
	SlotStep time.Duration `json:"slot_step"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.MaxDays <= 0 {
		c.MaxDays = DefaultMaxDays
	}
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.SlotStep <= 0 {
		c.SlotStep = time.Hour
	}
}

// Generator produces the candidate search space.
type Generator struct {
	validator *constraints.Validator
	detector  *conflict.Detector
	teams     store.TeamRepository
	providers store.ProviderRepository
	clock     clock.Clock
	log       logger.Logger
	cfg       Config
}

// NewGenerator wires a generator. providers may be nil, in which case every
// RBT is treated as active.
func NewGenerator(v *constraints.Validator, d *conflict.Detector, teams store.TeamRepository, providers store.ProviderRepository, c clock.Clock, log logger.Logger, cfg Config) *Generator {
	cfg.SetDefaults()
	return &Generator{
		validator: v,
		detector:  d,
		teams:     teams,
		providers: providers,
		clock:     clock.OrSystem(c),
		log:       logger.OrNop(log),
		cfg:       cfg,
	}
}

type slot struct {
	rbtID  string
	start  time.Time
	end    time.Time
	offset int
}

// Generate enumerates the conflict-free candidates for ref. When ctx expires
// mid-search the candidates found so far are returned with Partial set.
func (g *Generator) Generate(ctx context.Context, ref model.Session, prefs Preferences) (Result, error) {
	providers, err := g.EligibleProviders(ctx, ref, prefs)
	if err != nil {
		return Result{}, err
	}
	times, err := g.startTimes(prefs.PreferredTimes)
	if err != nil {
		return Result{}, err
	}
	maxDays := prefs.MaxDaysFromOriginal
	if maxDays <= 0 {
		maxDays = g.cfg.MaxDays
	}

	slots := g.enumerate(ref, providers, times, maxDays)
	res := Result{Generated: len(slots), Providers: providers}
	if len(slots) == 0 {
		return res, nil
	}

	free := make([]bool, len(slots))
	done := make([]bool, len(slots))
	var partial atomic.Bool

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Workers)
	for i, s := range slots {
		if ctx.Err() != nil {
			partial.Store(true)
			break
		}
		eg.Go(func() error {
			if ctx.Err() != nil {
				partial.Store(true)
				return nil
			}
			busy, err := g.detector.HasConflict(egCtx, ref.ClientID, s.rbtID, s.start, s.end, ref.ID)
			if err != nil {
				if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
					partial.Store(true)
					return nil
				}
				return fmt.Errorf("candidate %s at %s: %w", s.rbtID, s.start.Format(time.RFC3339), err)
			}
			free[i] = !busy
			done[i] = true
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Result{}, err
	}

	for i, s := range slots {
		if !done[i] {
			continue
		}
		res.Checked++
		if !free[i] {
			continue
		}
		res.Candidates = append(res.Candidates, Candidate{
			RBTID:     s.rbtID,
			Start:     s.start,
			End:       s.end,
			DayOffset: s.offset,
			Tag:       TagForOffset(s.offset),
		})
	}
	res.Partial = partial.Load()
	g.log.Debugw("candidates generated", map[string]any{
		"session_id": ref.ID,
		"providers":  len(providers),
		"generated":  res.Generated,
		"checked":    res.Checked,
		"free":       len(res.Candidates),
		"partial":    res.Partial,
	})
	return res, nil
}

// EligibleProviders resolves the RBT pool for ref. Without AllowDifferentRBT
// only the original RBT is searched and PreferredRBTIDs is ignored here; the
// feasibility score still penalises the original RBT when it is not listed.
// Otherwise the pool is the preferred RBTs
// restricted to the active team, or the whole team when no preference is
// given. Inactive RBTs are dropped. The original RBT, when eligible, comes
// first.
func (g *Generator) EligibleProviders(ctx context.Context, ref model.Session, prefs Preferences) ([]string, error) {
	pool := []string{ref.RBTID}
	if prefs.AllowDifferentRBT {
		team, err := g.teams.FindActiveByClientID(ctx, ref.ClientID)
		var roster *model.Team
		switch {
		case err == nil:
			roster = &team
		case errors.Is(err, store.ErrNotFound):
		default:
			return nil, fmt.Errorf("resolve team for client %s: %w", ref.ClientID, err)
		}
		pool = expandPool(ref.RBTID, roster, prefs.PreferredRBTIDs)
	}

	out := make([]string, 0, len(pool))
	for _, id := range pool {
		ok, err := g.isActive(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func expandPool(original string, team *model.Team, preferred []string) []string {
	member := func(id string) bool {
		return id == original || team == nil || team.Has(id)
	}
	var base []string
	if len(preferred) > 0 {
		for _, id := range preferred {
			if member(id) {
				base = append(base, id)
			}
		}
	} else {
		base = append(base, original)
		if team != nil {
			base = append(base, team.RBTIDs...)
		}
	}

	seen := make(map[string]bool, len(base))
	var rest []string
	hasOriginal := false
	for _, id := range base {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if id == original {
			hasOriginal = true
			continue
		}
		rest = append(rest, id)
	}
	sort.Strings(rest)
	if hasOriginal {
		return append([]string{original}, rest...)
	}
	return rest
}

func (g *Generator) isActive(ctx context.Context, id string) (bool, error) {
	if g.providers == nil {
		return true, nil
	}
	p, err := g.providers.FindByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		g.log.Warnf("rbt %s not found, skipped", id)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load rbt %s: %w", id, err)
	}
	return p.Active, nil
}

// startTimes returns offsets from midnight. The default ladder covers every
// start whose session ends inside the business window.
func (g *Generator) startTimes(preferred []string) ([]time.Duration, error) {
	if len(preferred) > 0 {
		out := make([]time.Duration, 0, len(preferred))
		for _, p := range preferred {
			d, err := constraints.ParseClock(p)
			if err != nil {
				return nil, &constraints.ValidationError{Violations: []constraints.Violation{{
					Rule: constraints.RuleFormat, Message: fmt.Sprintf("preferred time %q: %v", p, err),
				}}}
			}
			out = append(out, d)
		}
		sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
		return out, nil
	}
	opens, closes := g.validator.DayWindow()
	var out []time.Duration
	for t := opens; t+g.validator.SessionDuration() <= closes; t += g.cfg.SlotStep {
		out = append(out, t)
	}
	return out, nil
}

func (g *Generator) enumerate(ref model.Session, providers []string, times []time.Duration, maxDays int) []slot {
	loc := g.validator.Location()
	now := g.clock.Now()
	base := constraints.StartOfDay(ref.Start.In(loc))
	dur := g.validator.SessionDuration()

	var out []slot
	for _, rbt := range providers {
		for offset := 0; offset <= maxDays; offset++ {
			day := base.AddDate(0, 0, offset)
			if !g.validator.IsBusinessDay(day) {
				continue
			}
			for _, t := range times {
				start := day.Add(t)
				end := start.Add(dur)
				if !start.After(now) {
					continue
				}
				if rbt == ref.RBTID && start.Equal(ref.Start) {
					continue
				}
				if len(g.validator.ValidateSlot(start, end)) > 0 {
					continue
				}
				out = append(out, slot{rbtID: rbt, start: start, end: end, offset: offset})
			}
		}
	}
	return out
}
