package ranking

import (
	"fmt"
	"math"
)

// Impact penalties.
const (
	ImpactPerHourShift    = 5.0
	ImpactPerDayShift     = 3.0
	ImpactProviderChanged = 15.0
)

// Feasibility penalties.
const (
	PenaltyTimeNotPreferred     = 10.0
	PenaltyProviderNotPreferred = 15.0
	PenaltyShortNotice          = 20.0
	PenaltyLongNotice           = 5.0
	ShortNoticeHours            = 24.0
	LongNoticeHours             = 168.0
)

// TieThreshold is the score gap under which the earlier start wins.
const TieThreshold = 5.0

// DefaultMaxOptions caps the ranked list when the caller sets no limit.
const DefaultMaxOptions = 10

// Weights combine the three option scores.
type Weights struct {
	Continuity  float64 `json:"continuity"`
	Impact      float64 `json:"impact"`
	Feasibility float64 `json:"feasibility"`
}

var (
	DefaultWeights    = Weights{Continuity: 0.4, Impact: 0.4, Feasibility: 0.2}
	ContinuityWeights = Weights{Continuity: 0.6, Impact: 0.3, Feasibility: 0.1}
)

// Combine returns the weighted sum.
func (w Weights) Combine(continuity, impact, feasibility float64) float64 {
	return w.Continuity*continuity + w.Impact*impact + w.Feasibility*feasibility
}

func (w Weights) isZero() bool { return w == Weights{} }

// Validate requires non-negative weights summing to 1.
func (w Weights) Validate() error {
	if w.Continuity < 0 || w.Impact < 0 || w.Feasibility < 0 {
		return fmt.Errorf("weights must not be negative")
	}
	if sum := w.Continuity + w.Impact + w.Feasibility; math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("weights must sum to 1, got %.3f", sum)
	}
	return nil
}

// Config tunes evaluation and ranking.
type Config struct {
	Weights           Weights `json:"weights"`
	ContinuityWeights Weights `json:"continuity_weights"`
	MaxOptions        int     `json:"max_options"`
	Workers           int     `json:"workers"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Weights.isZero() {
		c.Weights = DefaultWeights
	}
	if c.ContinuityWeights.isZero() {
		c.ContinuityWeights = ContinuityWeights
	}
	if c.MaxOptions <= 0 {
		c.MaxOptions = DefaultMaxOptions
	}
	if c.Workers <= 0 {
		c.Workers = 8
	}
}

// Validate checks both weight sets.
func (c Config) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return fmt.Errorf("weights: %w", err)
	}
	if err := c.ContinuityWeights.Validate(); err != nil {
		return fmt.Errorf("continuity_weights: %w", err)
	}
	return nil
}

// weightsFor picks the weight set for the request.
func (c Config) weightsFor(prioritizeContinuity bool) Weights {
	if prioritizeContinuity {
		return c.ContinuityWeights
	}
	return c.Weights
}
