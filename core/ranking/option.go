package ranking

import (
	"time"

	"github.com/kilianp07/rbtsched/core/candidates"
)

// Option is a scored and explained candidate. It only lives for one
// optimization call.
type Option struct {
	RBTID                 string         `json:"rbt_id"`
	Start                 time.Time      `json:"start"`
	End                   time.Time      `json:"end"`
	Tag                   candidates.Tag `json:"tag"`
	ContinuityScore       float64        `json:"continuity_score"`
	ImpactScore           float64        `json:"impact_score"`
	FeasibilityScore      float64        `json:"feasibility_score"`
	OptimizationScore     float64        `json:"optimization_score"`
	Rank                  int            `json:"rank"`
	Justification         string         `json:"justification"`
	RequiredNotifications []string       `json:"required_notifications"`
	SameRBT               bool           `json:"same_rbt"`
	TimeDeviationHours    float64        `json:"time_deviation_hours"`
	DateDeviationDays     int            `json:"date_deviation_days"`
}

// Metrics summarize one optimization call.
type Metrics struct {
	TotalCandidatesEvaluated   int     `json:"total_candidates_evaluated"`
	ContinuityPreservationRate float64 `json:"continuity_preservation_rate"`
	AverageTimeDeviationHours  float64 `json:"average_time_deviation_hours"`
	AverageDateDeviationDays   float64 `json:"average_date_deviation_days"`
	ConflictFreeRate           float64 `json:"conflict_free_rate"`
	Partial                    bool    `json:"partial"`
	ProcessingTimeMS           int64   `json:"processing_time_ms"`
}

// ComputeMetrics aggregates over the returned options. gen describes the raw
// search space and evaluated counts the options scored before ranking.
func ComputeMetrics(gen candidates.Result, evaluated int, top []Option, partial bool) Metrics {
	m := Metrics{
		TotalCandidatesEvaluated: evaluated,
		ConflictFreeRate:         gen.SurvivalRate(),
		Partial:                  partial || gen.Partial,
	}
	if len(top) == 0 {
		return m
	}
	var same int
	var hours, days float64
	for _, o := range top {
		if o.SameRBT {
			same++
		}
		hours += o.TimeDeviationHours
		days += float64(o.DateDeviationDays)
	}
	n := float64(len(top))
	m.ContinuityPreservationRate = float64(same) / n
	m.AverageTimeDeviationHours = hours / n
	m.AverageDateDeviationDays = days / n
	return m
}
