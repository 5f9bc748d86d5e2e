package model

import "time"

// ContinuityScore quantifies the relationship strength between an RBT and a
// client. It is always derived from session history and never stored.
type ContinuityScore struct {
	RBTID           string     `json:"rbt_id"`
	ClientID        string     `json:"client_id"`
	Score           float64    `json:"score"`
	TotalSessions   int        `json:"total_sessions"`
	RecentSessions  int        `json:"recent_sessions"`
	LastSessionDate *time.Time `json:"last_session_date,omitempty"`
	Breakdown       Breakdown  `json:"breakdown"`
}

// Breakdown exposes the additive components of a continuity score.
type Breakdown struct {
	History        float64 `json:"history"`
	RecentActivity float64 `json:"recent_activity"`
	Recency        float64 `json:"recency"`
	Consistency    float64 `json:"consistency"`
}
