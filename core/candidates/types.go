package candidates

import "time"

// Tag classifies a candidate by its distance from the reference date.
type Tag string

const (
	TagPreferred Tag = "preferred"
	TagAvailable Tag = "available"
	TagPossible  Tag = "possible"
)

// DefaultMaxDays is the default search horizon in days after the reference date.
const DefaultMaxDays = 14

// TagForOffset returns preferred for the same day, available within three
// days and possible beyond.
func TagForOffset(offset int) Tag {
	switch {
	case offset == 0:
		return TagPreferred
	case offset <= 3:
		return TagAvailable
	default:
		return TagPossible
	}
}

// Preferences narrow the search space. They come from the caller.
type Preferences struct {
	// PreferredRBTIDs restricts the provider pool when a different RBT is
	// allowed. Without AllowDifferentRBT it does not change the pool, but
	// ranking still lowers the feasibility of RBTs outside the list.
	PreferredRBTIDs []string `json:"preferred_rbt_ids,omitempty"`
	// PreferredTimes are session start times of day, formatted HH:MM.
	PreferredTimes []string `json:"preferred_times,omitempty"`
	// AllowDifferentRBT opens the search to the rest of the client's team.
	AllowDifferentRBT bool `json:"allow_different_rbt"`
	// MaxDaysFromOriginal bounds the day offsets searched. Zero uses the default.
	MaxDaysFromOriginal int `json:"max_days_from_original,omitempty"`
	// PrioritizeContinuity shifts ranking weights towards continuity.
	PrioritizeContinuity bool `json:"prioritize_continuity"`
}

// Candidate is a conflict-free hypothetical (RBT, slot) pairing.
type Candidate struct {
	RBTID     string    `json:"rbt_id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	DayOffset int       `json:"day_offset"`
	Tag       Tag       `json:"tag"`
}

// Result is the search space produced by Generate.
type Result struct {
	Candidates []Candidate `json:"candidates"`
	// Generated counts the raw slots submitted to conflict checking.
	Generated int `json:"generated"`
	// Checked counts the raw slots whose conflict check completed.
	Checked int `json:"checked"`
	// Providers are the RBTs searched, original first.
	Providers []string `json:"providers"`
	// Partial is set when the context expired before every slot was checked.
	Partial bool `json:"partial"`
}

// SurvivalRate is the fraction of checked slots that were conflict free.
func (r Result) SurvivalRate() float64 {
	if r.Checked == 0 {
		return 0
	}
	return float64(len(r.Candidates)) / float64(r.Checked)
}
