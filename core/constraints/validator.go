// Package constraints holds the pure predicates gating every schedule
// decision: business days, business hours and the fixed session length.
package constraints

import (
	"fmt"
	"time"

	"github.com/kilianp07/rbtsched/core/model"
)

// Rule names used in violations.
const (
	RuleBusinessDay   = "business_day"
	RuleBusinessHours = "business_hours"
	RuleDuration      = "session_duration"
	RuleNotice        = "minimum_notice"
	RuleStatus        = "session_status"
	RuleRequired      = "required_field"
	RuleDateRange     = "date_range"
	RuleConflict      = "slot_conflict"
	RuleProvider      = "provider"
	RuleNotFound      = "not_found"
	RuleFormat        = "invalid_format"
)

// Violation describes one broken rule in human-readable form.
type Violation struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func (v Violation) String() string { return v.Rule + ": " + v.Message }

// Validator checks slots against the configured business calendar. It holds
// no mutable state and is safe for concurrent use.
type Validator struct {
	loc      *time.Location
	dayStart time.Duration
	dayEnd   time.Duration
	duration time.Duration
	notice   time.Duration
}

// NewValidator builds a Validator, applying defaults to unset fields.
func NewValidator(cfg Config) (*Validator, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, _ := time.LoadLocation(cfg.Timezone)
	start, _ := ParseClock(cfg.DayStart)
	end, _ := ParseClock(cfg.DayEnd)
	return &Validator{
		loc:      loc,
		dayStart: start,
		dayEnd:   end,
		duration: model.SessionDuration,
		notice:   time.Duration(cfg.MinNoticeHours * float64(time.Hour)),
	}, nil
}

// MustValidator is NewValidator for known-good configurations.
func MustValidator(cfg Config) *Validator {
	v, err := NewValidator(cfg)
	if err != nil {
		panic(err)
	}
	return v
}

// Location returns the business timezone.
func (v *Validator) Location() *time.Location { return v.loc }

// SessionDuration returns the fixed session length.
func (v *Validator) SessionDuration() time.Duration { return v.duration }

// MinNotice returns the configured minimum notice.
func (v *Validator) MinNotice() time.Duration { return v.notice }

// DayWindow returns the daily business window as offsets from midnight.
func (v *Validator) DayWindow() (time.Duration, time.Duration) { return v.dayStart, v.dayEnd }

// IsBusinessDay is true Monday through Friday.
func (v *Validator) IsBusinessDay(t time.Time) bool {
	switch t.In(v.loc).Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return true
}

// IsWithinBusinessHours reports whether start < end and both fall inside the
// daily window of the same day.
func (v *Validator) IsWithinBusinessHours(start, end time.Time) bool {
	if !start.Before(end) {
		return false
	}
	s := start.In(v.loc)
	e := end.In(v.loc)
	midnight := StartOfDay(s)
	if !StartOfDay(e).Equal(midnight) {
		return false
	}
	return s.Sub(midnight) >= v.dayStart && e.Sub(midnight) <= v.dayEnd
}

// HasLegalDuration is true only when end-start equals the session length.
func (v *Validator) HasLegalDuration(start, end time.Time) bool {
	return end.Sub(start) == v.duration
}

// ValidateSlot collects every calendar violation for the slot.
func (v *Validator) ValidateSlot(start, end time.Time) []Violation {
	var out []Violation
	if !v.IsBusinessDay(start) {
		out = append(out, Violation{Rule: RuleBusinessDay, Message: fmt.Sprintf("%s is not a business day", start.In(v.loc).Weekday())})
	}
	if !v.IsWithinBusinessHours(start, end) {
		out = append(out, Violation{Rule: RuleBusinessHours, Message: fmt.Sprintf("session must fall between %s and %s", FormatClock(v.dayStart), FormatClock(v.dayEnd))})
	}
	if !v.HasLegalDuration(start, end) {
		out = append(out, Violation{Rule: RuleDuration, Message: fmt.Sprintf("session must last exactly %s", v.duration)})
	}
	return out
}

// CheckNotice returns a violation when start is closer to now than the
// configured minimum notice.
func (v *Validator) CheckNotice(now, start time.Time) *Violation {
	return CheckNotice(now, start, v.notice)
}

// CheckNotice returns a violation when start is less than notice after now. A
// non-positive notice disables the check.
func CheckNotice(now, start time.Time, notice time.Duration) *Violation {
	if notice <= 0 {
		return nil
	}
	if lead := start.Sub(now); lead < notice {
		return &Violation{
			Rule:    RuleNotice,
			Message: fmt.Sprintf("insufficient notice: %.1f hours before start, %.0f required", lead.Hours(), notice.Hours()),
		}
	}
	return nil
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
