package constraints

import (
	"fmt"
	"time"
)

// Config defines the business calendar applied to every slot.
type Config struct {
	// Timezone is the IANA location business hours are expressed in.
	Timezone string `json:"timezone"`
	// DayStart and DayEnd bound the daily window, formatted as HH:MM.
	DayStart string `json:"day_start"`
	DayEnd   string `json:"day_end"`
	// MinNoticeHours is the minimum lead time before a session may be
	// rescheduled. Zero disables the check.
	MinNoticeHours float64 `json:"min_notice_hours"`
}

// SetDefaults applies the clinic defaults: 09:00-19:00 UTC.
func (c *Config) SetDefaults() {
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.DayStart == "" {
		c.DayStart = "09:00"
	}
	if c.DayEnd == "" {
		c.DayEnd = "19:00"
	}
}

// Validate checks that the window is parseable and ordered.
func (c Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	start, err := ParseClock(c.DayStart)
	if err != nil {
		return fmt.Errorf("day_start: %w", err)
	}
	end, err := ParseClock(c.DayEnd)
	if err != nil {
		return fmt.Errorf("day_end: %w", err)
	}
	if end <= start {
		return fmt.Errorf("day_end %s must be after day_start %s", c.DayEnd, c.DayStart)
	}
	if c.MinNoticeHours < 0 {
		return fmt.Errorf("min_notice_hours must not be negative")
	}
	return nil
}

// ParseClock converts an HH:MM string into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// FormatClock renders an offset from midnight as HH:MM.
func FormatClock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}
