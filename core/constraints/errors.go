package constraints

import "strings"

// ValidationError reports malformed input rejected before any computation.
type ValidationError struct {
	Violations []Violation `json:"violations"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.String()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Collector accumulates violations.
type Collector struct {
	list []Violation
}

// Add records a violation.
func (c *Collector) Add(rule, msg string) {
	c.list = append(c.list, Violation{Rule: rule, Message: msg})
}

// Require records a required_field violation when value is empty.
func (c *Collector) Require(field, value string) {
	if strings.TrimSpace(value) == "" {
		c.Add(RuleRequired, field+" is required")
	}
}

// Err returns a *ValidationError when violations were recorded, nil otherwise.
func (c *Collector) Err() error {
	if len(c.list) == 0 {
		return nil
	}
	return &ValidationError{Violations: append([]Violation(nil), c.list...)}
}
