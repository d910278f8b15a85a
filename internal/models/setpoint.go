package models

import (
	"fmt"
	"time"
)

// Setpoint is an operator-defined acceptable range for one telemetry
// field of one reactor. At least one of Min/Max must be set; a setpoint
// with neither is invalid and is rejected before it reaches the monitor.
type Setpoint struct {
	ID        string     `json:"id"`
	ReactorID string     `json:"reactor_id"`
	UserID    string     `json:"user_id"`
	Kind      StreamKind `json:"kind"`
	FieldName string     `json:"field_name"`
	Min       *float64   `json:"min,omitempty"`
	Max       *float64   `json:"max,omitempty"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Validate checks the setpoint's configuration.
func (s *Setpoint) Validate() error {
	if s.ReactorID == "" {
		return fmt.Errorf("setpoint reactor id is required")
	}
	if _, err := ParseStreamKind(string(s.Kind)); err != nil {
		return err
	}
	if !KnownField(s.Kind, s.FieldName) {
		return fmt.Errorf("field %q is not part of the %s schema", s.FieldName, s.Kind)
	}
	if s.Min == nil && s.Max == nil {
		return fmt.Errorf("setpoint for %s.%s has neither minimum nor maximum", s.Kind, s.FieldName)
	}
	return nil
}
