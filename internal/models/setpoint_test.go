package models

import "testing"

func ptr(v float64) *float64 { return &v }

func TestSetpointValidate(t *testing.T) {
	valid := Setpoint{
		ReactorID: "r1",
		Kind:      StreamGas,
		FieldName: "ph",
		Min:       ptr(6),
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid setpoint rejected: %v", err)
	}

	maxOnly := valid
	maxOnly.Min = nil
	maxOnly.Max = ptr(8)
	if err := maxOnly.Validate(); err != nil {
		t.Errorf("max-only setpoint rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Setpoint)
	}{
		{"missing reactor", func(s *Setpoint) { s.ReactorID = "" }},
		{"unknown kind", func(s *Setpoint) { s.Kind = "plasma" }},
		{"field from another stream", func(s *Setpoint) { s.FieldName = "flowrate" }},
		{"no bounds", func(s *Setpoint) { s.Min, s.Max = nil, nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			tt.mutate(&s)
			if err := s.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
