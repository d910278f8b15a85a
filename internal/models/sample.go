package models

import (
	"fmt"
	"sort"
	"time"
)

// StreamKind identifies one of the telemetry streams a reactor reports.
// Each kind has a fixed field schema; rule-to-sample matching is validated
// against it at the boundary instead of free-form string indexing.
type StreamKind string

const (
	StreamDilution     StreamKind = "dilution"
	StreamGas          StreamKind = "gas"
	StreamLevelControl StreamKind = "level_control"
)

// StreamKinds returns all known stream kinds in stable order.
func StreamKinds() []StreamKind {
	return []StreamKind{StreamDilution, StreamGas, StreamLevelControl}
}

// streamFields maps each stream kind to its known field names.
var streamFields = map[StreamKind]map[string]struct{}{
	StreamDilution: toSet(
		"time_passed", "flowrate", "dilution_rate", "volume_reactor",
		"mass_in_tank", "filtered_mass_in_tank", "total_tank_balance",
	),
	StreamGas: toSet(
		"our", "rq", "kla_1h", "kla_bar", "stirrer_speed", "ph", "do",
		"reactor_temp", "pio2", "gas_flow_in", "reactor_volume",
		"tout", "tin", "pout", "pin", "gas_out", "ni", "nout", "cpr",
		"yo2in", "yo2out", "yco2in", "yco2out", "yinert_in", "yinert_out",
	),
	StreamLevelControl: toSet(
		"reactor_weight", "volume_reactor", "pid_value", "pump_rpm",
	),
}

func toSet(names ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}

// ParseStreamKind converts a string to a StreamKind.
func ParseStreamKind(s string) (StreamKind, error) {
	switch StreamKind(s) {
	case StreamDilution, StreamGas, StreamLevelControl:
		return StreamKind(s), nil
	default:
		return "", fmt.Errorf("unknown stream kind %q", s)
	}
}

// KnownField reports whether field belongs to the given stream kind's schema.
func KnownField(kind StreamKind, field string) bool {
	fields, ok := streamFields[kind]
	if !ok {
		return false
	}
	_, ok = fields[field]
	return ok
}

// FieldNames returns the sorted field names of a stream kind's schema.
func FieldNames(kind StreamKind) []string {
	fields := streamFields[kind]
	names := make([]string, 0, len(fields))
	for n := range fields {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Sample is one timestamped telemetry reading of a stream kind for a
// reactor. Fields absent from the mapping have not been reported yet;
// absence is distinct from a zero value.
type Sample struct {
	ReactorID string             `json:"reactor_id"`
	Kind      StreamKind         `json:"kind"`
	Timestamp time.Time          `json:"timestamp"`
	Fields    map[string]float64 `json:"fields"`
}

// Value returns the named field's value and whether the sample carries it.
func (s *Sample) Value(field string) (float64, bool) {
	v, ok := s.Fields[field]
	return v, ok
}

// Validate checks the sample against its stream kind's schema.
func (s *Sample) Validate() error {
	if s.ReactorID == "" {
		return fmt.Errorf("sample reactor id is required")
	}
	if _, ok := streamFields[s.Kind]; !ok {
		return fmt.Errorf("unknown stream kind %q", s.Kind)
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("sample timestamp is required")
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("sample carries no fields")
	}
	for name := range s.Fields {
		if !KnownField(s.Kind, name) {
			return fmt.Errorf("field %q is not part of the %s schema", name, s.Kind)
		}
	}
	return nil
}
