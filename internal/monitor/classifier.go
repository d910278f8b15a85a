// Package monitor implements the periodic threshold sweep: it reads each
// active reactor's latest telemetry, evaluates it against the reactor's
// setpoints, and raises alerts for out-of-range values.
package monitor

import (
	"fmt"
	"math"
	"strings"

	"github.com/blue-kelp-bio/reactormon/internal/models"
)

// DefaultCriticalDeviationPct is the deviation percentage above which a
// violation is classified critical.
const DefaultCriticalDeviationPct = 20.0

// Violation describes one threshold crossing found by the classifier.
type Violation struct {
	Kind      models.ThresholdKind
	Threshold float64
	Value     float64
	// Deviation is the percentage distance from the threshold, or the
	// absolute distance when the threshold is zero.
	Deviation float64
	Severity  models.Severity
}

// Classifier grades threshold violations by how far the value strayed.
type Classifier struct {
	// CriticalDeviationPct is the deviation above which a violation is
	// critical rather than warning.
	CriticalDeviationPct float64
}

// NewClassifier returns a classifier with the given critical cutoff;
// zero or negative falls back to the default.
func NewClassifier(criticalPct float64) *Classifier {
	if criticalPct <= 0 {
		criticalPct = DefaultCriticalDeviationPct
	}
	return &Classifier{CriticalDeviationPct: criticalPct}
}

// Classify evaluates value against the setpoint's bounds. The minimum is
// checked first, then the maximum; when both bounds are violated (only
// possible with an inverted min > max configuration) the maximum result
// stands. Returns nil when the value is within range.
func (c *Classifier) Classify(sp *models.Setpoint, value float64) *Violation {
	var v *Violation

	if sp.Min != nil && value < *sp.Min {
		v = c.violation(models.ThresholdMin, *sp.Min, value, *sp.Min-value)
	}
	if sp.Max != nil && value > *sp.Max {
		v = c.violation(models.ThresholdMax, *sp.Max, value, value-*sp.Max)
	}
	return v
}

func (c *Classifier) violation(kind models.ThresholdKind, threshold, value, distance float64) *Violation {
	deviation := distance
	if threshold != 0 {
		deviation = distance / math.Abs(threshold) * 100
	}

	severity := models.SeverityWarning
	if deviation > c.CriticalDeviationPct {
		severity = models.SeverityCritical
	}

	return &Violation{
		Kind:      kind,
		Threshold: threshold,
		Value:     value,
		Deviation: deviation,
		Severity:  severity,
	}
}

// FormatMessage renders the human-readable alert message for a violation
// of field. The field name is upper-cased with underscores spaced out,
// so "reactor_temp" becomes "REACTOR TEMP".
func FormatMessage(field string, kind models.ThresholdKind, value, threshold float64) string {
	direction := "above"
	if kind == models.ThresholdMin {
		direction = "below"
	}
	name := strings.ToUpper(strings.ReplaceAll(field, "_", " "))
	return fmt.Sprintf("%s is %s threshold: Current value %.2f, Threshold %.2f",
		name, direction, value, threshold)
}
