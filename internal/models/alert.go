package models

import "time"

// ThresholdKind says which bound of a setpoint a violation crossed.
type ThresholdKind string

const (
	ThresholdMin ThresholdKind = "min"
	ThresholdMax ThresholdKind = "max"
)

// Severity represents an alert's urgency.
type Severity string

const (
	// SeverityInfo is reserved for manual or external alert sources;
	// the monitor never produces it.
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// ParseSeverity converts a string to Severity.
func ParseSeverity(s string) Severity {
	switch s {
	case "info":
		return SeverityInfo
	case "critical":
		return SeverityCritical
	default:
		return SeverityWarning
	}
}

// Alert is a persisted record of a threshold violation. The monitor
// creates alerts and never mutates them afterwards; acknowledgment is an
// operator action.
type Alert struct {
	ID             string        `json:"id"`
	ReactorID      string        `json:"reactor_id"`
	SetpointID     string        `json:"setpoint_id"`
	Kind           StreamKind    `json:"kind"`
	FieldName      string        `json:"field_name"`
	CurrentValue   float64       `json:"current_value"`
	ThresholdValue float64       `json:"threshold_value"`
	ThresholdType  ThresholdKind `json:"threshold_type"`
	Severity       Severity      `json:"severity"`
	Message        string        `json:"message"`
	Acknowledged   bool          `json:"acknowledged"`
	AcknowledgedBy string        `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time    `json:"acknowledged_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// NotificationChannel identifies the delivery channel of a notification.
type NotificationChannel string

const (
	ChannelEmail NotificationChannel = "email"
)

// Notification is an append-only audit record of one successful
// notification delivery. Failed attempts are not recorded.
type Notification struct {
	ID      string              `json:"id"`
	AlertID string              `json:"alert_id"`
	UserID  string              `json:"user_id"`
	Channel NotificationChannel `json:"channel"`
	SentAt  time.Time           `json:"sent_at"`
}
