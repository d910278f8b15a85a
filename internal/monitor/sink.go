package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/blue-kelp-bio/reactormon/internal/metrics"
	"github.com/blue-kelp-bio/reactormon/internal/models"
	"github.com/blue-kelp-bio/reactormon/internal/realtime"
	"github.com/blue-kelp-bio/reactormon/internal/storage"
)

// Dispatcher sends an alert to the users assigned to its reactor.
// Implementations must not fail the caller; delivery problems are theirs
// to log and count.
type Dispatcher interface {
	DispatchAlert(ctx context.Context, reactor *models.Reactor, alert *models.Alert)
}

// Sink turns classified violations into persisted, published, dispatched
// alerts. Persistence is the gate: when the insert fails nothing is
// published or dispatched for that violation. Publish and dispatch
// failures never propagate to the caller.
type Sink struct {
	alerts     storage.AlertRepository
	guard      *Guard
	publisher  realtime.Publisher
	dispatcher Dispatcher // nil when notifications are disabled
	logger     zerolog.Logger
}

// NewSink creates an alert sink. dispatcher may be nil.
func NewSink(alerts storage.AlertRepository, guard *Guard, publisher realtime.Publisher, dispatcher Dispatcher, logger zerolog.Logger) *Sink {
	return &Sink{
		alerts:     alerts,
		guard:      guard,
		publisher:  publisher,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "alerts").Logger(),
	}
}

// Raise processes a violation at the current time.
func (s *Sink) Raise(ctx context.Context, reactor *models.Reactor, sp *models.Setpoint, v *Violation) (*models.Alert, error) {
	return s.RaiseAt(ctx, reactor, sp, v, time.Now())
}

// RaiseAt processes a violation as of now: it drops duplicates, persists
// a new alert, publishes it on the reactor and admin topics, and hands it
// to the dispatcher. Returns the created alert, or nil when the violation
// was suppressed as a duplicate.
func (s *Sink) RaiseAt(ctx context.Context, reactor *models.Reactor, sp *models.Setpoint, v *Violation, now time.Time) (*models.Alert, error) {
	recent, err := s.alerts.ListRecentUnacknowledged(ctx, reactor.ID, s.guard.Lookback)
	if err != nil {
		return nil, fmt.Errorf("list recent alerts: %w", err)
	}
	if s.guard.IsDuplicate(recent, sp.FieldName, v.Kind, now) {
		metrics.AlertsSuppressed.Inc()
		s.logger.Debug().
			Str("reactor_id", reactor.ID).
			Str("field", sp.FieldName).
			Str("threshold", string(v.Kind)).
			Msg("duplicate violation suppressed")
		return nil, nil
	}

	alert := &models.Alert{
		ID:             uuid.New().String(),
		ReactorID:      reactor.ID,
		SetpointID:     sp.ID,
		Kind:           sp.Kind,
		FieldName:      sp.FieldName,
		CurrentValue:   v.Value,
		ThresholdValue: v.Threshold,
		ThresholdType:  v.Kind,
		Severity:       v.Severity,
		Message:        FormatMessage(sp.FieldName, v.Kind, v.Value, v.Threshold),
		CreatedAt:      now,
	}

	if err := s.alerts.Create(ctx, alert); err != nil {
		return nil, fmt.Errorf("persist alert: %w", err)
	}
	metrics.AlertsCreated.WithLabelValues(string(alert.Severity)).Inc()

	s.logger.Info().
		Str("alert_id", alert.ID).
		Str("reactor_id", reactor.ID).
		Str("field", alert.FieldName).
		Str("severity", string(alert.Severity)).
		Float64("value", alert.CurrentValue).
		Float64("threshold", alert.ThresholdValue).
		Msg("alert raised")

	if s.publisher != nil {
		s.publisher.Publish(realtime.ReactorTopic(reactor.ID), "alert", alert)
		s.publisher.Publish(realtime.TopicAdmin, "alert", alert)
	}

	if s.dispatcher != nil {
		s.dispatcher.DispatchAlert(ctx, reactor, alert)
	}

	return alert, nil
}
