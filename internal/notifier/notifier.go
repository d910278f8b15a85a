// Package notifier delivers alert notifications to the users assigned to
// a reactor and records an audit trail of successful deliveries.
package notifier

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/blue-kelp-bio/reactormon/internal/metrics"
	"github.com/blue-kelp-bio/reactormon/internal/models"
	"github.com/blue-kelp-bio/reactormon/internal/storage"
)

// DefaultMaxConcurrent bounds concurrent deliveries per dispatched alert.
const DefaultMaxConcurrent = 5

// Notifier is the interface for a delivery channel.
type Notifier interface {
	// Name returns the channel name (e.g. "email").
	Name() models.NotificationChannel
	// Send delivers one alert to one recipient.
	Send(ctx context.Context, user *models.User, reactor *models.Reactor, alert *models.Alert) error
	// Close releases any resources.
	Close() error
}

// Dispatcher fans an alert out to the users assigned to its reactor.
// Recipients are independent: one failed delivery neither stops the
// others nor surfaces to the caller.
type Dispatcher struct {
	users         storage.UserRepository
	notifications storage.NotificationRepository
	notifier      Notifier
	rateLimiter   *RateLimiter
	maxConcurrent int
	logger        zerolog.Logger
}

// NewDispatcher creates a dispatcher delivering through the given
// notifier. A non-positive maxConcurrent falls back to the default;
// a nil rateLimiter disables rate limiting.
func NewDispatcher(users storage.UserRepository, notifications storage.NotificationRepository, notifier Notifier, rateLimiter *RateLimiter, maxConcurrent int, logger zerolog.Logger) *Dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Dispatcher{
		users:         users,
		notifications: notifications,
		notifier:      notifier,
		rateLimiter:   rateLimiter,
		maxConcurrent: maxConcurrent,
		logger:        logger.With().Str("component", "notifier").Logger(),
	}
}

// DispatchAlert delivers the alert to every active user assigned to the
// reactor. An audit record is written per recipient, only after that
// recipient's delivery succeeded. Never returns an error; problems are
// logged and counted.
func (d *Dispatcher) DispatchAlert(ctx context.Context, reactor *models.Reactor, alert *models.Alert) {
	if d.rateLimiter != nil && !d.rateLimiter.Allow() {
		metrics.NotificationsRateLimited.Inc()
		d.logger.Warn().
			Str("alert_id", alert.ID).
			Str("reactor_id", reactor.ID).
			Msg("alert dispatch rate limited")
		return
	}

	users, err := d.users.ListAssigned(ctx, reactor.ID)
	if err != nil {
		d.logger.Error().Err(err).
			Str("alert_id", alert.ID).
			Str("reactor_id", reactor.ID).
			Msg("resolve recipients")
		return
	}
	if len(users) == 0 {
		d.logger.Debug().
			Str("alert_id", alert.ID).
			Str("reactor_id", reactor.ID).
			Msg("no users assigned, nothing to send")
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.maxConcurrent)

	for _, user := range users {
		g.Go(func() error {
			d.deliver(gctx, user, reactor, alert)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // deliveries never return errors
}

func (d *Dispatcher) deliver(ctx context.Context, user *models.User, reactor *models.Reactor, alert *models.Alert) {
	if err := d.notifier.Send(ctx, user, reactor, alert); err != nil {
		metrics.NotificationsFailed.Inc()
		d.logger.Error().Err(err).
			Str("alert_id", alert.ID).
			Str("user_id", user.ID).
			Str("channel", string(d.notifier.Name())).
			Msg("notification delivery failed")
		return
	}

	metrics.NotificationsSent.Inc()
	d.logger.Info().
		Str("alert_id", alert.ID).
		Str("user_id", user.ID).
		Str("channel", string(d.notifier.Name())).
		Msg("notification delivered")

	record := &models.Notification{
		ID:      uuid.New().String(),
		AlertID: alert.ID,
		UserID:  user.ID,
		Channel: d.notifier.Name(),
		SentAt:  time.Now(),
	}
	if err := d.notifications.Create(ctx, record); err != nil {
		// The email went out; only the audit trail is incomplete.
		d.logger.Error().Err(err).
			Str("alert_id", alert.ID).
			Str("user_id", user.ID).
			Msg("record notification")
	}
}

// Close closes the underlying notifier.
func (d *Dispatcher) Close() error {
	return d.notifier.Close()
}
