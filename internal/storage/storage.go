// Package storage provides database storage interfaces and implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/blue-kelp-bio/reactormon/internal/models"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Storage is the main interface for metadata database operations.
type Storage interface {
	// Open initializes the database connection.
	Open() error
	// Close closes the database connection.
	Close() error
	// Migrate runs database migrations.
	Migrate() error

	// Repository accessors
	Reactors() ReactorRepository
	Users() UserRepository
	Setpoints() SetpointRepository
	Alerts() AlertRepository
	Notifications() NotificationRepository
}

// ReactorRepository defines operations for reactor records.
type ReactorRepository interface {
	Create(ctx context.Context, reactor *models.Reactor) error
	GetByID(ctx context.Context, id string) (*models.Reactor, error)
	ListActive(ctx context.Context) ([]*models.Reactor, error)
	Update(ctx context.Context, reactor *models.Reactor) error
}

// UserRepository defines operations for user records and reactor assignments.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	Assign(ctx context.Context, reactorID, userID string) error
	Unassign(ctx context.Context, reactorID, userID string) error
	// ListAssigned returns the active users assigned to a reactor.
	ListAssigned(ctx context.Context, reactorID string) ([]*models.User, error)
}

// SetpointRepository defines operations for threshold rules.
type SetpointRepository interface {
	// Upsert inserts a setpoint, or updates the bounds and reactivates it
	// when one already exists for (reactor, kind, field, user).
	Upsert(ctx context.Context, setpoint *models.Setpoint) error
	GetByID(ctx context.Context, id string) (*models.Setpoint, error)
	// ListActive returns a reactor's active setpoints ordered by stream
	// kind then field name, giving sweeps a stable evaluation order.
	ListActive(ctx context.Context, reactorID string) ([]*models.Setpoint, error)
	Deactivate(ctx context.Context, id string) error
}

// AlertRepository defines operations for alert records.
type AlertRepository interface {
	Create(ctx context.Context, alert *models.Alert) error
	GetByID(ctx context.Context, id string) (*models.Alert, error)
	ListByReactor(ctx context.Context, reactorID string, limit int) ([]*models.Alert, error)
	// ListRecentUnacknowledged returns the newest unacknowledged alerts
	// for a reactor, newest first, bounded by limit.
	ListRecentUnacknowledged(ctx context.Context, reactorID string, limit int) ([]*models.Alert, error)
	Acknowledge(ctx context.Context, id, userID string) error
	// DeleteAcknowledgedBefore removes acknowledged alerts created before
	// the cutoff, across all reactors, and returns the number deleted.
	DeleteAcknowledgedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NotificationRepository defines operations for the notification audit trail.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	ListByAlert(ctx context.Context, alertID string) ([]*models.Notification, error)
}

// TelemetryStorage defines operations for the telemetry sample store.
type TelemetryStorage interface {
	Open() error
	Close() error
	Migrate() error

	Insert(ctx context.Context, sample *models.Sample) error
	// LatestSample returns the most recent sample for (reactor, kind),
	// or nil when the reactor has not reported that stream yet.
	LatestSample(ctx context.Context, reactorID string, kind models.StreamKind) (*models.Sample, error)
	// DeleteBefore removes samples strictly older than cutoff for
	// (reactor, kind) and returns the number of rows removed.
	DeleteBefore(ctx context.Context, reactorID string, kind models.StreamKind, cutoff time.Time) (int64, error)
}
