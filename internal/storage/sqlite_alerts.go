package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/blue-kelp-bio/reactormon/internal/models"
)

type sqliteAlertRepo struct {
	db *sql.DB
}

const alertColumns = `id, reactor_id, setpoint_id, kind, field_name,
	current_value, threshold_value, threshold_type, severity, message,
	acknowledged, acknowledged_by, acknowledged_at, created_at`

func (r *sqliteAlertRepo) Create(ctx context.Context, alert *models.Alert) error {
	query := `
		INSERT INTO alerts (` + alertColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	var ackAt interface{}
	if alert.AcknowledgedAt != nil {
		ackAt = *alert.AcknowledgedAt
	}
	_, err := r.db.ExecContext(ctx, query,
		alert.ID, alert.ReactorID, alert.SetpointID, alert.Kind, alert.FieldName,
		alert.CurrentValue, alert.ThresholdValue, alert.ThresholdType,
		alert.Severity, alert.Message,
		boolToInt(alert.Acknowledged), nullString(alert.AcknowledgedBy), ackAt,
		alert.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (r *sqliteAlertRepo) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = ?`
	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("query alert: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	return scanAlertRow(rows)
}

func (r *sqliteAlertRepo) ListByReactor(ctx context.Context, reactorID string, limit int) ([]*models.Alert, error) {
	query := `
		SELECT ` + alertColumns + ` FROM alerts
		WHERE reactor_id = ?
		ORDER BY created_at DESC LIMIT ?
	`
	return r.queryAlerts(ctx, query, reactorID, limit)
}

func (r *sqliteAlertRepo) ListRecentUnacknowledged(ctx context.Context, reactorID string, limit int) ([]*models.Alert, error) {
	query := `
		SELECT ` + alertColumns + ` FROM alerts
		WHERE reactor_id = ? AND acknowledged = 0
		ORDER BY created_at DESC LIMIT ?
	`
	return r.queryAlerts(ctx, query, reactorID, limit)
}

func (r *sqliteAlertRepo) Acknowledge(ctx context.Context, id, userID string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE alerts SET acknowledged = 1, acknowledged_by = ?, acknowledged_at = ?
		WHERE id = ? AND acknowledged = 0
	`, userID, time.Now(), id)
	if err != nil {
		return fmt.Errorf("acknowledge alert: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *sqliteAlertRepo) DeleteAcknowledgedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM alerts WHERE acknowledged = 1 AND created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete acknowledged alerts: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return rows, nil
}

func (r *sqliteAlertRepo) queryAlerts(ctx context.Context, query string, args ...interface{}) ([]*models.Alert, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		alert, err := scanAlertRow(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

func scanAlertRow(rows *sql.Rows) (*models.Alert, error) {
	alert := &models.Alert{}
	var acknowledged int
	var ackBy sql.NullString
	var ackAt sql.NullTime

	err := rows.Scan(
		&alert.ID, &alert.ReactorID, &alert.SetpointID, &alert.Kind, &alert.FieldName,
		&alert.CurrentValue, &alert.ThresholdValue, &alert.ThresholdType,
		&alert.Severity, &alert.Message,
		&acknowledged, &ackBy, &ackAt, &alert.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan alert: %w", err)
	}

	alert.Acknowledged = acknowledged != 0
	alert.AcknowledgedBy = ackBy.String
	if ackAt.Valid {
		t := ackAt.Time
		alert.AcknowledgedAt = &t
	}
	return alert, nil
}
