package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/blue-kelp-bio/reactormon/internal/models"
)

type sqliteNotificationRepo struct {
	db *sql.DB
}

func (r *sqliteNotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (id, alert_id, user_id, channel, sent_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query, n.ID, n.AlertID, n.UserID, n.Channel, n.SentAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *sqliteNotificationRepo) ListByAlert(ctx context.Context, alertID string) ([]*models.Notification, error) {
	query := `
		SELECT id, alert_id, user_id, channel, sent_at
		FROM notifications WHERE alert_id = ? ORDER BY sent_at
	`
	rows, err := r.db.QueryContext(ctx, query, alertID)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		n := &models.Notification{}
		if err := rows.Scan(&n.ID, &n.AlertID, &n.UserID, &n.Channel, &n.SentAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}
