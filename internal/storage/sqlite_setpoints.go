package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/blue-kelp-bio/reactormon/internal/models"
)

type sqliteSetpointRepo struct {
	db *sql.DB
}

func (r *sqliteSetpointRepo) Upsert(ctx context.Context, sp *models.Setpoint) error {
	if err := sp.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO setpoints (id, reactor_id, user_id, kind, field_name,
			min_value, max_value, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (reactor_id, kind, field_name, user_id) DO UPDATE SET
			min_value = excluded.min_value,
			max_value = excluded.max_value,
			active = 1,
			updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		sp.ID, sp.ReactorID, sp.UserID, sp.Kind, sp.FieldName,
		nullFloat(sp.Min), nullFloat(sp.Max), boolToInt(sp.Active),
		sp.CreatedAt, sp.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert setpoint: %w", err)
	}
	return nil
}

func (r *sqliteSetpointRepo) GetByID(ctx context.Context, id string) (*models.Setpoint, error) {
	query := `
		SELECT id, reactor_id, user_id, kind, field_name, min_value, max_value,
			active, created_at, updated_at
		FROM setpoints WHERE id = ?
	`
	sp, err := scanSetpoint(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if sp == nil {
		return nil, fmt.Errorf("setpoint %s: %w", id, ErrNotFound)
	}
	return sp, nil
}

func (r *sqliteSetpointRepo) ListActive(ctx context.Context, reactorID string) ([]*models.Setpoint, error) {
	query := `
		SELECT id, reactor_id, user_id, kind, field_name, min_value, max_value,
			active, created_at, updated_at
		FROM setpoints
		WHERE reactor_id = ? AND active = 1
		ORDER BY kind, field_name
	`
	rows, err := r.db.QueryContext(ctx, query, reactorID)
	if err != nil {
		return nil, fmt.Errorf("query setpoints: %w", err)
	}
	defer rows.Close()

	var setpoints []*models.Setpoint
	for rows.Next() {
		sp, err := scanSetpointRow(rows)
		if err != nil {
			return nil, err
		}
		setpoints = append(setpoints, sp)
	}
	return setpoints, rows.Err()
}

func (r *sqliteSetpointRepo) Deactivate(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE setpoints SET active = 0 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deactivate setpoint: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("setpoint %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanSetpoint(row *sql.Row) (*models.Setpoint, error) {
	sp := &models.Setpoint{}
	var minVal, maxVal sql.NullFloat64
	var active int

	err := row.Scan(
		&sp.ID, &sp.ReactorID, &sp.UserID, &sp.Kind, &sp.FieldName,
		&minVal, &maxVal, &active, &sp.CreatedAt, &sp.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan setpoint: %w", err)
	}

	sp.Min = floatPtr(minVal)
	sp.Max = floatPtr(maxVal)
	sp.Active = active != 0
	return sp, nil
}

func scanSetpointRow(rows *sql.Rows) (*models.Setpoint, error) {
	sp := &models.Setpoint{}
	var minVal, maxVal sql.NullFloat64
	var active int

	err := rows.Scan(
		&sp.ID, &sp.ReactorID, &sp.UserID, &sp.Kind, &sp.FieldName,
		&minVal, &maxVal, &active, &sp.CreatedAt, &sp.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan setpoint: %w", err)
	}

	sp.Min = floatPtr(minVal)
	sp.Max = floatPtr(maxVal)
	sp.Active = active != 0
	return sp, nil
}
