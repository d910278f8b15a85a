package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/blue-kelp-bio/reactormon/internal/models"
)

type sqliteReactorRepo struct {
	db *sql.DB
}

func (r *sqliteReactorRepo) Create(ctx context.Context, reactor *models.Reactor) error {
	query := `
		INSERT INTO reactors (id, name, location, description, retention_days, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		reactor.ID, reactor.Name, nullString(reactor.Location), nullString(reactor.Description),
		reactor.RetentionDays, boolToInt(reactor.Active),
		reactor.CreatedAt, reactor.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reactor: %w", err)
	}
	return nil
}

func (r *sqliteReactorRepo) GetByID(ctx context.Context, id string) (*models.Reactor, error) {
	query := `
		SELECT id, name, location, description, retention_days, active, created_at, updated_at
		FROM reactors WHERE id = ?
	`
	reactor, err := scanReactor(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if reactor == nil {
		return nil, fmt.Errorf("reactor %s: %w", id, ErrNotFound)
	}
	return reactor, nil
}

func (r *sqliteReactorRepo) ListActive(ctx context.Context) ([]*models.Reactor, error) {
	query := `
		SELECT id, name, location, description, retention_days, active, created_at, updated_at
		FROM reactors WHERE active = 1 ORDER BY name
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query reactors: %w", err)
	}
	defer rows.Close()

	var reactors []*models.Reactor
	for rows.Next() {
		reactor, err := scanReactorRow(rows)
		if err != nil {
			return nil, err
		}
		reactors = append(reactors, reactor)
	}
	return reactors, rows.Err()
}

func (r *sqliteReactorRepo) Update(ctx context.Context, reactor *models.Reactor) error {
	query := `
		UPDATE reactors SET name = ?, location = ?, description = ?,
			retention_days = ?, active = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		reactor.Name, nullString(reactor.Location), nullString(reactor.Description),
		reactor.RetentionDays, boolToInt(reactor.Active), reactor.UpdatedAt,
		reactor.ID,
	)
	if err != nil {
		return fmt.Errorf("update reactor: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("reactor %s: %w", reactor.ID, ErrNotFound)
	}
	return nil
}

func scanReactor(row *sql.Row) (*models.Reactor, error) {
	reactor := &models.Reactor{}
	var location, description sql.NullString
	var active int

	err := row.Scan(
		&reactor.ID, &reactor.Name, &location, &description,
		&reactor.RetentionDays, &active, &reactor.CreatedAt, &reactor.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan reactor: %w", err)
	}

	reactor.Location = location.String
	reactor.Description = description.String
	reactor.Active = active != 0
	return reactor, nil
}

func scanReactorRow(rows *sql.Rows) (*models.Reactor, error) {
	reactor := &models.Reactor{}
	var location, description sql.NullString
	var active int

	err := rows.Scan(
		&reactor.ID, &reactor.Name, &location, &description,
		&reactor.RetentionDays, &active, &reactor.CreatedAt, &reactor.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan reactor: %w", err)
	}

	reactor.Location = location.String
	reactor.Description = description.String
	reactor.Active = active != 0
	return reactor, nil
}
