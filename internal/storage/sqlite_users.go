package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/blue-kelp-bio/reactormon/internal/models"
)

type sqliteUserRepo struct {
	db *sql.DB
}

func (r *sqliteUserRepo) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, username, email, full_name, role, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Username, user.Email, nullString(user.FullName),
		user.Role, boolToInt(user.Active), user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *sqliteUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `
		SELECT id, username, email, full_name, role, active, created_at, updated_at
		FROM users WHERE id = ?
	`
	user := &models.User{}
	var fullName sql.NullString
	var active int

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID, &user.Username, &user.Email, &fullName,
		&user.Role, &active, &user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}

	user.FullName = fullName.String
	user.Active = active != 0
	return user, nil
}

func (r *sqliteUserRepo) Assign(ctx context.Context, reactorID, userID string) error {
	query := `
		INSERT INTO reactor_users (reactor_id, user_id)
		VALUES (?, ?)
		ON CONFLICT (reactor_id, user_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, reactorID, userID); err != nil {
		return fmt.Errorf("assign user: %w", err)
	}
	return nil
}

func (r *sqliteUserRepo) Unassign(ctx context.Context, reactorID, userID string) error {
	query := `DELETE FROM reactor_users WHERE reactor_id = ? AND user_id = ?`
	if _, err := r.db.ExecContext(ctx, query, reactorID, userID); err != nil {
		return fmt.Errorf("unassign user: %w", err)
	}
	return nil
}

func (r *sqliteUserRepo) ListAssigned(ctx context.Context, reactorID string) ([]*models.User, error) {
	query := `
		SELECT u.id, u.username, u.email, u.full_name, u.role, u.active, u.created_at, u.updated_at
		FROM users u
		JOIN reactor_users ru ON ru.user_id = u.id
		WHERE ru.reactor_id = ? AND u.active = 1
		ORDER BY u.username
	`
	rows, err := r.db.QueryContext(ctx, query, reactorID)
	if err != nil {
		return nil, fmt.Errorf("query assigned users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user := &models.User{}
		var fullName sql.NullString
		var active int

		if err := rows.Scan(
			&user.ID, &user.Username, &user.Email, &fullName,
			&user.Role, &active, &user.CreatedAt, &user.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}

		user.FullName = fullName.String
		user.Active = active != 0
		users = append(users, user)
	}
	return users, rows.Err()
}
