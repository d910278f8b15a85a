package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// migrations holds all database migrations in order.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: `
			-- Reactors table
			CREATE TABLE IF NOT EXISTS reactors (
				id TEXT PRIMARY KEY,
				name TEXT UNIQUE NOT NULL,
				location TEXT,
				description TEXT,
				retention_days INTEGER NOT NULL DEFAULT 0,
				active INTEGER NOT NULL DEFAULT 1,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			);

			-- Users table
			CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				username TEXT UNIQUE NOT NULL,
				email TEXT UNIQUE NOT NULL,
				full_name TEXT,
				role TEXT NOT NULL DEFAULT 'viewer',
				active INTEGER NOT NULL DEFAULT 1,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			);

			-- Reactor-User assignment table (many-to-many)
			CREATE TABLE IF NOT EXISTS reactor_users (
				reactor_id TEXT NOT NULL,
				user_id TEXT NOT NULL,
				PRIMARY KEY (reactor_id, user_id),
				FOREIGN KEY (reactor_id) REFERENCES reactors(id) ON DELETE CASCADE,
				FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			);

			-- Setpoints table
			CREATE TABLE IF NOT EXISTS setpoints (
				id TEXT PRIMARY KEY,
				reactor_id TEXT NOT NULL,
				user_id TEXT NOT NULL,
				kind TEXT NOT NULL,
				field_name TEXT NOT NULL,
				min_value REAL,
				max_value REAL,
				active INTEGER NOT NULL DEFAULT 1,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				UNIQUE (reactor_id, kind, field_name, user_id),
				FOREIGN KEY (reactor_id) REFERENCES reactors(id) ON DELETE CASCADE,
				FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			);

			-- Alerts table
			CREATE TABLE IF NOT EXISTS alerts (
				id TEXT PRIMARY KEY,
				reactor_id TEXT NOT NULL,
				setpoint_id TEXT NOT NULL,
				kind TEXT NOT NULL,
				field_name TEXT NOT NULL,
				current_value REAL NOT NULL,
				threshold_value REAL NOT NULL,
				threshold_type TEXT NOT NULL,
				severity TEXT NOT NULL,
				message TEXT NOT NULL,
				acknowledged INTEGER NOT NULL DEFAULT 0,
				acknowledged_by TEXT,
				acknowledged_at DATETIME,
				created_at DATETIME NOT NULL,
				FOREIGN KEY (reactor_id) REFERENCES reactors(id) ON DELETE CASCADE
			);

			-- Notifications table (append-only audit trail)
			CREATE TABLE IF NOT EXISTS notifications (
				id TEXT PRIMARY KEY,
				alert_id TEXT NOT NULL,
				user_id TEXT NOT NULL,
				channel TEXT NOT NULL,
				sent_at DATETIME NOT NULL,
				FOREIGN KEY (alert_id) REFERENCES alerts(id) ON DELETE CASCADE
			);

			-- Indexes
			CREATE INDEX IF NOT EXISTS idx_reactors_active ON reactors(active);
			CREATE INDEX IF NOT EXISTS idx_setpoints_reactor ON setpoints(reactor_id, active);
			CREATE INDEX IF NOT EXISTS idx_alerts_reactor_created ON alerts(reactor_id, created_at);
			CREATE INDEX IF NOT EXISTS idx_alerts_ack_created ON alerts(acknowledged, created_at);
			CREATE INDEX IF NOT EXISTS idx_notifications_alert ON notifications(alert_id);
		`,
	},
}

// runMigrations applies all pending migrations.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, time.Now(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
