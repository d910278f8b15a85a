package storage

import (
	"context"
	"database/sql"
	"fmt"

	// Pure-Go SQLite driver.
	_ "modernc.org/sqlite"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	path string
	db   *sql.DB

	reactors      *sqliteReactorRepo
	users         *sqliteUserRepo
	setpoints     *sqliteSetpointRepo
	alerts        *sqliteAlertRepo
	notifications *sqliteNotificationRepo
}

// NewSQLiteStorage creates a new SQLite storage.
func NewSQLiteStorage(path string) *SQLiteStorage {
	return &SQLiteStorage{path: path}
}

// Open initializes the database connection.
func (s *SQLiteStorage) Open() error {
	ctx := context.Background()

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	// SQLite is single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	s.db = db

	s.reactors = &sqliteReactorRepo{db: db}
	s.users = &sqliteUserRepo{db: db}
	s.setpoints = &sqliteSetpointRepo{db: db}
	s.alerts = &sqliteAlertRepo{db: db}
	s.notifications = &sqliteNotificationRepo{db: db}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying database connection for health checks.
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// Migrate runs database migrations.
func (s *SQLiteStorage) Migrate() error {
	return runMigrations(s.db)
}

// Reactors returns the reactor repository.
func (s *SQLiteStorage) Reactors() ReactorRepository { return s.reactors }

// Users returns the user repository.
func (s *SQLiteStorage) Users() UserRepository { return s.users }

// Setpoints returns the setpoint repository.
func (s *SQLiteStorage) Setpoints() SetpointRepository { return s.setpoints }

// Alerts returns the alert repository.
func (s *SQLiteStorage) Alerts() AlertRepository { return s.alerts }

// Notifications returns the notification repository.
func (s *SQLiteStorage) Notifications() NotificationRepository { return s.notifications }

// Helper functions shared by the repositories.

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}
