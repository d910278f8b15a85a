package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/blue-kelp-bio/reactormon/internal/models"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	// Addresses are the ClickHouse server addresses (host:port).
	Addresses []string

	// Database is the ClickHouse database name.
	Database string

	// Username for authentication.
	Username string

	// Password for authentication.
	Password string

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int

	// DialTimeout is the connection timeout.
	DialTimeout time.Duration

	// Compression enables LZ4 compression.
	Compression bool
}

// ClickHouseTelemetry implements TelemetryStorage for ClickHouse.
type ClickHouseTelemetry struct {
	config *ClickHouseConfig
	db     *sql.DB
}

// NewClickHouseTelemetry creates a new ClickHouse telemetry store.
func NewClickHouseTelemetry(config *ClickHouseConfig) *ClickHouseTelemetry {
	if config.MaxOpenConns == 0 {
		config.MaxOpenConns = 5
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 5
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 5 * time.Second
	}

	return &ClickHouseTelemetry{config: config}
}

// Open initializes the ClickHouse connection.
func (s *ClickHouseTelemetry) Open() error {
	opts := &clickhouse.Options{
		Addr: s.config.Addresses,
		Auth: clickhouse.Auth{
			Database: s.config.Database,
			Username: s.config.Username,
			Password: s.config.Password,
		},
		DialTimeout:  s.config.DialTimeout,
		MaxOpenConns: s.config.MaxOpenConns,
		MaxIdleConns: s.config.MaxIdleConns,
	}

	if s.config.Compression {
		opts.Compression = &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		}
	}

	db := clickhouse.OpenDB(opts)

	ctx, cancel := context.WithTimeout(context.Background(), s.config.DialTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping clickhouse: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *ClickHouseTelemetry) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Migrate creates the telemetry table if it doesn't exist. Row lifecycle
// is driven by the retention sweeper, not a table TTL, because the window
// differs per reactor.
func (s *ClickHouseTelemetry) Migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	createTable := `
		CREATE TABLE IF NOT EXISTS telemetry (
			reactor_id String,
			kind LowCardinality(String),
			timestamp DateTime64(3, 'UTC'),
			fields String,
			_date Date DEFAULT toDate(timestamp)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(_date)
		ORDER BY (reactor_id, kind, timestamp)
		SETTINGS index_granularity = 8192
	`

	if _, err := s.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("create telemetry table: %w", err)
	}
	return nil
}

// Insert stores one telemetry sample.
func (s *ClickHouseTelemetry) Insert(ctx context.Context, sample *models.Sample) error {
	fieldsJSON, err := json.Marshal(sample.Fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}

	query := `
		INSERT INTO telemetry (reactor_id, kind, timestamp, fields)
		VALUES (?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query,
		sample.ReactorID, string(sample.Kind), sample.Timestamp, string(fieldsJSON),
	); err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

// LatestSample returns the most recent sample for (reactor, kind), or nil
// when the reactor has not reported that stream yet.
func (s *ClickHouseTelemetry) LatestSample(ctx context.Context, reactorID string, kind models.StreamKind) (*models.Sample, error) {
	query := `
		SELECT timestamp, fields
		FROM telemetry
		WHERE reactor_id = ? AND kind = ?
		ORDER BY timestamp DESC
		LIMIT 1
	`

	var ts time.Time
	var fieldsJSON string
	err := s.db.QueryRowContext(ctx, query, reactorID, string(kind)).Scan(&ts, &fieldsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest sample: %w", err)
	}

	sample := &models.Sample{
		ReactorID: reactorID,
		Kind:      kind,
		Timestamp: ts,
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &sample.Fields); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return sample, nil
}

// DeleteBefore removes samples strictly older than cutoff for (reactor,
// kind). ClickHouse deletes don't report affected rows, so the rows are
// counted first; the count can drift slightly if inserts race the delete.
func (s *ClickHouseTelemetry) DeleteBefore(ctx context.Context, reactorID string, kind models.StreamKind, cutoff time.Time) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT count()
		FROM telemetry
		WHERE reactor_id = ? AND kind = ? AND timestamp < ?
	`, reactorID, string(kind), cutoff).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count old samples: %w", err)
	}
	if count == 0 {
		return 0, nil
	}

	_, err = s.db.ExecContext(ctx, `
		DELETE FROM telemetry
		WHERE reactor_id = ? AND kind = ? AND timestamp < ?
	`, reactorID, string(kind), cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old samples: %w", err)
	}
	return count, nil
}
