package operations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/appkins-org/gceapi/pkg/gce"

	// SQLite driver
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when an operation does not exist in the store.
var ErrNotFound = errors.New("operation not found")

const schema = `
CREATE TABLE IF NOT EXISTS operations (
	name           TEXT PRIMARY KEY,
	operation_type TEXT NOT NULL,
	target_link    TEXT NOT NULL,
	target_id      TEXT NOT NULL,
	project        TEXT NOT NULL,
	zone           TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL,
	progress       INTEGER NOT NULL DEFAULT 0,
	user           TEXT NOT NULL DEFAULT '',
	insert_time    TEXT NOT NULL,
	start_time     TEXT NOT NULL,
	end_time       TEXT,
	error_code     TEXT,
	error_message  TEXT,
	http_status    INTEGER
);
CREATE INDEX IF NOT EXISTS idx_operations_scope ON operations (project, zone);
`

// Store persists operation records in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a store for the database at path. ":memory:" keeps the
// records in memory.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Init opens the database and creates the schema.
func (s *Store) Init(ctx context.Context) error {
	if s.path == "" {
		return fmt.Errorf("database path is required")
	}

	dsn := s.path
	if s.path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", s.path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serialises writers and keeps in-memory databases
	// shared across calls.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Create inserts a new operation record.
func (s *Store) Create(ctx context.Context, rec *Record) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO operations (name, operation_type, target_link, target_id, project, zone,
			status, progress, user, insert_time, start_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.Name,
		rec.OperationType,
		rec.TargetLink,
		rec.TargetID,
		rec.Scope.Project,
		rec.Scope.Zone,
		rec.Status,
		rec.Progress,
		rec.User,
		rec.InsertTime,
		rec.StartTime,
	)
	if err != nil {
		return fmt.Errorf("failed to create operation: %w", err)
	}

	return nil
}

// Complete marks the operation name as done, recording failure if set.
func (s *Store) Complete(ctx context.Context, name, endTime string, failure *Failure) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	var code, message sql.NullString
	var status sql.NullInt64
	if failure != nil {
		code = sql.NullString{String: failure.Code, Valid: true}
		message = sql.NullString{String: failure.Message, Valid: true}
		status = sql.NullInt64{Int64: int64(failure.HTTPStatus), Valid: true}
	}

	query := `
		UPDATE operations
		SET status = ?, progress = 100, end_time = ?, error_code = ?, error_message = ?, http_status = ?
		WHERE name = ?
	`

	result, err := s.db.ExecContext(ctx, query, StatusDone, endTime, code, message, status, name)
	if err != nil {
		return fmt.Errorf("failed to complete operation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	return nil
}

// Get retrieves the operation name within scope.
func (s *Store) Get(ctx context.Context, scope gce.Scope, name string) (*Record, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT name, operation_type, target_link, target_id, project, zone, status, progress,
			user, insert_time, start_time, end_time, error_code, error_message, http_status
		FROM operations
		WHERE name = ? AND project = ? AND zone = ?
	`

	rec := &Record{}
	var endTime, code, message sql.NullString
	var status sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, name, scope.Project, scope.Zone).Scan(
		&rec.Name,
		&rec.OperationType,
		&rec.TargetLink,
		&rec.TargetID,
		&rec.Scope.Project,
		&rec.Scope.Zone,
		&rec.Status,
		&rec.Progress,
		&rec.User,
		&rec.InsertTime,
		&rec.StartTime,
		&endTime,
		&code,
		&message,
		&status,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}

	rec.EndTime = endTime.String
	if code.Valid {
		rec.Failure = &Failure{
			Code:       code.String,
			Message:    message.String,
			HTTPStatus: int(status.Int64),
		}
	}

	return rec, nil
}
