package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/agentry/agentry/pkg/engine"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the engine audit store and the domain record store
// on a single SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
	cfg  Config
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{
		path: cfg.Path,
		cfg:  cfg,
	}, nil
}

// Init opens the database connection, enables WAL mode, and verifies
// connectivity.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	maxOpen := s.cfg.MaxOpenConns
	if strings.Contains(s.path, ":memory:") {
		// Each in-memory connection is a distinct database; a pool larger
		// than one would scatter the schema across connections.
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs the embedded schema migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

// CreateExecution persists a new execution record.
func (s *SQLiteStore) CreateExecution(ctx context.Context, rec *engine.ExecutionRecord) error {
	query := `
		INSERT INTO executions (
			id, category, handler_name, organization_id, project_id, correlation,
			status, input, output, confidence, error, tokens_used, requested_by,
			started_at, completed_at, execution_time_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.Category,
		rec.HandlerName,
		rec.OrganizationID,
		rec.ProjectID,
		rec.Correlation,
		rec.Status,
		rec.Input,
		rec.Output,
		rec.Confidence,
		rec.Error,
		rec.TokensUsed,
		rec.RequestedBy,
		rec.StartedAt,
		rec.CompletedAt,
		rec.ExecutionTimeMs,
		rec.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}

	return nil
}

// UpdateExecution applies the finalization patch to an execution record.
func (s *SQLiteStore) UpdateExecution(ctx context.Context, id string, patch engine.ExecutionPatch) error {
	query := `
		UPDATE executions
		SET status = ?, output = ?, confidence = ?, error = ?, tokens_used = ?,
			completed_at = ?, execution_time_ms = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		patch.Status,
		patch.Output,
		patch.Confidence,
		patch.Error,
		patch.TokensUsed,
		patch.CompletedAt,
		patch.ExecutionTimeMs,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update execution: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("execution not found: %s", id)
	}

	return nil
}

// GetExecution retrieves an execution record by id.
func (s *SQLiteStore) GetExecution(ctx context.Context, id string) (*engine.ExecutionRecord, error) {
	query := executionSelect + ` WHERE id = ?`

	rec, err := scanExecution(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("execution not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}

	return rec, nil
}

// ListExecutions returns execution records matching the filter, newest first.
func (s *SQLiteStore) ListExecutions(ctx context.Context, filter engine.Filter) ([]*engine.ExecutionRecord, error) {
	conds := []string{}
	args := []any{}

	if filter.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.OrganizationID != "" {
		conds = append(conds, "organization_id = ?")
		args = append(args, filter.OrganizationID)
	}
	if filter.ProjectID != "" {
		conds = append(conds, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}

	query := executionSelect
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = engine.DefaultHistoryLimit
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	recs := []*engine.ExecutionRecord{}
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return recs, nil
}

const executionSelect = `
	SELECT id, category, handler_name, organization_id, project_id, correlation,
	       status, input, output, confidence, error, tokens_used, requested_by,
	       started_at, completed_at, execution_time_ms, created_at
	FROM executions`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (*engine.ExecutionRecord, error) {
	rec := &engine.ExecutionRecord{}
	err := row.Scan(
		&rec.ID,
		&rec.Category,
		&rec.HandlerName,
		&rec.OrganizationID,
		&rec.ProjectID,
		&rec.Correlation,
		&rec.Status,
		&rec.Input,
		&rec.Output,
		&rec.Confidence,
		&rec.Error,
		&rec.TokensUsed,
		&rec.RequestedBy,
		&rec.StartedAt,
		&rec.CompletedAt,
		&rec.ExecutionTimeMs,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// UpsertRecord inserts or replaces a domain record by id.
func (s *SQLiteStore) UpsertRecord(ctx context.Context, rec *DomainRecord) error {
	query := `
		INSERT INTO domain_records (
			id, kind, organization_id, project_id, severity, payload, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			organization_id = excluded.organization_id,
			project_id = excluded.project_id,
			severity = excluded.severity,
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.Kind,
		rec.OrganizationID,
		rec.ProjectID,
		rec.Severity,
		rec.Payload,
		rec.CreatedAt,
		rec.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert domain record: %w", err)
	}

	return nil
}

// GetRecord retrieves a domain record by id.
func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*DomainRecord, error) {
	query := `
		SELECT id, kind, organization_id, project_id, severity, payload, created_at, updated_at
		FROM domain_records
		WHERE id = ?
	`

	rec := &DomainRecord{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID,
		&rec.Kind,
		&rec.OrganizationID,
		&rec.ProjectID,
		&rec.Severity,
		&rec.Payload,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("domain record not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get domain record: %w", err)
	}

	return rec, nil
}

// ListRecords returns domain records matching the filter, newest first.
func (s *SQLiteStore) ListRecords(ctx context.Context, filter RecordFilter) ([]*DomainRecord, error) {
	query := `
		SELECT id, kind, organization_id, project_id, severity, payload, created_at, updated_at
		FROM domain_records
	`
	conds, args := recordFilterConds(filter)
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY updated_at DESC, id DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list domain records: %w", err)
	}
	defer rows.Close()

	recs := []*DomainRecord{}
	for rows.Next() {
		rec := &DomainRecord{}
		err := rows.Scan(
			&rec.ID,
			&rec.Kind,
			&rec.OrganizationID,
			&rec.ProjectID,
			&rec.Severity,
			&rec.Payload,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan domain record: %w", err)
		}
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating domain records: %w", err)
	}

	return recs, nil
}

// CountRecords returns the number of domain records matching the filter.
func (s *SQLiteStore) CountRecords(ctx context.Context, filter RecordFilter) (int, error) {
	query := `SELECT COUNT(*) FROM domain_records`
	conds, args := recordFilterConds(filter)
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count domain records: %w", err)
	}

	return count, nil
}

// DeleteRecord deletes a domain record by id.
func (s *SQLiteStore) DeleteRecord(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM domain_records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete domain record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("domain record not found: %s", id)
	}

	return nil
}

func recordFilterConds(filter RecordFilter) ([]string, []any) {
	conds := []string{}
	args := []any{}

	if filter.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, filter.Kind)
	}
	if filter.OrganizationID != "" {
		conds = append(conds, "organization_id = ?")
		args = append(args, filter.OrganizationID)
	}
	if filter.ProjectID != "" {
		conds = append(conds, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.Severity != "" {
		conds = append(conds, "severity = ?")
		args = append(args, filter.Severity)
	}

	return conds, args
}
