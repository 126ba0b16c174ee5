package execution

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// Repository persists executions, schema versions and rollback points.
// It holds the full sqlx connection because the current-version swap
// requires a transaction.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a new Repository.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

//go:embed migrations/*.sql
var migrations embed.FS

// Migrations returns the bootstrap schema for the execution tables.
func (r *Repository) Migrations() fs.FS {
	m, _ := fs.Sub(migrations, "migrations")
	return m
}

// Create inserts a new execution record.
func (r *Repository) Create(ctx context.Context, exec *Execution) error {
	query := `
		INSERT INTO migration_executions (
			id, migration_id, start_time, end_time, status, executor,
			environment, error_message, duration_ms, rows_affected, success
		) VALUES (
			:id, :migration_id, :start_time, :end_time, :status, :executor,
			:environment, :error_message, :duration_ms, :rows_affected, :success
		)
	`
	_, err := r.db.NamedExecContext(ctx, query, exec)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrAlreadyRunning
		}
		return fmt.Errorf("failed to create execution: %w", err)
	}
	return nil
}

// FailActive finalizes any pending or running execution of a migration as
// failed with the given message. Used by forced executions to supersede a
// stuck record before inserting a new one.
func (r *Repository) FailActive(ctx context.Context, migrationID, message string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE migration_executions
		SET status = 'failed', end_time = NOW(), error_message = $2
		WHERE migration_id = $1 AND status IN ('pending', 'running')
	`, migrationID, message)
	if err != nil {
		return fmt.Errorf("failed to supersede active executions: %w", err)
	}
	return nil
}

// Finish stores the terminal state of an execution.
func (r *Repository) Finish(ctx context.Context, exec *Execution) error {
	query := `
		UPDATE migration_executions
		SET end_time = :end_time, status = :status, error_message = :error_message,
		    duration_ms = :duration_ms, rows_affected = :rows_affected, success = :success
		WHERE id = :id
	`
	_, err := r.db.NamedExecContext(ctx, query, exec)
	if err != nil {
		return fmt.Errorf("failed to finish execution: %w", err)
	}
	return nil
}

// HasActive reports whether the migration has a pending or running execution.
func (r *Repository) HasActive(ctx context.Context, migrationID string) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM migration_executions WHERE migration_id = $1 AND status IN ('pending', 'running')",
		migrationID)
	if err != nil {
		return false, fmt.Errorf("failed to check active executions: %w", err)
	}
	return count > 0, nil
}

// ByMigration returns all executions of a migration, newest first.
func (r *Repository) ByMigration(ctx context.Context, migrationID string) ([]Execution, error) {
	var execs []Execution
	err := r.db.SelectContext(ctx, &execs,
		"SELECT * FROM migration_executions WHERE migration_id = $1 ORDER BY start_time DESC",
		migrationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	return execs, nil
}

// LatestCompleted returns the most recent completed execution of a migration.
func (r *Repository) LatestCompleted(ctx context.Context, migrationID string) (*Execution, error) {
	var exec Execution
	err := r.db.GetContext(ctx, &exec,
		"SELECT * FROM migration_executions WHERE migration_id = $1 AND status = 'completed' ORDER BY start_time DESC LIMIT 1",
		migrationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest completed execution: %w", err)
	}
	return &exec, nil
}

// MarkRolledBack flips a completed execution to rolled_back. The rollback
// manager is the only caller.
func (r *Repository) MarkRolledBack(ctx context.Context, executionID string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE migration_executions SET status = 'rolled_back' WHERE id = $1 AND status = 'completed'",
		executionID)
	if err != nil {
		return fmt.Errorf("failed to mark execution rolled back: %w", err)
	}
	rows, err := res.RowsAffected()
	if err == nil && rows == 0 {
		return ErrNotFound
	}
	return nil
}

// StatsByMigration derives run counters for one migration.
func (r *Repository) StatsByMigration(ctx context.Context, migrationID string) (*Stats, error) {
	var stats Stats
	err := r.db.GetContext(ctx, &stats, `
		SELECT COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE status = 'completed') AS succeeded,
		       COUNT(*) FILTER (WHERE status = 'failed') AS failed,
		       MAX(start_time) AS last_run_at
		FROM migration_executions
		WHERE migration_id = $1
	`, migrationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get execution stats: %w", err)
	}
	return &stats, nil
}

// SetCurrentVersion records a new current schema version and deprecates all
// others inside one transaction, so "exactly one current" holds at every
// observable point.
func (r *Repository) SetCurrentVersion(ctx context.Context, version *SchemaVersion) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin version transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, "UPDATE schema_versions SET status = 'deprecated' WHERE status = 'current'")
	if err != nil {
		return fmt.Errorf("failed to deprecate previous versions: %w", err)
	}

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO schema_versions (version, description, applied_at, checksum, migration_id, status)
		VALUES (:version, :description, :applied_at, :checksum, :migration_id, :status)
	`, version)
	if err != nil {
		return fmt.Errorf("failed to insert schema version: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit version transaction: %w", err)
	}
	return nil
}

// CurrentVersion returns the single current schema version, or nil when the
// database has never been migrated.
func (r *Repository) CurrentVersion(ctx context.Context) (*SchemaVersion, error) {
	var version SchemaVersion
	err := r.db.GetContext(ctx, &version, "SELECT * FROM schema_versions WHERE status = 'current'")
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get current schema version: %w", err)
	}
	return &version, nil
}

// CreateRollbackPoint stores a snapshot reference for a completed execution.
func (r *Repository) CreateRollbackPoint(ctx context.Context, point *RollbackPoint) error {
	query := `
		INSERT INTO rollback_points (id, migration_execution_id, created_at, snapshot)
		VALUES (:id, :migration_execution_id, :created_at, :snapshot)
	`
	_, err := r.db.NamedExecContext(ctx, query, point)
	if err != nil {
		return fmt.Errorf("failed to create rollback point: %w", err)
	}
	return nil
}

// LatestRollbackPoint returns the newest rollback point for an execution.
func (r *Repository) LatestRollbackPoint(ctx context.Context, executionID string) (*RollbackPoint, error) {
	var point RollbackPoint
	err := r.db.GetContext(ctx, &point,
		"SELECT * FROM rollback_points WHERE migration_execution_id = $1 ORDER BY created_at DESC LIMIT 1",
		executionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get rollback point: %w", err)
	}
	return &point, nil
}

// StatusCounts aggregates execution statuses over a period.
type StatusCounts struct {
	Total      int `db:"total"`
	Completed  int `db:"completed"`
	Failed     int `db:"failed"`
	Running    int `db:"running"`
	RolledBack int `db:"rolled_back"`
}

// CountSince aggregates execution statuses since the given time.
func (r *Repository) CountSince(ctx context.Context, since time.Time) (StatusCounts, error) {
	var counts StatusCounts
	err := r.db.GetContext(ctx, &counts, `
		SELECT COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE status = 'completed') AS completed,
		       COUNT(*) FILTER (WHERE status = 'failed') AS failed,
		       COUNT(*) FILTER (WHERE status IN ('pending', 'running')) AS running,
		       COUNT(*) FILTER (WHERE status = 'rolled_back') AS rolled_back
		FROM migration_executions
		WHERE start_time >= $1
	`, since)
	if err != nil {
		return StatusCounts{}, fmt.Errorf("failed to count executions: %w", err)
	}
	return counts, nil
}

// DeleteCompletedBefore removes completed executions older than the cutoff.
// Failed and rolled back executions are kept as an audit trail.
func (r *Repository) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM migration_executions WHERE status = 'completed' AND start_time < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old executions: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return rows, nil
}

// DeleteOrphanRollbackPoints removes rollback points whose execution no
// longer exists.
func (r *Repository) DeleteOrphanRollbackPoints(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM rollback_points p
		WHERE NOT EXISTS (
			SELECT 1 FROM migration_executions e WHERE e.id = p.migration_execution_id
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete orphan rollback points: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return rows, nil
}
