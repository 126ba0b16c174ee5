package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/lib/pq"
)

type db interface {
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Repository persists migration definitions and their tests.
type Repository struct {
	db db
}

// NewRepository creates a new Repository.
func NewRepository(db db) *Repository {
	return &Repository{
		db: db,
	}
}

//go:embed migrations/*.sql
var migrations embed.FS

// Migrations returns the bootstrap schema for the registry tables.
func (r *Repository) Migrations() fs.FS {
	m, _ := fs.Sub(migrations, "migrations")
	return m
}

const uniqueViolation = "23505"

// Create inserts a new definition. Returns ErrDuplicateID when the id is taken.
func (r *Repository) Create(ctx context.Context, def *Definition) error {
	query := `
		INSERT INTO registered_migrations (
			id, version, name, description, author, up_sql, down_sql,
			dependencies, batch, tags, risk_level, requires_rollback,
			estimated_duration, metadata, created_at
		) VALUES (
			:id, :version, :name, :description, :author, :up_sql, :down_sql,
			:dependencies, :batch, :tags, :risk_level, :requires_rollback,
			:estimated_duration, :metadata, :created_at
		)
	`
	_, err := r.db.NamedExecContext(ctx, query, def)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateID
		}
		return fmt.Errorf("failed to create migration definition: %w", err)
	}
	return nil
}

// Get returns one definition by id. Returns ErrNotFound when absent.
func (r *Repository) Get(ctx context.Context, id string) (*Definition, error) {
	var def Definition
	err := r.db.GetContext(ctx, &def, "SELECT * FROM registered_migrations WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get migration definition: %w", err)
	}
	return &def, nil
}

// List returns definitions matching the filter, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Definition, error) {
	query := "SELECT m.* FROM registered_migrations m WHERE 1=1"
	args := []any{}

	if filter.Batch != "" {
		args = append(args, filter.Batch)
		query += fmt.Sprintf(" AND m.batch = $%d", len(args))
	}
	if filter.RiskLevel != "" {
		args = append(args, filter.RiskLevel)
		query += fmt.Sprintf(" AND m.risk_level = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(` AND (
			SELECT e.status FROM migration_executions e
			WHERE e.migration_id = m.id
			ORDER BY e.start_time DESC LIMIT 1
		) = $%d`, len(args))
	}

	query += " ORDER BY m.created_at DESC"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	var defs []Definition
	err := r.db.SelectContext(ctx, &defs, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list migration definitions: %w", err)
	}
	return defs, nil
}

// ExistingIDs returns the subset of the given ids that are registered.
func (r *Repository) ExistingIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var existing []string
	err := r.db.SelectContext(ctx, &existing,
		"SELECT id FROM registered_migrations WHERE id = ANY($1)", pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to check existing migration ids: %w", err)
	}
	return existing, nil
}

// CreateTest inserts a migration test.
func (r *Repository) CreateTest(ctx context.Context, test *Test) error {
	query := `
		INSERT INTO migration_tests (
			id, migration_id, name, type, test_sql, expected_result,
			enabled, critical, timeout_seconds, retry_attempts, created_at
		) VALUES (
			:id, :migration_id, :name, :type, :test_sql, :expected_result,
			:enabled, :critical, :timeout_seconds, :retry_attempts, :created_at
		)
	`
	_, err := r.db.NamedExecContext(ctx, query, test)
	if err != nil {
		return fmt.Errorf("failed to create migration test: %w", err)
	}
	return nil
}

// Count returns the number of registered definitions.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM registered_migrations")
	if err != nil {
		return 0, fmt.Errorf("failed to count migration definitions: %w", err)
	}
	return count, nil
}

// CreateTestRun records the outcome of one advisory test execution.
func (r *Repository) CreateTestRun(ctx context.Context, run *TestRun) error {
	query := `
		INSERT INTO migration_test_runs (id, test_id, migration_id, passed, actual, ran_at)
		VALUES (:id, :test_id, :migration_id, :passed, :actual, :ran_at)
	`
	_, err := r.db.NamedExecContext(ctx, query, run)
	if err != nil {
		return fmt.Errorf("failed to create test run: %w", err)
	}
	return nil
}

// TestRunCounts aggregates test run outcomes over a period.
type TestRunCounts struct {
	Total  int `db:"total"`
	Passed int `db:"passed"`
}

// TestRunCountsSince aggregates test runs recorded since the given time.
func (r *Repository) TestRunCountsSince(ctx context.Context, since time.Time) (TestRunCounts, error) {
	var counts TestRunCounts
	err := r.db.GetContext(ctx, &counts, `
		SELECT COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE passed) AS passed
		FROM migration_test_runs
		WHERE ran_at >= $1
	`, since)
	if err != nil {
		return TestRunCounts{}, fmt.Errorf("failed to count test runs: %w", err)
	}
	return counts, nil
}

// TestsByMigration returns all tests attached to the given migration.
func (r *Repository) TestsByMigration(ctx context.Context, migrationID string) ([]Test, error) {
	var tests []Test
	err := r.db.SelectContext(ctx, &tests,
		"SELECT * FROM migration_tests WHERE migration_id = $1 ORDER BY created_at", migrationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list migration tests: %w", err)
	}
	return tests, nil
}
