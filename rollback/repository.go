package rollback

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
)

type db interface {
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Repository persists rollback operations.
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

// Migrations returns the bootstrap schema for the rollback tables.
func (r *Repository) Migrations() fs.FS {
	m, _ := fs.Sub(migrations, "migrations")
	return m
}

// Create inserts a new rollback operation.
func (r *Repository) Create(ctx context.Context, op *Operation) error {
	query := `
		INSERT INTO rollback_operations (
			id, original_migration_id, migration_id, start_time, end_time,
			status, progress, executed_by, reason, error_message
		) VALUES (
			:id, :original_migration_id, :migration_id, :start_time, :end_time,
			:status, :progress, :executed_by, :reason, :error_message
		)
	`
	_, err := r.db.NamedExecContext(ctx, query, op)
	if err != nil {
		return fmt.Errorf("failed to create rollback operation: %w", err)
	}
	return nil
}

// Finish stores the terminal state of a rollback operation.
func (r *Repository) Finish(ctx context.Context, op *Operation) error {
	query := `
		UPDATE rollback_operations
		SET end_time = :end_time, status = :status, progress = :progress, error_message = :error_message
		WHERE id = :id
	`
	_, err := r.db.NamedExecContext(ctx, query, op)
	if err != nil {
		return fmt.Errorf("failed to finish rollback operation: %w", err)
	}
	return nil
}

// ByMigration returns all rollback operations for a migration, newest first.
func (r *Repository) ByMigration(ctx context.Context, migrationID string) ([]Operation, error) {
	var ops []Operation
	err := r.db.SelectContext(ctx, &ops,
		"SELECT * FROM rollback_operations WHERE migration_id = $1 ORDER BY start_time DESC",
		migrationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rollback operations: %w", err)
	}
	return ops, nil
}
