package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type repository struct {
	db *sqlx.DB
}

func newRepository(db *sqlx.DB) *repository {
	return &repository{db: db}
}

// migrations returns the bootstrap migrations for the migration log table itself.
func (r *repository) migrations() []Migration {
	return []Migration{
		{
			ID: "0001_create_migrond_migrations",
			Up: `
				CREATE TABLE migrond_migrations (
					repository VARCHAR(255) NOT NULL,
					id VARCHAR(255) NOT NULL,
					timestamp TIMESTAMPTZ NOT NULL,
					PRIMARY KEY (repository, id)
				)
			`,
			Down: `DROP TABLE migrond_migrations`,
		},
	}
}

func (r *repository) getMigrationLogs(ctx context.Context) ([]migrationLog, error) {
	var logs []migrationLog
	err := r.db.SelectContext(ctx, &logs, "SELECT repository, id, timestamp FROM migrond_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to select migration logs: %w", err)
	}
	return logs, nil
}

func (r *repository) saveMigrationLog(ctx context.Context, log migrationLog) error {
	query := `
		INSERT INTO migrond_migrations (repository, id, timestamp)
		VALUES (:repository, :id, :timestamp)
	`
	_, err := r.db.NamedExecContext(ctx, query, log)
	if err != nil {
		return fmt.Errorf("failed to insert migration log: %w", err)
	}
	return nil
}

func (r *repository) executeQuery(ctx context.Context, query string) error {
	_, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to execute query: %w", err)
	}
	return nil
}
