package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// SQLRunner executes registered migration SQL against the target database.
// It is the only collaborator the orchestration services use to touch the
// schema being migrated; everything else goes through typed repositories.
type SQLRunner struct {
	db *sqlx.DB
}

// NewSQLRunner creates a SQLRunner on top of an existing connection.
func NewSQLRunner(db *sqlx.DB) *SQLRunner {
	return &SQLRunner{db: db}
}

// Run executes the given SQL statement. A non-positive timeout means no
// bound beyond the caller's context. Timeout expiry surfaces as a normal
// execution error.
func (r *SQLRunner) Run(ctx context.Context, query string, timeout time.Duration) (int64, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to execute migration sql: %w", err)
	}

	// Drivers are allowed to not support RowsAffected for DDL; treat that
	// as zero rows rather than an error.
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return rows, nil
}

// QueryValue executes a query expected to return a single value and returns
// it as a string. Used to evaluate migration test assertions.
func (r *SQLRunner) QueryValue(ctx context.Context, query string, timeout time.Duration) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var value string
	err := r.db.QueryRowxContext(ctx, query).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("failed to execute test query: %w", err)
	}
	return value, nil
}
