package health

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
)

// ErrAlertNotFound is returned when acknowledging an unknown alert.
var ErrAlertNotFound = errors.New("alert not found")

type db interface {
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Repository persists migration alerts.
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

// Migrations returns the bootstrap schema for the alert table.
func (r *Repository) Migrations() fs.FS {
	m, _ := fs.Sub(migrations, "migrations")
	return m
}

// Create inserts a new alert.
func (r *Repository) Create(ctx context.Context, alert *Alert) error {
	query := `
		INSERT INTO migration_alerts (id, severity, message, created_at, acknowledged)
		VALUES (:id, :severity, :message, :created_at, :acknowledged)
	`
	_, err := r.db.NamedExecContext(ctx, query, alert)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

// List returns all alerts, newest first.
func (r *Repository) List(ctx context.Context) ([]Alert, error) {
	var alerts []Alert
	err := r.db.SelectContext(ctx, &alerts, "SELECT * FROM migration_alerts ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

// HasUnacknowledgedCritical reports whether any critical alert is pending.
func (r *Repository) HasUnacknowledgedCritical(ctx context.Context) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM migration_alerts WHERE severity = 'critical' AND NOT acknowledged")
	if err != nil {
		return false, fmt.Errorf("failed to check critical alerts: %w", err)
	}
	return count > 0, nil
}

// Acknowledge marks one alert as acknowledged.
func (r *Repository) Acknowledge(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE migration_alerts SET acknowledged = TRUE WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	rows, err := res.RowsAffected()
	if err == nil && rows == 0 {
		return ErrAlertNotFound
	}
	return nil
}
