// Package database provides database connection and schema bootstrap functionality.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// Database represents a database connection with schema bootstrap capabilities.
type Database struct {
	conn         *sqlx.DB
	repositories map[string]any
	migrators    map[string]migrator
	// Registration order of migrators. Bootstrap schemas may reference
	// tables of earlier-registered repositories, so application order must
	// follow registration order, not map iteration order.
	migratorOrder []string
	service       *service
}

// New creates a new Database instance with the given connection string.
func New(connection string) (*Database, error) {
	db, err := sqlx.Connect("postgres", connection)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	repository := newRepository(db)
	service := newService(repository)
	return &Database{conn: db, repositories: make(map[string]any), migrators: make(map[string]migrator), service: service}, nil
}

// Connection returns the underlying sqlx database connection.
func (db *Database) Connection() *sqlx.DB {
	return db.conn
}

// Ping verifies the connection is alive. Used by the health probe.
func (db *Database) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	err := db.conn.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// RegisterRepository registers a repository in the database.
// If repository implements migrator interface, its bootstrap schema
// is created when `Migrate` is called.
func (db *Database) RegisterRepository(name string, repository any) {
	db.repositories[name] = repository

	if migr, ok := repository.(migrator); ok {
		if _, exists := db.migrators[name]; !exists {
			db.migratorOrder = append(db.migratorOrder, name)
		}
		db.migrators[name] = migr
	}
}

// Migrate creates the engine's own tables for all registered repositories.
func (db *Database) Migrate(ctx context.Context) error {
	// Ensure that the bootstrap log table exists
	err := db.service.migrateSelf(ctx)
	if err != nil {
		return err
	}

	// Get completed bootstrap migrations
	migrationLogs, err := db.service.getMigrationLogs(ctx)
	if err != nil {
		return fmt.Errorf("failed to select migrations state: %w", err)
	}

	// Get bootstrap migrations from all migrators
	migrations, err := db.collectMigrations()
	if err != nil {
		return err
	}

	err = db.service.applyMigrations(ctx, migrations, migrationLogs)
	if err != nil {
		return err
	}

	return nil
}

// collectMigrations gathers bootstrap migrations from every migrator in
// registration order.
func (db *Database) collectMigrations() ([]Migration, error) {
	migrations := []Migration{}
	for _, name := range db.migratorOrder {
		parsed, err := ParseMigrations(db.migrators[name].Migrations())
		if err != nil {
			return nil, fmt.Errorf("failed to parse migrations for %s: %w", name, err)
		}
		for _, migr := range parsed {
			migr.repository = name
			migrations = append(migrations, migr)
		}
	}
	return migrations, nil
}
