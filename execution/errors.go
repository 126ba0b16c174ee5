package execution

import (
	"errors"
	"fmt"
)

// ErrAlreadyRunning is returned when a migration has a pending or running
// execution and the caller did not force.
var ErrAlreadyRunning = errors.New("migration already running")

// ErrNotFound is returned when no execution exists for a migration.
var ErrNotFound = errors.New("execution not found")

// Error wraps a SQL failure or timeout surfaced by the database collaborator.
type Error struct {
	MigrationID string
	Err         error
}

func (e *Error) Error() string {
	return fmt.Sprintf("execution of migration %s failed: %v", e.MigrationID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
