package migration

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a migration definition does not exist.
var ErrNotFound = errors.New("migration not found")

// ErrDuplicateID is returned when registering a definition whose id is taken.
var ErrDuplicateID = errors.New("migration id already exists")

// ValidationError reports missing or malformed fields on a definition.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid migration definition: %s", strings.Join(e.Problems, "; "))
}
