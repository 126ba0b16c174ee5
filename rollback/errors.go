package rollback

import "errors"

// ErrNoCompletedExecution is returned when the migration has never completed.
var ErrNoCompletedExecution = errors.New("no completed execution")

// ErrNoRollbackPoint is returned when the completed execution has no rollback
// point, e.g. for migrations registered with requires_rollback = false.
var ErrNoRollbackPoint = errors.New("no rollback point")
