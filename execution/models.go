// Package execution runs registered migrations against the target database
// and owns execution records, schema versions and rollback points.
package execution

import "time"

// Status is the lifecycle state of a migration execution.
type Status string

const (
	StatusPending    Status = "pending"
	StatusRunning    Status = "running"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRolledBack Status = "rolled_back"
)

// Result captures the outcome of a completed execution.
type Result struct {
	DurationMS   int64 `db:"duration_ms" json:"durationMs"`
	RowsAffected int64 `db:"rows_affected" json:"rowsAffected"`
	Success      bool  `db:"success" json:"success"`
}

// Execution is one attempt to apply a migration definition.
type Execution struct {
	ID           string     `db:"id" json:"id"`
	MigrationID  string     `db:"migration_id" json:"migrationId"`
	StartTime    time.Time  `db:"start_time" json:"startTime"`
	EndTime      *time.Time `db:"end_time" json:"endTime,omitempty"`
	Status       Status     `db:"status" json:"status"`
	Executor     string     `db:"executor" json:"executor"`
	Environment  string     `db:"environment" json:"environment"`
	ErrorMessage string     `db:"error_message" json:"errorMessage,omitempty"`
	Result       `json:"result"`
}

// VersionStatus marks whether a schema version is the present one.
type VersionStatus string

const (
	VersionCurrent    VersionStatus = "current"
	VersionDeprecated VersionStatus = "deprecated"
)

// SchemaVersion is a historical marker of the schema state after a migration.
type SchemaVersion struct {
	Version     string        `db:"version" json:"version"`
	Description string        `db:"description" json:"description"`
	AppliedAt   time.Time     `db:"applied_at" json:"appliedAt"`
	Checksum    string        `db:"checksum" json:"checksum"`
	MigrationID string        `db:"migration_id" json:"migrationId"`
	Status      VersionStatus `db:"status" json:"status"`
}

// RollbackPoint is a snapshot reference captured with a completed execution.
type RollbackPoint struct {
	ID                   string    `db:"id" json:"id"`
	MigrationExecutionID string    `db:"migration_execution_id" json:"migrationExecutionId"`
	CreatedAt            time.Time `db:"created_at" json:"createdAt"`
	Snapshot             string    `db:"snapshot" json:"snapshot,omitempty"`
}

// Options controls a single execution.
type Options struct {
	Executor    string        `json:"executor"`
	Environment string        `json:"environment"`
	Timeout     time.Duration `json:"-"`
	// Force skips the already-running guard.
	Force bool `json:"force"`
}

// BatchOptions controls a batch run.
type BatchOptions struct {
	Options
	// StopOnError aborts the batch at the first failing migration instead
	// of the default continue-on-error policy.
	StopOnError bool `json:"stopOnError"`
}

// BatchItem is the per-migration outcome of a batch run.
type BatchItem struct {
	MigrationID string `json:"migrationId"`
	ExecutionID string `json:"executionId,omitempty"`
	Status      Status `json:"status"`
	DurationMS  int64  `json:"durationMs"`
	Error       string `json:"error,omitempty"`
}

// BatchFailure describes one failed migration in a batch.
type BatchFailure struct {
	MigrationID string `json:"migrationId"`
	Error       string `json:"error"`
}

// Batch statuses.
const (
	BatchCompleted      = "completed"
	BatchPartialFailure = "partial_failure"
)

// BatchResult summarizes a batch run.
type BatchResult struct {
	Total         int            `json:"total"`
	Successful    int            `json:"successful"`
	Failed        int            `json:"failed"`
	Results       []BatchItem    `json:"results"`
	FailedDetails []BatchFailure `json:"failedDetails"`
	BatchStatus   string         `json:"batchStatus"`
}

// Stats summarizes the execution history of one migration.
type Stats struct {
	Total     int        `db:"total" json:"total"`
	Succeeded int        `db:"succeeded" json:"succeeded"`
	Failed    int        `db:"failed" json:"failed"`
	LastRunAt *time.Time `db:"last_run_at" json:"lastRunAt,omitempty"`
}

// TestOutcome is the result of running one advisory migration test.
type TestOutcome struct {
	TestID   string `json:"testId"`
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Critical bool   `json:"critical"`
	Actual   string `json:"actual,omitempty"`
	Expected string `json:"expected,omitempty"`
	Error    string `json:"error,omitempty"`
}
