// Package rollback reverses previously completed migration executions.
package rollback

import "time"

// Status is the lifecycle state of a rollback operation.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Operation is one attempt to reverse a completed execution.
// OriginalMigrationID holds the id of the execution being reversed.
type Operation struct {
	ID                  string     `db:"id" json:"id"`
	OriginalMigrationID string     `db:"original_migration_id" json:"originalMigrationId"`
	MigrationID         string     `db:"migration_id" json:"migrationId"`
	StartTime           time.Time  `db:"start_time" json:"startTime"`
	EndTime             *time.Time `db:"end_time" json:"endTime,omitempty"`
	Status              Status     `db:"status" json:"status"`
	Progress            int        `db:"progress" json:"progress"`
	ExecutedBy          string     `db:"executed_by" json:"executedBy"`
	Reason              string     `db:"reason" json:"reason"`
	ErrorMessage        string     `db:"error_message" json:"errorMessage,omitempty"`
}

// Options carries caller context for a rollback.
type Options struct {
	Reason     string `json:"reason"`
	ExecutedBy string `json:"executedBy"`
}
