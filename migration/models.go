// Package migration provides the registry and dependency validation for
// schema migration definitions.
package migration

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// RiskLevel classifies how dangerous a migration is to apply.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Valid reports whether the risk level is one of the allowed values.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// Metadata is a free-form JSON object stored alongside a definition.
type Metadata map[string]any

// Value implements driver.Valuer, serializing the metadata to JSONB.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return b, nil
}

// Scan implements sql.Scanner for JSONB columns.
func (m *Metadata) Scan(src any) error {
	if src == nil {
		*m = nil
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("failed to scan metadata: unsupported type %T", src)
	}

	err := json.Unmarshal(data, m)
	if err != nil {
		return fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return nil
}

// Definition is an immutable-once-created record of one schema change.
type Definition struct {
	ID                string         `db:"id" json:"id"`
	Version           string         `db:"version" json:"version"`
	Name              string         `db:"name" json:"name"`
	Description       string         `db:"description" json:"description"`
	Author            string         `db:"author" json:"author"`
	UpSQL             string         `db:"up_sql" json:"upSql"`
	DownSQL           string         `db:"down_sql" json:"downSql,omitempty"`
	Dependencies      pq.StringArray `db:"dependencies" json:"dependencies"`
	Batch             string         `db:"batch" json:"batch,omitempty"`
	Tags              pq.StringArray `db:"tags" json:"tags"`
	RiskLevel         RiskLevel      `db:"risk_level" json:"riskLevel"`
	RequiresRollback  bool           `db:"requires_rollback" json:"requiresRollback"`
	EstimatedDuration string         `db:"estimated_duration" json:"estimatedDuration,omitempty"`
	Metadata          Metadata       `db:"metadata" json:"metadata,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"createdAt"`
}

// Test is an advisory assertion attached to a migration, run after execution.
type Test struct {
	ID             string    `db:"id" json:"id"`
	MigrationID    string    `db:"migration_id" json:"migrationId"`
	Name           string    `db:"name" json:"name"`
	Type           string    `db:"type" json:"type"`
	TestSQL        string    `db:"test_sql" json:"testSql"`
	ExpectedResult string    `db:"expected_result" json:"expectedResult"`
	Enabled        bool      `db:"enabled" json:"enabled"`
	Critical       bool      `db:"critical" json:"critical"`
	TimeoutSeconds int       `db:"timeout_seconds" json:"timeoutSeconds"`
	RetryAttempts  int       `db:"retry_attempts" json:"retryAttempts"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// TestRun is the recorded outcome of one advisory test execution.
type TestRun struct {
	ID          string    `db:"id" json:"id"`
	TestID      string    `db:"test_id" json:"testId"`
	MigrationID string    `db:"migration_id" json:"migrationId"`
	Passed      bool      `db:"passed" json:"passed"`
	Actual      string    `db:"actual" json:"actual"`
	RanAt       time.Time `db:"ran_at" json:"ranAt"`
}

// ListFilter narrows a definition listing.
type ListFilter struct {
	Batch     string
	RiskLevel RiskLevel
	// Status filters by the latest execution status of each migration.
	Status string
	Limit  int
}

// ValidationResult is the per-migration outcome of dependency validation.
type ValidationResult struct {
	MigrationID string   `json:"migrationId"`
	Valid       bool     `json:"valid"`
	Errors      []string `json:"errors"`
}

// ValidationReport aggregates validation results for a set of migrations.
type ValidationReport struct {
	Valid   bool               `json:"valid"`
	Results []ValidationResult `json:"results"`
}
