// Package health aggregates execution, test and deployment history into a
// health score and periodic reports, and surfaces standing alerts.
package health

import "time"

// Alert is a standing notice surfaced by the health service.
type Alert struct {
	ID           string    `db:"id" json:"id"`
	Severity     string    `db:"severity" json:"severity"`
	Message      string    `db:"message" json:"message"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	Acknowledged bool      `db:"acknowledged" json:"acknowledged"`
}

// Status values for the overall health verdict.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	StatusCritical = "critical"
)

// Check is the result of a health evaluation.
type Check struct {
	HealthScore int      `json:"healthScore"`
	Status      string   `json:"status"`
	Issues      []string `json:"issues"`
}

// ExecutionSummary breaks executions down by status over the report period.
type ExecutionSummary struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Running   int `json:"running"`
}

// Analysis is a periodic report over a trailing window.
type Analysis struct {
	PeriodDays            int              `json:"periodDays"`
	GeneratedAt           time.Time        `json:"generatedAt"`
	TotalMigrations       int              `json:"totalMigrations"`
	Executions            ExecutionSummary `json:"executions"`
	SuccessRate           float64          `json:"successRate"`
	TestPassRate          float64          `json:"testPassRate"`
	DeploymentSuccessRate float64          `json:"deploymentSuccessRate"`
}
