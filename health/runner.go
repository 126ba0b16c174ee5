package health

import (
	"context"
	"fmt"

	"github.com/schemaops/migrond/log"
)

// ReportRunner periodically generates a health analysis and logs a summary.
// It is meant to run under a scheduler so operators get a recurring signal
// without polling the API.
type ReportRunner struct {
	service    *Service
	periodDays int
}

// NewReportRunner creates a runner that reports over the given trailing period.
func NewReportRunner(service *Service, periodDays int) *ReportRunner {
	return &ReportRunner{service: service, periodDays: periodDays}
}

// Run generates the analysis and logs it.
func (r *ReportRunner) Run(ctx context.Context) error {
	analysis, err := r.service.Report(ctx, r.periodDays)
	if err != nil {
		return fmt.Errorf("failed to generate health report: %w", err)
	}

	log.InfoContext(ctx, "migration health report",
		"period_days", analysis.PeriodDays,
		"total_migrations", analysis.TotalMigrations,
		"executions", analysis.Executions.Total,
		"success_rate", analysis.SuccessRate,
		"test_pass_rate", analysis.TestPassRate,
		"deployment_success_rate", analysis.DeploymentSuccessRate,
	)
	return nil
}
