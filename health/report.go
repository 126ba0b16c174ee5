package health

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/aymerick/raymond"
)

//go:embed report.hbs
var reportTemplate string

var (
	reportOnce sync.Once
	reportTmpl *raymond.Template
	reportErr  error
)

// RenderHTML renders the analysis as a human-readable HTML report. It is an
// alternate serialization of the same data; no additional computation.
func RenderHTML(analysis *Analysis) (string, error) {
	reportOnce.Do(func() {
		reportTmpl, reportErr = raymond.Parse(reportTemplate)
	})
	if reportErr != nil {
		return "", fmt.Errorf("failed to parse report template: %w", reportErr)
	}

	html, err := reportTmpl.Exec(map[string]any{
		"periodDays":            analysis.PeriodDays,
		"generatedAt":           analysis.GeneratedAt.Format("2006-01-02 15:04:05 MST"),
		"totalMigrations":       analysis.TotalMigrations,
		"executionsTotal":       analysis.Executions.Total,
		"executionsCompleted":   analysis.Executions.Completed,
		"executionsFailed":      analysis.Executions.Failed,
		"executionsRunning":     analysis.Executions.Running,
		"successRate":           analysis.SuccessRate,
		"testPassRate":          analysis.TestPassRate,
		"deploymentSuccessRate": analysis.DeploymentSuccessRate,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render report template: %w", err)
	}
	return html, nil
}
