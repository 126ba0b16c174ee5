package health

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/schemaops/migrond/execution"
	"github.com/schemaops/migrond/log"
	"github.com/schemaops/migrond/migration"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type executionCounter interface {
	CountSince(ctx context.Context, since time.Time) (execution.StatusCounts, error)
}

type migrationCounter interface {
	Count(ctx context.Context) (int, error)
	TestRunCountsSince(ctx context.Context, since time.Time) (migration.TestRunCounts, error)
}

type alertStore interface {
	Create(ctx context.Context, alert *Alert) error
	List(ctx context.Context) ([]Alert, error)
	HasUnacknowledgedCritical(ctx context.Context) (bool, error)
	Acknowledge(ctx context.Context, id string) error
}

// Service evaluates engine health and produces periodic reports.
type Service struct {
	db     pinger
	execs  executionCounter
	migs   migrationCounter
	alerts alertStore
}

// NewService creates a health service.
func NewService(db pinger, execs executionCounter, migs migrationCounter, alerts alertStore) *Service {
	return &Service{db: db, execs: execs, migs: migs, alerts: alerts}
}

// GetRepository exposes the repository for application registration.
func (s *Service) GetRepository() any {
	return s.alerts
}

const trailingWindow = 7 * 24 * time.Hour

// rate returns successful/total as a percentage rounded to two decimals.
// An empty set is vacuously successful.
func rate(successful, total int) float64 {
	if total == 0 {
		return 100
	}
	return math.Round(float64(successful)/float64(total)*100*100) / 100
}

// Check computes the health score. The score starts at 100 and is penalized
// for a failing connectivity probe, a low trailing success rate, and
// unacknowledged critical alerts.
func (s *Service) Check(ctx context.Context) (*Check, error) {
	check := &Check{HealthScore: 100, Issues: []string{}}

	if err := s.db.Ping(ctx); err != nil {
		check.HealthScore -= 30
		check.Issues = append(check.Issues, "database connectivity probe failed")
		log.WarnContext(ctx, "health probe: database unreachable", "error", err)
	}

	counts, err := s.execs.CountSince(ctx, time.Now().Add(-trailingWindow))
	if err != nil {
		return nil, err
	}

	successful := counts.Completed + counts.RolledBack
	attempts := successful + counts.Failed
	successRate := rate(successful, attempts)
	if successRate < 95 {
		check.HealthScore -= 20
		check.Issues = append(check.Issues, "migration success rate below 95% over the last 7 days")
	}

	critical, err := s.alerts.HasUnacknowledgedCritical(ctx)
	if err != nil {
		return nil, err
	}
	if critical {
		check.HealthScore -= 25
		check.Issues = append(check.Issues, "unacknowledged critical alert")
	}

	if check.HealthScore < 0 {
		check.HealthScore = 0
	}

	switch {
	case check.HealthScore >= 80:
		check.Status = StatusHealthy
	case check.HealthScore >= 60:
		check.Status = StatusDegraded
	default:
		check.Status = StatusCritical
	}

	return check, nil
}

// Report aggregates migration activity over the trailing periodDays.
func (s *Service) Report(ctx context.Context, periodDays int) (*Analysis, error) {
	if periodDays <= 0 {
		periodDays = 7
	}
	since := time.Now().AddDate(0, 0, -periodDays)

	total, err := s.migs.Count(ctx)
	if err != nil {
		return nil, err
	}

	counts, err := s.execs.CountSince(ctx, since)
	if err != nil {
		return nil, err
	}

	testRuns, err := s.migs.TestRunCountsSince(ctx, since)
	if err != nil {
		return nil, err
	}

	completed := counts.Completed + counts.RolledBack
	attempts := completed + counts.Failed

	return &Analysis{
		PeriodDays:      periodDays,
		GeneratedAt:     time.Now(),
		TotalMigrations: total,
		Executions: ExecutionSummary{
			Total:     counts.Total,
			Completed: completed,
			Failed:    counts.Failed,
			Running:   counts.Running,
		},
		SuccessRate:  rate(completed, attempts),
		TestPassRate: rate(testRuns.Passed, testRuns.Total),
		// A deployment counts as successful when it completed and was
		// never reversed.
		DeploymentSuccessRate: rate(counts.Completed, attempts),
	}, nil
}

// Raise records a standing alert. Implements the execution engine's Alerter.
func (s *Service) Raise(ctx context.Context, severity, message string) error {
	alert := &Alert{
		ID:        uuid.NewString(),
		Severity:  severity,
		Message:   message,
		CreatedAt: time.Now(),
	}
	return s.alerts.Create(ctx, alert)
}

// Alerts returns all alerts, newest first.
func (s *Service) Alerts(ctx context.Context) ([]Alert, error) {
	return s.alerts.List(ctx)
}

// Acknowledge marks an alert as acknowledged.
func (s *Service) Acknowledge(ctx context.Context, id string) error {
	return s.alerts.Acknowledge(ctx, id)
}
