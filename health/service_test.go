package health

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/schemaops/migrond/execution"
	"github.com/schemaops/migrond/migration"
)

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(ctx context.Context) error {
	return f.err
}

type fakeExecCounter struct {
	counts execution.StatusCounts
	err    error
}

func (f *fakeExecCounter) CountSince(ctx context.Context, since time.Time) (execution.StatusCounts, error) {
	return f.counts, f.err
}

type fakeMigCounter struct {
	total    int
	testRuns migration.TestRunCounts
}

func (f *fakeMigCounter) Count(ctx context.Context) (int, error) {
	return f.total, nil
}

func (f *fakeMigCounter) TestRunCountsSince(ctx context.Context, since time.Time) (migration.TestRunCounts, error) {
	return f.testRuns, nil
}

type fakeAlertStore struct {
	alerts       []Alert
	critical     bool
	acknowledged []string
}

func (f *fakeAlertStore) Create(ctx context.Context, alert *Alert) error {
	f.alerts = append(f.alerts, *alert)
	return nil
}

func (f *fakeAlertStore) List(ctx context.Context) ([]Alert, error) {
	return f.alerts, nil
}

func (f *fakeAlertStore) HasUnacknowledgedCritical(ctx context.Context) (bool, error) {
	return f.critical, nil
}

func (f *fakeAlertStore) Acknowledge(ctx context.Context, id string) error {
	f.acknowledged = append(f.acknowledged, id)
	return nil
}

func TestServiceCheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		pingErr    error
		counts     execution.StatusCounts
		critical   bool
		wantScore  int
		wantStatus string
		wantIssues int
	}{
		{
			name:       "all healthy",
			counts:     execution.StatusCounts{Total: 10, Completed: 10},
			wantScore:  100,
			wantStatus: StatusHealthy,
		},
		{
			name:       "no executions is healthy",
			counts:     execution.StatusCounts{},
			wantScore:  100,
			wantStatus: StatusHealthy,
		},
		{
			name:       "success rate below threshold",
			counts:     execution.StatusCounts{Total: 50, Completed: 47, Failed: 3},
			wantScore:  80,
			wantStatus: StatusHealthy,
			wantIssues: 1,
		},
		{
			name:       "rolled back executions still count as successful",
			counts:     execution.StatusCounts{Total: 20, Completed: 15, RolledBack: 5},
			wantScore:  100,
			wantStatus: StatusHealthy,
		},
		{
			name:       "database unreachable",
			pingErr:    errors.New("connection refused"),
			counts:     execution.StatusCounts{Total: 5, Completed: 5},
			wantScore:  70,
			wantStatus: StatusDegraded,
			wantIssues: 1,
		},
		{
			name:       "unacknowledged critical alert",
			counts:     execution.StatusCounts{Total: 5, Completed: 5},
			critical:   true,
			wantScore:  75,
			wantStatus: StatusDegraded,
			wantIssues: 1,
		},
		{
			name:       "everything wrong",
			pingErr:    errors.New("connection refused"),
			counts:     execution.StatusCounts{Total: 4, Completed: 1, Failed: 3},
			critical:   true,
			wantScore:  25,
			wantStatus: StatusCritical,
			wantIssues: 3,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			service := NewService(
				&fakePinger{err: test.pingErr},
				&fakeExecCounter{counts: test.counts},
				&fakeMigCounter{},
				&fakeAlertStore{critical: test.critical},
			)

			check, err := service.Check(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if check.HealthScore != test.wantScore {
				t.Errorf("expected score %d, got %d", test.wantScore, check.HealthScore)
			}
			if check.Status != test.wantStatus {
				t.Errorf("expected status %q, got %q", test.wantStatus, check.Status)
			}
			if len(check.Issues) != test.wantIssues {
				t.Errorf("expected %d issues, got %v", test.wantIssues, check.Issues)
			}
		})
	}
}

func TestServiceCheckScoreNeverNegative(t *testing.T) {
	t.Parallel()

	// All penalties combined stay clamped at zero even if more are added later.
	service := NewService(
		&fakePinger{err: errors.New("down")},
		&fakeExecCounter{counts: execution.StatusCounts{Total: 10, Failed: 10}},
		&fakeMigCounter{},
		&fakeAlertStore{critical: true},
	)

	check, err := service.Check(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if check.HealthScore < 0 {
		t.Errorf("expected non-negative score, got %d", check.HealthScore)
	}
}

func TestServiceReport(t *testing.T) {
	t.Parallel()

	t.Run("aggregates rates over the period", func(t *testing.T) {
		t.Parallel()

		service := NewService(
			&fakePinger{},
			&fakeExecCounter{counts: execution.StatusCounts{
				Total:      52,
				Completed:  45,
				RolledBack: 2,
				Failed:     3,
				Running:    2,
			}},
			&fakeMigCounter{
				total:    30,
				testRuns: migration.TestRunCounts{Total: 8, Passed: 6},
			},
			&fakeAlertStore{},
		)

		analysis, err := service.Report(context.Background(), 30)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if analysis.PeriodDays != 30 {
			t.Errorf("expected period 30, got %d", analysis.PeriodDays)
		}
		if analysis.TotalMigrations != 30 {
			t.Errorf("expected 30 migrations, got %d", analysis.TotalMigrations)
		}
		if analysis.Executions.Completed != 47 {
			t.Errorf("expected 47 completed, got %d", analysis.Executions.Completed)
		}
		if analysis.SuccessRate != 94.0 {
			t.Errorf("expected success rate 94, got %v", analysis.SuccessRate)
		}
		if analysis.TestPassRate != 75.0 {
			t.Errorf("expected test pass rate 75, got %v", analysis.TestPassRate)
		}
		// Rolled back deployments do not count toward deployment success.
		if analysis.DeploymentSuccessRate != 90.0 {
			t.Errorf("expected deployment success rate 90, got %v", analysis.DeploymentSuccessRate)
		}
	})

	t.Run("empty period reports 100 percent rates", func(t *testing.T) {
		t.Parallel()

		service := NewService(&fakePinger{}, &fakeExecCounter{}, &fakeMigCounter{}, &fakeAlertStore{})

		analysis, err := service.Report(context.Background(), 7)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if analysis.SuccessRate != 100.0 {
			t.Errorf("expected success rate 100, got %v", analysis.SuccessRate)
		}
		if analysis.TestPassRate != 100.0 {
			t.Errorf("expected test pass rate 100, got %v", analysis.TestPassRate)
		}
	})

	t.Run("non-positive period defaults to seven days", func(t *testing.T) {
		t.Parallel()

		service := NewService(&fakePinger{}, &fakeExecCounter{}, &fakeMigCounter{}, &fakeAlertStore{})

		analysis, err := service.Report(context.Background(), 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if analysis.PeriodDays != 7 {
			t.Errorf("expected period 7, got %d", analysis.PeriodDays)
		}
	})
}

func TestServiceRaise(t *testing.T) {
	t.Parallel()

	alerts := &fakeAlertStore{}
	service := NewService(&fakePinger{}, &fakeExecCounter{}, &fakeMigCounter{}, alerts)

	err := service.Raise(context.Background(), "critical", "critical test failed for migration 001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(alerts.alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts.alerts))
	}
	alert := alerts.alerts[0]
	if alert.ID == "" {
		t.Error("expected alert ID to be assigned")
	}
	if alert.Severity != "critical" {
		t.Errorf("expected severity critical, got %q", alert.Severity)
	}
	if alert.Acknowledged {
		t.Error("expected new alert to be unacknowledged")
	}
}

func TestRenderHTML(t *testing.T) {
	t.Parallel()

	analysis := &Analysis{
		PeriodDays:      7,
		GeneratedAt:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		TotalMigrations: 12,
		Executions:      ExecutionSummary{Total: 20, Completed: 19, Failed: 1},
		SuccessRate:     95.0,
		TestPassRate:    100.0,
	}

	html, err := RenderHTML(analysis)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"Migration Health Report", "Last 7 days", "95%", "12"} {
		if !strings.Contains(html, want) {
			t.Errorf("expected report to contain %q", want)
		}
	}
}
