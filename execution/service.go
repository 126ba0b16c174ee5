package execution

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/schemaops/migrond/log"
	"github.com/schemaops/migrond/migration"
)

type definitionStore interface {
	Get(ctx context.Context, id string) (*migration.Definition, error)
}

type testStore interface {
	TestsByMigration(ctx context.Context, migrationID string) ([]migration.Test, error)
	CreateTestRun(ctx context.Context, run *migration.TestRun) error
}

type store interface {
	Create(ctx context.Context, exec *Execution) error
	Finish(ctx context.Context, exec *Execution) error
	HasActive(ctx context.Context, migrationID string) (bool, error)
	FailActive(ctx context.Context, migrationID, message string) error
	ByMigration(ctx context.Context, migrationID string) ([]Execution, error)
	StatsByMigration(ctx context.Context, migrationID string) (*Stats, error)
	SetCurrentVersion(ctx context.Context, version *SchemaVersion) error
	CurrentVersion(ctx context.Context) (*SchemaVersion, error)
	CreateRollbackPoint(ctx context.Context, point *RollbackPoint) error
}

type sqlRunner interface {
	Run(ctx context.Context, query string, timeout time.Duration) (int64, error)
	QueryValue(ctx context.Context, query string, timeout time.Duration) (string, error)
}

// Alerter records a standing notice for the health service to surface.
type Alerter interface {
	Raise(ctx context.Context, severity, message string) error
}

// Service is the execution engine and batch orchestrator.
type Service struct {
	defs    definitionStore
	tests   testStore
	repo    store
	runner  sqlRunner
	alerter Alerter
}

// NewService creates an execution engine. alerter may be nil, in which case
// critical test failures are only logged.
func NewService(defs definitionStore, tests testStore, repo store, runner sqlRunner, alerter Alerter) *Service {
	return &Service{defs: defs, tests: tests, repo: repo, runner: runner, alerter: alerter}
}

// GetRepository exposes the repository for application registration.
func (s *Service) GetRepository() any {
	return s.repo
}

// Execute runs a single migration's forward SQL and records the outcome.
// On SQL failure the execution record is finalized as failed before the
// error is returned; no record is ever left running.
func (s *Service) Execute(ctx context.Context, migrationID string, opts Options) (*Execution, error) {
	ctx = context.WithValue(ctx, log.MigrationIDKey, migrationID)

	def, err := s.defs.Get(ctx, migrationID)
	if err != nil {
		return nil, err
	}

	if opts.Force {
		err = s.repo.FailActive(ctx, migrationID, "superseded by forced execution")
		if err != nil {
			return nil, err
		}
	} else {
		active, err := s.repo.HasActive(ctx, migrationID)
		if err != nil {
			return nil, err
		}
		if active {
			return nil, ErrAlreadyRunning
		}
	}

	exec := &Execution{
		ID:          uuid.NewString(),
		MigrationID: migrationID,
		StartTime:   time.Now(),
		Status:      StatusRunning,
		Executor:    opts.Executor,
		Environment: opts.Environment,
	}

	err = s.repo.Create(ctx, exec)
	if err != nil {
		return nil, err
	}

	ctx = context.WithValue(ctx, log.ExecutionIDKey, exec.ID)
	log.InfoContext(ctx, "execution started", "executor", opts.Executor, "environment", opts.Environment)

	rows, runErr := s.runner.Run(ctx, def.UpSQL, opts.Timeout)
	end := time.Now()
	exec.EndTime = &end
	exec.DurationMS = end.Sub(exec.StartTime).Milliseconds()

	if runErr != nil {
		exec.Status = StatusFailed
		exec.ErrorMessage = runErr.Error()

		if finishErr := s.repo.Finish(ctx, exec); finishErr != nil {
			log.ErrorContext(ctx, "failed to finalize failed execution", "error", finishErr)
		}

		log.ErrorContext(ctx, "execution failed", "error", runErr)
		return exec, &Error{MigrationID: migrationID, Err: runErr}
	}

	exec.Status = StatusCompleted
	exec.RowsAffected = rows
	exec.Success = true

	err = s.repo.Finish(ctx, exec)
	if err != nil {
		return nil, err
	}

	checksum := sha256.Sum256([]byte(def.UpSQL))
	// A schema version is keyed by the migration that produced it, not the
	// definition's human-facing semver string.
	err = s.repo.SetCurrentVersion(ctx, &SchemaVersion{
		Version:     def.ID,
		Description: def.Description,
		AppliedAt:   end,
		Checksum:    hex.EncodeToString(checksum[:]),
		MigrationID: def.ID,
		Status:      VersionCurrent,
	})
	if err != nil {
		return nil, err
	}

	if def.RequiresRollback {
		err = s.repo.CreateRollbackPoint(ctx, &RollbackPoint{
			ID:                   uuid.NewString(),
			MigrationExecutionID: exec.ID,
			CreatedAt:            end,
			Snapshot:             fmt.Sprintf(`{"migrationId":%q,"version":%q}`, def.ID, def.Version),
		})
		if err != nil {
			return nil, err
		}
	}

	log.InfoContext(ctx, "execution completed", "durationMs", exec.DurationMS, "rowsAffected", rows)
	return exec, nil
}

// ExecuteBatch drives Execute over an ordered list of migration ids.
// Failures are isolated per item: by default remaining ids are still
// attempted and the batch reports partial_failure.
func (s *Service) ExecuteBatch(ctx context.Context, migrationIDs []string, opts BatchOptions) (*BatchResult, error) {
	ctx = context.WithValue(ctx, log.BatchIDKey, uuid.NewString())
	log.InfoContext(ctx, "batch started", "migrations", len(migrationIDs))

	result := &BatchResult{
		Total:         len(migrationIDs),
		Results:       make([]BatchItem, 0, len(migrationIDs)),
		FailedDetails: []BatchFailure{},
	}

	for _, id := range migrationIDs {
		exec, err := s.Execute(ctx, id, opts.Options)
		if err != nil {
			result.Failed++
			result.FailedDetails = append(result.FailedDetails, BatchFailure{MigrationID: id, Error: err.Error()})

			item := BatchItem{MigrationID: id, Status: StatusFailed, Error: err.Error()}
			if exec != nil {
				item.ExecutionID = exec.ID
				item.DurationMS = exec.DurationMS
			}
			result.Results = append(result.Results, item)

			if opts.StopOnError {
				log.WarnContext(ctx, "batch aborted on first failure", "migrationId", id)
				break
			}
			continue
		}

		result.Successful++
		result.Results = append(result.Results, BatchItem{
			MigrationID: id,
			ExecutionID: exec.ID,
			Status:      exec.Status,
			DurationMS:  exec.DurationMS,
		})
	}

	if result.Failed == 0 {
		result.BatchStatus = BatchCompleted
	} else {
		result.BatchStatus = BatchPartialFailure
	}

	log.InfoContext(ctx, "batch finished", "status", result.BatchStatus, "successful", result.Successful, "failed", result.Failed)
	return result, nil
}

// RunTests executes the enabled advisory tests of a migration. Test failures
// never affect execution state; a failing critical test raises an alert.
func (s *Service) RunTests(ctx context.Context, migrationID string) ([]TestOutcome, error) {
	tests, err := s.tests.TestsByMigration(ctx, migrationID)
	if err != nil {
		return nil, err
	}

	outcomes := make([]TestOutcome, 0, len(tests))
	for _, test := range tests {
		if !test.Enabled {
			continue
		}

		outcome := TestOutcome{
			TestID:   test.ID,
			Name:     test.Name,
			Critical: test.Critical,
			Expected: test.ExpectedResult,
		}

		timeout := time.Duration(test.TimeoutSeconds) * time.Second
		attempts := test.RetryAttempts + 1
		for attempt := 0; attempt < attempts; attempt++ {
			actual, err := s.runner.QueryValue(ctx, test.TestSQL, timeout)
			if err != nil {
				outcome.Error = err.Error()
				continue
			}
			outcome.Error = ""
			outcome.Actual = actual
			outcome.Passed = actual == test.ExpectedResult
			if outcome.Passed {
				break
			}
		}

		if !outcome.Passed && test.Critical {
			message := fmt.Sprintf("critical migration test failed: %s (migration %s)", test.Name, migrationID)
			log.ErrorContext(ctx, "critical migration test failed", "test", test.Name, "migrationId", migrationID)
			if s.alerter != nil {
				if err := s.alerter.Raise(ctx, "critical", message); err != nil {
					log.ErrorContext(ctx, "failed to raise alert", "error", err)
				}
			}
		}

		run := &migration.TestRun{
			ID:          uuid.NewString(),
			TestID:      test.ID,
			MigrationID: migrationID,
			Passed:      outcome.Passed,
			Actual:      outcome.Actual,
			RanAt:       time.Now(),
		}
		if err := s.tests.CreateTestRun(ctx, run); err != nil {
			log.WarnContext(ctx, "failed to record test run", "test", test.Name, "error", err)
		}

		outcomes = append(outcomes, outcome)
	}

	return outcomes, nil
}

// History returns all executions of a migration, newest first.
func (s *Service) History(ctx context.Context, migrationID string) ([]Execution, error) {
	return s.repo.ByMigration(ctx, migrationID)
}

// Stats derives run counters for one migration.
func (s *Service) Stats(ctx context.Context, migrationID string) (*Stats, error) {
	return s.repo.StatsByMigration(ctx, migrationID)
}

// CurrentVersion returns the current schema version, nil when none exists.
func (s *Service) CurrentVersion(ctx context.Context) (*SchemaVersion, error) {
	return s.repo.CurrentVersion(ctx)
}
