package rollback

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/schemaops/migrond/execution"
	"github.com/schemaops/migrond/log"
	"github.com/schemaops/migrond/migration"
)

type definitionStore interface {
	Get(ctx context.Context, id string) (*migration.Definition, error)
}

type executionStore interface {
	LatestCompleted(ctx context.Context, migrationID string) (*execution.Execution, error)
	LatestRollbackPoint(ctx context.Context, executionID string) (*execution.RollbackPoint, error)
	MarkRolledBack(ctx context.Context, executionID string) error
}

type store interface {
	Create(ctx context.Context, op *Operation) error
	Finish(ctx context.Context, op *Operation) error
	ByMigration(ctx context.Context, migrationID string) ([]Operation, error)
}

type sqlRunner interface {
	Run(ctx context.Context, query string, timeout time.Duration) (int64, error)
}

// Service is the rollback manager. It is the only writer of rollback
// operations and the only actor allowed to mark executions rolled back.
type Service struct {
	defs   definitionStore
	execs  executionStore
	repo   store
	runner sqlRunner
}

// NewService creates a rollback manager.
func NewService(defs definitionStore, execs executionStore, repo store, runner sqlRunner) *Service {
	return &Service{defs: defs, execs: execs, repo: repo, runner: runner}
}

// GetRepository exposes the repository for application registration.
func (s *Service) GetRepository() any {
	return s.repo
}

// Rollback reverses the most recent completed execution of a migration.
// A missing down_sql is a no-op reversal that still succeeds; a missing
// rollback point fails outright. When down_sql execution fails the original
// execution stays completed so the system never claims a reversal it did
// not perform.
func (s *Service) Rollback(ctx context.Context, migrationID string, opts Options) (*Operation, error) {
	ctx = context.WithValue(ctx, log.MigrationIDKey, migrationID)

	def, err := s.defs.Get(ctx, migrationID)
	if err != nil {
		return nil, err
	}

	exec, err := s.execs.LatestCompleted(ctx, migrationID)
	if err != nil {
		if errors.Is(err, execution.ErrNotFound) {
			return nil, ErrNoCompletedExecution
		}
		return nil, err
	}

	point, err := s.execs.LatestRollbackPoint(ctx, exec.ID)
	if err != nil {
		if errors.Is(err, execution.ErrNotFound) {
			return nil, ErrNoRollbackPoint
		}
		return nil, err
	}

	op := &Operation{
		ID:                  uuid.NewString(),
		OriginalMigrationID: exec.ID,
		MigrationID:         migrationID,
		StartTime:           time.Now(),
		Status:              StatusRunning,
		Progress:            0,
		ExecutedBy:          opts.ExecutedBy,
		Reason:              opts.Reason,
	}

	err = s.repo.Create(ctx, op)
	if err != nil {
		return nil, err
	}

	log.InfoContext(ctx, "rollback started", "rollbackOperationId", op.ID, "rollbackPointId", point.ID, "executedBy", opts.ExecutedBy)

	if def.DownSQL != "" {
		_, runErr := s.runner.Run(ctx, def.DownSQL, 0)
		if runErr != nil {
			end := time.Now()
			op.EndTime = &end
			op.Status = StatusFailed
			op.ErrorMessage = runErr.Error()

			if finishErr := s.repo.Finish(ctx, op); finishErr != nil {
				log.ErrorContext(ctx, "failed to finalize failed rollback", "error", finishErr)
			}

			log.ErrorContext(ctx, "rollback failed", "error", runErr)
			return op, &execution.Error{MigrationID: migrationID, Err: runErr}
		}
	} else {
		log.InfoContext(ctx, "no down sql, treating rollback as no-op reversal")
	}

	end := time.Now()
	op.EndTime = &end
	op.Status = StatusCompleted
	op.Progress = 100

	err = s.repo.Finish(ctx, op)
	if err != nil {
		return nil, err
	}

	err = s.execs.MarkRolledBack(ctx, exec.ID)
	if err != nil {
		return nil, err
	}

	log.InfoContext(ctx, "rollback completed", "rollbackOperationId", op.ID)
	return op, nil
}

// Operations returns the rollback history of a migration.
func (s *Service) Operations(ctx context.Context, migrationID string) ([]Operation, error) {
	return s.repo.ByMigration(ctx, migrationID)
}
