package rollback_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/schemaops/migrond/execution"
	"github.com/schemaops/migrond/migration"
	"github.com/schemaops/migrond/rollback"
)

type fakeDefs struct {
	defs map[string]*migration.Definition
}

func (f *fakeDefs) Get(_ context.Context, id string) (*migration.Definition, error) {
	def, ok := f.defs[id]
	if !ok {
		return nil, migration.ErrNotFound
	}
	return def, nil
}

type fakeExecs struct {
	completed  map[string]*execution.Execution
	points     map[string]*execution.RollbackPoint
	rolledBack []string
}

func (f *fakeExecs) LatestCompleted(_ context.Context, migrationID string) (*execution.Execution, error) {
	exec, ok := f.completed[migrationID]
	if !ok {
		return nil, execution.ErrNotFound
	}
	return exec, nil
}

func (f *fakeExecs) LatestRollbackPoint(_ context.Context, executionID string) (*execution.RollbackPoint, error) {
	point, ok := f.points[executionID]
	if !ok {
		return nil, execution.ErrNotFound
	}
	return point, nil
}

func (f *fakeExecs) MarkRolledBack(_ context.Context, executionID string) error {
	f.rolledBack = append(f.rolledBack, executionID)
	return nil
}

type fakeStore struct {
	ops []*rollback.Operation
}

func (f *fakeStore) Create(_ context.Context, op *rollback.Operation) error {
	cp := *op
	f.ops = append(f.ops, &cp)
	return nil
}

func (f *fakeStore) Finish(_ context.Context, op *rollback.Operation) error {
	for i, o := range f.ops {
		if o.ID == op.ID {
			cp := *op
			f.ops[i] = &cp
		}
	}
	return nil
}

func (f *fakeStore) ByMigration(_ context.Context, migrationID string) ([]rollback.Operation, error) {
	var ops []rollback.Operation
	for _, o := range f.ops {
		if o.MigrationID == migrationID {
			ops = append(ops, *o)
		}
	}
	return ops, nil
}

type fakeRunner struct {
	err  error
	runs []string
}

func (f *fakeRunner) Run(_ context.Context, query string, _ time.Duration) (int64, error) {
	f.runs = append(f.runs, query)
	if f.err != nil {
		return 0, f.err
	}
	return 1, nil
}

func fixture(downSQL string) (*fakeDefs, *fakeExecs) {
	defs := &fakeDefs{defs: map[string]*migration.Definition{
		"m1": {
			ID:               "m1",
			Version:          "1.0.0",
			Name:             "m1",
			Description:      "test",
			UpSQL:            "CREATE TABLE t (id INT)",
			DownSQL:          downSQL,
			RiskLevel:        migration.RiskLow,
			RequiresRollback: true,
		},
	}}
	execs := &fakeExecs{
		completed: map[string]*execution.Execution{
			"m1": {ID: "exec-1", MigrationID: "m1", Status: execution.StatusCompleted},
		},
		points: map[string]*execution.RollbackPoint{
			"exec-1": {ID: "point-1", MigrationExecutionID: "exec-1"},
		},
	}
	return defs, execs
}

func TestRollback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("successful rollback marks the execution rolled back", func(t *testing.T) {
		t.Parallel()

		defs, execs := fixture("DROP TABLE t")
		store := &fakeStore{}
		runner := &fakeRunner{}
		svc := rollback.NewService(defs, execs, store, runner)

		op, err := svc.Rollback(ctx, "m1", rollback.Options{Reason: "bad index", ExecutedBy: "ops"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if op.Status != rollback.StatusCompleted {
			t.Errorf("expected completed, got %s", op.Status)
		}
		if op.Progress != 100 {
			t.Errorf("expected progress 100, got %d", op.Progress)
		}
		if op.OriginalMigrationID != "exec-1" {
			t.Errorf("expected operation to reference exec-1, got %s", op.OriginalMigrationID)
		}

		if len(runner.runs) != 1 || runner.runs[0] != "DROP TABLE t" {
			t.Errorf("expected down sql to run, got %v", runner.runs)
		}
		if len(execs.rolledBack) != 1 || execs.rolledBack[0] != "exec-1" {
			t.Errorf("expected exec-1 to be marked rolled back, got %v", execs.rolledBack)
		}
	})

	t.Run("empty down sql is a no-op success", func(t *testing.T) {
		t.Parallel()

		defs, execs := fixture("")
		runner := &fakeRunner{}
		svc := rollback.NewService(defs, execs, &fakeStore{}, runner)

		op, err := svc.Rollback(ctx, "m1", rollback.Options{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if op.Status != rollback.StatusCompleted {
			t.Errorf("expected completed, got %s", op.Status)
		}
		if len(runner.runs) != 0 {
			t.Errorf("expected no sql to run, got %v", runner.runs)
		}
		if len(execs.rolledBack) != 1 {
			t.Error("expected execution to be marked rolled back")
		}
	})

	t.Run("failed down sql leaves the execution completed", func(t *testing.T) {
		t.Parallel()

		defs, execs := fixture("DROP TABLE t")
		store := &fakeStore{}
		runner := &fakeRunner{err: errors.New("table is locked")}
		svc := rollback.NewService(defs, execs, store, runner)

		_, err := svc.Rollback(ctx, "m1", rollback.Options{})

		var execErr *execution.Error
		if !errors.As(err, &execErr) {
			t.Fatalf("expected execution error, got %v", err)
		}

		if len(store.ops) != 1 {
			t.Fatalf("expected one operation record, got %d", len(store.ops))
		}
		if store.ops[0].Status != rollback.StatusFailed {
			t.Errorf("expected failed operation, got %s", store.ops[0].Status)
		}
		if store.ops[0].ErrorMessage == "" {
			t.Error("expected error message to be stored")
		}
		if len(execs.rolledBack) != 0 {
			t.Error("expected execution to stay completed")
		}
	})

	t.Run("no completed execution", func(t *testing.T) {
		t.Parallel()

		defs, execs := fixture("DROP TABLE t")
		execs.completed = map[string]*execution.Execution{}
		svc := rollback.NewService(defs, execs, &fakeStore{}, &fakeRunner{})

		_, err := svc.Rollback(ctx, "m1", rollback.Options{})
		if !errors.Is(err, rollback.ErrNoCompletedExecution) {
			t.Fatalf("expected ErrNoCompletedExecution, got %v", err)
		}
	})

	t.Run("no rollback point", func(t *testing.T) {
		t.Parallel()

		defs, execs := fixture("DROP TABLE t")
		execs.points = map[string]*execution.RollbackPoint{}
		svc := rollback.NewService(defs, execs, &fakeStore{}, &fakeRunner{})

		_, err := svc.Rollback(ctx, "m1", rollback.Options{})
		if !errors.Is(err, rollback.ErrNoRollbackPoint) {
			t.Fatalf("expected ErrNoRollbackPoint, got %v", err)
		}
	})

	t.Run("unknown migration", func(t *testing.T) {
		t.Parallel()

		svc := rollback.NewService(&fakeDefs{defs: map[string]*migration.Definition{}}, &fakeExecs{}, &fakeStore{}, &fakeRunner{})

		_, err := svc.Rollback(ctx, "ghost", rollback.Options{})
		if !errors.Is(err, migration.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}
