package application_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/schemaops/migrond/application"
)

func TestRunnerFunc(t *testing.T) {
	t.Parallel()

	called := false
	runner := application.RunnerFunc(func(ctx context.Context) error {
		called = true
		return nil
	})

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected wrapped function to be called")
	}
}

// Mutates os.Args, so no t.Parallel.
func TestOnStartFunc(t *testing.T) {
	oldArgs := os.Args
	os.Args = []string{"migrond", "run"}
	t.Cleanup(func() { os.Args = oldArgs })

	t.Run("startup task runs before services", func(t *testing.T) {
		app := application.New()

		called := false
		app.OnStartFunc(func(ctx context.Context) error {
			called = true
			return nil
		}, application.StartupTaskConfig{Name: "probe"})

		if err := app.Run(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !called {
			t.Error("expected startup task to run")
		}
	})

	t.Run("failing task aborts when configured", func(t *testing.T) {
		app := application.New()

		app.OnStartFunc(func(ctx context.Context) error {
			return errors.New("connection refused")
		}, application.StartupTaskConfig{Name: "probe", AbortOnError: true})

		err := app.Run(context.Background())
		var startupErr *application.ErrStartupTaskFailed
		if !errors.As(err, &startupErr) {
			t.Fatalf("expected startup task failure, got %v", err)
		}
	})

	t.Run("failing task is tolerated by default", func(t *testing.T) {
		app := application.New()

		app.OnStartFunc(func(ctx context.Context) error {
			return errors.New("transient")
		}, application.StartupTaskConfig{Name: "probe"})

		if err := app.Run(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}
