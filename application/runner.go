package application

import "context"

// Runner is a long-running or one-shot unit of work managed by the application.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context) error

// Run calls the wrapped function.
func (f RunnerFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Healthchecker is implemented by services that expose a health payload.
type Healthchecker interface {
	Healthcheck(ctx context.Context) any
}

// StartupTaskConfig configures a startup task.
type StartupTaskConfig struct {
	Name         string
	AbortOnError bool
}

type startupTask struct {
	runner Runner
	config StartupTaskConfig
}
