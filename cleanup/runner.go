package cleanup

import "context"

// Runner adapts the cleanup service to the application runner contract so it
// can run on a schedule.
type Runner struct {
	service *Service
	options Options
}

// NewRunner creates a scheduled cleanup runner with fixed options.
func NewRunner(service *Service, options Options) *Runner {
	return &Runner{service: service, options: options}
}

// Run performs one cleanup pass.
func (r *Runner) Run(ctx context.Context) error {
	_, err := r.service.Cleanup(ctx, r.options)
	return err
}
