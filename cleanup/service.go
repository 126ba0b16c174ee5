// Package cleanup reclaims storage by pruning old execution records and
// rollback points that no longer reference an execution.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/schemaops/migrond/log"
)

type store interface {
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteOrphanRollbackPoints(ctx context.Context) (int64, error)
}

// Options selects which cleanup passes run. CleanupDays is the retention
// window for completed executions; non-positive falls back to 30.
type Options struct {
	RemoveOldExecutions        bool `json:"removeOldExecutions"`
	CleanupDays                int  `json:"cleanupDays"`
	RemoveOrphanRollbackPoints bool `json:"removeOrphanRollbackPoints"`
}

// Result reports how many rows each pass removed.
type Result struct {
	ExecutionsRemoved     int64 `json:"executionsRemoved"`
	RollbackPointsRemoved int64 `json:"rollbackPointsRemoved"`
}

// Service prunes migration bookkeeping data.
type Service struct {
	store store
}

// NewService creates a cleanup service.
func NewService(store store) *Service {
	return &Service{store: store}
}

const defaultRetentionDays = 30

// Cleanup runs the selected passes. The passes are independent: a failure in
// one does not stop the other, and partial results are returned alongside the
// joined error.
func (s *Service) Cleanup(ctx context.Context, options Options) (*Result, error) {
	result := &Result{}
	var errs []error

	if options.RemoveOldExecutions {
		days := options.CleanupDays
		if days <= 0 {
			days = defaultRetentionDays
		}
		cutoff := time.Now().AddDate(0, 0, -days)

		removed, err := s.store.DeleteCompletedBefore(ctx, cutoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to remove old executions: %w", err))
		} else {
			result.ExecutionsRemoved = removed
			log.InfoContext(ctx, "removed old executions", "count", removed, "retention_days", days)
		}
	}

	if options.RemoveOrphanRollbackPoints {
		removed, err := s.store.DeleteOrphanRollbackPoints(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to remove orphan rollback points: %w", err))
		} else {
			result.RollbackPointsRemoved = removed
			log.InfoContext(ctx, "removed orphan rollback points", "count", removed)
		}
	}

	return result, errors.Join(errs...)
}
