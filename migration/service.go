package migration

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/schemaops/migrond/log"
)

type store interface {
	Create(ctx context.Context, def *Definition) error
	Get(ctx context.Context, id string) (*Definition, error)
	List(ctx context.Context, filter ListFilter) ([]Definition, error)
	ExistingIDs(ctx context.Context, ids []string) ([]string, error)
	CreateTest(ctx context.Context, test *Test) error
	TestsByMigration(ctx context.Context, migrationID string) ([]Test, error)
}

// Service is the migration registry and dependency validator.
type Service struct {
	repo store
}

// NewService creates a new registry service.
func NewService(repo store) *Service {
	return &Service{repo: repo}
}

// GetRepository exposes the repository for application registration.
func (s *Service) GetRepository() any {
	return s.repo
}

// Register validates and persists a new migration definition. The definition
// is stored verbatim; no SQL is parsed or executed at registration time.
// A default post-execution test is attached so a completed execution can be
// asserted later.
func (s *Service) Register(ctx context.Context, def *Definition) (*Definition, error) {
	var problems []string
	if def.ID == "" {
		problems = append(problems, "id is required")
	}
	if def.Name == "" {
		problems = append(problems, "name is required")
	}
	if def.Version == "" {
		problems = append(problems, "version is required")
	}
	if def.Description == "" {
		problems = append(problems, "description is required")
	}
	if def.UpSQL == "" {
		problems = append(problems, "up_sql is required")
	}
	if !def.RiskLevel.Valid() {
		problems = append(problems, "risk_level must be one of low, medium, high, critical")
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	if def.CreatedAt.IsZero() {
		def.CreatedAt = time.Now()
	}

	err := s.repo.Create(ctx, def)
	if err != nil {
		return nil, err
	}

	test := &Test{
		ID:             uuid.NewString(),
		MigrationID:    def.ID,
		Name:           fmt.Sprintf("%s completed execution exists", def.ID),
		Type:           "post_execution",
		// The id becomes a SQL literal, so quote it properly.
		TestSQL:        fmt.Sprintf("SELECT COUNT(*) FROM migration_executions WHERE migration_id = %s AND status = 'completed'", pq.QuoteLiteral(def.ID)),
		ExpectedResult: "1",
		Enabled:        true,
		TimeoutSeconds: 30,
		CreatedAt:      time.Now(),
	}
	err = s.repo.CreateTest(ctx, test)
	if err != nil {
		// The definition itself is registered; a missing default test is
		// recoverable, it can be added later.
		log.WarnContext(ctx, "failed to create default migration test", "migrationId", def.ID, "error", err)
	}

	log.InfoContext(ctx, "migration registered", "migrationId", def.ID, "riskLevel", def.RiskLevel)
	return def, nil
}

// Get returns one definition by id.
func (s *Service) Get(ctx context.Context, id string) (*Definition, error) {
	return s.repo.Get(ctx, id)
}

// List returns definitions matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Definition, error) {
	return s.repo.List(ctx, filter)
}

// Tests returns the tests attached to a migration.
func (s *Service) Tests(ctx context.Context, migrationID string) ([]Test, error) {
	return s.repo.TestsByMigration(ctx, migrationID)
}

// AddTest validates and persists an advisory migration test.
func (s *Service) AddTest(ctx context.Context, test *Test) (*Test, error) {
	var problems []string
	if test.MigrationID == "" {
		problems = append(problems, "migration_id is required")
	}
	if test.Name == "" {
		problems = append(problems, "name is required")
	}
	if test.TestSQL == "" {
		problems = append(problems, "test_sql is required")
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	_, err := s.repo.Get(ctx, test.MigrationID)
	if err != nil {
		return nil, err
	}

	if test.ID == "" {
		test.ID = uuid.NewString()
	}
	if test.CreatedAt.IsZero() {
		test.CreatedAt = time.Now()
	}

	err = s.repo.CreateTest(ctx, test)
	if err != nil {
		return nil, err
	}
	return test, nil
}

// Validate checks each migration's declared prerequisites and SQL payload.
// It performs no execution and has no side effects.
func (s *Service) Validate(ctx context.Context, ids []string) (*ValidationReport, error) {
	report := &ValidationReport{Valid: true, Results: make([]ValidationResult, 0, len(ids))}

	for _, id := range ids {
		result := ValidationResult{MigrationID: id, Errors: []string{}}

		def, err := s.repo.Get(ctx, id)
		switch {
		case errors.Is(err, ErrNotFound):
			result.Errors = append(result.Errors, "Migration not found")
		case err != nil:
			return nil, fmt.Errorf("failed to validate migration %s: %w", id, err)
		default:
			if len(def.Dependencies) > 0 {
				existing, err := s.repo.ExistingIDs(ctx, def.Dependencies)
				if err != nil {
					return nil, fmt.Errorf("failed to validate dependencies of %s: %w", id, err)
				}
				for _, dep := range def.Dependencies {
					if !slices.Contains(existing, dep) {
						result.Errors = append(result.Errors, "Dependency not found: "+dep)
					}
				}
			}
			if def.UpSQL == "" {
				result.Errors = append(result.Errors, "UP SQL is required")
			}
		}

		result.Valid = len(result.Errors) == 0
		if !result.Valid {
			report.Valid = false
		}
		report.Results = append(report.Results, result)
	}

	return report, nil
}
