package migration_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/schemaops/migrond/migration"
)

type fakeStore struct {
	defs  map[string]*migration.Definition
	tests []*migration.Test

	createErr     error
	createTestErr error
}

func newFakeStore(defs ...*migration.Definition) *fakeStore {
	s := &fakeStore{defs: make(map[string]*migration.Definition)}
	for _, d := range defs {
		s.defs[d.ID] = d
	}
	return s
}

func (s *fakeStore) Create(_ context.Context, def *migration.Definition) error {
	if s.createErr != nil {
		return s.createErr
	}
	if _, ok := s.defs[def.ID]; ok {
		return migration.ErrDuplicateID
	}
	s.defs[def.ID] = def
	return nil
}

func (s *fakeStore) Get(_ context.Context, id string) (*migration.Definition, error) {
	def, ok := s.defs[id]
	if !ok {
		return nil, migration.ErrNotFound
	}
	return def, nil
}

func (s *fakeStore) List(_ context.Context, _ migration.ListFilter) ([]migration.Definition, error) {
	var defs []migration.Definition
	for _, d := range s.defs {
		defs = append(defs, *d)
	}
	return defs, nil
}

func (s *fakeStore) ExistingIDs(_ context.Context, ids []string) ([]string, error) {
	var existing []string
	for _, id := range ids {
		if _, ok := s.defs[id]; ok {
			existing = append(existing, id)
		}
	}
	return existing, nil
}

func (s *fakeStore) CreateTest(_ context.Context, test *migration.Test) error {
	if s.createTestErr != nil {
		return s.createTestErr
	}
	s.tests = append(s.tests, test)
	return nil
}

func (s *fakeStore) TestsByMigration(_ context.Context, migrationID string) ([]migration.Test, error) {
	var tests []migration.Test
	for _, t := range s.tests {
		if t.MigrationID == migrationID {
			tests = append(tests, *t)
		}
	}
	return tests, nil
}

func validDefinition(id string) *migration.Definition {
	return &migration.Definition{
		ID:          id,
		Version:     "1.0.0",
		Name:        "add users table",
		Description: "creates the users table",
		UpSQL:       "CREATE TABLE users (id INT)",
		RiskLevel:   migration.RiskLow,
	}
}

func TestRegister(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("registers and attaches default test", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore()
		svc := migration.NewService(store)

		def, err := svc.Register(ctx, validDefinition("m1"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if def.CreatedAt.IsZero() {
			t.Error("expected CreatedAt to be set")
		}

		if len(store.tests) != 1 {
			t.Fatalf("expected one default test, got %d", len(store.tests))
		}
		if store.tests[0].MigrationID != "m1" {
			t.Errorf("expected default test for m1, got %s", store.tests[0].MigrationID)
		}
		if !store.tests[0].Enabled {
			t.Error("expected default test to be enabled")
		}
	})

	t.Run("default test quotes the id as a SQL literal", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore()
		svc := migration.NewService(store)

		def := validDefinition("m'1")
		if _, err := svc.Register(ctx, def); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(store.tests) != 1 {
			t.Fatalf("expected one default test, got %d", len(store.tests))
		}
		testSQL := store.tests[0].TestSQL
		if strings.Contains(testSQL, "'m'1'") {
			t.Errorf("expected id to be quoted, got %q", testSQL)
		}
		if !strings.Contains(testSQL, "'m''1'") {
			t.Errorf("expected escaped id literal in %q", testSQL)
		}
	})

	t.Run("duplicate id fails on second call", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore()
		svc := migration.NewService(store)

		if _, err := svc.Register(ctx, validDefinition("m1")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		_, err := svc.Register(ctx, validDefinition("m1"))
		if !errors.Is(err, migration.ErrDuplicateID) {
			t.Fatalf("expected ErrDuplicateID, got %v", err)
		}
	})

	t.Run("missing fields fail validation", func(t *testing.T) {
		t.Parallel()

		svc := migration.NewService(newFakeStore())

		def := validDefinition("m1")
		def.UpSQL = ""
		def.Description = ""

		_, err := svc.Register(ctx, def)

		var vErr *migration.ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if len(vErr.Problems) != 2 {
			t.Errorf("expected 2 problems, got %v", vErr.Problems)
		}
	})

	t.Run("invalid risk level fails validation", func(t *testing.T) {
		t.Parallel()

		svc := migration.NewService(newFakeStore())

		def := validDefinition("m1")
		def.RiskLevel = "catastrophic"

		_, err := svc.Register(ctx, def)

		var vErr *migration.ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("failed default test does not fail registration", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore()
		store.createTestErr = errors.New("insert failed")
		svc := migration.NewService(store)

		_, err := svc.Register(ctx, validDefinition("m1"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestValidate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("missing dependency is reported per migration", func(t *testing.T) {
		t.Parallel()

		m1 := validDefinition("m1")
		m2 := validDefinition("m2")
		m2.Dependencies = []string{"m99"}

		svc := migration.NewService(newFakeStore(m1, m2))

		report, err := svc.Validate(ctx, []string{"m1", "m2"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if report.Valid {
			t.Error("expected overall valid to be false")
		}
		if len(report.Results) != 2 {
			t.Fatalf("expected 2 results, got %d", len(report.Results))
		}

		if !report.Results[0].Valid {
			t.Errorf("expected m1 to be valid, errors: %v", report.Results[0].Errors)
		}
		if report.Results[1].Valid {
			t.Error("expected m2 to be invalid")
		}
		if !slices.Equal(report.Results[1].Errors, []string{"Dependency not found: m99"}) {
			t.Errorf("unexpected m2 errors: %v", report.Results[1].Errors)
		}
	})

	t.Run("unknown migration", func(t *testing.T) {
		t.Parallel()

		svc := migration.NewService(newFakeStore())

		report, err := svc.Validate(ctx, []string{"ghost"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if report.Valid {
			t.Error("expected overall valid to be false")
		}
		if !slices.Equal(report.Results[0].Errors, []string{"Migration not found"}) {
			t.Errorf("unexpected errors: %v", report.Results[0].Errors)
		}
	})

	t.Run("empty up sql", func(t *testing.T) {
		t.Parallel()

		m1 := validDefinition("m1")
		m1.UpSQL = ""

		svc := migration.NewService(newFakeStore(m1))

		report, err := svc.Validate(ctx, []string{"m1"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !slices.Equal(report.Results[0].Errors, []string{"UP SQL is required"}) {
			t.Errorf("unexpected errors: %v", report.Results[0].Errors)
		}
	})

	t.Run("all valid", func(t *testing.T) {
		t.Parallel()

		m1 := validDefinition("m1")
		m2 := validDefinition("m2")
		m2.Dependencies = []string{"m1"}

		svc := migration.NewService(newFakeStore(m1, m2))

		report, err := svc.Validate(ctx, []string{"m1", "m2"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !report.Valid {
			t.Errorf("expected overall valid, results: %+v", report.Results)
		}
	})
}

func TestAddTest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("attaches test to existing migration", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore(validDefinition("m1"))
		svc := migration.NewService(store)

		test, err := svc.AddTest(ctx, &migration.Test{
			MigrationID: "m1",
			Name:        "row count preserved",
			TestSQL:     "SELECT COUNT(*) FROM users",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if test.ID == "" {
			t.Error("expected generated test id")
		}
	})

	t.Run("unknown migration fails", func(t *testing.T) {
		t.Parallel()

		svc := migration.NewService(newFakeStore())

		_, err := svc.AddTest(ctx, &migration.Test{
			MigrationID: "ghost",
			Name:        "x",
			TestSQL:     "SELECT 1",
		})
		if !errors.Is(err, migration.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("missing fields fail", func(t *testing.T) {
		t.Parallel()

		svc := migration.NewService(newFakeStore())

		_, err := svc.AddTest(ctx, &migration.Test{})

		var vErr *migration.ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})
}
