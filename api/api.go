// Package api exposes the migration engine over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/schemaops/migrond/cleanup"
	"github.com/schemaops/migrond/execution"
	"github.com/schemaops/migrond/health"
	"github.com/schemaops/migrond/migration"
	"github.com/schemaops/migrond/rollback"
)

type migrationService interface {
	Register(ctx context.Context, def *migration.Definition) (*migration.Definition, error)
	Get(ctx context.Context, id string) (*migration.Definition, error)
	List(ctx context.Context, filter migration.ListFilter) ([]migration.Definition, error)
	Tests(ctx context.Context, migrationID string) ([]migration.Test, error)
	AddTest(ctx context.Context, test *migration.Test) (*migration.Test, error)
	Validate(ctx context.Context, ids []string) (*migration.ValidationReport, error)
}

type executionService interface {
	Execute(ctx context.Context, migrationID string, opts execution.Options) (*execution.Execution, error)
	ExecuteBatch(ctx context.Context, migrationIDs []string, opts execution.BatchOptions) (*execution.BatchResult, error)
	RunTests(ctx context.Context, migrationID string) ([]execution.TestOutcome, error)
	History(ctx context.Context, migrationID string) ([]execution.Execution, error)
	Stats(ctx context.Context, migrationID string) (*execution.Stats, error)
	CurrentVersion(ctx context.Context) (*execution.SchemaVersion, error)
}

type rollbackService interface {
	Rollback(ctx context.Context, migrationID string, opts rollback.Options) (*rollback.Operation, error)
	Operations(ctx context.Context, migrationID string) ([]rollback.Operation, error)
}

type healthService interface {
	Check(ctx context.Context) (*health.Check, error)
	Report(ctx context.Context, periodDays int) (*health.Analysis, error)
	Alerts(ctx context.Context) ([]health.Alert, error)
	Acknowledge(ctx context.Context, id string) error
}

type cleanupService interface {
	Cleanup(ctx context.Context, options cleanup.Options) (*cleanup.Result, error)
}

// API holds the services behind the HTTP surface.
type API struct {
	migrations migrationService
	executions executionService
	rollbacks  rollbackService
	health     healthService
	cleanup    cleanupService
}

// New creates the API facade.
func New(
	migrations migrationService,
	executions executionService,
	rollbacks rollbackService,
	healthSvc healthService,
	cleanupSvc cleanupService,
) *API {
	return &API{
		migrations: migrations,
		executions: executions,
		rollbacks:  rollbacks,
		health:     healthSvc,
		cleanup:    cleanupSvc,
	}
}

// Router builds the gin engine with all routes registered. The liveness
// handler is passed in separately because it belongs to the application
// lifecycle, not the migration domain.
func (a *API) Router(liveness http.Handler, allowOrigins ...string) *gin.Engine {
	if len(allowOrigins) == 0 {
		allowOrigins = []string{"*"}
	}

	router := gin.New()
	router.Use(gin.Recovery(), traceMiddleware(), requestLogger())
	router.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}))

	if liveness != nil {
		router.GET("/healthcheck", gin.WrapH(liveness))
	}

	group := router.Group("/api/migrations")
	group.GET("", a.listMigrations)
	group.POST("", a.registerMigration)
	group.GET("/health", a.healthCheck)
	group.GET("/report", a.report)
	group.GET("/alerts", a.listAlerts)
	group.POST("/alerts/:id/ack", a.acknowledgeAlert)
	group.POST("/execute/:id", a.executeMigration)
	group.POST("/batch", a.executeBatch)
	group.POST("/rollback", a.rollbackMigration)
	group.POST("/validate", a.validateMigrations)
	group.POST("/cleanup", a.runCleanup)
	group.GET("/:id", a.getMigration)
	group.GET("/:id/tests", a.listTests)
	group.POST("/:id/tests", a.addTest)
	group.POST("/:id/tests/run", a.runTests)
	group.GET("/:id/rollbacks", a.listRollbacks)

	return router
}
