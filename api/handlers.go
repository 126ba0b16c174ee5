package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/schemaops/migrond/cleanup"
	"github.com/schemaops/migrond/execution"
	"github.com/schemaops/migrond/health"
	"github.com/schemaops/migrond/migration"
	"github.com/schemaops/migrond/rollback"
)

type registerRequest struct {
	ID                string             `json:"id"`
	Version           string             `json:"version"`
	Name              string             `json:"name"`
	Description       string             `json:"description"`
	Author            string             `json:"author"`
	UpSQL             string             `json:"upSql"`
	DownSQL           string             `json:"downSql"`
	Dependencies      []string           `json:"dependencies"`
	Batch             string             `json:"batch"`
	Tags              []string           `json:"tags"`
	RiskLevel         string             `json:"riskLevel"`
	RequiresRollback  *bool              `json:"requiresRollback"`
	EstimatedDuration string             `json:"estimatedDuration"`
	Metadata          migration.Metadata `json:"metadata"`
}

func (a *API) registerMigration(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, fmt.Errorf("failed to parse request body: %w", err))
		return
	}

	// Rollback capture is on unless the caller opts out explicitly.
	requiresRollback := true
	if req.RequiresRollback != nil {
		requiresRollback = *req.RequiresRollback
	}

	def := &migration.Definition{
		ID:                req.ID,
		Version:           req.Version,
		Name:              req.Name,
		Description:       req.Description,
		Author:            req.Author,
		UpSQL:             req.UpSQL,
		DownSQL:           req.DownSQL,
		Dependencies:      req.Dependencies,
		Batch:             req.Batch,
		Tags:              req.Tags,
		RiskLevel:         migration.RiskLevel(req.RiskLevel),
		RequiresRollback:  requiresRollback,
		EstimatedDuration: req.EstimatedDuration,
		Metadata:          req.Metadata,
	}

	created, err := a.migrations.Register(c.Request.Context(), def)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (a *API) listMigrations(c *gin.Context) {
	filter := migration.ListFilter{
		Batch:     c.Query("batch"),
		RiskLevel: migration.RiskLevel(c.Query("risk_level")),
		Status:    c.Query("status"),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeBadRequest(c, fmt.Errorf("invalid limit %q", raw))
			return
		}
		filter.Limit = limit
	}

	defs, err := a.migrations.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"migrations": defs, "total": len(defs)})
}

// migrationAggregate is the full read model for one migration.
type migrationAggregate struct {
	Definition     *migration.Definition    `json:"definition"`
	Executions     []execution.Execution    `json:"executions"`
	CurrentVersion *execution.SchemaVersion `json:"currentVersion,omitempty"`
	Tests          []migration.Test         `json:"tests"`
	Stats          *execution.Stats         `json:"stats"`
}

func (a *API) getMigration(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	def, err := a.migrations.Get(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}

	executions, err := a.executions.History(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}

	tests, err := a.migrations.Tests(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}

	stats, err := a.executions.Stats(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}

	aggregate := migrationAggregate{
		Definition: def,
		Executions: executions,
		Tests:      tests,
		Stats:      stats,
	}

	version, err := a.executions.CurrentVersion(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	if version != nil && version.MigrationID == id {
		aggregate.CurrentVersion = version
	}

	c.JSON(http.StatusOK, aggregate)
}

type executeRequest struct {
	Executor       string `json:"executor"`
	Environment    string `json:"environment"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
	Force          bool   `json:"force"`
}

func (r *executeRequest) options() execution.Options {
	return execution.Options{
		Executor:    r.Executor,
		Environment: r.Environment,
		Timeout:     time.Duration(r.TimeoutSeconds) * time.Second,
		Force:       r.Force,
	}
}

func (a *API) executeMigration(c *gin.Context) {
	// The body is optional; defaults apply when it is absent.
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(c, fmt.Errorf("failed to parse request body: %w", err))
		return
	}

	exec, err := a.executions.Execute(c.Request.Context(), c.Param("id"), req.options())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, exec)
}

type batchRequest struct {
	executeRequest
	MigrationIDs []string `json:"migrationIds"`
	StopOnError  bool     `json:"stopOnError"`
}

func (a *API) executeBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, fmt.Errorf("failed to parse request body: %w", err))
		return
	}
	if len(req.MigrationIDs) == 0 {
		writeBadRequest(c, fmt.Errorf("migrationIds is required"))
		return
	}

	result, err := a.executions.ExecuteBatch(c.Request.Context(), req.MigrationIDs, execution.BatchOptions{
		Options:     req.options(),
		StopOnError: req.StopOnError,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type rollbackRequest struct {
	MigrationID string `json:"migrationId"`
	Reason      string `json:"reason"`
	ExecutedBy  string `json:"executedBy"`
}

func (a *API) rollbackMigration(c *gin.Context) {
	var req rollbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, fmt.Errorf("failed to parse request body: %w", err))
		return
	}
	if req.MigrationID == "" {
		writeBadRequest(c, fmt.Errorf("migrationId is required"))
		return
	}

	operation, err := a.rollbacks.Rollback(c.Request.Context(), req.MigrationID, rollback.Options{
		Reason:     req.Reason,
		ExecutedBy: req.ExecutedBy,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, operation)
}

func (a *API) listRollbacks(c *gin.Context) {
	operations, err := a.rollbacks.Operations(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"operations": operations})
}

type validateRequest struct {
	MigrationIDs []string `json:"migrationIds"`
}

func (a *API) validateMigrations(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, fmt.Errorf("failed to parse request body: %w", err))
		return
	}

	report, err := a.migrations.Validate(c.Request.Context(), req.MigrationIDs)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (a *API) listTests(c *gin.Context) {
	tests, err := a.migrations.Tests(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tests": tests})
}

func (a *API) addTest(c *gin.Context) {
	var test migration.Test
	if err := c.ShouldBindJSON(&test); err != nil {
		writeBadRequest(c, fmt.Errorf("failed to parse request body: %w", err))
		return
	}
	test.MigrationID = c.Param("id")

	created, err := a.migrations.AddTest(c.Request.Context(), &test)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (a *API) runTests(c *gin.Context) {
	outcomes, err := a.executions.RunTests(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": outcomes})
}

func (a *API) healthCheck(c *gin.Context) {
	check, err := a.health.Check(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, check)
}

// parsePeriodDays accepts a day count as a plain integer or with a day
// suffix ("7d").
func parsePeriodDays(raw string) (int, error) {
	trimmed := strings.TrimSuffix(raw, "d")
	days, err := strconv.Atoi(trimmed)
	if err != nil || days <= 0 {
		return 0, fmt.Errorf("invalid period %q", raw)
	}
	return days, nil
}

func (a *API) report(c *gin.Context) {
	periodDays := 7
	if raw := c.Query("period"); raw != "" {
		parsed, err := parsePeriodDays(raw)
		if err != nil {
			writeBadRequest(c, err)
			return
		}
		periodDays = parsed
	}

	analysis, err := a.health.Report(c.Request.Context(), periodDays)
	if err != nil {
		writeError(c, err)
		return
	}

	if c.Query("format") == "html" {
		html, err := health.RenderHTML(analysis)
		if err != nil {
			writeError(c, err)
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
		return
	}
	c.JSON(http.StatusOK, analysis)
}

func (a *API) listAlerts(c *gin.Context) {
	alerts, err := a.health.Alerts(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

func (a *API) acknowledgeAlert(c *gin.Context) {
	err := a.health.Acknowledge(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": true})
}

func (a *API) runCleanup(c *gin.Context) {
	// The body is optional; zero-value options are a safe no-op.
	var options cleanup.Options
	if err := c.ShouldBindJSON(&options); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(c, fmt.Errorf("failed to parse request body: %w", err))
		return
	}

	result, err := a.cleanup.Cleanup(c.Request.Context(), options)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
