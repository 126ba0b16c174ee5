package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/schemaops/migrond/execution"
	"github.com/schemaops/migrond/health"
	"github.com/schemaops/migrond/log"
	"github.com/schemaops/migrond/migration"
	"github.com/schemaops/migrond/rollback"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// writeError maps domain errors to HTTP statuses. Failures are never hidden
// behind a 200.
func writeError(c *gin.Context, err error) {
	var validationErr *migration.ValidationError
	var executionErr *execution.Error

	switch {
	case errors.Is(err, migration.ErrNotFound),
		errors.Is(err, execution.ErrNotFound),
		errors.Is(err, health.ErrAlertNotFound):
		respond(c, http.StatusNotFound, "not_found", err, nil)
	case errors.Is(err, migration.ErrDuplicateID):
		respond(c, http.StatusConflict, "duplicate_id", err, nil)
	case errors.Is(err, execution.ErrAlreadyRunning):
		respond(c, http.StatusConflict, "already_running", err, nil)
	case errors.As(err, &validationErr):
		respond(c, http.StatusBadRequest, "validation_failed", err, validationErr.Problems)
	case errors.Is(err, rollback.ErrNoCompletedExecution):
		respond(c, http.StatusUnprocessableEntity, "no_completed_execution", err, nil)
	case errors.Is(err, rollback.ErrNoRollbackPoint):
		respond(c, http.StatusUnprocessableEntity, "no_rollback_point", err, nil)
	case errors.As(err, &executionErr):
		respond(c, http.StatusUnprocessableEntity, "execution_failed", err, nil)
	default:
		log.ErrorContext(c.Request.Context(), "request failed", "error", err)
		respond(c, http.StatusInternalServerError, "internal", errors.New("internal server error"), nil)
	}
}

func respond(c *gin.Context, status int, code string, err error, details any) {
	c.AbortWithStatusJSON(status, errorResponse{Error: errorBody{
		Code:    code,
		Message: err.Error(),
		Details: details,
	}})
}

// writeBadRequest reports a malformed request body or query parameter.
func writeBadRequest(c *gin.Context, err error) {
	respond(c, http.StatusBadRequest, "bad_request", err, nil)
}
