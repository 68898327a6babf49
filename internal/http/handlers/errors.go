// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Service methods return classified errors (see services/errors.go); this
// file maps each kind to an HTTP status and a stable, machine-readable code
// so clients can branch without parsing messages.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "validation_failed",
//	  "message": "status: must be between 0 and 5"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/slotboard/internal/http/middleware"
	"github.com/tbourn/slotboard/internal/retention"
	"github.com/tbourn/slotboard/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeValidation       = "validation_failed"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = middleware.CodeRateLimited
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeUnavailable      = "unavailable"

	// Domain-specific:
	ErrCodeHousekeepingBusy = "housekeeping_running"
)

// statusOf classifies err into an HTTP status and code. Unknown errors are
// 500 and their text is not echoed to the client.
func statusOf(err error) (status int, code, msg string) {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest, ErrCodeValidation, err.Error()
	case errors.Is(err, services.ErrUnauthenticated):
		return http.StatusUnauthorized, ErrCodeUnauthorized, err.Error()
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden, ErrCodeForbidden, err.Error()
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound, err.Error()
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict, ErrCodeConflict, err.Error()
	case errors.Is(err, retention.ErrAlreadyRunning):
		return http.StatusConflict, ErrCodeHousekeepingBusy, err.Error()
	default:
		return http.StatusInternalServerError, ErrCodeInternal, "internal server error"
	}
}

// failErr writes the envelope for a service error. 5xx causes are logged by
// fail with the request-scoped logger.
func failErr(c *gin.Context, err error) {
	status, code, msg := statusOf(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	fail(c, status, code, msg)
}
