package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/roach88/authsync/internal/authority"
	"github.com/roach88/authsync/internal/store"
	"github.com/roach88/authsync/internal/tenant"
)

// Error codes of APIError.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "OPTIMISTIC_LOCKING_ERROR"
	CodeSharedRecord = "SHARED_RECORD"
	CodeInUse        = "IN_USE"
	CodeNoTenant     = "TENANT_REQUIRED"
	CodeUnavailable  = "UNAVAILABLE"
	CodeInternal     = "INTERNAL_SERVER_ERROR"
)

// APIError is the body of every error response.
type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func respondError(c *gin.Context, status int, code, message string, details interface{}) {
	c.AbortWithStatusJSON(status, APIError{Code: code, Message: message, Details: details})
}

// respondServiceError maps a service error onto a status and code. Unknown
// errors are logged and hidden behind a 500.
func (s *Server) respondServiceError(c *gin.Context, err error) {
	var conflict *store.ConflictError
	switch {
	case errors.As(err, &conflict):
		respondError(c, http.StatusConflict, CodeConflict, err.Error(), gin.H{
			"expected": conflict.Expected,
			"actual":   conflict.Actual,
		})
	case store.IsNotFound(err):
		respondError(c, http.StatusNotFound, CodeNotFound, err.Error(), nil)
	case errors.Is(err, store.ErrInUse):
		respondError(c, http.StatusUnprocessableEntity, CodeInUse, err.Error(), nil)
	case errors.Is(err, authority.ErrSharedRecord):
		respondError(c, http.StatusUnprocessableEntity, CodeSharedRecord, err.Error(), nil)
	case errors.Is(err, tenant.ErrNoTenant):
		respondError(c, http.StatusBadRequest, CodeNoTenant, err.Error(), nil)
	default:
		s.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		respondError(c, http.StatusInternalServerError, CodeInternal, "internal error", nil)
	}
}
