package handler

import (
	"errors"
	"log"
	"net/http"

	"tutorhub/backend/internal/lifecycle"

	"github.com/gin-gonic/gin"
)

// writeError maps a manager error to its status code. ErrSessionFull is
// checked before ErrInvalidTransition so clients can tell a retryable
// capacity race from a state conflict.
func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, lifecycle.ErrValidation):
		status, code = http.StatusUnprocessableEntity, "validation_error"
	case errors.Is(err, lifecycle.ErrUnauthorized):
		status, code = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, lifecycle.ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, lifecycle.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, lifecycle.ErrSessionFull):
		status, code = http.StatusConflict, "session_full"
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		status, code = http.StatusConflict, "invalid_transition"
	case errors.Is(err, lifecycle.ErrExhaustedCodeSpace):
		status, code = http.StatusServiceUnavailable, "code_space_exhausted"
	}

	if status == http.StatusInternalServerError {
		log.Printf("ERROR: %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(status, gin.H{"error": code, "message": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}
