package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"upscaler/internal/jobs"
	"upscaler/internal/services"
)

// APIError is the body of every error response.
// Example: { "error": { "code": "not_found", "message": "Job not found" } }
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error APIError `json:"error"`
}

// JSONError aborts the request with a structured error body.
func JSONError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: APIError{Code: code, Message: msg}})
}

func badRequest(c *gin.Context, msg string) {
	JSONError(c, http.StatusBadRequest, "bad_request", msg)
}

func notFound(c *gin.Context, msg string) {
	JSONError(c, http.StatusNotFound, "not_found", msg)
}

func tooLarge(c *gin.Context, msg string) {
	JSONError(c, http.StatusRequestEntityTooLarge, "payload_too_large", msg)
}

func internal(c *gin.Context, msg string) {
	JSONError(c, http.StatusInternalServerError, "internal_error", msg)
}

// respondError maps pipeline and store errors onto status codes.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		notFound(c, "Job not found")
	case errors.Is(err, services.ErrValidation):
		badRequest(c, services.Message(err))
	default:
		_ = c.Error(err)
		internal(c, services.Message(err))
	}
}
