package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"placement-quiz-service/internal/domain"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func writeError(c *gin.Context, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Validation failed", Details: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "Not found", Details: err.Error()})
	case errors.Is(err, domain.ErrDuplicateResponse):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "Question already answered", Details: err.Error()})
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrAlreadyFolded):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "Invalid attempt state", Details: err.Error()})
	default:
		logger.ErrorContext(c.Request.Context(), "request failed",
			slog.String("request_id", c.GetString("request_id")),
			slog.String("path", c.FullPath()),
			slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "Internal server error"})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid request payload", Details: err.Error()})
}

// queryInt reads an optional non-negative integer query parameter.
func queryInt(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid query parameter", Details: name + " must be a non-negative integer"})
		return 0, false
	}
	return n, true
}
