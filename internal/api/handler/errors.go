package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/batch-orchestrator/internal/api/dto"
	"github.com/cuongbtq/batch-orchestrator/internal/domain"
)

// CodeRateLimited is emitted by the rate limit middleware; it never leaves the domain layer.
const CodeRateLimited = "rate_limited"

// StatusFor maps an error code to its HTTP status.
func StatusFor(code domain.Code) int {
	switch code {
	case domain.CodeInvalidArgument:
		return http.StatusBadRequest
	case domain.CodeUnauthenticated:
		return http.StatusUnauthorized
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeConflict:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as an ErrorResponse. Internal details stay in the log.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	code := domain.CodeOf(err)
	status := StatusFor(code)

	body := dto.ErrorResponse{
		Error: err.Error(),
		Code:  string(code),
		Field: domain.FieldOf(err),
	}
	if status == http.StatusInternalServerError {
		logger.Error("Request failed",
			slog.String("path", c.Request.URL.Path),
			slog.Any("error", err),
		)
		body.Error = "internal error"
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}
