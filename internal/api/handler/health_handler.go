package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Health handles GET /health
// Reports each backing dependency; any failure turns the response into a 503
func Health(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		checks := make(map[string]string, len(deps.HealthChecks))
		for name, checker := range deps.HealthChecks {
			if err := checker.HealthCheck(ctx); err != nil {
				checks[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}

		overall := "healthy"
		if status != http.StatusOK {
			overall = "unhealthy"
		}

		c.JSON(status, gin.H{
			"status":  overall,
			"service": deps.ServiceName,
			"checks":  checks,
		})
	}
}
