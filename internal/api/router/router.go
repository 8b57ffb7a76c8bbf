package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cuongbtq/batch-orchestrator/internal/api/handler"
	"github.com/cuongbtq/batch-orchestrator/internal/auth"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", handler.Health(deps))

	if deps.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	var limiter *RateLimiter
	if deps.RateLimit.RequestsPerSecond > 0 {
		limiter = NewRateLimiter(deps.RateLimit.RequestsPerSecond, deps.RateLimit.Burst)
	}

	batchHandler := handler.NewBatchHandler(deps)

	// API v1 routes, one group per job type
	v1 := r.Group("/api/v1")
	v1.Use(auth.Middleware(deps.Authenticator, deps.Logger))
	for _, jobType := range deps.JobTypes {
		batches := v1.Group("/" + string(jobType) + "/batches")
		{
			// POST /api/v1/{type}/batches - Start a batch
			batches.POST("", RateLimitMiddleware(limiter), batchHandler.StartBatch(jobType))

			// GET /api/v1/{type}/batches/:job_id - Get a page of batch results
			batches.GET("/:job_id", batchHandler.GetBatchResult(jobType))
		}
	}

	return r
}
