package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/batch-orchestrator/internal/api/service"
	"github.com/cuongbtq/batch-orchestrator/internal/auth"
	"github.com/cuongbtq/batch-orchestrator/internal/domain"
)

// BatchStarter starts batches.
type BatchStarter interface {
	StartBatch(ctx context.Context, req service.StartBatchRequest) (*service.StartBatchResult, error)
}

// BatchReader reads batch results.
type BatchReader interface {
	GetBatchResult(ctx context.Context, req service.GetBatchResultRequest) (*service.BatchResult, error)
}

// HealthChecker is implemented by every backing client reported on /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// RateLimitConfig limits batch submissions per client IP. Zero RequestsPerSecond disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger        *slog.Logger
	Orchestrator  BatchStarter
	Aggregator    BatchReader
	Authenticator *auth.Authenticator
	JobTypes      []domain.JobType
	HealthChecks  map[string]HealthChecker
	RateLimit     RateLimitConfig
	// MetricsEnabled mounts the Prometheus handler at /metrics
	MetricsEnabled bool
	ServiceName    string
}

// BatchHandler handles batch-related HTTP requests
type BatchHandler struct {
	logger       *slog.Logger
	orchestrator BatchStarter
	aggregator   BatchReader
}

// NewBatchHandler creates a new BatchHandler instance
func NewBatchHandler(deps *Dependencies) *BatchHandler {
	return &BatchHandler{
		logger:       deps.Logger,
		orchestrator: deps.Orchestrator,
		aggregator:   deps.Aggregator,
	}
}
