package service

import (
	"context"

	"github.com/cuongbtq/batch-orchestrator/internal/api/idempotency"
	"github.com/cuongbtq/batch-orchestrator/internal/domain"
)

// JobStore persists and reads job rows.
type JobStore interface {
	CreateBatch(ctx context.Context, parent *domain.Job, children []*domain.Job) error
	GetJob(ctx context.Context, id string) (*domain.Job, error)
	ListChildren(ctx context.Context, parentID string, limit, offset int) ([]domain.Job, error)
	CountChildren(ctx context.Context, parentID string) (int, error)
}

// SignalPublisher emits "execute job" signals.
type SignalPublisher interface {
	PublishExecute(ctx context.Context, jobID string) error
}

// IdempotencyStore tracks Idempotency-Key reservations.
type IdempotencyStore interface {
	Reserve(ctx context.Context, jobType domain.JobType, key string) (idempotency.Reservation, error)
	Complete(ctx context.Context, jobType domain.JobType, key, parentID string) error
	Release(ctx context.Context, jobType domain.JobType, key string) error
}
