package service

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/cuongbtq/batch-orchestrator/internal/api/idempotency"
	"github.com/cuongbtq/batch-orchestrator/internal/domain"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateBatch(ctx context.Context, parent *domain.Job, children []*domain.Job) error {
	args := m.Called(ctx, parent, children)
	return args.Error(0)
}

func (m *mockStore) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	args := m.Called(ctx, id)
	job, _ := args.Get(0).(*domain.Job)
	return job, args.Error(1)
}

func (m *mockStore) ListChildren(ctx context.Context, parentID string, limit, offset int) ([]domain.Job, error) {
	args := m.Called(ctx, parentID, limit, offset)
	jobs, _ := args.Get(0).([]domain.Job)
	return jobs, args.Error(1)
}

func (m *mockStore) CountChildren(ctx context.Context, parentID string) (int, error) {
	args := m.Called(ctx, parentID)
	return args.Int(0), args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishExecute(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

type mockIdempotency struct {
	mock.Mock
}

func (m *mockIdempotency) Reserve(ctx context.Context, jobType domain.JobType, key string) (idempotency.Reservation, error) {
	args := m.Called(ctx, jobType, key)
	return args.Get(0).(idempotency.Reservation), args.Error(1)
}

func (m *mockIdempotency) Complete(ctx context.Context, jobType domain.JobType, key, parentID string) error {
	return m.Called(ctx, jobType, key, parentID).Error(0)
}

func (m *mockIdempotency) Release(ctx context.Context, jobType domain.JobType, key string) error {
	return m.Called(ctx, jobType, key).Error(0)
}
