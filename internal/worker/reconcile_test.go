package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/batch-orchestrator/internal/domain"
	"github.com/cuongbtq/batch-orchestrator/internal/worker/storage"
	"github.com/cuongbtq/batch-orchestrator/shared/logger"
)

type recordingPublisher struct {
	mu        sync.Mutex
	published []string
	failFor   map[string]bool
}

func (p *recordingPublisher) PublishExecute(_ context.Context, jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failFor[jobID] {
		return errors.New("channel closed")
	}
	p.published = append(p.published, jobID)
	return nil
}

func TestReconciler_Sweep(t *testing.T) {
	ctx := context.Background()
	f := newWorkerFixture(t)
	store := storage.NewStorage(f.db, logger.NewNop())

	stalePending := f.seedChild(t, domain.JobTypeFindCompanyNews)
	unpublishable := f.seedChild(t, domain.JobTypeFindCompanyNews)
	staleRunning := f.seedChild(t, domain.JobTypeFindCompanyNews)
	_, err := store.ClaimJob(ctx, staleRunning, "dead-worker", testNow.Add(-2*time.Hour))
	require.NoError(t, err)

	pub := &recordingPublisher{failFor: map[string]bool{unpublishable: true}}
	r := NewReconciler(store, pub, ReconcilerConfig{
		StalePendingAfter: 30 * time.Second,
		StaleRunningAfter: time.Hour,
	}, logger.NewNop())
	r.now = func() time.Time { return testNow }

	res, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Failed)
	assert.Equal(t, 1, res.Republished)
	assert.Equal(t, []string{stalePending}, pub.published)

	failed := f.job(t, staleRunning)
	assert.Equal(t, domain.JobStatusFailed, failed.Status)
	require.NotNil(t, failed.Error)
	assert.Equal(t, StaleRunningReason, *failed.Error)

	// republishing leaves the row alone; the worker claims it when the signal arrives
	assert.Equal(t, domain.JobStatusPending, f.job(t, stalePending).Status)
}

func TestReconciler_ThresholdsDisableHalves(t *testing.T) {
	ctx := context.Background()
	f := newWorkerFixture(t)
	store := storage.NewStorage(f.db, logger.NewNop())
	f.seedChild(t, domain.JobTypeFindCompanyNews)

	pub := &recordingPublisher{}
	r := NewReconciler(store, pub, ReconcilerConfig{}, logger.NewNop())
	r.now = func() time.Time { return testNow }

	res, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, res)
	assert.Empty(t, pub.published)
}

func TestReconciler_FreshRowsUntouched(t *testing.T) {
	ctx := context.Background()
	f := newWorkerFixture(t)
	store := storage.NewStorage(f.db, logger.NewNop())
	id := f.seedChild(t, domain.JobTypeFindCompanyNews)

	pub := &recordingPublisher{}
	r := NewReconciler(store, pub, ReconcilerConfig{
		StalePendingAfter: time.Hour,
		StaleRunningAfter: time.Hour,
	}, logger.NewNop())
	r.now = func() time.Time { return testNow }

	res, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Republished)
	assert.Empty(t, pub.published)
	assert.Equal(t, domain.JobStatusPending, f.job(t, id).Status)
}

func TestReconciler_RunStopsOnCancel(t *testing.T) {
	f := newWorkerFixture(t)
	store := storage.NewStorage(f.db, logger.NewNop())
	f.seedChild(t, domain.JobTypeFindCompanyNews)

	pub := &recordingPublisher{}
	r := NewReconciler(store, pub, ReconcilerConfig{
		Interval:          5 * time.Millisecond,
		StalePendingAfter: time.Second,
	}, logger.NewNop())
	r.now = func() time.Time { return testNow }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		return len(pub.published) >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop")
	}
}
