package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/batch-orchestrator/internal/metrics"
)

// StaleRunningReason is the error written onto children the reconciler fails.
const StaleRunningReason = "execution timed out"

// ReconcilerStorage is the slice of the jobs table the reconciler sweeps.
type ReconcilerStorage interface {
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	FailStaleRunning(ctx context.Context, cutoff time.Time, reason string, now time.Time, limit int) (int64, error)
}

// SignalPublisher republishes execution signals.
type SignalPublisher interface {
	PublishExecute(ctx context.Context, jobID string) error
}

// ReconcilerConfig holds sweep thresholds. A zero threshold disables that half of the sweep.
type ReconcilerConfig struct {
	Interval          time.Duration
	StalePendingAfter time.Duration
	StaleRunningAfter time.Duration
	BatchSize         int
}

// Reconciler repairs children whose signal was lost or whose worker died:
// stale PENDING rows get their signal republished and stale RUNNING rows are failed.
type Reconciler struct {
	storage   ReconcilerStorage
	publisher SignalPublisher
	config    ReconcilerConfig
	logger    *slog.Logger
	now       func() time.Time
}

// SweepResult summarizes one reconciliation pass.
type SweepResult struct {
	Republished int
	Failed      int64
}

// NewReconciler creates a reconciler.
func NewReconciler(storage ReconcilerStorage, publisher SignalPublisher, cfg ReconcilerConfig, logger *slog.Logger) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Reconciler{
		storage:   storage,
		publisher: publisher,
		config:    cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Run sweeps once immediately and then on every tick until ctx is canceled.
func (r *Reconciler) Run(ctx context.Context) {
	r.logger.Info("Starting reconciler",
		slog.Duration("interval", r.config.Interval),
		slog.Duration("stale_pending_after", r.config.StalePendingAfter),
		slog.Duration("stale_running_after", r.config.StaleRunningAfter),
	)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("Reconciliation sweep failed", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			r.logger.Info("Reconciler stopped")
			return
		case <-ticker.C:
		}
	}
}

// Sweep runs one reconciliation pass. Publish failures are logged and left
// for the next pass; storage failures abort the pass.
func (r *Reconciler) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := r.now()

	if r.config.StaleRunningAfter > 0 {
		failed, err := r.storage.FailStaleRunning(ctx, now.Add(-r.config.StaleRunningAfter), StaleRunningReason, now, r.config.BatchSize)
		if err != nil {
			return res, fmt.Errorf("failed to sweep stale running jobs: %w", err)
		}
		res.Failed = failed
		if failed > 0 {
			metrics.WorkerStaleRunningFailedTotal.Add(float64(failed))
			r.logger.Warn("Failed stale running jobs", slog.Int64("count", failed))
		}
	}

	if r.config.StalePendingAfter > 0 {
		ids, err := r.storage.ListStalePending(ctx, now.Add(-r.config.StalePendingAfter), r.config.BatchSize)
		if err != nil {
			return res, fmt.Errorf("failed to sweep stale pending jobs: %w", err)
		}
		for _, id := range ids {
			if err := r.publisher.PublishExecute(ctx, id); err != nil {
				r.logger.Error("Failed to republish signal",
					slog.String("job_id", id),
					slog.Any("error", err),
				)
				continue
			}
			res.Republished++
		}
		if res.Republished > 0 {
			metrics.WorkerSignalsRepublishedTotal.Add(float64(res.Republished))
			r.logger.Info("Republished stale pending signals", slog.Int("count", res.Republished))
		}
	}

	return res, nil
}
