package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/batch-orchestrator/internal/domain"
	"github.com/cuongbtq/batch-orchestrator/internal/metrics"
	workerdomain "github.com/cuongbtq/batch-orchestrator/internal/worker/domain"
)

// terminalWriteTimeout bounds the final status update, which runs detached
// from the caller's context so a claimed job is never left half-written.
const terminalWriteTimeout = 10 * time.Second

// processJob claims one child, runs its executor and writes exactly one
// terminal update. A nil return means the message can be acked.
func (w *Worker) processJob(ctx context.Context, msg *workerdomain.JobMessage) error {
	w.logger.Info("Processing job",
		slog.String("job_id", msg.JobID),
		slog.String("worker_id", w.workerID),
	)

	// Step 1: Claim job from database (PENDING → RUNNING)
	job, err := w.storage.ClaimJob(ctx, msg.JobID, w.workerID, w.now())
	if err != nil {
		switch {
		case errors.Is(err, workerdomain.ErrJobAlreadyClaimed),
			errors.Is(err, workerdomain.ErrNotAChild),
			errors.Is(err, domain.ErrJobNotFound):
			// Duplicate or stray signal; nothing to do
			w.logger.Warn("Skipping signal",
				slog.String("job_id", msg.JobID),
				slog.String("reason", err.Error()),
			)
			return err
		}
		w.logger.Error("Failed to claim job",
			slog.String("job_id", msg.JobID),
			slog.Any("error", err),
		)
		return workerdomain.NewRetryableError(fmt.Errorf("failed to claim job: %w", err))
	}

	start := w.now()

	// Step 2: Execute with bounded retries
	result, execErr := w.execute(ctx, job)

	// Step 3: Terminal write
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
	defer cancel()

	status := domain.JobStatusCompleted
	if execErr != nil {
		status = domain.JobStatusFailed
		w.logger.Error("Job execution failed",
			slog.String("job_id", job.ID),
			slog.String("job_type", string(job.Type)),
			slog.Any("error", execErr),
		)
		err = w.storage.FailJob(writeCtx, job.ID, execErr.Error(), w.now())
	} else {
		err = w.storage.CompleteJob(writeCtx, job.ID, result, w.now())
	}

	if err != nil {
		if errors.Is(err, workerdomain.ErrJobNotRunning) {
			// The reconciler already failed it
			w.logger.Warn("Job left RUNNING before its terminal write",
				slog.String("job_id", job.ID),
				slog.String("status", string(status)),
			)
			return nil
		}
		w.logger.Error("Failed to write terminal status",
			slog.String("job_id", job.ID),
			slog.String("status", string(status)),
			slog.Any("error", err),
		)
		return fmt.Errorf("failed to write %s status: %w", status, err)
	}

	metrics.WorkerJobsProcessedTotal.WithLabelValues(string(job.Type), string(status)).Inc()
	metrics.WorkerJobDurationSeconds.WithLabelValues(string(job.Type)).Observe(w.now().Sub(start).Seconds())

	w.logger.Info("Job finished",
		slog.String("job_id", job.ID),
		slog.String("job_type", string(job.Type)),
		slog.String("status", string(status)),
	)
	return nil
}

// execute runs the type's executor, retrying retryable failures with
// exponential backoff up to maxAttempts.
func (w *Worker) execute(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
	executor, ok := w.executors[job.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", workerdomain.ErrNoExecutor, job.Type)
	}

	delay := w.retryBackoff
	var lastErr error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		result, err := w.executeOnce(ctx, executor, job)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !workerdomain.IsRetryable(err) || attempt == w.maxAttempts {
			break
		}

		w.logger.Warn("Job attempt failed, retrying...",
			slog.String("job_id", job.ID),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", w.maxAttempts),
			slog.Duration("retry_after", delay),
			slog.Any("error", err),
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("execution canceled after %d attempts: %w", attempt, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}

	return nil, lastErr
}

func (w *Worker) executeOnce(ctx context.Context, executor Executor, job *domain.Job) (json.RawMessage, error) {
	if w.jobTimeout <= 0 {
		return executor.Execute(ctx, job)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	result, err := executor.Execute(attemptCtx, job)
	if err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, workerdomain.NewRetryableError(fmt.Errorf("attempt timed out after %s: %w", w.jobTimeout, err))
	}
	return result, err
}
