package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/batch-orchestrator/internal/domain"
	workerdomain "github.com/cuongbtq/batch-orchestrator/internal/worker/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine.
// In-flight jobs run on a context detached from ctx so a shutdown drains
// them instead of failing them; only picking up new work stops.
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	jobCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-w.stopChan:
			w.logger.Debug("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Debug("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case msg, ok := <-w.jobsChan:
			if !ok {
				return
			}
			w.handle(jobCtx, workerName, msg)
		}
	}
}

// handle processes one message and settles its delivery.
func (w *Worker) handle(ctx context.Context, workerName string, msg *workerdomain.JobMessage) {
	err := w.processJob(ctx, msg)
	if err == nil {
		if ackErr := msg.Ack(); ackErr != nil {
			w.logger.Error("Failed to ACK message",
				slog.String("worker_name", workerName),
				slog.String("job_id", msg.JobID),
				slog.Any("error", ackErr),
			)
		}
		return
	}

	requeue := shouldRequeueJob(err)
	if nackErr := msg.Nack(requeue); nackErr != nil {
		w.logger.Error("Failed to NACK message",
			slog.String("worker_name", workerName),
			slog.String("job_id", msg.JobID),
			slog.Any("error", nackErr),
		)
		return
	}

	w.logger.Info("Message NACKed",
		slog.String("worker_name", workerName),
		slog.String("job_id", msg.JobID),
		slog.Bool("requeue", requeue),
	)
}

// shouldRequeueJob determines if a message should go back on the queue.
// Only failures before the claim succeeded are worth redelivering: once a
// job is claimed its outcome is written to the row, not to the queue.
func shouldRequeueJob(err error) bool {
	switch {
	case errors.Is(err, workerdomain.ErrJobAlreadyClaimed),
		errors.Is(err, workerdomain.ErrNotAChild),
		errors.Is(err, domain.ErrJobNotFound):
		return false
	}
	return workerdomain.IsRetryable(err)
}
