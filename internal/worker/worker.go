package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/batch-orchestrator/internal/domain"
	workerdomain "github.com/cuongbtq/batch-orchestrator/internal/worker/domain"
	"github.com/cuongbtq/batch-orchestrator/shared/rabbitmq"
)

// JobStorage is the slice of the jobs table the processor needs.
type JobStorage interface {
	ClaimJob(ctx context.Context, jobID, workerID string, now time.Time) (*domain.Job, error)
	CompleteJob(ctx context.Context, jobID string, result json.RawMessage, now time.Time) error
	FailJob(ctx context.Context, jobID, reason string, now time.Time) error
}

// Config holds worker configuration
type Config struct {
	Logger       *slog.Logger
	Storage      JobStorage
	RabbitClient *rabbitmq.Client
	Executors    map[domain.JobType]Executor
	// Reconciler is optional
	Reconciler    *Reconciler
	QueueName     string
	Concurrency   int
	PrefetchCount int
	JobTimeout    time.Duration
	MaxAttempts   int
	RetryBackoff  time.Duration
}

// Worker consumes execution signals and drives child jobs to a terminal status
type Worker struct {
	logger            *slog.Logger
	storage           JobStorage
	rabbitClient      *rabbitmq.Client
	executors         map[domain.JobType]Executor
	reconciler        *Reconciler
	rabbitMQQueueName string
	workerID          string
	concurrency       int
	prefetchCount     int
	jobTimeout        time.Duration
	maxAttempts       int
	retryBackoff      time.Duration
	now               func() time.Time

	jobsChan chan *workerdomain.JobMessage
	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = concurrency
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	return &Worker{
		logger:            cfg.Logger,
		storage:           cfg.Storage,
		rabbitClient:      cfg.RabbitClient,
		executors:         cfg.Executors,
		reconciler:        cfg.Reconciler,
		rabbitMQQueueName: cfg.QueueName,
		workerID:          "worker-" + uuid.NewString(),
		concurrency:       concurrency,
		prefetchCount:     prefetch,
		jobTimeout:        cfg.JobTimeout,
		maxAttempts:       maxAttempts,
		retryBackoff:      cfg.RetryBackoff,
		now:               time.Now,
		jobsChan:          make(chan *workerdomain.JobMessage, concurrency),
		stopChan:          make(chan struct{}),
	}
}

// ID returns the identifier written to claimed rows.
func (w *Worker) ID() string {
	return w.workerID
}

// Start subscribes to the queue, spawns the pool and blocks until ctx is canceled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
		slog.Int("max_attempts", w.maxAttempts),
	)

	deliveries, err := w.setupConsumer(ctx)
	if err != nil {
		return fmt.Errorf("failed to setup consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.startMessageDispatcher(ctx, deliveries)
	}()

	if w.reconciler != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.reconciler.Run(ctx)
		}()
	}

	<-ctx.Done()
	w.logger.Info("Worker context canceled, stopping...")

	return nil
}

// Stop signals every goroutine to exit and waits for in-flight jobs to finish.
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
