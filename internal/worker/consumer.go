package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/batch-orchestrator/internal/domain"
	workerdomain "github.com/cuongbtq/batch-orchestrator/internal/worker/domain"
)

// setupConsumer starts a manual-ack consumer tagged with the worker id.
func (w *Worker) setupConsumer(_ context.Context) (<-chan amqp.Delivery, error) {
	deliveries, err := w.rabbitClient.Consume(w.workerID, w.prefetchCount)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", w.workerID),
		slog.String("queue", w.rabbitMQQueueName),
		slog.Int("prefetch_count", w.prefetchCount),
	)

	return deliveries, nil
}

// startMessageDispatcher listens to RabbitMQ deliveries and dispatches jobs to worker pool
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) {
	w.logger.Info("Message dispatcher started",
		slog.String("worker_id", w.workerID),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return

		case <-w.stopChan:
			w.logger.Info("Message dispatcher stopped - stopChan closed")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			jobMsg, err := parseDelivery(delivery)
			if err != nil {
				w.logger.Error("Rejecting malformed signal",
					slog.Any("error", err),
					slog.String("body", string(delivery.Body)),
				)
				// Malformed messages are dropped (or dead-lettered by the broker)
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK malformed message",
						slog.Any("error", nackErr),
					)
				}
				continue
			}

			select {
			case w.jobsChan <- jobMsg:
				w.logger.Debug("Job dispatched to worker pool",
					slog.String("job_id", jobMsg.JobID),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				w.logger.Info("Message dispatcher stopped while dispatching job")
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown",
						slog.Any("error", nackErr),
					)
				}
				return
			}
		}
	}
}

// parseDelivery decodes an execution signal. Job ids are UUIDs.
func parseDelivery(delivery amqp.Delivery) (*workerdomain.JobMessage, error) {
	signal, err := domain.DecodeSignal(delivery.Body)
	if err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(signal.JobID); err != nil {
		return nil, fmt.Errorf("%w: jobId %q is not a UUID", domain.ErrMalformedSignal, signal.JobID)
	}

	return &workerdomain.JobMessage{
		JobID:       signal.JobID,
		DeliveryTag: delivery.DeliveryTag,
		Acker:       delivery.Acknowledger,
	}, nil
}
