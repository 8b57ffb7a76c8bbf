package service

import (
	"context"
	"fmt"

	"github.com/cuongbtq/batch-orchestrator/internal/domain"
	"github.com/cuongbtq/batch-orchestrator/shared/rabbitmq"
)

// RabbitPublisher sends execution signals through the shared RabbitMQ client.
type RabbitPublisher struct {
	client *rabbitmq.Client
}

func NewRabbitPublisher(client *rabbitmq.Client) *RabbitPublisher {
	return &RabbitPublisher{client: client}
}

// PublishExecute publishes {"jobId": jobID}. The message id is the job id so
// consumers can correlate redeliveries.
func (p *RabbitPublisher) PublishExecute(ctx context.Context, jobID string) error {
	body, err := domain.ExecuteSignal{JobID: jobID}.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode signal: %w", err)
	}

	return p.client.PublishWithRetry(ctx, rabbitmq.Message{
		ID:          jobID,
		Body:        body,
		ContentType: domain.SignalContentType,
	})
}
