package domain

import amqp "github.com/rabbitmq/amqp091-go"

// JobMessage is one execution signal handed from the dispatcher to the pool.
// Acker settles the delivery once processing finishes.
type JobMessage struct {
	JobID       string
	DeliveryTag uint64
	Acker       amqp.Acknowledger
}

// Ack acknowledges the delivery.
func (m *JobMessage) Ack() error {
	return m.Acker.Ack(m.DeliveryTag, false)
}

// Nack rejects the delivery, optionally putting it back on the queue.
func (m *JobMessage) Nack(requeue bool) error {
	return m.Acker.Nack(m.DeliveryTag, false, requeue)
}
