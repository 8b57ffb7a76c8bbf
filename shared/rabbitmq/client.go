package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	// ErrNotConnected is returned by operations attempted after Close or before a successful connect.
	ErrNotConnected = errors.New("not connected to RabbitMQ")
	// ErrPublishNacked means the broker refused a publishing in confirm mode.
	ErrPublishNacked = errors.New("publish not confirmed by broker")
)

// Config holds RabbitMQ connection configuration
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	VHost              string
	ExchangeName       string
	ExchangeType       string
	ExchangeDurable    bool
	ExchangeAutoDelete bool
	QueueName          string
	QueueDurable       bool
	QueueAutoDelete    bool
	QueueExclusive     bool
	RoutingKey         string
	RetryAttempts      int
	RetryInterval      time.Duration
	Heartbeat          time.Duration
	ConnectionTimeout  time.Duration
	PublishRetries     int
	PublishRetryDelay  time.Duration
	PublishBackoffMult float64

	// PublisherConfirms makes every publish wait for the broker ack.
	PublisherConfirms bool
	// DeadLetterExchange, when set, receives deliveries rejected without requeue.
	DeadLetterExchange string
}

// URI builds the broker address; credentials are escaped by amqp.URI.
func (c *Config) URI() amqp.URI {
	vhost := c.VHost
	if vhost == "" {
		vhost = "/"
	}
	return amqp.URI{
		Scheme:   "amqp",
		Host:     c.Host,
		Port:     c.Port,
		Username: c.User,
		Password: c.Password,
		Vhost:    vhost,
	}
}

// DeadLetterQueue names the queue bound to DeadLetterExchange.
func (c *Config) DeadLetterQueue() string {
	return c.QueueName + ".dead"
}

// Message is a single publishing on the configured exchange and routing key.
type Message struct {
	ID          string
	Body        []byte
	ContentType string
}

// Client owns one connection and one channel carrying both the
// execute-job publishings and the worker consumer.
type Client struct {
	config      *Config
	conn        *amqp.Connection
	channel     *amqp.Channel
	logger      *slog.Logger
	isConnected atomic.Bool
}

// NewClient dials the broker and declares the job topology.
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	client := &Client{
		config: config,
		logger: logger,
	}

	if err := client.connect(); err != nil {
		return nil, fmt.Errorf("failed to create RabbitMQ client: %w", err)
	}

	return client, nil
}

func (c *Client) connect() error {
	conn, err := c.dial()
	if err != nil {
		return err
	}
	c.conn = conn

	c.channel, err = conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	if c.config.PublisherConfirms {
		if err := c.channel.Confirm(false); err != nil {
			c.closeQuietly()
			return fmt.Errorf("failed to enable publisher confirms: %w", err)
		}
	}

	if err := c.declareTopology(); err != nil {
		c.closeQuietly()
		return fmt.Errorf("failed to setup exchange and queue: %w", err)
	}

	closed := c.channel.NotifyClose(make(chan *amqp.Error, 1))
	c.isConnected.Store(true)
	go c.watchClose(closed)

	c.logger.Info("RabbitMQ client initialized",
		slog.String("exchange", c.config.ExchangeName),
		slog.String("queue", c.config.QueueName),
		slog.Bool("publisher_confirms", c.config.PublisherConfirms),
	)

	return nil
}

func (c *Client) dial() (*amqp.Connection, error) {
	amqpConfig := amqp.Config{
		Heartbeat: c.config.Heartbeat,
		Locale:    "en_US",
	}
	if c.config.ConnectionTimeout > 0 {
		amqpConfig.Dial = amqp.DefaultDial(c.config.ConnectionTimeout)
	}

	attempts := max(c.config.RetryAttempts, 1)
	uri := c.config.URI().String()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		conn, err := amqp.DialConfig(uri, amqpConfig)
		if err == nil {
			c.logger.Info("Connected to RabbitMQ",
				slog.String("host", c.config.Host),
				slog.Int("attempt", attempt),
			)
			return conn, nil
		}
		lastErr = err

		c.logger.Warn("RabbitMQ not reachable yet",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.Any("error", err),
		)
		if attempt < attempts {
			time.Sleep(c.config.RetryInterval)
		}
	}

	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, lastErr)
}

func (c *Client) watchClose(closed <-chan *amqp.Error) {
	amqpErr, ok := <-closed
	c.isConnected.Store(false)
	if ok && amqpErr != nil {
		c.logger.Error("RabbitMQ channel closed by broker",
			slog.Int("code", amqpErr.Code),
			slog.String("reason", amqpErr.Reason),
		)
	}
}

// declareTopology declares the execute-job exchange, the work queue and,
// when configured, the dead-letter pair that catches rejected signals.
func (c *Client) declareTopology() error {
	cfg := c.config

	var queueArgs amqp.Table
	if cfg.DeadLetterExchange != "" {
		if err := c.channel.ExchangeDeclare(cfg.DeadLetterExchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare dead-letter exchange: %w", err)
		}
		if _, err := c.channel.QueueDeclare(cfg.DeadLetterQueue(), true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare dead-letter queue: %w", err)
		}
		if err := c.channel.QueueBind(cfg.DeadLetterQueue(), "", cfg.DeadLetterExchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind dead-letter queue: %w", err)
		}
		queueArgs = amqp.Table{"x-dead-letter-exchange": cfg.DeadLetterExchange}
	}

	if err := c.channel.ExchangeDeclare(
		cfg.ExchangeName,
		cfg.ExchangeType,
		cfg.ExchangeDurable,
		cfg.ExchangeAutoDelete,
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	if _, err := c.channel.QueueDeclare(
		cfg.QueueName,
		cfg.QueueDurable,
		cfg.QueueAutoDelete,
		cfg.QueueExclusive,
		false, // no-wait
		queueArgs,
	); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := c.channel.QueueBind(cfg.QueueName, cfg.RoutingKey, cfg.ExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	return nil
}

// Consume applies the prefetch limit and starts a manual-ack consumer on the work queue.
func (c *Client) Consume(consumerTag string, prefetch int) (<-chan amqp.Delivery, error) {
	if !c.isConnected.Load() {
		return nil, ErrNotConnected
	}

	if err := c.channel.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := c.channel.Consume(
		c.config.QueueName,
		consumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to consume messages: %w", err)
	}

	c.logger.Info("Consuming from RabbitMQ",
		slog.String("queue", c.config.QueueName),
		slog.String("consumer_tag", consumerTag),
		slog.Int("prefetch_count", prefetch),
	)

	return deliveries, nil
}

// Close tears down the channel and then the connection.
func (c *Client) Close() error {
	c.isConnected.Store(false)

	if c.channel != nil {
		if err := c.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			c.logger.Warn("Failed to close RabbitMQ channel", slog.Any("error", err))
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			c.logger.Error("Failed to close RabbitMQ connection", slog.Any("error", err))
			return err
		}
	}

	c.logger.Info("RabbitMQ connection closed")
	return nil
}

func (c *Client) closeQuietly() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// IsConnected returns the connection status
func (c *Client) IsConnected() bool {
	return c.isConnected.Load() && c.conn != nil && !c.conn.IsClosed()
}

// HealthCheck reports whether the broker connection is usable.
func (c *Client) HealthCheck(_ context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// backoff yields the wait before each publish retry.
type backoff struct {
	next time.Duration
	mult float64
}

func newBackoff(base time.Duration, mult float64) *backoff {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	if mult <= 1 {
		mult = 2
	}
	return &backoff{next: base, mult: mult}
}

func (b *backoff) step() time.Duration {
	d := b.next
	b.next = time.Duration(float64(b.next) * b.mult)
	return d
}

// PublishWithRetry publishes a persistent message, retrying with exponential
// backoff. The channel serializes frames internally, so concurrent callers are fine.
func (c *Client) PublishWithRetry(ctx context.Context, msg Message) error {
	if !c.isConnected.Load() {
		return ErrNotConnected
	}

	retries := c.config.PublishRetries
	if retries <= 0 {
		retries = 3
	}
	wait := newBackoff(c.config.PublishRetryDelay, c.config.PublishBackoffMult)

	var lastErr error
	for attempt := 1; attempt <= retries+1; attempt++ {
		lastErr = c.publishOnce(ctx, msg)
		if lastErr == nil {
			c.logger.Debug("Message published to RabbitMQ",
				slog.String("message_id", msg.ID),
				slog.Int("attempt", attempt),
			)
			return nil
		}
		if attempt > retries {
			break
		}

		delay := wait.step()
		c.logger.Warn("Publish to RabbitMQ failed, retrying",
			slog.String("message_id", msg.ID),
			slog.Int("attempt", attempt),
			slog.Duration("retry_after", delay),
			slog.Any("error", lastErr),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("publish canceled after %d attempts: %w", attempt, ctx.Err())
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("failed to publish message after %d attempts: %w", retries+1, lastErr)
}

func (c *Client) publishOnce(ctx context.Context, msg Message) error {
	publishing := amqp.Publishing{
		ContentType:  msg.ContentType,
		MessageId:    msg.ID,
		Body:         msg.Body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	}

	confirm, err := c.channel.PublishWithDeferredConfirmWithContext(
		ctx, c.config.ExchangeName, c.config.RoutingKey, false, false, publishing,
	)
	if err != nil {
		return err
	}
	// nil unless the channel is in confirm mode
	if confirm == nil {
		return nil
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !acked {
		return ErrPublishNacked
	}
	return nil
}
