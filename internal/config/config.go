package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration.
// Values come from the YAML file first; variables named in env tags override them.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Batch     BatchConfig     `yaml:"batch"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
	App       AppConfig       `yaml:"app"`
	Worker    WorkerConfig    `yaml:"worker"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" env:"SERVER_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host" env:"DB_HOST"`
	Port            int           `yaml:"port" env:"DB_PORT"`
	User            string        `yaml:"user" env:"DB_USER"`
	Password        string        `yaml:"password" env:"DB_PASSWORD"`
	Database        string        `yaml:"database" env:"DB_NAME"`
	SSLMode         string        `yaml:"sslmode" env:"DB_SSLMODE"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	// AutoMigrate applies the embedded schema on start
	AutoMigrate bool `yaml:"auto_migrate" env:"DB_AUTO_MIGRATE"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host" env:"RABBITMQ_HOST"`
	Port       int              `yaml:"port" env:"RABBITMQ_PORT"`
	User       string           `yaml:"user" env:"RABBITMQ_USER"`
	Password   string           `yaml:"password" env:"RABBITMQ_PASSWORD"`
	VHost      string           `yaml:"vhost" env:"RABBITMQ_VHOST"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
	// DeadLetterExchange receives signals the worker rejects without requeue
	DeadLetterExchange string `yaml:"dead_letter_exchange"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	Confirm           bool          `yaml:"confirm"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// RedisConfig holds the optional Redis connection used for idempotency keys.
// An empty Addr disables Redis.
type RedisConfig struct {
	Addr         string        `yaml:"addr" env:"REDIS_ADDR"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB           int           `yaml:"db" env:"REDIS_DB"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size"`
}

// Enabled reports whether a Redis address is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// AuthConfig holds the credentials accepted by the authorization gate
type AuthConfig struct {
	Enabled     bool     `yaml:"enabled" env:"AUTH_ENABLED"`
	APIKeys     []string `yaml:"api_keys" env:"AUTH_API_KEYS" envSeparator:","`
	JWTSecret   string   `yaml:"jwt_secret" env:"AUTH_JWT_SECRET"`
	JWTIssuer   string   `yaml:"jwt_issuer" env:"AUTH_JWT_ISSUER"`
	JWTAudience string   `yaml:"jwt_audience" env:"AUTH_JWT_AUDIENCE"`
}

// RateLimitConfig holds per-IP limits on batch submission
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"RATE_LIMIT_RPS"`
	Burst             int     `yaml:"burst" env:"RATE_LIMIT_BURST"`
}

// BatchConfig holds orchestration settings
type BatchConfig struct {
	PublishConcurrency int           `yaml:"publish_concurrency"`
	PublishTimeout     time.Duration `yaml:"publish_timeout"`
	IdempotencyTTL     time.Duration `yaml:"idempotency_ttl"`
}

// MetricsConfig holds Prometheus exposition settings
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"METRICS_ENABLED"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level" env:"LOG_LEVEL"`
	Format       string `yaml:"format" env:"LOG_FORMAT"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment" env:"APP_ENV"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency" env:"WORKER_CONCURRENCY"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	MaxAttempts     int           `yaml:"max_attempts"`
	RetryBackoff    time.Duration `yaml:"retry_backoff"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MetricsAddr     string        `yaml:"metrics_addr" env:"WORKER_METRICS_ADDR"`
	// Executors maps each job type to the enrichment endpoint that runs it
	Executors  map[string]ExecutorConfig `yaml:"executors"`
	Reconciler ReconcilerConfig          `yaml:"reconciler"`
}

// ExecutorConfig describes one HTTP enrichment endpoint
type ExecutorConfig struct {
	URL     string            `yaml:"url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// ReconcilerConfig holds the stale-job sweep settings
type ReconcilerConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Interval          time.Duration `yaml:"interval"`
	StalePendingAfter time.Duration `yaml:"stale_pending_after"`
	StaleRunningAfter time.Duration `yaml:"stale_running_after"`
	BatchSize         int           `yaml:"batch_size"`
}

// Load reads and parses the configuration file, then applies environment overrides
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := env.Parse(&config); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	return &config, nil
}

// Validate checks the sections both services share
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return errors.New("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return errors.New("database name is required")
	}

	if c.RabbitMQ.Host == "" {
		return errors.New("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return errors.New("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return errors.New("rabbitmq queue name is required")
	}

	return nil
}

// ValidateAPIConfig checks everything the API service needs
func (c *Config) ValidateAPIConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Auth.Enabled && len(c.Auth.APIKeys) == 0 && c.Auth.JWTSecret == "" {
		return errors.New("auth is enabled but neither api_keys nor jwt_secret is set")
	}

	if c.RateLimit.RequestsPerSecond < 0 {
		return errors.New("rate_limit requests_per_second must not be negative")
	}

	if c.Batch.PublishConcurrency < 0 {
		return errors.New("batch publish_concurrency must not be negative")
	}

	if c.Batch.PublishTimeout <= 0 {
		return errors.New("batch publish_timeout must be greater than 0")
	}

	return nil
}

// ValidateWorkerConfig checks everything the worker service needs
func (c *Config) ValidateWorkerConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return errors.New("worker concurrency must be greater than 0")
	}

	if c.Worker.JobTimeout <= 0 {
		return errors.New("worker job_timeout must be greater than 0")
	}

	if c.Worker.MaxAttempts <= 0 {
		return errors.New("worker max_attempts must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return errors.New("worker shutdown_timeout must be greater than 0")
	}

	if len(c.Worker.Executors) == 0 {
		return errors.New("worker executors must configure at least one job type")
	}

	for jobType, ex := range c.Worker.Executors {
		if ex.URL == "" {
			return fmt.Errorf("worker executor %s: url is required", jobType)
		}
	}

	if r := c.Worker.Reconciler; r.Enabled {
		if r.Interval <= 0 {
			return errors.New("worker reconciler interval must be greater than 0")
		}
		if r.StalePendingAfter <= 0 || r.StaleRunningAfter <= 0 {
			return errors.New("worker reconciler stale thresholds must be greater than 0")
		}
	}

	return nil
}
