package postgresql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	defaultConnectAttempts = 3
	defaultConnectDelay    = 2 * time.Second
	pingTimeout            = 5 * time.Second
	healthTimeout          = 2 * time.Second
)

// Config holds PostgreSQL connection configuration
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// ConnectAttempts bounds the startup ping loop; zero means 3.
	ConnectAttempts int
	ConnectDelay    time.Duration

	// StatsRegisterer receives a pool stats collector labelled with Database.
	// Nil skips registration.
	StatsRegisterer prometheus.Registerer
}

// DSN renders the lib/pq keyword/value connection string.
func (c *Config) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode,
	)
}

// Client owns the jobs database pool shared by the api and worker services.
type Client struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewClient opens the pool and pings until the server answers or the
// attempts run out. Postgres often comes up after the services in compose.
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	logger.Info("Connecting to PostgreSQL",
		slog.String("host", config.Host),
		slog.Int("port", config.Port),
		slog.String("database", config.Database),
	)

	db, err := sqlx.Open("postgres", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL pool: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := waitForServer(db, config, logger); err != nil {
		db.Close()
		return nil, err
	}

	if config.StatsRegisterer != nil {
		registerStats(config.StatsRegisterer, db, config.Database, logger)
	}

	logger.Info("Connected to PostgreSQL",
		slog.Int("max_open_conns", config.MaxOpenConns),
		slog.Int("max_idle_conns", config.MaxIdleConns),
		slog.Duration("conn_max_lifetime", config.ConnMaxLifetime),
	)

	return &Client{db: db, logger: logger}, nil
}

func waitForServer(db *sqlx.DB, config *Config, logger *slog.Logger) error {
	attempts := config.ConnectAttempts
	if attempts <= 0 {
		attempts = defaultConnectAttempts
	}
	delay := config.ConnectDelay
	if delay <= 0 {
		delay = defaultConnectDelay
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		lastErr = db.PingContext(ctx)
		cancel()
		if lastErr == nil {
			return nil
		}

		logger.Warn("PostgreSQL not reachable yet",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.Any("error", lastErr),
		)
		if attempt < attempts {
			time.Sleep(delay)
		}
	}

	return fmt.Errorf("failed to ping PostgreSQL after %d attempts: %w", attempts, lastErr)
}

// registerStats exposes sql.DBStats. Both binaries may run the same code in
// tests, so a duplicate registration is tolerated.
func registerStats(reg prometheus.Registerer, db *sqlx.DB, name string, logger *slog.Logger) {
	err := reg.Register(collectors.NewDBStatsCollector(db.DB, name))
	var already prometheus.AlreadyRegisteredError
	if err != nil && !errors.As(err, &already) {
		logger.Warn("Failed to register database stats collector", slog.Any("error", err))
	}
}

// GetDB returns the underlying sqlx.DB instance
func (c *Client) GetDB() *sqlx.DB {
	return c.db
}

// Close drains the pool.
func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}

	c.logger.Info("Closing PostgreSQL connection", c.statsGroup())
	if err := c.db.Close(); err != nil {
		c.logger.Error("Failed to close PostgreSQL connection", slog.Any("error", err))
		return err
	}
	return nil
}

func (c *Client) statsGroup() slog.Attr {
	s := c.db.Stats()
	return slog.Group("pool",
		slog.Int("open", s.OpenConnections),
		slog.Int("in_use", s.InUse),
		slog.Int("idle", s.Idle),
		slog.Int64("wait_count", s.WaitCount),
		slog.Duration("wait_duration", s.WaitDuration),
	)
}

// HealthCheck runs a round trip query against the jobs table's database.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	var one int
	if err := c.db.GetContext(ctx, &one, "SELECT 1"); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}
