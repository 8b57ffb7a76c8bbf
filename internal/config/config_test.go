package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			assert.Equal(t, 8080, cfg.Server.Port)
			assert.Equal(t, "localhost", cfg.Database.Host)
			assert.Equal(t, 5432, cfg.Database.Port)
			assert.Equal(t, "jobs_db", cfg.Database.Database)
			assert.True(t, cfg.Database.AutoMigrate)
			assert.Equal(t, "jobs_exchange", cfg.RabbitMQ.Exchange.Name)
			assert.Equal(t, "jobs_queue", cfg.RabbitMQ.Queue.Name)
			assert.Equal(t, "batch-api-service", cfg.App.Name)
			assert.True(t, cfg.Redis.Enabled())
			assert.Equal(t, []string{"local-dev-key"}, cfg.Auth.APIKeys)
			assert.Equal(t, 5.0, cfg.RateLimit.RequestsPerSecond)
			assert.Equal(t, 30*time.Second, cfg.Batch.PublishTimeout)
			assert.Equal(t, 24*time.Hour, cfg.Batch.IdempotencyTTL)
			assert.Equal(t, "http://enrichment:8090/v1/company-news", cfg.Worker.Executors["find-company-news"].URL)
			assert.Equal(t, 5*time.Minute, cfg.Worker.Reconciler.StalePendingAfter)
		})
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("DB_PASSWORD", "from-env")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("AUTH_API_KEYS", "key-a,key-b")
	t.Setenv("WORKER_CONCURRENCY", "2")

	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Database.Password)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, []string{"key-a", "key-b"}, cfg.Auth.APIKeys)
	assert.Equal(t, 2, cfg.Worker.Concurrency)
	// untouched values keep the file's settings
	assert.Equal(t, "postgres", cfg.Database.User)
}

func TestLoad_BadEnvironmentValue(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-port")

	_, err := Load("testdata/valid_config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to apply environment overrides")
}

func baseConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "jobs_db",
		},
		RabbitMQ: RabbitMQConfig{
			Host:     "localhost",
			Port:     5672,
			Exchange: ExchangeConfig{Name: "jobs_exchange"},
			Queue:    QueueConfig{Name: "jobs_queue"},
		},
		Batch: BatchConfig{PublishTimeout: 30 * time.Second},
		Worker: WorkerConfig{
			Concurrency:     4,
			JobTimeout:      time.Minute,
			MaxAttempts:     3,
			ShutdownTimeout: 30 * time.Second,
			Executors: map[string]ExecutorConfig{
				"find-company-news": {URL: "http://enrichment/news"},
			},
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		errString string
	}{
		{"valid config", func(*Config) {}, ""},
		{"empty database host", func(c *Config) { c.Database.Host = "" }, "database host is required"},
		{"invalid database port", func(c *Config) { c.Database.Port = 0 }, "invalid database port"},
		{"empty database name", func(c *Config) { c.Database.Database = "" }, "database name is required"},
		{"empty rabbitmq host", func(c *Config) { c.RabbitMQ.Host = "" }, "rabbitmq host is required"},
		{"invalid rabbitmq port", func(c *Config) { c.RabbitMQ.Port = 65536 }, "invalid rabbitmq port"},
		{"empty exchange name", func(c *Config) { c.RabbitMQ.Exchange.Name = "" }, "rabbitmq exchange name is required"},
		{"empty queue name", func(c *Config) { c.RabbitMQ.Queue.Name = "" }, "rabbitmq queue name is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.errString == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		errString string
	}{
		{"valid config", func(*Config) {}, ""},
		{"shared section is checked", func(c *Config) { c.Database.Host = "" }, "database host is required"},
		{"invalid server port - too low", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"invalid server port - too high", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"auth without credentials", func(c *Config) { c.Auth.Enabled = true }, "neither api_keys nor jwt_secret"},
		{"auth with api keys", func(c *Config) {
			c.Auth.Enabled = true
			c.Auth.APIKeys = []string{"k"}
		}, ""},
		{"negative rate", func(c *Config) { c.RateLimit.RequestsPerSecond = -1 }, "requests_per_second"},
		{"negative publish concurrency", func(c *Config) { c.Batch.PublishConcurrency = -1 }, "publish_concurrency"},
		{"missing publish timeout", func(c *Config) { c.Batch.PublishTimeout = 0 }, "publish_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()
			if tt.errString == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		errString string
	}{
		{"valid config", func(*Config) {}, ""},
		{"zero concurrency", func(c *Config) { c.Worker.Concurrency = 0 }, "concurrency must be greater than 0"},
		{"zero job timeout", func(c *Config) { c.Worker.JobTimeout = 0 }, "job_timeout"},
		{"zero attempts", func(c *Config) { c.Worker.MaxAttempts = 0 }, "max_attempts"},
		{"zero shutdown timeout", func(c *Config) { c.Worker.ShutdownTimeout = 0 }, "shutdown_timeout"},
		{"no executors", func(c *Config) { c.Worker.Executors = nil }, "at least one job type"},
		{"executor without url", func(c *Config) {
			c.Worker.Executors["find-job-vacancies"] = ExecutorConfig{}
		}, "find-job-vacancies: url is required"},
		{"reconciler without interval", func(c *Config) {
			c.Worker.Reconciler = ReconcilerConfig{Enabled: true, StalePendingAfter: time.Minute, StaleRunningAfter: time.Minute}
		}, "reconciler interval"},
		{"reconciler without thresholds", func(c *Config) {
			c.Worker.Reconciler = ReconcilerConfig{Enabled: true, Interval: time.Minute}
		}, "stale thresholds"},
		{"server port is not required", func(c *Config) { c.Server.Port = 0 }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()
			if tt.errString == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}

func TestLoad_ValidateIntegration(t *testing.T) {
	t.Run("load and validate valid config", func(t *testing.T) {
		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		require.NoError(t, cfg.ValidateAPIConfig())
		require.NoError(t, cfg.ValidateWorkerConfig())
	})

	t.Run("load config with invalid port", func(t *testing.T) {
		cfg, err := Load("testdata/invalid_port.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server port")
	})

	t.Run("load config with missing database", func(t *testing.T) {
		cfg, err := Load("testdata/missing_database.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database host is required")
	})
}

func TestPortConstants(t *testing.T) {
	assert.Equal(t, 1, MinPort)
	assert.Equal(t, 65535, MaxPort)
}
