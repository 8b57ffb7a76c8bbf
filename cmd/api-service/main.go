package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cuongbtq/batch-orchestrator/internal/api/handler"
	"github.com/cuongbtq/batch-orchestrator/internal/api/idempotency"
	"github.com/cuongbtq/batch-orchestrator/internal/api/router"
	"github.com/cuongbtq/batch-orchestrator/internal/api/service"
	"github.com/cuongbtq/batch-orchestrator/internal/api/storage"
	"github.com/cuongbtq/batch-orchestrator/internal/auth"
	"github.com/cuongbtq/batch-orchestrator/internal/config"
	"github.com/cuongbtq/batch-orchestrator/internal/jobtype"
	"github.com/cuongbtq/batch-orchestrator/migrations"
	"github.com/cuongbtq/batch-orchestrator/shared/logger"
	"github.com/cuongbtq/batch-orchestrator/shared/postgresql"
	"github.com/cuongbtq/batch-orchestrator/shared/rabbitmq"
	"github.com/cuongbtq/batch-orchestrator/shared/redis"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging, cfg.App.Name)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	var statsRegisterer prometheus.Registerer
	if cfg.Metrics.Enabled {
		statsRegisterer = prometheus.DefaultRegisterer
	}
	dbClient, err := initPostgreSQL(&cfg.Database, statsRegisterer, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := migrations.Apply(ctx, dbClient.GetDB(), appLogger.Logger)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
	}

	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	healthChecks := map[string]handler.HealthChecker{
		"database": dbClient,
		"rabbitmq": rabbitClient,
	}

	registry := jobtype.Default()
	orchestratorOpts := []service.OrchestratorOption{}

	// Redis is optional; without it Idempotency-Key headers are ignored
	if cfg.Redis.Enabled() {
		redisClient, err := initRedis(&cfg.Redis, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize Redis: %w", err)
		}
		defer redisClient.Close()

		healthChecks["redis"] = redisClient
		orchestratorOpts = append(orchestratorOpts,
			service.WithIdempotencyStore(idempotency.NewStore(redisClient.GetClient(), cfg.Batch.IdempotencyTTL)),
		)
	}

	jobStore := storage.NewStorage(dbClient.GetDB(), appLogger.Component("storage"))

	orchestrator := service.NewOrchestrator(
		jobStore,
		service.NewRabbitPublisher(rabbitClient),
		registry,
		service.OrchestratorConfig{
			PublishConcurrency: cfg.Batch.PublishConcurrency,
			PublishTimeout:     cfg.Batch.PublishTimeout,
		},
		appLogger.Component("orchestrator"),
		orchestratorOpts...,
	)

	authenticator := auth.NewAuthenticator(auth.Config{
		Enabled:     cfg.Auth.Enabled,
		APIKeys:     cfg.Auth.APIKeys,
		JWTSecret:   cfg.Auth.JWTSecret,
		JWTIssuer:   cfg.Auth.JWTIssuer,
		JWTAudience: cfg.Auth.JWTAudience,
	})

	setGinMode(cfg.App.Environment)

	r := router.SetupRouter(&handler.Dependencies{
		Logger:        appLogger.Logger,
		Orchestrator:  orchestrator,
		Aggregator:    service.NewAggregator(jobStore, registry, appLogger.Component("aggregator")),
		Authenticator: authenticator,
		JobTypes:      registry.Types(),
		HealthChecks:  healthChecks,
		RateLimit: handler.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		},
		MetricsEnabled: cfg.Metrics.Enabled,
		ServiceName:    cfg.App.Name,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		appLogger.Info("Starting HTTP server",
			slog.String("address", addr),
			slog.Bool("auth_enabled", authenticator.Enabled()),
			slog.Bool("idempotency_enabled", cfg.Redis.Enabled()),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Shutting down server...", slog.String("signal", sig.String()))
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

func setGinMode(environment string) {
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig, service string) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
		Service:      service,
	})
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, reg prometheus.Registerer, logger *slog.Logger) (*postgresql.Client, error) {
	return postgresql.NewClient(&postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		StatsRegisterer: reg,
	}, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
		PublisherConfirms:  cfg.Publish.Confirm,
		DeadLetterExchange: cfg.Queue.DeadLetterExchange,
	}, logger)
}

// initRedis initializes the Redis client backing idempotency keys
func initRedis(cfg *config.RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	return redis.NewClient(&redis.Config{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	}, logger)
}
