package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cuongbtq/batch-orchestrator/internal/api/service"
	"github.com/cuongbtq/batch-orchestrator/internal/config"
	"github.com/cuongbtq/batch-orchestrator/internal/jobtype"
	"github.com/cuongbtq/batch-orchestrator/internal/worker"
	"github.com/cuongbtq/batch-orchestrator/internal/worker/storage"
	"github.com/cuongbtq/batch-orchestrator/shared/logger"
	"github.com/cuongbtq/batch-orchestrator/shared/postgresql"
	"github.com/cuongbtq/batch-orchestrator/shared/rabbitmq"
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

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging, cfg.App.Name)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	executorConfigs := make(map[string]worker.HTTPExecutorConfig, len(cfg.Worker.Executors))
	for jobType, ex := range cfg.Worker.Executors {
		executorConfigs[jobType] = worker.HTTPExecutorConfig{
			URL:     ex.URL,
			Timeout: ex.Timeout,
			Headers: ex.Headers,
		}
	}
	executors, err := worker.NewHTTPExecutors(executorConfigs, jobtype.Default())
	if err != nil {
		return fmt.Errorf("invalid executor config: %w", err)
	}

	var statsRegisterer prometheus.Registerer
	if cfg.Worker.MetricsAddr != "" {
		statsRegisterer = prometheus.DefaultRegisterer
	}
	dbClient, err := initPostgreSQL(&cfg.Database, statsRegisterer, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		dbClient.Close()
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	cleanup := func() {
		dbClient.Close()
		rabbitClient.Close()
	}
	defer cleanup()

	jobStorage := storage.NewStorage(dbClient.GetDB(), appLogger.Component("storage"))

	var reconciler *worker.Reconciler
	if rc := cfg.Worker.Reconciler; rc.Enabled {
		reconciler = worker.NewReconciler(
			jobStorage,
			service.NewRabbitPublisher(rabbitClient),
			worker.ReconcilerConfig{
				Interval:          rc.Interval,
				StalePendingAfter: rc.StalePendingAfter,
				StaleRunningAfter: rc.StaleRunningAfter,
				BatchSize:         rc.BatchSize,
			},
			appLogger.Component("reconciler"),
		)
	}

	workerInstance := worker.NewWorker(&worker.Config{
		Logger:        appLogger.Component("worker"),
		Storage:       jobStorage,
		RabbitClient:  rabbitClient,
		Executors:     executors,
		Reconciler:    reconciler,
		QueueName:     cfg.RabbitMQ.Queue.Name,
		Concurrency:   cfg.Worker.Concurrency,
		PrefetchCount: cfg.RabbitMQ.Consumer.PrefetchCount,
		JobTimeout:    cfg.Worker.JobTimeout,
		MaxAttempts:   cfg.Worker.MaxAttempts,
		RetryBackoff:  cfg.Worker.RetryBackoff,
	})

	metricsSrv := startMetricsServer(cfg.Worker.MetricsAddr, appLogger.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Worker error",
			slog.Any("error", err),
		)
		return err
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			appLogger.Warn("Metrics server shutdown failed", slog.Any("error", err))
		}
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// startMetricsServer exposes Prometheus metrics when addr is set.
func startMetricsServer(addr string, logger *slog.Logger) *http.Server {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Starting metrics server", slog.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", slog.Any("error", err))
		}
	}()

	return srv
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

// initRabbitMQ initializes the RabbitMQ client. The worker republishes
// stale signals, so publish retries are configured here too.
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
