/**
 * @description
 * This is the main entry point for the subscription-service.
 * It initializes and wires together all the components of the application:
 * configuration, database connection, Graph client and token provider, the
 * RabbitMQ sink, the renewal scheduler, and the HTTP server for webhooks and
 * the internal API. It then runs until a termination signal arrives and shuts
 * everything down gracefully.
 */
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/meetscribe/subscription-service/internal/api"
	"github.com/meetscribe/subscription-service/internal/app"
	"github.com/meetscribe/subscription-service/internal/config"
	"github.com/meetscribe/subscription-service/internal/store"
	"github.com/meetscribe/subscription-service/pkg/graphclient"
	"github.com/meetscribe/subscription-service/pkg/rabbitmq"
)

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load .env file for local development.
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using environment variables")
	}

	// Load application configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Establish connection to the PostgreSQL database with connection pool configuration
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}

	poolConfig.MaxConns = 20
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Use the simple protocol to stay compatible with PgBouncer transaction
	// pooling (avoids prepared statement cache errors, SQLSTATE 42P05).
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	// Registrar client with cached client-credentials tokens.
	tokens := graphclient.NewClientCredentials(
		cfg.GraphTenantID,
		cfg.GraphClientID,
		cfg.GraphClientSecret,
		cfg.GraphLoginBaseURL,
		cfg.GraphScope,
	)
	graph := graphclient.NewClient(cfg.GraphBaseURL, tokens, cfg.CallTimeout())

	// Downstream sink for decoded events and fetched transcripts.
	producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, "graph_notifications")
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer producer.Close()
	logger.Info("rabbitmq connection established")

	// Initialize application layers
	repository := store.NewRepository(dbpool)
	service := app.NewService(repository, graph, logger, cfg.NotificationURL, cfg.WebhookClientState, cfg.Extension())
	fetcher := app.NewFetcher(graph, logger)
	processor := app.NewProcessor(service, fetcher, producer, logger, app.ProcessorConfig{})

	retry := app.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.RenewalMaxAttempts
	renewer := app.NewRenewer(repository, graph, tokens, logger, app.RenewerConfig{
		Lookahead:   cfg.Lookahead(),
		ExtendBy:    cfg.Extension(),
		Concurrency: cfg.RenewalConcurrency,
		CallTimeout: cfg.CallTimeout(),
		Retry:       retry,
	})

	// Start the cron scheduler for the renewal sweep.
	scheduler := app.NewScheduler(renewer, logger, cfg.RenewalJobSchedule)
	scheduler.Start()
	logger.Info("scheduler started", "schedule", cfg.RenewalJobSchedule)

	handler := api.NewHandler(service, renewer, processor, cfg.WebhookClientState, logger)
	router := api.NewRouter(handler, cfg.InternalAPIKey)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	go func() {
		logger.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for an OS signal
	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	// Stop the cron scheduler and wait for any in-flight sweep.
	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	logger.Info("scheduler stopped")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	logger.Info("server stopped")
}
