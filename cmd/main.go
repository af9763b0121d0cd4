package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/tonipcv/kr-webhooks/internal/api"
	"github.com/tonipcv/kr-webhooks/internal/config"
	"github.com/tonipcv/kr-webhooks/internal/repository"
	"github.com/tonipcv/kr-webhooks/internal/service"
	"github.com/tonipcv/kr-webhooks/internal/telemetry"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize telemetry
	if err := telemetry.InitTelemetry("kr-webhooks"); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting webhook pipeline")

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Initialize repositories
	events := repository.NewWebhookEventRepository(db, cfg.Backoff, cfg.MaxRetries)
	if err := events.InitDB(); err != nil {
		telemetry.Logger.Fatal("Failed to initialize webhook_events", zap.Error(err))
	}
	txs := repository.NewTransactionRepository(db)
	if err := txs.InitDB(); err != nil {
		telemetry.Logger.Fatal("Failed to initialize payment_transactions", zap.Error(err))
	}

	// Connect to Redis (reclaimer lease; optional)
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.RedisURL,
		})
	}

	// Connect to NATS (dead-letter alerts; optional)
	var nc *nats.Conn
	if cfg.NatsURL != "" {
		nc, err = nats.Connect(cfg.NatsURL)
		if err != nil {
			telemetry.Logger.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer nc.Close()
	}

	// Connect to Kafka (processed-event fan-out; optional)
	var kafkaWriter *kafka.Writer
	if cfg.KafkaBrokers != "" {
		kafkaWriter = &kafka.Writer{
			Addr:     kafka.TCP(cfg.KafkaBrokers),
			Topic:    "payment.webhook.processed",
			Balancer: &kafka.LeastBytes{},
		}
		defer kafkaWriter.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start the worker loop
	var publisher service.StatePublisher
	if kafkaWriter != nil {
		publisher = kafkaWriter
	}
	var alerts service.AlertPublisher
	if nc != nil {
		alerts = nc
	}
	worker := service.NewWorker(events, txs, publisher, alerts, service.WorkerConfig{
		BatchSize: cfg.BatchSize,
		Backoff:   cfg.Backoff,
		Sleep:     cfg.Sleep,
	})
	go worker.Run(ctx)

	// Start the stale-claim reclaimer
	reclaimer := service.NewReclaimer(events, redisClient, service.ReclaimerConfig{
		Interval:     cfg.ReclaimInterval,
		ClaimTimeout: cfg.ClaimTimeout,
	})
	go reclaimer.Run(ctx)

	// Setup HTTP server
	r := api.NewRouter(events, cfg.StripeWebhookSecret, cfg.KrxpayWebhookSecret)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		telemetry.Logger.Info("Webhook pipeline listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	telemetry.Logger.Info("Shutting down...")

	// Stop claiming new work; in-flight rows finish or fall to the reclaimer.
	worker.Stop()
	reclaimer.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	telemetry.Logger.Info("Webhook pipeline exited")
}
