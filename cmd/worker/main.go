/**
 * OCR Worker - Main Entry Point
 *
 * Consumes queued OCR jobs from Redis (asynq) and runs each one through the
 * coordinator: file and job go to processing, the document is rasterized,
 * preprocessed and recognized page by page, and the result is recorded.
 *
 * Concurrency:
 * - WORKER_CONCURRENCY documents in OCR at once; the rest wait on the queue
 * - PAGE_CONCURRENCY pages of one document recognized at once
 */

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/adverant/nexus/ocr-pipeline/internal/app"
	"github.com/adverant/nexus/ocr-pipeline/internal/config"
	"github.com/adverant/nexus/ocr-pipeline/internal/logging"
	"github.com/adverant/nexus/ocr-pipeline/internal/queue"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		fatal(logging.NewLogger("worker"), "Failed to load configuration", err)
	}
	if err := logging.Configure(cfg.LogLevel, cfg.LogFormat); err != nil {
		fatal(logging.NewLogger("worker"), "Failed to configure logging", err)
	}
	defer logging.Sync()

	logger := logging.NewLogger("worker")
	if envErr != nil {
		logger.Debug(".env not found, using system environment variables")
	}
	logger.Info("OCR worker starting",
		"queue", cfg.QueueName,
		"workers", cfg.WorkerConcurrency,
		"page_concurrency", cfg.PageConcurrency,
		"database", cfg.DatabaseDriver,
		"storage", cfg.StorageBackend)

	ctx := context.Background()
	components, err := app.Build(ctx, cfg)
	if err != nil {
		fatal(logger, "Failed to initialize components", err)
	}
	defer components.Close()

	coord, err := components.NewCoordinator(nil)
	if err != nil {
		fatal(logger, "Failed to initialize coordinator", err)
	}

	healthCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	health := components.Health(healthCtx)
	cancel()
	if report, err := json.Marshal(health); err == nil {
		logger.Info("Health check", "report", string(report))
	}
	if healthy, _ := health["healthy"].(bool); !healthy {
		logger.Warn("Worker starting with unhealthy dependencies")
	}

	consumer, err := queue.NewConsumer(&queue.ConsumerConfig{
		RedisURL:    cfg.RedisURL,
		QueueName:   cfg.QueueName,
		Concurrency:     cfg.WorkerConcurrency,
		Runner:          coord,
		ShutdownTimeout: cfg.JobTimeout,
	})
	if err != nil {
		fatal(logger, "Failed to initialize queue consumer", err)
	}
	if err := consumer.Start(); err != nil {
		fatal(logger, "Failed to start queue consumer", err)
	}
	logger.Info("OCR worker is ready, waiting for jobs")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received signal, initiating graceful shutdown", "signal", sig.String())

	// in-flight jobs get up to JOB_TIMEOUT_MINUTES to finish before the stores close
	consumer.Stop()
	if err := components.Close(); err != nil {
		logger.Error("Error closing components", "error", err)
	}
	logger.Info("Shutdown complete")
}

// fatal also writes to stderr since logging may not be configured yet.
func fatal(logger *logging.Logger, msg string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	logger.Error(msg, "error", err)
	logging.Sync()
	os.Exit(1)
}
