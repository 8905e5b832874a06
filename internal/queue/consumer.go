/**
 * Queue Consumer for the OCR worker
 *
 * Consumes run requests from an asynq queue and hands each to the coordinator.
 * Concurrency bounds the number of documents in OCR at once; excess tasks wait
 * on the queue. A job that has started is never cancelled: neither the task
 * deadline nor shutdown reaches the OCR call.
 */

package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/ocr-pipeline/internal/coordinator"
	"github.com/adverant/nexus/ocr-pipeline/internal/logging"
	"github.com/adverant/nexus/ocr-pipeline/internal/models"
)

// Runner executes one job to a terminal state.
type Runner interface {
	Run(ctx context.Context, req models.RunRequest) (*coordinator.Outcome, error)
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL    string
	QueueName   string
	Concurrency int
	Runner      Runner

	// ShutdownTimeout is how long Stop waits for running jobs; 0 uses DefaultJobTimeout.
	ShutdownTimeout time.Duration
}

// Consumer handles job consumption from Redis queue
type Consumer struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	runner Runner
	config *ConsumerConfig
	logger *logging.Logger
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("Runner is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultJobTimeout
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := logging.NewLogger("consumer")

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency:     cfg.Concurrency,
			ShutdownTimeout: cfg.ShutdownTimeout,
			Queues: map[string]int{
				cfg.QueueName: 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task processing error", "type", task.Type(), "payload", string(task.Payload()), "error", err)
			}),
			Logger: logging.NewLogger("asynq").Sugar(),
		},
	)

	c := &Consumer{
		server: server,
		mux:    asynq.NewServeMux(),
		runner: cfg.Runner,
		config: cfg,
		logger: logger,
	}
	c.mux.HandleFunc(TypeProcessDocument, c.HandleProcessDocument)

	return c, nil
}

// Start runs the asynq server until Stop.
func (c *Consumer) Start() error {
	c.logger.Info("Starting queue consumer", "concurrency", c.config.Concurrency, "queue", c.config.QueueName)
	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start queue consumer: %w", err)
	}
	return nil
}

// Stop waits for in-flight jobs to reach a terminal state, then stops.
func (c *Consumer) Stop() {
	c.logger.Info("Stopping queue consumer")
	c.server.Shutdown()
	c.logger.Info("Queue consumer stopped")
}

// HandleProcessDocument runs one delivered task. A malformed payload is never
// retried; a failed job is reported back to asynq so it lands in the archive.
func (c *Consumer) HandleProcessDocument(ctx context.Context, task *asynq.Task) error {
	req, err := ParseRunRequest(task.Payload())
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	// the job runs to a terminal state even if the task deadline passes or the
	// server shuts down
	start := time.Now()
	out, err := c.runner.Run(context.WithoutCancel(ctx), req)
	duration := time.Since(start)

	if err != nil {
		c.logger.Error("Job failed", "job_id", req.JobID, "duration", duration.String(), "error", err)
		return fmt.Errorf("job %s failed: %w", req.JobID, err)
	}
	if out != nil && out.Skipped {
		c.logger.Info("Redelivered job already finished", "job_id", req.JobID, "status", out.Status)
		return nil
	}

	c.logger.Info("Job finished", "job_id", req.JobID, "duration", duration.String())
	return nil
}

// GetStatistics returns consumer settings for health output
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"concurrency":      c.config.Concurrency,
		"queue":            c.config.QueueName,
		"shutdown_timeout": c.config.ShutdownTimeout.String(),
	}
}
