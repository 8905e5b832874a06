package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/ocr-pipeline/internal/logging"
	"github.com/adverant/nexus/ocr-pipeline/internal/models"
)

// DefaultJobTimeout is the task timeout used when none is configured.
const DefaultJobTimeout = 2 * time.Hour

// AsynqDispatcher enqueues run requests on a Redis-backed asynq queue.
type AsynqDispatcher struct {
	client     *asynq.Client
	queueName  string
	jobTimeout time.Duration
	logger     *logging.Logger
}

// NewAsynqDispatcher creates a dispatcher for queueName. jobTimeout replaces
// asynq's 30 minute default so long documents are not archived while still
// running; 0 uses DefaultJobTimeout.
func NewAsynqDispatcher(redisURL, queueName string, jobTimeout time.Duration) (*AsynqDispatcher, error) {
	if queueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}
	if jobTimeout <= 0 {
		jobTimeout = DefaultJobTimeout
	}
	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return &AsynqDispatcher{
		client:     asynq.NewClient(redisOpt),
		queueName:  queueName,
		jobTimeout: jobTimeout,
		logger:     logging.NewLogger("dispatcher"),
	}, nil
}

// Dispatch enqueues req once. The job id doubles as the task id, so a job
// already on the queue is not enqueued again.
func (d *AsynqDispatcher) Dispatch(ctx context.Context, req models.RunRequest) error {
	task, err := NewProcessTask(req)
	if err != nil {
		return err
	}

	info, err := d.client.EnqueueContext(ctx, task,
		asynq.Queue(d.queueName),
		asynq.MaxRetry(0),
		asynq.TaskID(req.JobID),
		asynq.Timeout(d.jobTimeout),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		d.logger.Warn("Job already enqueued", "job_id", req.JobID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", req.JobID, err)
	}

	d.logger.Debug("Job enqueued", "job_id", req.JobID, "queue", info.Queue, "task_id", info.ID)
	return nil
}

// Close releases the Redis connection.
func (d *AsynqDispatcher) Close() error {
	return d.client.Close()
}
