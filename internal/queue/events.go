/**
 * Job status events over Redis
 *
 * Mirrors each job transition into per-status sets and publishes it on
 * <queue>:events for dashboards and pollers.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/ocr-pipeline/internal/models"
)

// JobEvent is published on every job status change.
type JobEvent struct {
	Event     string `json:"event"`
	JobID     string `json:"jobId"`
	FileID    string `json:"fileId"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// RedisEventPublisher implements coordinator.Notifier.
type RedisEventPublisher struct {
	client    *redis.Client
	queueName string
}

// NewRedisEventPublisher connects to redisURL and checks the connection.
func NewRedisEventPublisher(ctx context.Context, redisURL, queueName string) (*RedisEventPublisher, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisEventPublisherFromClient(client, queueName), nil
}

// NewRedisEventPublisherFromClient wraps an existing client.
func NewRedisEventPublisherFromClient(client *redis.Client, queueName string) *RedisEventPublisher {
	return &RedisEventPublisher{client: client, queueName: queueName}
}

func (p *RedisEventPublisher) key(suffix string) string {
	return fmt.Sprintf("%s:%s", p.queueName, suffix)
}

// EventsChannel is the pub/sub channel events are published on.
func (p *RedisEventPublisher) EventsChannel() string {
	return p.key("events")
}

// JobStatusChanged records the transition and publishes a JobEvent.
func (p *RedisEventPublisher) JobStatusChanged(ctx context.Context, req models.RunRequest, status models.JobStatus, errorMessage string) error {
	event := JobEvent{
		Event:     "job:" + string(status),
		JobID:     req.JobID,
		FileID:    req.FileID,
		Status:    string(status),
		Error:     errorMessage,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal job event: %w", err)
	}

	pipe := p.client.TxPipeline()
	switch status {
	case models.JobStatusProcessing:
		pipe.SAdd(ctx, p.key("processing"), req.JobID)
	case models.JobStatusCompleted:
		pipe.SRem(ctx, p.key("processing"), req.JobID)
		pipe.SAdd(ctx, p.key("completed"), req.JobID)
	case models.JobStatusFailed:
		pipe.SRem(ctx, p.key("processing"), req.JobID)
		pipe.SAdd(ctx, p.key("failed"), req.JobID)
		pipe.HSet(ctx, p.key("errors"), req.JobID, errorMessage)
	}
	pipe.Publish(ctx, p.EventsChannel(), payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish job event: %w", err)
	}
	return nil
}

// GetStats returns the size of each status set.
func (p *RedisEventPublisher) GetStats(ctx context.Context) (map[string]int64, error) {
	stats := make(map[string]int64, 3)
	for _, s := range []string{"processing", "completed", "failed"} {
		n, err := p.client.SCard(ctx, p.key(s)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s count: %w", s, err)
		}
		stats[s] = n
	}
	return stats, nil
}

// Ping checks the Redis connection.
func (p *RedisEventPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close releases the Redis connection.
func (p *RedisEventPublisher) Close() error {
	return p.client.Close()
}
