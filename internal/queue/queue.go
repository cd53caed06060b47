// Package queue carries job handles between the API and the worker pool over redis lists.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"studygroup-backend/internal/models"
)

// Name is the redis list that holds pending jobs of jobType.
func Name(jobType string) string {
	return "queue:" + jobType
}

func lockKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job_lock:%s", jobID.String())
}

type RedisQueue struct {
	client  *redis.Client
	lockTTL time.Duration
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client, lockTTL: 10 * time.Minute}
}

// Enqueue pushes the job onto its type's list. Jobs are popped from the
// other end, so each list is FIFO.
func (q *RedisQueue) Enqueue(ctx context.Context, job *models.Job) error {
	jobBytes, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}
	if err := q.client.LPush(ctx, Name(job.Type), string(jobBytes)).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}
	return nil
}

// Dequeue blocks up to timeout for the next job on any of jobTypes. It
// returns nil, nil when the wait times out.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration, jobTypes ...string) (*models.Job, error) {
	keys := make([]string, len(jobTypes))
	for i, t := range jobTypes {
		keys[i] = Name(t)
	}

	result, err := q.client.BRPop(ctx, timeout, keys...).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}

	var job models.Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to parse job from %s: %w", result[0], err)
	}
	return &job, nil
}

// Claim takes the per-job lock. False means another worker holds the job.
func (q *RedisQueue) Claim(ctx context.Context, jobID uuid.UUID) (bool, error) {
	return q.client.SetNX(ctx, lockKey(jobID), "1", q.lockTTL).Result()
}

func (q *RedisQueue) Release(ctx context.Context, jobID uuid.UUID) {
	q.client.Del(ctx, lockKey(jobID))
}
