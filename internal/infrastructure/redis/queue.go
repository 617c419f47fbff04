package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RunQueue is the Redis-backed list of runs waiting for an attempt. Each
// element is a run UUID; a run is requeued here after every non-final
// attempt, so the queue drives the retry cycle.
type RunQueue struct {
	client    *redis.Client
	queueName string
}

func NewRunQueue(client *redis.Client) *RunQueue {
	return &RunQueue{
		client:    client,
		queueName: "tasktrack:runs:pending",
	}
}

// Push adds a run ID to the end of the list
func (q *RunQueue) Push(ctx context.Context, runID string) error {
	return q.client.RPush(ctx, q.queueName, runID).Err()
}

// Pop waits for a run ID and removes it from the front of the list
func (q *RunQueue) Pop(ctx context.Context) (string, error) {
	// 0 means "wait forever until an item appears"
	result, err := q.client.BLPop(ctx, 0*time.Second, q.queueName).Result()
	if err != nil {
		return "", err
	}
	// BLPop returns a slice: [QueueName, Element]
	return result[1], nil
}
