package taskqueue

import (
	"context"
	"log"

	"github.com/redis/go-redis/v9"

	coreq "github.com/mariusgr/contactflow/internal/taskqueue"
)

// RedisQueue implements the Queue interface using Redis.
//
// It uses a single Redis list with key:
//
//	<prefix>tasks
//
// Values are JSON-encoded Task structs. Like the in-memory queue, a list
// cannot delay delivery, so Task.NotBefore is carried but not honored;
// redelivered tasks may be handed out immediately.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue constructs a Redis-backed Queue.
// prefix is optional but recommended (e.g. "contactflow:").
func NewRedisQueue(client *redis.Client, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "contactflow:"
	}
	return &RedisQueue{
		client: client,
		key:    prefix + "tasks",
	}
}

// Ensure RedisQueue implements Queue.
var _ coreq.Queue = (*RedisQueue)(nil)

// Enqueue pushes a task onto the Redis list (LPUSH).
func (q *RedisQueue) Enqueue(ctx context.Context, t coreq.Task) error {
	data, err := coreq.EncodeTask(t)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, data).Err()
}

// Dequeue blocks on BRPOP until a task is available or ctx is cancelled.
func (q *RedisQueue) Dequeue(ctx context.Context) (*coreq.Task, error) {
	// BRPop returns [key, value]
	res, err := q.client.BRPop(ctx, 0, q.key).Result()
	if err != nil {
		return nil, err
	}
	if len(res) != 2 {
		log.Printf("RedisQueue: BRPop returned unexpected result: %#v", res)
		return nil, nil
	}

	task, err := coreq.DecodeTask([]byte(res[1]))
	if err != nil {
		return nil, err
	}
	task.Deliveries++
	return task, nil
}

// Len returns the approximate number of tasks queued (LLEN).
func (q *RedisQueue) Len() int {
	n, err := q.client.LLen(context.Background(), q.key).Result()
	if err != nil {
		log.Printf("RedisQueue: Len failed: %v", err)
		return 0
	}
	return int(n)
}
