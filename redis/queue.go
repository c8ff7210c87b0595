package redis

import (
	"github.com/redis/go-redis/v9"

	"github.com/mariusgr/contactflow"
	rqueue "github.com/mariusgr/contactflow/redis/internal/taskqueue"
)

// NewRedisQueue returns a task queue backed by a Redis list.
func NewRedisQueue(client *redis.Client, prefix string) contactflow.Queue {
	return rqueue.NewRedisQueue(client, prefix)
}
