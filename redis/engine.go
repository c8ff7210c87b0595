package redis

import (
	"github.com/redis/go-redis/v9"

	"github.com/mariusgr/contactflow/internal/engine"
	"github.com/mariusgr/contactflow/internal/persistence"
	"github.com/mariusgr/contactflow/pkg/api"

	rstore "github.com/mariusgr/contactflow/redis/internal/persistence"
)

// NewRedisEngine returns an Engine that persists runs in Redis.
func NewRedisEngine(client *redis.Client) api.Engine {
	return NewRedisEngineWithObserver(client, nil)
}

// NewRedisEngineWithObserver returns a Redis-backed Engine with the given Observer.
func NewRedisEngineWithObserver(client *redis.Client, obs api.Observer) api.Engine {
	runs := rstore.NewRedisRunStore(client, "contactflow:")

	return engine.NewEngineWithConfig(engine.Config{
		Persistence: persistence.Persistence{
			Workflows: persistence.NewInMemoryStore(),
			Runs:      runs,
		},
		Observer: obs,
	})
}
