package mongo

import (
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mariusgr/contactflow/internal/engine"
	"github.com/mariusgr/contactflow/internal/persistence"
	"github.com/mariusgr/contactflow/pkg/api"

	mstore "github.com/mariusgr/contactflow/mongo/internal/persistence"
)

// NewMongoEngine returns an Engine that persists runs in MongoDB, using the
// default database/collection names from the store ("contactflow"/"runs").
func NewMongoEngine(client *mongo.Client) api.Engine {
	return NewMongoEngineWithObserver(client, nil)
}

// NewMongoEngineWithObserver is the Mongo-backed engine constructor that accepts an Observer.
func NewMongoEngineWithObserver(client *mongo.Client, obs api.Observer) api.Engine {
	runs := mstore.NewMongoRunStore(client, "", "")

	return engine.NewEngineWithConfig(engine.Config{
		Persistence: persistence.Persistence{
			Workflows: persistence.NewInMemoryStore(),
			Runs:      runs,
		},
		Observer: obs,
	})
}
