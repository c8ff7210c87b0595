package mongo

import (
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mariusgr/contactflow"
	mqueue "github.com/mariusgr/contactflow/mongo/internal/taskqueue"
)

// NewMongoQueue returns a durable task queue stored in MongoDB.
func NewMongoQueue(client *mongo.Client, dbName, collName string) contactflow.Queue {
	return mqueue.NewMongoQueue(client, dbName, collName)
}
