package taskqueue

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	coreq "github.com/mariusgr/contactflow/internal/taskqueue"
	"github.com/mariusgr/contactflow/pkg/api"
)

// MongoQueue implements Queue on top of MongoDB.
//
// Dequeue claims the oldest visible document with FindOneAndDelete, so a
// task is handed to exactly one worker. Visibility is gated by not_before,
// which the worker uses to delay redeliveries.
type MongoQueue struct {
	coll         *mongo.Collection
	pollInterval time.Duration
}

func newTaskID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// NewMongoQueue creates a Mongo-backed queue.
// dbName defaults to "contactflow", collName to "tasks".
func NewMongoQueue(client *mongo.Client, dbName, collName string) *MongoQueue {
	if dbName == "" {
		dbName = "contactflow"
	}
	if collName == "" {
		collName = "tasks"
	}
	return &MongoQueue{
		coll:         client.Database(dbName).Collection(collName),
		pollInterval: 100 * time.Millisecond,
	}
}

// Ensure MongoQueue implements Queue.
var _ coreq.Queue = (*MongoQueue)(nil)

type mongoTaskDoc struct {
	ID         string             `bson:"_id"`
	Workflow   string             `bson:"workflow"`
	RunID      string             `bson:"run_id"`
	Payload    api.ContactPayload `bson:"payload"`
	EnqueuedAt int64              `bson:"enqueued_at"`
	NotBefore  int64              `bson:"not_before"`
	Deliveries int                `bson:"deliveries"`
}

// Enqueue inserts a document for the given Task.
func (q *MongoQueue) Enqueue(ctx context.Context, t coreq.Task) error {
	if t.ID == "" {
		t.ID = newTaskID()
	}

	now := time.Now()
	nb := t.NotBefore
	if nb.IsZero() {
		nb = now
	}

	doc := mongoTaskDoc{
		ID:         t.ID,
		Workflow:   t.Workflow,
		RunID:      t.RunID,
		Payload:    t.Payload,
		EnqueuedAt: now.UnixNano(),
		NotBefore:  nb.UnixNano(),
		Deliveries: t.Deliveries,
	}

	_, err := q.coll.InsertOne(ctx, doc)
	return err
}

// Dequeue blocks (via polling) until a task is available or ctx is cancelled.
func (q *MongoQueue) Dequeue(ctx context.Context) (*coreq.Task, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		now := time.Now().UnixNano()

		filter := bson.M{"not_before": bson.M{"$lte": now}}
		opts := options.FindOneAndDelete().
			SetSort(bson.D{{Key: "not_before", Value: 1}, {Key: "enqueued_at", Value: 1}})

		var doc mongoTaskDoc
		err := q.coll.FindOneAndDelete(ctx, filter, opts).Decode(&doc)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(q.pollInterval):
					continue
				}
			}
			return nil, err
		}

		return &coreq.Task{
			ID:         doc.ID,
			Workflow:   doc.Workflow,
			RunID:      doc.RunID,
			Payload:    doc.Payload,
			EnqueuedAt: time.Unix(0, doc.EnqueuedAt),
			NotBefore:  time.Unix(0, doc.NotBefore),
			Deliveries: doc.Deliveries + 1,
		}, nil
	}
}

// Len returns an approximate number of queued tasks.
func (q *MongoQueue) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	n, err := q.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		log.Printf("MongoQueue: Len failed: %v", err)
		return 0
	}
	return int(n)
}
