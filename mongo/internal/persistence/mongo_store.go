package persistence

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	corep "github.com/mariusgr/contactflow/internal/persistence"
	"github.com/mariusgr/contactflow/pkg/api"
)

// MongoRunStore is a RunStore backed by MongoDB. A run is stored as one
// document with an embedded steps array; step transitions use $elemMatch
// filters with positional updates, so the compare-and-set guard on the
// step status is a single atomic document update.
type MongoRunStore struct {
	coll *mongo.Collection
}

// Ensure it implements RunStore.
var _ corep.RunStore = (*MongoRunStore)(nil)

// NewMongoRunStore creates a Mongo-backed run store.
// dbName defaults to "contactflow" if empty, collName defaults to "runs".
func NewMongoRunStore(client *mongo.Client, dbName, collName string) *MongoRunStore {
	if dbName == "" {
		dbName = "contactflow"
	}
	if collName == "" {
		collName = "runs"
	}

	return &MongoRunStore{
		coll: client.Database(dbName).Collection(collName),
	}
}

type mongoStepDoc struct {
	Name       string `bson:"name"`
	Status     string `bson:"status"`
	Attempts   int    `bson:"attempts"`
	LastError  string `bson:"last_error,omitempty"`
	StartedAt  *int64 `bson:"started_at,omitempty"`
	FinishedAt *int64 `bson:"finished_at,omitempty"`
}

type mongoRunDoc struct {
	ID              string             `bson:"_id"`
	Workflow        string             `bson:"workflow"`
	Status          string             `bson:"status"`
	Payload         api.ContactPayload `bson:"payload"`
	CancelRequested bool               `bson:"cancel_requested"`
	CreatedAt       int64              `bson:"created_at"`
	CompletedAt     *int64             `bson:"completed_at,omitempty"`
	Steps           []mongoStepDoc     `bson:"steps"`
}

func (s *MongoRunStore) CreateRun(run *api.Run) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.coll.InsertOne(ctx, toRunDoc(run))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return corep.ErrRunExists
		}
		return err
	}
	return nil
}

func (s *MongoRunStore) GetRun(id string) (*api.Run, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var doc mongoRunDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, corep.ErrRunNotFound
		}
		return nil, err
	}
	return fromRunDoc(&doc), nil
}

func (s *MongoRunStore) ListRuns(filter corep.RunFilter) ([]*api.Run, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bfilter := bson.M{}
	if filter.Workflow != "" {
		bfilter["workflow"] = filter.Workflow
	}
	if filter.Status != "" {
		bfilter["status"] = string(filter.Status)
	}

	cur, err := s.coll.Find(ctx, bfilter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var runs []*api.Run
	for cur.Next(ctx) {
		var doc mongoRunDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		runs = append(runs, fromRunDoc(&doc))
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

func (s *MongoRunStore) UpdateRunStatus(id string, status api.Status, completedAt *time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	set := bson.M{"status": string(status)}
	if status == api.StatusRunning {
		// Re-entering RUNNING (resume) also clears the cancel flag and
		// completion timestamp.
		set["cancel_requested"] = false
		set["completed_at"] = nil
	} else {
		set["completed_at"] = nanosOrNil(completedAt)
	}

	res, err := s.coll.UpdateByID(ctx, id, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return corep.ErrRunNotFound
	}
	return nil
}

func (s *MongoRunStore) UpdateStep(runID, stepName string, upd corep.StepUpdate) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	filter := bson.M{
		"_id": runID,
		"steps": bson.M{"$elemMatch": bson.M{
			"name":   stepName,
			"status": string(upd.From),
		}},
	}

	set := bson.M{
		"steps.$.status":     string(upd.To),
		"steps.$.attempts":   upd.Attempts,
		"steps.$.last_error": upd.LastError,
	}
	if upd.StartedAt != nil {
		set["steps.$.started_at"] = upd.StartedAt.UnixNano()
	}
	if upd.FinishedAt != nil {
		set["steps.$.finished_at"] = upd.FinishedAt.UnixNano()
	}

	res, err := s.coll.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		// Distinguish a missing step from a status mismatch.
		n, err := s.coll.CountDocuments(ctx, bson.M{"_id": runID, "steps.name": stepName})
		if err != nil {
			return err
		}
		if n == 0 {
			return corep.ErrStepNotFound
		}
		return corep.ErrStepStatusConflict
	}
	return nil
}

func (s *MongoRunStore) RequestCancel(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	filter := bson.M{
		"_id": id,
		"status": bson.M{"$nin": []string{
			string(api.StatusSucceeded),
			string(api.StatusFailed),
		}},
	}

	res, err := s.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"cancel_requested": true}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		n, err := s.coll.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return err
		}
		if n == 0 {
			return corep.ErrRunNotFound
		}
		// Terminal run: cancel is a no-op.
	}
	return nil
}

func toRunDoc(run *api.Run) *mongoRunDoc {
	doc := &mongoRunDoc{
		ID:              run.ID,
		Workflow:        run.Workflow,
		Status:          string(run.Status),
		Payload:         run.Payload,
		CancelRequested: run.CancelRequested,
		CreatedAt:       run.CreatedAt.UnixNano(),
		CompletedAt:     nanosOrNil(run.CompletedAt),
		Steps:           make([]mongoStepDoc, len(run.Steps)),
	}
	for i, rec := range run.Steps {
		doc.Steps[i] = mongoStepDoc{
			Name:       rec.Name,
			Status:     string(rec.Status),
			Attempts:   rec.Attempts,
			LastError:  rec.LastError,
			StartedAt:  nanosOrNil(rec.StartedAt),
			FinishedAt: nanosOrNil(rec.FinishedAt),
		}
	}
	return doc
}

func fromRunDoc(doc *mongoRunDoc) *api.Run {
	run := &api.Run{
		ID:              doc.ID,
		Workflow:        doc.Workflow,
		Status:          api.Status(doc.Status),
		Payload:         doc.Payload,
		CancelRequested: doc.CancelRequested,
		CreatedAt:       time.Unix(0, doc.CreatedAt),
		CompletedAt:     timeOrNil(doc.CompletedAt),
		Steps:           make([]api.StepRecord, len(doc.Steps)),
	}
	for i, rec := range doc.Steps {
		run.Steps[i] = api.StepRecord{
			Name:       rec.Name,
			Status:     api.Status(rec.Status),
			Attempts:   rec.Attempts,
			LastError:  rec.LastError,
			StartedAt:  timeOrNil(rec.StartedAt),
			FinishedAt: timeOrNil(rec.FinishedAt),
		}
	}
	return run
}

func nanosOrNil(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	n := t.UnixNano()
	return &n
}

func timeOrNil(n *int64) *time.Time {
	if n == nil {
		return nil
	}
	t := time.Unix(0, *n)
	return &t
}
