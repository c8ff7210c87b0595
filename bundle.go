package contactflow

import (
	"database/sql"

	"github.com/mariusgr/contactflow/internal/taskqueue"
	workerpkg "github.com/mariusgr/contactflow/pkg/worker"
)

// WorkerBundle wires together an Engine, a durable task queue, and a Worker
// that consumes submissions from that queue.
type WorkerBundle struct {
	Engine Engine
	Worker *workerpkg.Worker

	// queue is kept unexported; it is primarily useful for internal
	// inspection and tests. The public API focuses on Engine and Worker.
	queue taskqueue.Queue
}

// NewSQLiteBundle constructs a durable Engine + Queue + Worker combo sharing
// the same SQLite database. Runs and queued submissions are persisted in the
// provided *sql.DB.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:contactflow.db?_journal=WAL")
//	bundle, err := contactflow.NewSQLiteBundle(db, worker.Config{MaxDeliveries: 3})
//	// register workflows on bundle.Engine
//	// enqueue submissions via bundle.Worker
func NewSQLiteBundle(db *sql.DB, cfg workerpkg.Config) (*WorkerBundle, error) {
	return NewSQLiteBundleWithObserver(db, cfg, nil)
}

// NewSQLiteBundleWithObserver is NewSQLiteBundle with an engine Observer.
func NewSQLiteBundleWithObserver(db *sql.DB, cfg workerpkg.Config, obs Observer) (*WorkerBundle, error) {
	return NewSQLiteBundleWithOptions(db, cfg, obs, EngineOptions{})
}

// NewSQLiteBundleWithOptions is NewSQLiteBundleWithObserver with engine
// tuning (default retry policy, run timeout), typically sourced from the
// application config.
func NewSQLiteBundleWithOptions(db *sql.DB, cfg workerpkg.Config, obs Observer, opts EngineOptions) (*WorkerBundle, error) {
	eng, err := NewSQLiteEngineWithOptions(db, obs, opts)
	if err != nil {
		return nil, err
	}

	q, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}

	w := workerpkg.NewWithConfig(eng, q, cfg)

	return &WorkerBundle{
		Engine: eng,
		Worker: w,
		queue:  q,
	}, nil
}
