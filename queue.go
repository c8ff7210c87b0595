package contactflow

import (
	"database/sql"

	"github.com/mariusgr/contactflow/internal/taskqueue"
)

// Queue and Task are re-exported so callers and database submodules can
// provide and consume queues without importing internal packages directly.

type (
	Queue = taskqueue.Queue
	Task  = taskqueue.Task
)

// NewInMemoryQueue returns a process-local queue with the given capacity.
func NewInMemoryQueue(capacity int) Queue {
	return taskqueue.NewInMemoryQueue(capacity)
}

// NewSQLiteQueue returns a durable queue stored in the given SQLite database.
func NewSQLiteQueue(db *sql.DB) (Queue, error) {
	return taskqueue.NewSQLiteQueue(db)
}
