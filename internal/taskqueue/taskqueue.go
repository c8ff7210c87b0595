package taskqueue

import (
	"context"
	"time"

	"github.com/mariusgr/contactflow/pkg/api"
)

// Task is one queued contact submission waiting to be executed.
//
// RunID is assigned at enqueue time and keys the engine's idempotency: a
// task delivered more than once resumes the same run instead of creating a
// duplicate.
type Task struct {
	ID       string
	Workflow string
	RunID    string
	Payload  api.ContactPayload

	EnqueuedAt time.Time

	// NotBefore is the earliest time this task should be eligible
	// for processing. Zero value means "immediately" (i.e., at enqueue time).
	NotBefore time.Time

	// Deliveries counts how many times this task has been handed to a
	// worker, including the delivery that carries this value.
	Deliveries int
}

// Queue is a simple async task queue interface.
type Queue interface {
	// Enqueue adds a task to the queue. It should respect ctx for cancellation.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue removes and returns the next task, blocking until one is available
	// or the context is cancelled.
	Dequeue(ctx context.Context) (*Task, error)

	// Len returns the approximate number of tasks queued.
	Len() int
}
