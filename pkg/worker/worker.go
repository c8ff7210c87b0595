package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mariusgr/contactflow/internal/taskqueue"
	"github.com/mariusgr/contactflow/pkg/api"
)

// Config controls redelivery behavior for failed submissions.
type Config struct {
	// MaxDeliveries bounds how many times one task is handed to a worker,
	// including the first delivery. Zero means DefaultMaxDeliveries.
	MaxDeliveries int

	// RetryDelay is how long a failed task stays invisible before it is
	// redelivered. Zero means DefaultRetryDelay.
	RetryDelay time.Duration
}

const (
	DefaultMaxDeliveries = 3
	DefaultRetryDelay    = 5 * time.Second
)

// Worker pulls submission tasks from a Queue and executes them using an
// Engine. Because every task carries a stable run id, redelivery after a
// failure or crash resumes the existing run instead of duplicating
// notifications.
type Worker struct {
	engine api.Engine
	queue  taskqueue.Queue
	cfg    Config
}

// New creates a new Worker with default config.
func New(engine api.Engine, queue taskqueue.Queue) *Worker {
	return NewWithConfig(engine, queue, Config{})
}

// NewWithConfig creates a new Worker with the given config.
func NewWithConfig(engine api.Engine, queue taskqueue.Queue, cfg Config) *Worker {
	if cfg.MaxDeliveries <= 0 {
		cfg.MaxDeliveries = DefaultMaxDeliveries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	return &Worker{
		engine: engine,
		queue:  queue,
		cfg:    cfg,
	}
}

// EnqueueSubmission enqueues a contact submission for asynchronous
// execution and returns the run id it will execute under.
//
// runID may be an idempotency key supplied by the caller; if empty, a fresh
// id is generated. The workflow is NOT run here; that is done by ProcessOne.
func (w *Worker) EnqueueSubmission(ctx context.Context, workflow string, payload api.ContactPayload, runID string) (string, error) {
	return w.enqueue(ctx, workflow, payload, runID, time.Time{}, 0)
}

// EnqueueSubmissionAt enqueues a submission that becomes visible to workers
// no earlier than 'at'.
func (w *Worker) EnqueueSubmissionAt(ctx context.Context, workflow string, payload api.ContactPayload, runID string, at time.Time) (string, error) {
	return w.enqueue(ctx, workflow, payload, runID, at, 0)
}

func (w *Worker) enqueue(ctx context.Context, workflow string, payload api.ContactPayload, runID string, at time.Time, deliveries int) (string, error) {
	if runID == "" {
		runID = uuid.NewString()
	}
	t := taskqueue.Task{
		ID:         uuid.NewString(),
		Workflow:   workflow,
		RunID:      runID,
		Payload:    payload,
		EnqueuedAt: time.Now(),
		NotBefore:  at,
		Deliveries: deliveries,
	}
	if err := w.queue.Enqueue(ctx, t); err != nil {
		return "", err
	}
	return runID, nil
}

// ProcessOne pulls a single task from the queue and processes it.
// Returns (processed, error):
//   - processed == false, err != nil: nothing processed (ctx cancelled or
//     dequeue failure)
//   - processed == true: a task was processed; err reports an engine-level
//     failure. Step-level failures close the run as FAILED and are not
//     errors here.
//
// When the engine could not drive the run (persistence outage and the like)
// the task is re-enqueued with a delay, up to MaxDeliveries, relying on the
// engine's idempotent resume to skip already-succeeded steps.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	_, runErr := w.engine.Submit(ctx, task.Workflow, task.Payload, task.RunID)
	if runErr == nil {
		return true, nil
	}

	if task.Deliveries < w.cfg.MaxDeliveries && !errors.Is(runErr, context.Canceled) {
		requeue := *task
		requeue.NotBefore = time.Now().Add(w.cfg.RetryDelay)
		if qerr := w.queue.Enqueue(ctx, requeue); qerr != nil {
			return true, errors.Join(runErr, qerr)
		}
	}
	return true, runErr
}
