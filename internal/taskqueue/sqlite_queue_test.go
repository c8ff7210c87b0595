package taskqueue

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func newSQLiteTestQueue(t *testing.T) *SQLiteQueue {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	q, err := NewSQLiteQueue(db)
	if err != nil {
		t.Fatalf("creating queue: %v", err)
	}
	return q
}

func TestSQLiteQueueEnqueueDequeue(t *testing.T) {
	q := newSQLiteTestQueue(t)
	ctx := context.Background()

	for _, id := range []string{"r1", "r2"} {
		if err := q.Enqueue(ctx, queueTask(id)); err != nil {
			t.Fatalf("Enqueue(%s) failed: %v", id, err)
		}
	}
	if q.Len() != 2 {
		t.Fatalf("expected 2 queued tasks, got %d", q.Len())
	}

	task, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if task.RunID != "r1" {
		t.Fatalf("expected run r1 first, got %s", task.RunID)
	}
	if task.Deliveries != 1 {
		t.Fatalf("expected 1 delivery, got %d", task.Deliveries)
	}
	if task.Payload.Email != "ada@example.com" {
		t.Fatalf("payload did not round-trip: %+v", task.Payload)
	}

	task, err = q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if task.RunID != "r2" {
		t.Fatalf("expected run r2 second, got %s", task.RunID)
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", q.Len())
	}
}

// A task with a future NotBefore must stay invisible until its time comes,
// even when an older eligible task is behind it.
func TestSQLiteQueueNotBeforeVisibility(t *testing.T) {
	q := newSQLiteTestQueue(t)
	ctx := context.Background()

	delayed := queueTask("delayed")
	delayed.NotBefore = time.Now().Add(80 * time.Millisecond)
	if err := q.Enqueue(ctx, delayed); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := q.Enqueue(ctx, queueTask("ready")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	task, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if task.RunID != "ready" {
		t.Fatalf("delayed task dequeued too early: %s", task.RunID)
	}

	// The delayed task becomes visible after its NotBefore passes.
	task, err = q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if task.RunID != "delayed" {
		t.Fatalf("expected the delayed task, got %s", task.RunID)
	}
	if time.Now().Before(delayed.NotBefore) {
		t.Fatal("delayed task delivered before its NotBefore")
	}
}

// Deliveries accumulates across requeues so the worker can enforce a
// delivery budget.
func TestSQLiteQueueDeliveriesAccumulate(t *testing.T) {
	q := newSQLiteTestQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, queueTask("r1")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	task, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if task.Deliveries != 1 {
		t.Fatalf("expected 1 delivery, got %d", task.Deliveries)
	}

	// Requeue carrying the delivery count, as the worker does on failure.
	if err := q.Enqueue(ctx, *task); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	task, err = q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if task.Deliveries != 2 {
		t.Fatalf("expected 2 deliveries, got %d", task.Deliveries)
	}
}

func TestSQLiteQueueDequeueHonorsContext(t *testing.T) {
	q := newSQLiteTestQueue(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := q.Dequeue(ctx); err == nil {
		t.Fatal("expected an error from an empty queue with an expiring context")
	}
	if time.Since(start) > time.Second {
		t.Fatal("Dequeue did not return promptly after context expiry")
	}
}
