package taskqueue

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	corep "github.com/mariusgr/contactflow/internal/persistence"
	coreq "github.com/mariusgr/contactflow/internal/taskqueue"
)

// PostgresQueue implements Queue using a PostgreSQL table.
//
// Dequeue claims the oldest visible row with SELECT ... FOR UPDATE SKIP
// LOCKED and deletes it in the same transaction, so concurrent workers
// never receive the same task. Visibility is gated by not_before, which
// the worker uses to delay redeliveries.
type PostgresQueue struct {
	db           *sql.DB
	pollInterval time.Duration
}

// NewPostgresQueue creates the required schema if needed and returns a Queue.
func NewPostgresQueue(db *sql.DB) (*PostgresQueue, error) {
	q := &PostgresQueue{
		db:           db,
		pollInterval: 100 * time.Millisecond,
	}
	if err := q.initSchema(); err != nil {
		return nil, err
	}
	return q, nil
}

// Ensure PostgresQueue implements Queue.
var _ coreq.Queue = (*PostgresQueue)(nil)

func (q *PostgresQueue) initSchema() error {
	_, err := q.db.Exec(`
		CREATE TABLE IF NOT EXISTS tasks (
			id BIGSERIAL PRIMARY KEY,
			task_id TEXT,
			workflow TEXT NOT NULL,
			run_id TEXT NOT NULL,
			payload BYTEA,
			enqueued_at BIGINT NOT NULL,
			not_before BIGINT NOT NULL,
			deliveries INTEGER NOT NULL
		);
	`)
	return err
}

func (q *PostgresQueue) Enqueue(ctx context.Context, t coreq.Task) error {
	payload, err := corep.EncodePayload(t.Payload)
	if err != nil {
		return err
	}

	now := time.Now()
	enqueuedAt := now.UnixNano()

	var notBefore int64
	if t.NotBefore.IsZero() {
		notBefore = enqueuedAt
	} else {
		notBefore = t.NotBefore.UnixNano()
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO tasks (task_id, workflow, run_id, payload, enqueued_at, not_before, deliveries)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID,
		t.Workflow,
		t.RunID,
		payload,
		enqueuedAt,
		notBefore,
		t.Deliveries,
	)
	return err
}

func (q *PostgresQueue) Dequeue(ctx context.Context) (*coreq.Task, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		now := time.Now().UnixNano()

		tx, err := q.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, err
		}

		var (
			id          int64
			taskID      sql.NullString
			workflow    string
			runID       string
			payload     []byte
			enqueuedInt int64
			notBefore   int64
			deliveries  int
		)

		// Lock the oldest visible row, if any.
		row := tx.QueryRowContext(ctx, `
			SELECT id, task_id, workflow, run_id, payload, enqueued_at, not_before, deliveries
			FROM tasks
			WHERE not_before <= $1
			ORDER BY not_before, id
			FOR UPDATE SKIP LOCKED
			LIMIT 1`, now)
		err = row.Scan(&id, &taskID, &workflow, &runID, &payload, &enqueuedInt, &notBefore, &deliveries)
		if err != nil {
			_ = tx.Rollback()
			if errors.Is(err, sql.ErrNoRows) {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(q.pollInterval):
					continue
				}
			}
			return nil, err
		}

		// Delete the claimed row within the same transaction.
		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id); err != nil {
			_ = tx.Rollback()
			return nil, err
		}

		if err := tx.Commit(); err != nil {
			return nil, err
		}

		decoded, err := corep.DecodePayload(payload)
		if err != nil {
			return nil, err
		}

		return &coreq.Task{
			ID:         taskID.String,
			Workflow:   workflow,
			RunID:      runID,
			Payload:    decoded,
			EnqueuedAt: time.Unix(0, enqueuedInt),
			NotBefore:  time.Unix(0, notBefore),
			Deliveries: deliveries + 1,
		}, nil
	}
}

// Len returns an approximate number of queued tasks.
func (q *PostgresQueue) Len() int {
	var n int
	if err := q.db.QueryRow(`SELECT COUNT(*) FROM tasks`).Scan(&n); err != nil {
		log.Printf("PostgresQueue: Len failed: %v", err)
		return 0
	}
	return n
}
