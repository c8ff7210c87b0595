package persistence

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/mariusgr/contactflow/pkg/api"
)

// SQLiteRunStore is a RunStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteRunStore struct {
	db *sql.DB
}

// Ensure SQLiteRunStore implements RunStore.
var _ RunStore = (*SQLiteRunStore)(nil)

// NewSQLiteRunStore initializes the required schema in the given
// database and returns a new SQLiteRunStore.
func NewSQLiteRunStore(db *sql.DB) (*SQLiteRunStore, error) {
	s := &SQLiteRunStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteRunStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			workflow TEXT NOT NULL,
			status TEXT NOT NULL,
			payload BLOB,
			cancel_requested INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			completed_at INTEGER
		);

		CREATE TABLE IF NOT EXISTS run_steps (
			run_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			started_at INTEGER,
			finished_at INTEGER,
			PRIMARY KEY (run_id, name)
		);`,
	)
	return err
}

func (s *SQLiteRunStore) CreateRun(run *api.Run) error {
	payload, err := EncodePayload(run.Payload)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO runs (id, workflow, status, payload, cancel_requested, created_at, completed_at)
		VALUES (?, ?, ?, ?, 0, ?, NULL)`,
		run.ID,
		run.Workflow,
		string(run.Status),
		payload,
		run.CreatedAt.UnixNano(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrRunExists
		}
		return err
	}

	for i, rec := range run.Steps {
		_, err = tx.Exec(`
			INSERT INTO run_steps (run_id, position, name, status, attempts, last_error, started_at, finished_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID,
			i,
			rec.Name,
			string(rec.Status),
			rec.Attempts,
			rec.LastError,
			nanosOrNil(rec.StartedAt),
			nanosOrNil(rec.FinishedAt),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteRunStore) GetRun(id string) (*api.Run, error) {
	row := s.db.QueryRow(`
		SELECT id, workflow, status, payload, cancel_requested, created_at, completed_at
		FROM runs
		WHERE id = ?`,
		id,
	)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}

	if err := s.loadSteps(run); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *SQLiteRunStore) ListRuns(filter RunFilter) ([]*api.Run, error) {
	query := `
		SELECT id, workflow, status, payload, cancel_requested, created_at, completed_at
		FROM runs`
	var args []any
	var clauses []string

	if filter.Workflow != "" {
		clauses = append(clauses, "workflow = ?")
		args = append(args, filter.Workflow)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}

	if len(clauses) > 0 {
		query = query + " WHERE " + strings.Join(clauses, " AND ")
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*api.Run

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, run := range runs {
		if err := s.loadSteps(run); err != nil {
			return nil, err
		}
	}

	return runs, nil
}

func (s *SQLiteRunStore) UpdateRunStatus(id string, status api.Status, completedAt *time.Time) error {
	var res sql.Result
	var err error

	if status == api.StatusRunning {
		// Re-entering RUNNING (resume) also clears the cancel flag and
		// completion timestamp.
		res, err = s.db.Exec(`
			UPDATE runs
			SET status = ?, cancel_requested = 0, completed_at = NULL
			WHERE id = ?`,
			string(status), id,
		)
	} else {
		res, err = s.db.Exec(`
			UPDATE runs
			SET status = ?, completed_at = ?
			WHERE id = ?`,
			string(status), nanosOrNil(completedAt), id,
		)
	}
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (s *SQLiteRunStore) UpdateStep(runID, stepName string, upd StepUpdate) error {
	res, err := s.db.Exec(`
		UPDATE run_steps
		SET status = ?,
		    attempts = ?,
		    last_error = ?,
		    started_at = COALESCE(?, started_at),
		    finished_at = COALESCE(?, finished_at)
		WHERE run_id = ? AND name = ? AND status = ?`,
		string(upd.To),
		upd.Attempts,
		upd.LastError,
		nanosOrNil(upd.StartedAt),
		nanosOrNil(upd.FinishedAt),
		runID,
		stepName,
		string(upd.From),
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Distinguish a missing step from a status mismatch.
		var n int
		err = s.db.QueryRow(`
			SELECT COUNT(*) FROM run_steps WHERE run_id = ? AND name = ?`,
			runID, stepName,
		).Scan(&n)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrStepNotFound
		}
		return ErrStepStatusConflict
	}
	return nil
}

func (s *SQLiteRunStore) RequestCancel(id string) error {
	res, err := s.db.Exec(`
		UPDATE runs
		SET cancel_requested = 1
		WHERE id = ? AND status NOT IN (?, ?)`,
		id, string(api.StatusSucceeded), string(api.StatusFailed),
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var n int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM runs WHERE id = ?`, id).Scan(&n); err != nil {
			return err
		}
		if n == 0 {
			return ErrRunNotFound
		}
		// Terminal run: cancel is a no-op.
	}
	return nil
}

func (s *SQLiteRunStore) loadSteps(run *api.Run) error {
	rows, err := s.db.Query(`
		SELECT name, status, attempts, last_error, started_at, finished_at
		FROM run_steps
		WHERE run_id = ?
		ORDER BY position`,
		run.ID,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	var steps []api.StepRecord
	for rows.Next() {
		var rec api.StepRecord
		var statusStr string
		var lastErr sql.NullString
		var startedAt, finishedAt sql.NullInt64

		if err := rows.Scan(&rec.Name, &statusStr, &rec.Attempts, &lastErr, &startedAt, &finishedAt); err != nil {
			return err
		}

		rec.Status = api.Status(statusStr)
		if lastErr.Valid {
			rec.LastError = lastErr.String
		}
		rec.StartedAt = timeOrNil(startedAt)
		rec.FinishedAt = timeOrNil(finishedAt)

		steps = append(steps, rec)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	run.Steps = steps
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*api.Run, error) {
	var run api.Run
	var statusStr string
	var payload []byte
	var cancelRequested int
	var createdAt int64
	var completedAt sql.NullInt64

	if err := row.Scan(&run.ID, &run.Workflow, &statusStr, &payload, &cancelRequested, &createdAt, &completedAt); err != nil {
		return nil, err
	}

	run.Status = api.Status(statusStr)
	run.CancelRequested = cancelRequested != 0
	run.CreatedAt = time.Unix(0, createdAt)
	run.CompletedAt = timeOrNil(completedAt)

	p, err := DecodePayload(payload)
	if err != nil {
		return nil, err
	}
	run.Payload = p

	return &run, nil
}

func nanosOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func timeOrNil(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64)
	return &t
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	// modernc.org/sqlite reports constraint violations in the error text.
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint violation")
}
