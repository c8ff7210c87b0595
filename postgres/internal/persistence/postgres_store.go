package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	corep "github.com/mariusgr/contactflow/internal/persistence"
	"github.com/mariusgr/contactflow/pkg/api"
)

// PostgresRunStore is a RunStore backed by PostgreSQL.
//
// It expects an *sql.DB that uses a PostgreSQL driver (for example,
// "github.com/jackc/pgx/v5/stdlib").
//
// The caller is responsible for:
//   - importing the driver for its side effects, e.g.:
//     _ "github.com/jackc/pgx/v5/stdlib"
//   - providing a DSN via sql.Open.
type PostgresRunStore struct {
	db *sql.DB
}

// Ensure PostgresRunStore implements RunStore.
var _ corep.RunStore = (*PostgresRunStore)(nil)

// NewPostgresRunStore initializes the required schema in the given
// database and returns a new PostgresRunStore.
func NewPostgresRunStore(db *sql.DB) (*PostgresRunStore, error) {
	s := &PostgresRunStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *PostgresRunStore) initSchema() error {
	_, err := p.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			workflow TEXT NOT NULL,
			status TEXT NOT NULL,
			payload BYTEA,
			cancel_requested BOOLEAN NOT NULL DEFAULT FALSE,
			created_at BIGINT NOT NULL,
			completed_at BIGINT
		);

		CREATE TABLE IF NOT EXISTS run_steps (
			run_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			started_at BIGINT,
			finished_at BIGINT,
			PRIMARY KEY (run_id, name)
		);
	`)
	return err
}

func (p *PostgresRunStore) CreateRun(run *api.Run) error {
	payload, err := corep.EncodePayload(run.Payload)
	if err != nil {
		return err
	}

	tx, err := p.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO runs (id, workflow, status, payload, cancel_requested, created_at, completed_at)
		VALUES ($1, $2, $3, $4, FALSE, $5, NULL)`,
		run.ID,
		run.Workflow,
		string(run.Status),
		payload,
		run.CreatedAt.UnixNano(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return corep.ErrRunExists
		}
		return err
	}

	for i, rec := range run.Steps {
		_, err = tx.Exec(`
			INSERT INTO run_steps (run_id, position, name, status, attempts, last_error, started_at, finished_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
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

func (p *PostgresRunStore) GetRun(id string) (*api.Run, error) {
	row := p.db.QueryRow(`
		SELECT id, workflow, status, payload, cancel_requested, created_at, completed_at
		FROM runs
		WHERE id = $1`,
		id,
	)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, corep.ErrRunNotFound
		}
		return nil, err
	}

	if err := p.loadSteps(run); err != nil {
		return nil, err
	}
	return run, nil
}

func (p *PostgresRunStore) ListRuns(filter corep.RunFilter) ([]*api.Run, error) {
	query := `
		SELECT id, workflow, status, payload, cancel_requested, created_at, completed_at
		FROM runs`
	var args []any
	var clauses []string

	if filter.Workflow != "" {
		clauses = append(clauses, fmt.Sprintf("workflow = $%d", len(args)+1))
		args = append(args, filter.Workflow)
	}
	if filter.Status != "" {
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, string(filter.Status))
	}

	if len(clauses) > 0 {
		query = query + " WHERE " + strings.Join(clauses, " AND ")
	}

	rows, err := p.db.Query(query, args...)
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
		if err := p.loadSteps(run); err != nil {
			return nil, err
		}
	}

	return runs, nil
}

func (p *PostgresRunStore) UpdateRunStatus(id string, status api.Status, completedAt *time.Time) error {
	var res sql.Result
	var err error

	if status == api.StatusRunning {
		// Re-entering RUNNING (resume) also clears the cancel flag and
		// completion timestamp.
		res, err = p.db.Exec(`
			UPDATE runs
			SET status = $1, cancel_requested = FALSE, completed_at = NULL
			WHERE id = $2`,
			string(status), id,
		)
	} else {
		res, err = p.db.Exec(`
			UPDATE runs
			SET status = $1, completed_at = $2
			WHERE id = $3`,
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
		return corep.ErrRunNotFound
	}
	return nil
}

func (p *PostgresRunStore) UpdateStep(runID, stepName string, upd corep.StepUpdate) error {
	res, err := p.db.Exec(`
		UPDATE run_steps
		SET status = $1,
		    attempts = $2,
		    last_error = $3,
		    started_at = COALESCE($4, started_at),
		    finished_at = COALESCE($5, finished_at)
		WHERE run_id = $6 AND name = $7 AND status = $8`,
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
		err = p.db.QueryRow(`
			SELECT COUNT(*) FROM run_steps WHERE run_id = $1 AND name = $2`,
			runID, stepName,
		).Scan(&n)
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

func (p *PostgresRunStore) RequestCancel(id string) error {
	res, err := p.db.Exec(`
		UPDATE runs
		SET cancel_requested = TRUE
		WHERE id = $1 AND status NOT IN ($2, $3)`,
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
		if err := p.db.QueryRow(`SELECT COUNT(*) FROM runs WHERE id = $1`, id).Scan(&n); err != nil {
			return err
		}
		if n == 0 {
			return corep.ErrRunNotFound
		}
		// Terminal run: cancel is a no-op.
	}
	return nil
}

func (p *PostgresRunStore) loadSteps(run *api.Run) error {
	rows, err := p.db.Query(`
		SELECT name, status, attempts, last_error, started_at, finished_at
		FROM run_steps
		WHERE run_id = $1
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
	var cancelRequested bool
	var createdAt int64
	var completedAt sql.NullInt64

	if err := row.Scan(&run.ID, &run.Workflow, &statusStr, &payload, &cancelRequested, &createdAt, &completedAt); err != nil {
		return nil, err
	}

	run.Status = api.Status(statusStr)
	run.CancelRequested = cancelRequested
	run.CreatedAt = time.Unix(0, createdAt)
	run.CompletedAt = timeOrNil(completedAt)

	p, err := corep.DecodePayload(payload)
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
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
