package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	corep "github.com/mariusgr/contactflow/internal/persistence"
	"github.com/mariusgr/contactflow/pkg/api"
)

// RedisRunStore is a RunStore backed by Redis.
// It uses a simple key structure:
//
//	<prefix>run:<id>              => JSON-encoded redisRun
//	<prefix>idx:all               => SET of all run IDs
//	<prefix>idx:wf:<workflow>     => SET of run IDs for a given workflow
//	<prefix>idx:status:<status>   => SET of run IDs for a given status
//
// Status index entries go stale when a run moves on; ListRuns re-checks the
// decoded run against the filter, so stale entries only cost extra reads.
//
// All mutations of an existing run go through a WATCH/MULTI transaction on
// the run key, which is what makes UpdateStep's compare-and-set guard hold
// across concurrent workers.
type RedisRunStore struct {
	client *redis.Client
	prefix string
}

var _ corep.RunStore = (*RedisRunStore)(nil)

// maxTxRetries bounds WATCH/MULTI retries when the run key is contended.
const maxTxRetries = 16

type redisStep struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Attempts   int    `json:"attempts"`
	LastError  string `json:"last_error,omitempty"`
	StartedAt  *int64 `json:"started_at,omitempty"`
	FinishedAt *int64 `json:"finished_at,omitempty"`
}

type redisRun struct {
	ID              string             `json:"id"`
	Workflow        string             `json:"workflow"`
	Status          string             `json:"status"`
	Payload         api.ContactPayload `json:"payload"`
	CancelRequested bool               `json:"cancel_requested"`
	CreatedAt       int64              `json:"created_at"`
	CompletedAt     *int64             `json:"completed_at,omitempty"`
	Steps           []redisStep        `json:"steps"`
}

// NewRedisRunStore creates a RedisRunStore.
// prefix is optional but recommended (e.g. "contactflow:").
func NewRedisRunStore(client *redis.Client, prefix string) *RedisRunStore {
	if prefix == "" {
		prefix = "contactflow:"
	}
	return &RedisRunStore{
		client: client,
		prefix: prefix,
	}
}

func (r *RedisRunStore) keyRun(id string) string {
	return r.prefix + "run:" + id
}

func (r *RedisRunStore) keyAll() string {
	return r.prefix + "idx:all"
}

func (r *RedisRunStore) keyWorkflow(name string) string {
	return r.prefix + "idx:wf:" + name
}

func (r *RedisRunStore) keyStatus(status api.Status) string {
	return r.prefix + "idx:status:" + string(status)
}

func (r *RedisRunStore) CreateRun(run *api.Run) error {
	ctx := context.Background()

	data, err := encodeRedisRun(run)
	if err != nil {
		return err
	}

	ok, err := r.client.SetNX(ctx, r.keyRun(run.ID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return corep.ErrRunExists
	}

	// Index updates are best-effort; ListRuns re-checks decoded runs.
	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, r.keyAll(), run.ID)
	pipe.SAdd(ctx, r.keyWorkflow(run.Workflow), run.ID)
	pipe.SAdd(ctx, r.keyStatus(run.Status), run.ID)
	_, _ = pipe.Exec(ctx)

	return nil
}

func (r *RedisRunStore) GetRun(id string) (*api.Run, error) {
	ctx := context.Background()

	data, err := r.client.Get(ctx, r.keyRun(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, corep.ErrRunNotFound
		}
		return nil, err
	}
	return decodeRedisRun(data)
}

func (r *RedisRunStore) ListRuns(filter corep.RunFilter) ([]*api.Run, error) {
	ctx := context.Background()

	var ids []string
	var err error

	switch {
	case filter.Workflow != "" && filter.Status != "":
		ids, err = r.client.SInter(ctx,
			r.keyWorkflow(filter.Workflow),
			r.keyStatus(filter.Status),
		).Result()
	case filter.Workflow != "":
		ids, err = r.client.SMembers(ctx, r.keyWorkflow(filter.Workflow)).Result()
	case filter.Status != "":
		ids, err = r.client.SMembers(ctx, r.keyStatus(filter.Status)).Result()
	default:
		ids, err = r.client.SMembers(ctx, r.keyAll()).Result()
	}

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, r.keyRun(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	var runs []*api.Run
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		run, err := decodeRedisRun(data)
		if err != nil {
			return nil, err
		}
		// Stale index entries: re-check against the filter.
		if filter.Workflow != "" && run.Workflow != filter.Workflow {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		runs = append(runs, run)
	}

	return runs, nil
}

func (r *RedisRunStore) UpdateRunStatus(id string, status api.Status, completedAt *time.Time) error {
	return r.mutateRun(id, func(run *api.Run) error {
		run.Status = status
		if status == api.StatusRunning {
			// Re-entering RUNNING (resume) also clears the cancel flag and
			// completion timestamp.
			run.CancelRequested = false
			run.CompletedAt = nil
		} else {
			run.CompletedAt = completedAt
		}
		return nil
	})
}

func (r *RedisRunStore) UpdateStep(runID, stepName string, upd corep.StepUpdate) error {
	return r.mutateRun(runID, func(run *api.Run) error {
		rec := run.Step(stepName)
		if rec == nil {
			return corep.ErrStepNotFound
		}
		if rec.Status != upd.From {
			return corep.ErrStepStatusConflict
		}
		rec.Status = upd.To
		rec.Attempts = upd.Attempts
		rec.LastError = upd.LastError
		if upd.StartedAt != nil {
			rec.StartedAt = upd.StartedAt
		}
		if upd.FinishedAt != nil {
			rec.FinishedAt = upd.FinishedAt
		}
		return nil
	})
}

func (r *RedisRunStore) RequestCancel(id string) error {
	return r.mutateRun(id, func(run *api.Run) error {
		if run.Terminal() {
			// Terminal run: cancel is a no-op.
			return nil
		}
		run.CancelRequested = true
		return nil
	})
}

// mutateRun applies fn to the stored run inside a WATCH/MULTI transaction
// and retries on contention. fn runs on a decoded copy; returning an error
// aborts without writing.
func (r *RedisRunStore) mutateRun(id string, fn func(run *api.Run) error) error {
	ctx := context.Background()
	key := r.keyRun(id)

	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return corep.ErrRunNotFound
				}
				return err
			}

			run, err := decodeRedisRun(data)
			if err != nil {
				return err
			}

			if err := fn(run); err != nil {
				return err
			}

			updated, err := encodeRedisRun(run)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, 0)
				pipe.SAdd(ctx, r.keyStatus(run.Status), run.ID)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return errors.New("redis run store: transaction retries exhausted")
}

func encodeRedisRun(run *api.Run) ([]byte, error) {
	rr := redisRun{
		ID:              run.ID,
		Workflow:        run.Workflow,
		Status:          string(run.Status),
		Payload:         run.Payload,
		CancelRequested: run.CancelRequested,
		CreatedAt:       run.CreatedAt.UnixNano(),
		CompletedAt:     nanosOrNil(run.CompletedAt),
		Steps:           make([]redisStep, len(run.Steps)),
	}
	for i, rec := range run.Steps {
		rr.Steps[i] = redisStep{
			Name:       rec.Name,
			Status:     string(rec.Status),
			Attempts:   rec.Attempts,
			LastError:  rec.LastError,
			StartedAt:  nanosOrNil(rec.StartedAt),
			FinishedAt: nanosOrNil(rec.FinishedAt),
		}
	}
	return json.Marshal(rr)
}

func decodeRedisRun(data []byte) (*api.Run, error) {
	if len(data) == 0 {
		return nil, corep.ErrRunNotFound
	}
	var rr redisRun
	if err := json.Unmarshal(data, &rr); err != nil {
		return nil, err
	}

	run := &api.Run{
		ID:              rr.ID,
		Workflow:        rr.Workflow,
		Status:          api.Status(rr.Status),
		Payload:         rr.Payload,
		CancelRequested: rr.CancelRequested,
		CreatedAt:       time.Unix(0, rr.CreatedAt),
		CompletedAt:     timeOrNil(rr.CompletedAt),
		Steps:           make([]api.StepRecord, len(rr.Steps)),
	}
	for i, rec := range rr.Steps {
		run.Steps[i] = api.StepRecord{
			Name:       rec.Name,
			Status:     api.Status(rec.Status),
			Attempts:   rec.Attempts,
			LastError:  rec.LastError,
			StartedAt:  timeOrNil(rec.StartedAt),
			FinishedAt: timeOrNil(rec.FinishedAt),
		}
	}
	return run, nil
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
