package persistence

import (
	"time"

	corep "github.com/mariusgr/contactflow/internal/persistence"
	"github.com/mariusgr/contactflow/pkg/api"
)

func samplePayload(msg string) api.ContactPayload {
	return api.ContactPayload{
		Name:            "Ada Lovelace",
		Email:           "ada@example.com",
		Message:         msg,
		PrivacyAccepted: true,
	}
}

func (r *RedisStoreTestSuite) TestRedisRunStore_CreateGet() {
	run := api.NewRun("redis-run-1", "contact-submission", samplePayload("hello"),
		[]string{"sendChatNotification", "sendEmailNotification"})

	err := r.store.CreateRun(run)
	r.NoErrorf(err, "CreateRun failed: %v", err)

	got, err := r.store.GetRun("redis-run-1")
	r.NoErrorf(err, "GetRun failed: %v", err)

	if got.ID != run.ID || got.Workflow != run.Workflow || got.Status != api.StatusPending {
		r.Failf("unexpected run", "run after Get: %+v", got)
	}
	if got.Payload.Email != "ada@example.com" || got.Payload.Message != "hello" {
		r.Failf("unexpected payload", "payload: %+v", got.Payload)
	}
	if len(got.Steps) != 2 || got.Steps[0].Name != "sendChatNotification" {
		r.Failf("unexpected steps", "steps: %+v", got.Steps)
	}
}

func (r *RedisStoreTestSuite) TestRedisRunStore_CreateDuplicate() {
	run := api.NewRun("redis-run-dup", "contact-submission", samplePayload("x"), []string{"a"})

	err := r.store.CreateRun(run)
	r.NoErrorf(err, "first CreateRun failed: %v", err)

	err = r.store.CreateRun(run)
	r.ErrorIsf(err, corep.ErrRunExists, "expected ErrRunExists, got %v", err)
}

func (r *RedisStoreTestSuite) TestRedisRunStore_GetMissing() {
	_, err := r.store.GetRun("no-such-run")
	r.ErrorIsf(err, corep.ErrRunNotFound, "expected ErrRunNotFound, got %v", err)
}

func (r *RedisStoreTestSuite) TestRedisRunStore_UpdateStepCAS() {
	run := api.NewRun("redis-run-cas", "contact-submission", samplePayload("x"), []string{"a"})
	err := r.store.CreateRun(run)
	r.NoErrorf(err, "CreateRun failed: %v", err)

	now := time.Now()
	err = r.store.UpdateStep("redis-run-cas", "a", corep.StepUpdate{
		From:      api.StatusPending,
		To:        api.StatusRunning,
		StartedAt: &now,
	})
	r.NoErrorf(err, "PENDING->RUNNING failed: %v", err)

	err = r.store.UpdateStep("redis-run-cas", "a", corep.StepUpdate{
		From: api.StatusPending,
		To:   api.StatusRunning,
	})
	r.ErrorIsf(err, corep.ErrStepStatusConflict, "expected ErrStepStatusConflict, got %v", err)

	err = r.store.UpdateStep("redis-run-cas", "a", corep.StepUpdate{
		From:       api.StatusRunning,
		To:         api.StatusSucceeded,
		Attempts:   1,
		FinishedAt: &now,
	})
	r.NoErrorf(err, "RUNNING->SUCCEEDED failed: %v", err)

	got, err := r.store.GetRun("redis-run-cas")
	r.NoErrorf(err, "GetRun failed: %v", err)
	rec := got.Step("a")
	if rec == nil || rec.Status != api.StatusSucceeded || rec.Attempts != 1 {
		r.Failf("unexpected record", "record after transitions: %+v", rec)
	}
}

func (r *RedisStoreTestSuite) TestRedisRunStore_UpdateStepMissing() {
	run := api.NewRun("redis-run-miss", "contact-submission", samplePayload("x"), []string{"a"})
	err := r.store.CreateRun(run)
	r.NoErrorf(err, "CreateRun failed: %v", err)

	err = r.store.UpdateStep("redis-run-miss", "nope", corep.StepUpdate{
		From: api.StatusPending,
		To:   api.StatusRunning,
	})
	r.ErrorIsf(err, corep.ErrStepNotFound, "expected ErrStepNotFound, got %v", err)
}

func (r *RedisStoreTestSuite) TestRedisRunStore_ListRunsFilters() {
	runs := []*api.Run{
		api.NewRun("redis-list-1", "wf-A", samplePayload("a1"), []string{"s"}),
		api.NewRun("redis-list-2", "wf-A", samplePayload("a2"), []string{"s"}),
		api.NewRun("redis-list-3", "wf-B", samplePayload("b1"), []string{"s"}),
	}
	for _, run := range runs {
		err := r.store.CreateRun(run)
		r.NoErrorf(err, "CreateRun(%s) failed: %v", run.ID, err)
	}

	now := time.Now()
	err := r.store.UpdateRunStatus("redis-list-2", api.StatusFailed, &now)
	r.NoErrorf(err, "UpdateRunStatus failed: %v", err)

	all, err := r.store.ListRuns(corep.RunFilter{})
	r.NoErrorf(err, "ListRuns (no filter) failed: %v", err)
	if len(all) != 3 {
		r.Failf("incorrect run count", "expected 3 runs, got %d", len(all))
	}

	wfA, err := r.store.ListRuns(corep.RunFilter{Workflow: "wf-A"})
	r.NoErrorf(err, "ListRuns (wf-A) failed: %v", err)
	if len(wfA) != 2 {
		r.Failf("incorrect run count", "expected 2 wf-A runs, got %d", len(wfA))
	}

	// Stale status index entries must not leak PENDING runs into the
	// FAILED filter.
	failed, err := r.store.ListRuns(corep.RunFilter{Status: api.StatusFailed})
	r.NoErrorf(err, "ListRuns (FAILED) failed: %v", err)
	if len(failed) != 1 || failed[0].ID != "redis-list-2" {
		r.Failf("unexpected filter result", "failed runs: %+v", failed)
	}
}

func (r *RedisStoreTestSuite) TestRedisRunStore_CancelFlag() {
	run := api.NewRun("redis-run-cancel", "contact-submission", samplePayload("x"), []string{"a"})
	err := r.store.CreateRun(run)
	r.NoErrorf(err, "CreateRun failed: %v", err)

	err = r.store.RequestCancel("redis-run-cancel")
	r.NoErrorf(err, "RequestCancel failed: %v", err)

	got, err := r.store.GetRun("redis-run-cancel")
	r.NoErrorf(err, "GetRun failed: %v", err)
	if !got.CancelRequested {
		r.Failf("cancel flag not set", "run: %+v", got)
	}

	err = r.store.UpdateRunStatus("redis-run-cancel", api.StatusRunning, nil)
	r.NoErrorf(err, "UpdateRunStatus failed: %v", err)

	got, err = r.store.GetRun("redis-run-cancel")
	r.NoErrorf(err, "GetRun after resume failed: %v", err)
	if got.CancelRequested {
		r.Failf("cancel flag not cleared", "run: %+v", got)
	}
}
