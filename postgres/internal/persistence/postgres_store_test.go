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

func (p *PostgresStoreTestSuite) TestPostgresRunStore_CreateGet() {
	run := api.NewRun("pg-run-1", "contact-submission", samplePayload("hello"),
		[]string{"sendChatNotification", "sendEmailNotification"})

	err := p.store.CreateRun(run)
	p.NoErrorf(err, "CreateRun failed: %v", err)

	got, err := p.store.GetRun("pg-run-1")
	p.NoErrorf(err, "GetRun failed: %v", err)

	if got.ID != run.ID || got.Workflow != run.Workflow || got.Status != api.StatusPending {
		p.Failf("unexpected run", "run after Get: %+v", got)
	}
	if got.Payload.Email != "ada@example.com" || got.Payload.Message != "hello" {
		p.Failf("unexpected payload", "payload: %+v", got.Payload)
	}
	if len(got.Steps) != 2 {
		p.Failf("unexpected steps", "expected 2 step records, got %d", len(got.Steps))
	}
	if got.Steps[0].Name != "sendChatNotification" || got.Steps[1].Name != "sendEmailNotification" {
		p.Failf("unexpected step order", "steps: %+v", got.Steps)
	}
	for _, rec := range got.Steps {
		if rec.Status != api.StatusPending {
			p.Failf("unexpected step status", "record: %+v", rec)
		}
	}
}

func (p *PostgresStoreTestSuite) TestPostgresRunStore_CreateDuplicate() {
	run := api.NewRun("pg-run-dup", "contact-submission", samplePayload("x"), []string{"a"})

	err := p.store.CreateRun(run)
	p.NoErrorf(err, "first CreateRun failed: %v", err)

	err = p.store.CreateRun(run)
	p.ErrorIsf(err, corep.ErrRunExists, "expected ErrRunExists, got %v", err)
}

func (p *PostgresStoreTestSuite) TestPostgresRunStore_GetMissing() {
	_, err := p.store.GetRun("no-such-run")
	p.ErrorIsf(err, corep.ErrRunNotFound, "expected ErrRunNotFound, got %v", err)
}

func (p *PostgresStoreTestSuite) TestPostgresRunStore_UpdateStepCAS() {
	run := api.NewRun("pg-run-cas", "contact-submission", samplePayload("x"), []string{"a"})
	err := p.store.CreateRun(run)
	p.NoErrorf(err, "CreateRun failed: %v", err)

	now := time.Now()
	err = p.store.UpdateStep("pg-run-cas", "a", corep.StepUpdate{
		From:      api.StatusPending,
		To:        api.StatusRunning,
		Attempts:  0,
		StartedAt: &now,
	})
	p.NoErrorf(err, "PENDING->RUNNING failed: %v", err)

	// A second transition from PENDING must be rejected: the stored status is
	// now RUNNING.
	err = p.store.UpdateStep("pg-run-cas", "a", corep.StepUpdate{
		From: api.StatusPending,
		To:   api.StatusRunning,
	})
	p.ErrorIsf(err, corep.ErrStepStatusConflict, "expected ErrStepStatusConflict, got %v", err)

	err = p.store.UpdateStep("pg-run-cas", "a", corep.StepUpdate{
		From:       api.StatusRunning,
		To:         api.StatusSucceeded,
		Attempts:   1,
		FinishedAt: &now,
	})
	p.NoErrorf(err, "RUNNING->SUCCEEDED failed: %v", err)

	got, err := p.store.GetRun("pg-run-cas")
	p.NoErrorf(err, "GetRun failed: %v", err)
	rec := got.Step("a")
	if rec == nil || rec.Status != api.StatusSucceeded || rec.Attempts != 1 {
		p.Failf("unexpected record", "record after transitions: %+v", rec)
	}
	if rec.StartedAt == nil || rec.FinishedAt == nil {
		p.Failf("missing timestamps", "record: %+v", rec)
	}
}

func (p *PostgresStoreTestSuite) TestPostgresRunStore_UpdateStepMissing() {
	run := api.NewRun("pg-run-miss", "contact-submission", samplePayload("x"), []string{"a"})
	err := p.store.CreateRun(run)
	p.NoErrorf(err, "CreateRun failed: %v", err)

	err = p.store.UpdateStep("pg-run-miss", "nope", corep.StepUpdate{
		From: api.StatusPending,
		To:   api.StatusRunning,
	})
	p.ErrorIsf(err, corep.ErrStepNotFound, "expected ErrStepNotFound, got %v", err)
}

func (p *PostgresStoreTestSuite) TestPostgresRunStore_ListRunsFilters() {
	runs := []*api.Run{
		api.NewRun("pg-list-1", "wf-A", samplePayload("a1"), []string{"s"}),
		api.NewRun("pg-list-2", "wf-A", samplePayload("a2"), []string{"s"}),
		api.NewRun("pg-list-3", "wf-B", samplePayload("b1"), []string{"s"}),
	}
	for _, run := range runs {
		err := p.store.CreateRun(run)
		p.NoErrorf(err, "CreateRun(%s) failed: %v", run.ID, err)
	}

	err := p.store.UpdateRunStatus("pg-list-2", api.StatusFailed, ptrTime(time.Now()))
	p.NoErrorf(err, "UpdateRunStatus failed: %v", err)

	all, err := p.store.ListRuns(corep.RunFilter{})
	p.NoErrorf(err, "ListRuns (no filter) failed: %v", err)
	if len(all) != 3 {
		p.Failf("incorrect run count", "expected 3 runs, got %d", len(all))
	}

	wfA, err := p.store.ListRuns(corep.RunFilter{Workflow: "wf-A"})
	p.NoErrorf(err, "ListRuns (wf-A) failed: %v", err)
	if len(wfA) != 2 {
		p.Failf("incorrect run count", "expected 2 wf-A runs, got %d", len(wfA))
	}

	failed, err := p.store.ListRuns(corep.RunFilter{Status: api.StatusFailed})
	p.NoErrorf(err, "ListRuns (FAILED) failed: %v", err)
	if len(failed) != 1 || failed[0].ID != "pg-list-2" {
		p.Failf("unexpected filter result", "failed runs: %+v", failed)
	}
}

func (p *PostgresStoreTestSuite) TestPostgresRunStore_CancelFlag() {
	run := api.NewRun("pg-run-cancel", "contact-submission", samplePayload("x"), []string{"a"})
	err := p.store.CreateRun(run)
	p.NoErrorf(err, "CreateRun failed: %v", err)

	err = p.store.RequestCancel("pg-run-cancel")
	p.NoErrorf(err, "RequestCancel failed: %v", err)

	got, err := p.store.GetRun("pg-run-cancel")
	p.NoErrorf(err, "GetRun failed: %v", err)
	if !got.CancelRequested {
		p.Failf("cancel flag not set", "run: %+v", got)
	}

	// Re-entering RUNNING clears the flag.
	err = p.store.UpdateRunStatus("pg-run-cancel", api.StatusRunning, nil)
	p.NoErrorf(err, "UpdateRunStatus failed: %v", err)

	got, err = p.store.GetRun("pg-run-cancel")
	p.NoErrorf(err, "GetRun after resume failed: %v", err)
	if got.CancelRequested {
		p.Failf("cancel flag not cleared", "run: %+v", got)
	}
}

func ptrTime(t time.Time) *time.Time { return &t }
