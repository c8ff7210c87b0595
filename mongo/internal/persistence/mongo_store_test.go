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

func (m *MongoStoreTestSuite) TestMongoRunStore_CreateGet() {
	run := api.NewRun("mongo-run-1", "contact-submission", samplePayload("hello"),
		[]string{"sendChatNotification", "sendEmailNotification"})

	err := m.store.CreateRun(run)
	m.NoErrorf(err, "CreateRun failed: %v", err)

	got, err := m.store.GetRun("mongo-run-1")
	m.NoErrorf(err, "GetRun failed: %v", err)

	if got.ID != run.ID || got.Workflow != run.Workflow || got.Status != api.StatusPending {
		m.Failf("unexpected run", "run after Get: %+v", got)
	}
	if got.Payload.Email != "ada@example.com" || got.Payload.Message != "hello" {
		m.Failf("unexpected payload", "payload: %+v", got.Payload)
	}
	if len(got.Steps) != 2 || got.Steps[0].Name != "sendChatNotification" {
		m.Failf("unexpected steps", "steps: %+v", got.Steps)
	}
}

func (m *MongoStoreTestSuite) TestMongoRunStore_CreateDuplicate() {
	run := api.NewRun("mongo-run-dup", "contact-submission", samplePayload("x"), []string{"a"})

	err := m.store.CreateRun(run)
	m.NoErrorf(err, "first CreateRun failed: %v", err)

	err = m.store.CreateRun(run)
	m.ErrorIsf(err, corep.ErrRunExists, "expected ErrRunExists, got %v", err)
}

func (m *MongoStoreTestSuite) TestMongoRunStore_GetMissing() {
	_, err := m.store.GetRun("no-such-run")
	m.ErrorIsf(err, corep.ErrRunNotFound, "expected ErrRunNotFound, got %v", err)
}

func (m *MongoStoreTestSuite) TestMongoRunStore_UpdateStepCAS() {
	run := api.NewRun("mongo-run-cas", "contact-submission", samplePayload("x"), []string{"a"})
	err := m.store.CreateRun(run)
	m.NoErrorf(err, "CreateRun failed: %v", err)

	now := time.Now()
	err = m.store.UpdateStep("mongo-run-cas", "a", corep.StepUpdate{
		From:      api.StatusPending,
		To:        api.StatusRunning,
		StartedAt: &now,
	})
	m.NoErrorf(err, "PENDING->RUNNING failed: %v", err)

	err = m.store.UpdateStep("mongo-run-cas", "a", corep.StepUpdate{
		From: api.StatusPending,
		To:   api.StatusRunning,
	})
	m.ErrorIsf(err, corep.ErrStepStatusConflict, "expected ErrStepStatusConflict, got %v", err)

	err = m.store.UpdateStep("mongo-run-cas", "a", corep.StepUpdate{
		From:       api.StatusRunning,
		To:         api.StatusSucceeded,
		Attempts:   1,
		FinishedAt: &now,
	})
	m.NoErrorf(err, "RUNNING->SUCCEEDED failed: %v", err)

	got, err := m.store.GetRun("mongo-run-cas")
	m.NoErrorf(err, "GetRun failed: %v", err)
	rec := got.Step("a")
	if rec == nil || rec.Status != api.StatusSucceeded || rec.Attempts != 1 {
		m.Failf("unexpected record", "record after transitions: %+v", rec)
	}
	if rec.StartedAt == nil || rec.FinishedAt == nil {
		m.Failf("missing timestamps", "record: %+v", rec)
	}
}

func (m *MongoStoreTestSuite) TestMongoRunStore_UpdateStepMissing() {
	run := api.NewRun("mongo-run-miss", "contact-submission", samplePayload("x"), []string{"a"})
	err := m.store.CreateRun(run)
	m.NoErrorf(err, "CreateRun failed: %v", err)

	err = m.store.UpdateStep("mongo-run-miss", "nope", corep.StepUpdate{
		From: api.StatusPending,
		To:   api.StatusRunning,
	})
	m.ErrorIsf(err, corep.ErrStepNotFound, "expected ErrStepNotFound, got %v", err)
}

func (m *MongoStoreTestSuite) TestMongoRunStore_ListRunsFilters() {
	runs := []*api.Run{
		api.NewRun("mongo-list-1", "wf-A", samplePayload("a1"), []string{"s"}),
		api.NewRun("mongo-list-2", "wf-A", samplePayload("a2"), []string{"s"}),
		api.NewRun("mongo-list-3", "wf-B", samplePayload("b1"), []string{"s"}),
	}
	for _, run := range runs {
		err := m.store.CreateRun(run)
		m.NoErrorf(err, "CreateRun(%s) failed: %v", run.ID, err)
	}

	now := time.Now()
	err := m.store.UpdateRunStatus("mongo-list-2", api.StatusFailed, &now)
	m.NoErrorf(err, "UpdateRunStatus failed: %v", err)

	all, err := m.store.ListRuns(corep.RunFilter{})
	m.NoErrorf(err, "ListRuns (no filter) failed: %v", err)
	if len(all) != 3 {
		m.Failf("incorrect run count", "expected 3 runs, got %d", len(all))
	}

	wfA, err := m.store.ListRuns(corep.RunFilter{Workflow: "wf-A"})
	m.NoErrorf(err, "ListRuns (wf-A) failed: %v", err)
	if len(wfA) != 2 {
		m.Failf("incorrect run count", "expected 2 wf-A runs, got %d", len(wfA))
	}

	failed, err := m.store.ListRuns(corep.RunFilter{Status: api.StatusFailed})
	m.NoErrorf(err, "ListRuns (FAILED) failed: %v", err)
	if len(failed) != 1 || failed[0].ID != "mongo-list-2" {
		m.Failf("unexpected filter result", "failed runs: %+v", failed)
	}
}

func (m *MongoStoreTestSuite) TestMongoRunStore_CancelFlag() {
	run := api.NewRun("mongo-run-cancel", "contact-submission", samplePayload("x"), []string{"a"})
	err := m.store.CreateRun(run)
	m.NoErrorf(err, "CreateRun failed: %v", err)

	err = m.store.RequestCancel("mongo-run-cancel")
	m.NoErrorf(err, "RequestCancel failed: %v", err)

	got, err := m.store.GetRun("mongo-run-cancel")
	m.NoErrorf(err, "GetRun failed: %v", err)
	if !got.CancelRequested {
		m.Failf("cancel flag not set", "run: %+v", got)
	}

	err = m.store.UpdateRunStatus("mongo-run-cancel", api.StatusRunning, nil)
	m.NoErrorf(err, "UpdateRunStatus failed: %v", err)

	got, err = m.store.GetRun("mongo-run-cancel")
	m.NoErrorf(err, "GetRun after resume failed: %v", err)
	if got.CancelRequested {
		m.Failf("cancel flag not cleared", "run: %+v", got)
	}
}
