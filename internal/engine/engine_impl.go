package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mariusgr/contactflow/internal/persistence"
	"github.com/mariusgr/contactflow/pkg/api"
)

// DefaultRunTimeout bounds the wall-clock duration of a whole run.
const DefaultRunTimeout = 5 * time.Minute

// DefaultRetryPolicy is applied to steps without an explicit policy.
var DefaultRetryPolicy = api.RetryPolicy{
	MaxAttempts:       3,
	InitialBackoff:    100 * time.Millisecond,
	BackoffMultiplier: 2.0,
	MaxBackoff:        2 * time.Second,
}

// engineImpl is a synchronous, in-process engine implementation. Independent
// runs may execute concurrently; within one run, steps execute strictly
// sequentially so the store sees one progress write at a time.
type engineImpl struct {
	workflows  persistence.WorkflowStore
	runs       persistence.RunStore
	exec       *stepExecutor
	observer   api.Observer
	runTimeout time.Duration
}

// Config describes how to construct an engineImpl. External callers reach
// it through the root package's constructor helpers.
type Config struct {
	Persistence  persistence.Persistence
	Observer     api.Observer
	DefaultRetry *api.RetryPolicy
	RunTimeout   time.Duration
}

func NewInMemoryEngine() api.Engine {
	mem := persistence.NewInMemoryStore()
	return NewEngine(persistence.Persistence{
		Workflows: mem,
		Runs:      mem,
	})
}

// NewInMemoryEngineWithObserver returns an in-memory Engine with the given Observer.
func NewInMemoryEngineWithObserver(obs api.Observer) api.Engine {
	mem := persistence.NewInMemoryStore()
	return NewEngineWithConfig(Config{
		Persistence: persistence.Persistence{Workflows: mem, Runs: mem},
		Observer:    obs,
	})
}

func NewSQLiteEngine(db *sql.DB) (api.Engine, error) {
	return NewSQLiteEngineWithObserver(db, nil)
}

// NewSQLiteEngineWithObserver returns a SQLite-backed Engine with the given
// Observer. Workflow definitions hold function values and remain in-memory.
func NewSQLiteEngineWithObserver(db *sql.DB, obs api.Observer) (api.Engine, error) {
	return NewSQLiteEngineWithConfig(db, Config{Observer: obs})
}

// NewSQLiteEngineWithConfig is NewSQLiteEngineWithObserver with the full
// Config surface (default retry policy, run timeout). cfg.Persistence is
// ignored; the stores are built from db.
func NewSQLiteEngineWithConfig(db *sql.DB, cfg Config) (api.Engine, error) {
	runs, err := persistence.NewSQLiteRunStore(db)
	if err != nil {
		return nil, err
	}
	memWF := persistence.NewInMemoryStore()

	cfg.Persistence = persistence.Persistence{Workflows: memWF, Runs: runs}
	return NewEngineWithConfig(cfg), nil
}

// NewEngineWithConfig creates a new Engine using the given configuration.
func NewEngineWithConfig(cfg Config) api.Engine {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	retry := DefaultRetryPolicy
	if cfg.DefaultRetry != nil {
		retry = *cfg.DefaultRetry
	}
	timeout := cfg.RunTimeout
	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}
	return &engineImpl{
		workflows: cfg.Persistence.Workflows,
		runs:      cfg.Persistence.Runs,
		exec: &stepExecutor{
			runs:         cfg.Persistence.Runs,
			observer:     obs,
			defaultRetry: retry,
		},
		observer:   obs,
		runTimeout: timeout,
	}
}

// NewEngine returns an Engine backed by the given persistence with defaults.
func NewEngine(p persistence.Persistence) api.Engine {
	return NewEngineWithConfig(Config{
		Persistence: p,
	})
}

func (e *engineImpl) RegisterWorkflow(def api.WorkflowDefinition) error {
	if def.Name == "" {
		return errors.New("workflow name is required")
	}
	if len(def.Steps) == 0 {
		return errors.New("workflow must have at least one step")
	}
	seen := make(map[string]bool, len(def.Steps))
	for _, s := range def.Steps {
		if s.Name == "" {
			return errors.New("step name is required")
		}
		if s.Fn == nil {
			return fmt.Errorf("step %q has nil function", s.Name)
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate step name: %s", s.Name)
		}
		seen[s.Name] = true
	}

	// Check for duplicates via the store.
	if existing, err := e.workflows.GetWorkflow(def.Name); err == nil && existing.Name != "" {
		return fmt.Errorf("workflow already registered: %s", def.Name)
	} else if err != nil && !errors.Is(err, persistence.ErrWorkflowNotFound) {
		// Unexpected store error.
		return err
	}

	return e.workflows.SaveWorkflow(def)
}

func (e *engineImpl) Submit(ctx context.Context, workflow string, payload api.ContactPayload, runID string) (*api.RunResult, error) {
	def, err := e.workflows.GetWorkflow(workflow)
	if err != nil {
		if errors.Is(err, persistence.ErrWorkflowNotFound) {
			return nil, fmt.Errorf("unknown workflow: %s", workflow)
		}
		return nil, err
	}

	if runID != "" {
		run, err := e.runs.GetRun(runID)
		switch {
		case err == nil:
			// Re-delivery of a known submission: terminal runs are returned
			// as-is, everything else resumes at the first non-succeeded step.
			if run.Terminal() {
				return api.ResultOf(run), nil
			}
			return e.drive(ctx, def, run)
		case !errors.Is(err, persistence.ErrRunNotFound):
			return nil, err
		}
	} else {
		runID = uuid.NewString()
	}

	run := api.NewRun(runID, def.Name, payload, def.StepNames())
	if err := e.runs.CreateRun(run); err != nil {
		if errors.Is(err, persistence.ErrRunExists) {
			// Lost a race with a concurrent delivery of the same submission.
			existing, gerr := e.runs.GetRun(runID)
			if gerr != nil {
				return nil, gerr
			}
			if existing.Terminal() {
				return api.ResultOf(existing), nil
			}
			return e.drive(ctx, def, existing)
		}
		return nil, err
	}

	e.observer.OnRunStart(ctx, run)
	return e.drive(ctx, def, run)
}

func (e *engineImpl) GetRun(ctx context.Context, id string) (*api.Run, error) {
	run, err := e.runs.GetRun(id)
	if err != nil {
		if errors.Is(err, persistence.ErrRunNotFound) {
			return nil, fmt.Errorf("run not found: %s", id)
		}
		return nil, err
	}
	return run, nil
}

func (e *engineImpl) ListRuns(ctx context.Context, opts api.RunListOptions) ([]*api.Run, error) {
	filter := persistence.RunFilter{
		Workflow: opts.Workflow,
		Status:   opts.Status,
	}
	return e.runs.ListRuns(filter)
}

func (e *engineImpl) Resume(ctx context.Context, id string) (*api.RunResult, error) {
	run, err := e.runs.GetRun(id)
	if err != nil {
		if errors.Is(err, persistence.ErrRunNotFound) {
			return nil, fmt.Errorf("run not found: %s", id)
		}
		return nil, err
	}

	if run.Status != api.StatusFailed {
		return nil, fmt.Errorf("cannot resume run %s in status %s", id, run.Status)
	}

	def, err := e.workflows.GetWorkflow(run.Workflow)
	if err != nil {
		if errors.Is(err, persistence.ErrWorkflowNotFound) {
			return nil, fmt.Errorf("workflow definition not found for run %s (name=%s)", id, run.Workflow)
		}
		return nil, err
	}

	return e.drive(ctx, def, run)
}

func (e *engineImpl) Cancel(ctx context.Context, id string) error {
	run, err := e.runs.GetRun(id)
	if err != nil {
		if errors.Is(err, persistence.ErrRunNotFound) {
			return fmt.Errorf("run not found: %s", id)
		}
		return err
	}
	if run.Terminal() {
		return fmt.Errorf("cannot cancel run %s in status %s", id, run.Status)
	}
	return e.runs.RequestCancel(id)
}

func (e *engineImpl) RecoverStuckRuns(ctx context.Context) (int, error) {
	stuck, err := e.runs.ListRuns(persistence.RunFilter{Status: api.StatusRunning})
	if err != nil {
		return 0, err
	}

	count := 0
	for _, run := range stuck {
		for i := range run.Steps {
			if err := e.exec.markFailed(run, &run.Steps[i], api.ErrRunInterrupted); err != nil {
				return count, err
			}
		}
		if _, err := e.closeRun(ctx, run); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// drive executes every non-succeeded step of run in declaration order and
// closes the run. A failed step never aborts its siblings: each notification
// channel is independent, so execution continues with the next step.
func (e *engineImpl) drive(ctx context.Context, def api.WorkflowDefinition, run *api.Run) (*api.RunResult, error) {
	if run.Status != api.StatusRunning {
		run.Status = api.StatusRunning
		if err := e.runs.UpdateRunStatus(run.ID, api.StatusRunning, nil); err != nil {
			return nil, err
		}
		run.CancelRequested = false
		run.CompletedAt = nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.runTimeout)
	defer cancel()

	for i := range run.Steps {
		rec := &run.Steps[i]
		if rec.Status == api.StatusSucceeded {
			continue
		}

		// The cancel flag lives in the store so that another process (or
		// goroutine) can request cancellation of this run.
		current, err := e.runs.GetRun(run.ID)
		if err != nil {
			return nil, err
		}
		if current.CancelRequested {
			if err := e.failRemaining(run, i, api.ErrRunCanceled); err != nil {
				return nil, err
			}
			return e.closeRun(ctx, run)
		}

		if ctx.Err() != nil {
			if err := e.failRemaining(run, i, fmt.Errorf("run timed out: %w", ctx.Err())); err != nil {
				return nil, err
			}
			return e.closeRun(ctx, run)
		}

		step, ok := def.Step(rec.Name)
		if !ok {
			return nil, fmt.Errorf("%w: run %s has step %q not present in workflow %s",
				api.ErrWorkflowDefinitionMismatch, run.ID, rec.Name, def.Name)
		}

		if err := e.exec.Execute(ctx, run, rec, step); err != nil {
			// Persistence failure: surface it and let the caller retry the
			// whole submission later, relying on idempotent resume.
			return nil, err
		}
	}

	return e.closeRun(ctx, run)
}

// failRemaining marks step i and every later non-terminal step FAILED with
// the given reason.
func (e *engineImpl) failRemaining(run *api.Run, from int, reason error) error {
	for i := from; i < len(run.Steps); i++ {
		if err := e.exec.markFailed(run, &run.Steps[i], reason); err != nil {
			return err
		}
	}
	return nil
}

// closeRun derives the terminal run status from the step records, persists
// it, and notifies the observer.
func (e *engineImpl) closeRun(ctx context.Context, run *api.Run) (*api.RunResult, error) {
	status := api.StatusSucceeded
	var failed []string
	for _, rec := range run.Steps {
		if rec.Status != api.StatusSucceeded {
			status = api.StatusFailed
			failed = append(failed, rec.Name)
		}
	}

	now := time.Now()
	run.Status = status
	run.CompletedAt = &now
	if err := e.runs.UpdateRunStatus(run.ID, status, &now); err != nil {
		return nil, err
	}

	if status == api.StatusSucceeded {
		e.observer.OnRunCompleted(ctx, run)
	} else {
		e.observer.OnRunFailed(ctx, run, fmt.Errorf("steps failed: %s", strings.Join(failed, ", ")))
	}

	return api.ResultOf(run), nil
}
