package api

import (
	"context"
	"time"
)

// Status represents the lifecycle state of a run or of a single step.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether s is a terminal status.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// ContactPayload is the submitted contact form data a run is created from.
// It is immutable once a run exists.
type ContactPayload struct {
	Name            string `json:"name"`
	Company         string `json:"company,omitempty"`
	Phone           string `json:"phone,omitempty"`
	Email           string `json:"email"`
	Message         string `json:"message"`
	Locale          string `json:"locale,omitempty"`
	PrivacyAccepted bool   `json:"privacy_accepted"`
}

// StepFunc is a single step in a workflow. Steps are independent: they read
// the payload and produce an external effect, never each other's output.
type StepFunc func(ctx context.Context, payload ContactPayload) error

// StepDefinition describes a named step.
type StepDefinition struct {
	Name  string
	Fn    StepFunc
	Retry *RetryPolicy
}

// WorkflowDefinition describes a workflow as an ordered sequence of steps.
// It is static and never persisted.
type WorkflowDefinition struct {
	Name  string
	Steps []StepDefinition
}

// Step returns the definition of the named step, if present.
func (d WorkflowDefinition) Step(name string) (StepDefinition, bool) {
	for _, s := range d.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepDefinition{}, false
}

// StepNames returns the step names in declaration order.
func (d WorkflowDefinition) StepNames() []string {
	names := make([]string, len(d.Steps))
	for i, s := range d.Steps {
		names[i] = s.Name
	}
	return names
}

// RetryPolicy controls how a step is retried when it returns a retryable
// error. MaxAttempts includes the first attempt:
//
//	MaxAttempts = 1 => no retries (just the initial call)
//	MaxAttempts = 3 => initial call + up to 2 retries
//
// InitialBackoff is the delay before the first retry; each further retry
// multiplies it by BackoffMultiplier (default 2.0), capped at MaxBackoff
// when MaxBackoff > 0. A zero InitialBackoff retries immediately.
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
}

// StepRecord is the durable status and history of one step within one run.
// Transitions are forward-only: PENDING -> RUNNING -> {SUCCEEDED, FAILED}.
// A FAILED step may re-enter RUNNING when the run is resumed; a SUCCEEDED
// step is never executed again.
type StepRecord struct {
	Name       string
	Status     Status
	Attempts   int
	LastError  string
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// Run is one durable execution instance of a workflow for a single payload.
// It is mutated only by the engine and is read-only once terminal.
type Run struct {
	ID       string
	Workflow string
	Payload  ContactPayload
	Steps    []StepRecord
	Status   Status

	// CancelRequested is set by Engine.Cancel. The engine checks it before
	// dispatching each step; in-flight step I/O is allowed to complete.
	CancelRequested bool

	CreatedAt   time.Time
	CompletedAt *time.Time
}

// NewRun creates a pending run with one pending StepRecord per step name,
// in declaration order.
func NewRun(id, workflow string, payload ContactPayload, stepNames []string) *Run {
	steps := make([]StepRecord, len(stepNames))
	for i, name := range stepNames {
		steps[i] = StepRecord{Name: name, Status: StatusPending}
	}
	return &Run{
		ID:        id,
		Workflow:  workflow,
		Payload:   payload,
		Steps:     steps,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
}

// Step returns a pointer to the record with the given name, or nil.
func (r *Run) Step(name string) *StepRecord {
	for i := range r.Steps {
		if r.Steps[i].Name == name {
			return &r.Steps[i]
		}
	}
	return nil
}

// Terminal reports whether the run has reached a terminal status.
func (r *Run) Terminal() bool {
	return r.Status.Terminal()
}

// RunResult is the outcome of driving a run to a terminal status.
type RunResult struct {
	RunID  string
	Status Status
	Steps  []StepRecord

	// FailedSteps lists the names of steps that ended FAILED, in
	// declaration order. Empty when Status is SUCCEEDED.
	FailedSteps []string
}

// ResultOf builds a RunResult snapshot from a run.
func ResultOf(run *Run) *RunResult {
	res := &RunResult{
		RunID:  run.ID,
		Status: run.Status,
		Steps:  append([]StepRecord(nil), run.Steps...),
	}
	for _, s := range run.Steps {
		if s.Status == StatusFailed {
			res.FailedSteps = append(res.FailedSteps, s.Name)
		}
	}
	return res
}

// RunListOptions controls how runs are listed.
// Zero values mean "no filter" for that field.
type RunListOptions struct {
	// Workflow, if non-empty, limits results to runs of the given workflow.
	Workflow string

	// Status, if non-empty, limits results to runs with the given status.
	Status Status
}
