package api

import (
	"context"
	"errors"
)

var ErrWorkflowDefinitionMismatch = errors.New("workflow definition mismatch")

// Engine drives runs of registered workflows against durable state.
type Engine interface {
	// RegisterWorkflow registers a definition by name.
	RegisterWorkflow(def WorkflowDefinition) error

	// Submit creates (or resumes) a run for the given payload and drives it
	// to a terminal status.
	//
	// runID keys idempotency: if a run with that id already exists and is
	// terminal, its stored result is returned without invoking any step.
	// A non-terminal existing run is resumed at its first non-SUCCEEDED
	// step. An empty runID generates a fresh identifier.
	//
	// A step that exhausts its retry budget does not abort the remaining
	// steps; the run ends FAILED and the result carries every step outcome.
	// A non-nil error is returned only when the engine could not drive the
	// run at all (unknown workflow, persistence failure).
	Submit(ctx context.Context, workflow string, payload ContactPayload, runID string) (*RunResult, error)

	// GetRun looks up a run by ID.
	// Returns an error if the run is not found.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns runs matching the given options.
	// If options are zero-valued, all runs are returned.
	ListRuns(ctx context.Context, opts RunListOptions) ([]*Run, error)

	// Resume re-drives a previously FAILED run. Only steps that are not
	// SUCCEEDED are executed; succeeded steps are never re-run.
	Resume(ctx context.Context, id string) (*RunResult, error)

	// Cancel requests cancellation of a non-terminal run. The engine stops
	// dispatching new steps and closes the run as FAILED with a
	// cancellation reason; in-flight step I/O is allowed to complete.
	Cancel(ctx context.Context, id string) error

	// RecoverStuckRuns scans for runs still marked RUNNING (for example
	// after a process crash) and closes them as FAILED with an interrupted
	// reason, so they can later be resumed.
	//
	// It returns the number of runs it updated and is intended to be called
	// on process startup before accepting new work.
	RecoverStuckRuns(ctx context.Context) (int, error)
}
