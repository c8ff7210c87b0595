package persistence

import (
	"errors"
	"time"

	"github.com/mariusgr/contactflow/pkg/api"
)

var (
	// ErrWorkflowNotFound is returned when a workflow definition is not found.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrRunNotFound is returned when a run is not found.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunExists is returned by CreateRun when the run id is already taken.
	ErrRunExists = errors.New("run already exists")

	// ErrStepNotFound is returned when a run has no step with the given name.
	ErrStepNotFound = errors.New("step not found")

	// ErrStepStatusConflict is returned by UpdateStep when the stored step
	// status does not match the expected From status. It indicates a
	// concurrent execution of the same run id.
	ErrStepStatusConflict = errors.New("step status conflict")
)

// WorkflowStore handles storage of workflow definitions.
type WorkflowStore interface {
	SaveWorkflow(def api.WorkflowDefinition) error
	GetWorkflow(name string) (api.WorkflowDefinition, error)
}

// RunFilter is used to select runs from the store.
// Empty string / zero status mean "no filter" for that field.
type RunFilter struct {
	Workflow string
	Status   api.Status
}

// StepUpdate describes one atomic step status transition.
//
// From is a compare-and-set guard: the update applies only if the stored
// status equals From, otherwise ErrStepStatusConflict is returned. This is
// what prevents two concurrent executions of the same run id from
// double-running a step.
type StepUpdate struct {
	From       api.Status
	To         api.Status
	Attempts   int
	LastError  string
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// RunStore handles durable storage of runs and their step records.
// It is the sole source of truth after a crash.
type RunStore interface {
	// CreateRun stores a new run with its pending step records.
	// Returns ErrRunExists if the id is already taken.
	CreateRun(run *api.Run) error

	// GetRun returns the run with the given id, or ErrRunNotFound.
	GetRun(id string) (*api.Run, error)

	// ListRuns returns runs matching the filter.
	ListRuns(filter RunFilter) ([]*api.Run, error)

	// UpdateRunStatus sets the overall run status and completion timestamp.
	// A transition to StatusRunning also clears the cancel-requested flag
	// and completion timestamp (resume).
	UpdateRunStatus(id string, status api.Status, completedAt *time.Time) error

	// UpdateStep applies one step transition atomically. See StepUpdate.
	UpdateStep(runID, stepName string, upd StepUpdate) error

	// RequestCancel marks a run as cancel-requested. It is a no-op for
	// terminal runs and returns ErrRunNotFound for unknown ids.
	RequestCancel(id string) error
}

// Persistence bundles the store interfaces so the engine can depend on a
// single abstraction.
type Persistence struct {
	Workflows WorkflowStore
	Runs      RunStore
}
