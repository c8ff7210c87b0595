package persistence

import (
	"sync"
	"time"

	"github.com/mariusgr/contactflow/pkg/api"
)

// InMemoryStore is a simple, goroutine-safe implementation of
// WorkflowStore and RunStore backed by maps.
//
// Runs are deep-copied on the way in and out so callers observe only what
// has been explicitly persisted, like with a real durable backend.
type InMemoryStore struct {
	mu        sync.RWMutex
	workflows map[string]api.WorkflowDefinition
	runs      map[string]*api.Run
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		workflows: make(map[string]api.WorkflowDefinition),
		runs:      make(map[string]*api.Run),
	}
}

// Ensure InMemoryStore implements the interfaces.
var _ WorkflowStore = (*InMemoryStore)(nil)

var _ RunStore = (*InMemoryStore)(nil)

func (s *InMemoryStore) SaveWorkflow(def api.WorkflowDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.workflows[def.Name] = def
	return nil
}

func (s *InMemoryStore) GetWorkflow(name string) (api.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, ok := s.workflows[name]
	if !ok {
		return api.WorkflowDefinition{}, ErrWorkflowNotFound
	}

	return def, nil
}

func (s *InMemoryStore) CreateRun(run *api.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.ID]; ok {
		return ErrRunExists
	}

	s.runs[run.ID] = cloneRun(run)
	return nil
}

func (s *InMemoryStore) GetRun(id string) (*api.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}

	return cloneRun(run), nil
}

func (s *InMemoryStore) ListRuns(filter RunFilter) ([]*api.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*api.Run

	for _, run := range s.runs {
		if filter.Workflow != "" && run.Workflow != filter.Workflow {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		result = append(result, cloneRun(run))
	}

	return result, nil
}

func (s *InMemoryStore) UpdateRunStatus(id string, status api.Status, completedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return ErrRunNotFound
	}

	run.Status = status
	run.CompletedAt = completedAt
	if status == api.StatusRunning {
		run.CancelRequested = false
		run.CompletedAt = nil
	}
	return nil
}

func (s *InMemoryStore) UpdateStep(runID, stepName string, upd StepUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return ErrRunNotFound
	}

	rec := run.Step(stepName)
	if rec == nil {
		return ErrStepNotFound
	}
	if rec.Status != upd.From {
		return ErrStepStatusConflict
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
}

func (s *InMemoryStore) RequestCancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	if run.Terminal() {
		return nil
	}

	run.CancelRequested = true
	return nil
}

func cloneRun(run *api.Run) *api.Run {
	c := *run
	c.Steps = append([]api.StepRecord(nil), run.Steps...)
	return &c
}
