package workflow

import (
	"sync"

	"github.com/aistudio/backend/internal/domain/shared"
)

// TaskRegistry correlates externally-submitted job task IDs with the
// workflow that produced them. It is purely in-memory: entries do not
// survive a restart, which is acceptable because jobs complete within the
// engine's bounded SLA.
//
// The map is the only shared mutable state in the billing subsystem; every
// operation holds the mutex for its whole critical section and never across
// I/O.
type TaskRegistry struct {
	mu    sync.Mutex
	tasks map[string]string // task ID -> workflow ID
}

// NewTaskRegistry creates an empty task registry
func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{
		tasks: make(map[string]string),
	}
}

// Add registers a task. Inserting an already-registered task ID is a
// protocol error, never an overwrite.
func (r *TaskRegistry) Add(taskID, workflowID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[taskID]; ok {
		return shared.ErrDuplicateTask
	}
	r.tasks[taskID] = workflowID
	return nil
}

// Get returns the workflow ID for a task, if registered
func (r *TaskRegistry) Get(taskID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	workflowID, ok := r.tasks[taskID]
	return workflowID, ok
}

// Delete removes a task once its terminal result has been consumed
func (r *TaskRegistry) Delete(taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[taskID]; !ok {
		return shared.ErrTaskNotFound
	}
	delete(r.tasks, taskID)
	return nil
}

// List returns a snapshot of all live entries, for diagnostics
func (r *TaskRegistry) List() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := make(map[string]string, len(r.tasks))
	for taskID, workflowID := range r.tasks {
		snapshot[taskID] = workflowID
	}
	return snapshot
}

// Len returns the number of live entries
func (r *TaskRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}
