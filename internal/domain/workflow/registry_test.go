package workflow

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aistudio/backend/internal/domain/shared"
)

func TestTaskRegistry_AddGetDelete(t *testing.T) {
	r := NewTaskRegistry()

	require.NoError(t, r.Add("task-1", "wf-a"))

	workflowID, ok := r.Get("task-1")
	assert.True(t, ok)
	assert.Equal(t, "wf-a", workflowID)

	_, ok = r.Get("task-2")
	assert.False(t, ok)

	require.NoError(t, r.Delete("task-1"))
	_, ok = r.Get("task-1")
	assert.False(t, ok)
	assert.Zero(t, r.Len())
}

func TestTaskRegistry_DuplicateAdd(t *testing.T) {
	r := NewTaskRegistry()
	require.NoError(t, r.Add("task-1", "wf-a"))

	err := r.Add("task-1", "wf-b")
	assert.ErrorIs(t, err, shared.ErrDuplicateTask)

	// The original binding survives the rejected insert.
	workflowID, ok := r.Get("task-1")
	assert.True(t, ok)
	assert.Equal(t, "wf-a", workflowID)
}

func TestTaskRegistry_DeleteUnknown(t *testing.T) {
	r := NewTaskRegistry()
	assert.ErrorIs(t, r.Delete("missing"), shared.ErrTaskNotFound)
}

func TestTaskRegistry_ListIsSnapshot(t *testing.T) {
	r := NewTaskRegistry()
	require.NoError(t, r.Add("task-1", "wf-a"))

	snapshot := r.List()
	snapshot["task-2"] = "wf-b"

	assert.Equal(t, 1, r.Len())
	_, ok := r.Get("task-2")
	assert.False(t, ok)
}

func TestTaskRegistry_ConcurrentAccess(t *testing.T) {
	r := NewTaskRegistry()

	const workers = 16
	const perWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				taskID := fmt.Sprintf("task-%d-%d", w, i)
				if err := r.Add(taskID, "wf"); err != nil {
					t.Error(err)
					return
				}
				if _, ok := r.Get(taskID); !ok {
					t.Errorf("task %s vanished", taskID)
					return
				}
				if err := r.Delete(taskID); err != nil {
					t.Error(err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	assert.Zero(t, r.Len())
}

func TestTaskRegistry_ConcurrentDeleteOnlyOneWinner(t *testing.T) {
	r := NewTaskRegistry()
	require.NoError(t, r.Add("task-1", "wf-a"))

	const racers = 8
	results := make(chan error, racers)

	var start sync.WaitGroup
	start.Add(1)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start.Wait()
			results <- r.Delete("task-1")
		}()
	}
	start.Done()
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, shared.ErrTaskNotFound)
		}
	}
	assert.Equal(t, 1, wins)
}
