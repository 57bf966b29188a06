package a2a

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskStore_CreateGetUpdate(t *testing.T) {
	s := NewTaskStore(0)
	require.NoError(t, s.Create(Task{ID: "t1", Status: TaskStatus{State: TaskStateSubmitted}}))
	assert.Error(t, s.Create(Task{ID: "t1"}), "duplicate id")

	require.NoError(t, s.Update("t1", func(task *Task) {
		task.Status.State = TaskStateCompleted
		task.Artifacts = []Artifact{{Name: "out", Parts: []Part{TextPart("x")}}}
	}))

	got, err := s.Get("t1")
	require.NoError(t, err)
	assert.Equal(t, TaskStateCompleted, got.Status.State)
	assert.Equal(t, "x", got.Text())
}

func TestTaskStore_NotFound(t *testing.T) {
	s := NewTaskStore(0)
	_, err := s.Get("missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.ErrorIs(t, s.Update("missing", func(*Task) {}), ErrTaskNotFound)
}

func TestTaskStore_GetReturnsCopy(t *testing.T) {
	s := NewTaskStore(0)
	require.NoError(t, s.Create(Task{
		ID:        "t1",
		Artifacts: []Artifact{{Parts: []Part{TextPart("original")}}},
	}))

	got, err := s.Get("t1")
	require.NoError(t, err)
	got.Artifacts[0].Parts[0].Text = "mutated"

	again, err := s.Get("t1")
	require.NoError(t, err)
	assert.Equal(t, "original", again.Text())
}

func TestTaskStore_PrunesExpiredTerminalTasks(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewTaskStore(time.Hour)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Create(Task{ID: "old-done", Status: TaskStatus{State: TaskStateCompleted, Timestamp: now.Add(-2 * time.Hour)}}))
	require.NoError(t, s.Create(Task{ID: "old-working", Status: TaskStatus{State: TaskStateWorking, Timestamp: now.Add(-2 * time.Hour)}}))
	require.NoError(t, s.Create(Task{ID: "fresh", Status: TaskStatus{State: TaskStateCompleted, Timestamp: now}}))

	_, err := s.Get("old-done")
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.Equal(t, 2, s.Len())
}

func TestTaskStore_ConcurrentAccess(t *testing.T) {
	s := NewTaskStore(0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("t%d", i)
			_ = s.Create(Task{ID: id})
			_ = s.Update(id, func(task *Task) { task.Status.State = TaskStateWorking })
			_, _ = s.Get(id)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, s.Len())
}
