package a2a

import (
	"fmt"
	"sync"
	"time"
)

// TaskStore is a concurrency-safe in-memory store for agent-side task
// tracking. Finished tasks are kept for a retention window so that pollers
// can read the final state.
type TaskStore struct {
	mu        sync.RWMutex
	tasks     map[string]*Task
	retention time.Duration
	now       func() time.Time
}

// NewTaskStore returns a TaskStore that forgets terminal tasks once they are
// older than retention. A zero retention keeps everything.
func NewTaskStore(retention time.Duration) *TaskStore {
	return &TaskStore{
		tasks:     make(map[string]*Task),
		retention: retention,
		now:       time.Now,
	}
}

// Create stores a new task.
func (s *TaskStore) Create(task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("a2a: task %q already exists", task.ID)
	}
	s.prune()
	s.tasks[task.ID] = &task
	return nil
}

// Get returns a copy of the task with the given ID.
func (s *TaskStore) Get(id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTaskNotFound, id)
	}
	return copyTask(t), nil
}

// Update applies fn to the stored task under the write lock.
func (s *TaskStore) Update(id string, fn func(*Task)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrTaskNotFound, id)
	}
	fn(t)
	return nil
}

// Len reports how many tasks are held.
func (s *TaskStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// prune drops expired terminal tasks. Caller holds the write lock.
func (s *TaskStore) prune() {
	if s.retention <= 0 {
		return
	}
	cutoff := s.now().Add(-s.retention)
	for id, t := range s.tasks {
		if t.Status.State.IsTerminal() && t.Status.Timestamp.Before(cutoff) {
			delete(s.tasks, id)
		}
	}
}

// copyTask copies the slices a caller could mutate.
func copyTask(src *Task) *Task {
	dst := *src
	if src.Artifacts != nil {
		dst.Artifacts = make([]Artifact, len(src.Artifacts))
		for i, a := range src.Artifacts {
			a.Parts = append([]Part(nil), a.Parts...)
			dst.Artifacts[i] = a
		}
	}
	if src.Status.Message != nil {
		msg := *src.Status.Message
		msg.Parts = append([]Part(nil), msg.Parts...)
		dst.Status.Message = &msg
	}
	return &dst
}
