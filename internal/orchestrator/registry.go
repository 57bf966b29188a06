package orchestrator

import (
	"context"
	"sort"
	"sync"
)

// Registry tracks the background run of each job key. A key has at most one
// live task; every task is started and waited for through the registry.
type Registry struct {
	mu    sync.Mutex
	tasks map[string]*task
	wg    sync.WaitGroup
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*task)}
}

// Go runs fn in a new goroutine under a context derived from parent. It
// returns false without running fn if key already has a live task.
func (r *Registry) Go(parent context.Context, key string, fn func(ctx context.Context)) bool {
	r.mu.Lock()
	if _, busy := r.tasks[key]; busy {
		r.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(parent)
	t := &task{cancel: cancel, done: make(chan struct{})}
	r.tasks[key] = t
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			delete(r.tasks, key)
			r.mu.Unlock()
			cancel()
			close(t.done)
		}()
		fn(ctx)
	}()
	return true
}

// Active reports whether key has a live task.
func (r *Registry) Active(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[key]
	return ok
}

// Keys returns the keys of live tasks, sorted.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.tasks))
	for k := range r.tasks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Cancel stops the task for key, if any.
func (r *Registry) Cancel(key string) {
	r.mu.Lock()
	t, ok := r.tasks[key]
	r.mu.Unlock()
	if ok {
		t.cancel()
	}
}

// CancelAll stops every live task.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tasks {
		t.cancel()
	}
}

// WaitKey blocks until the task for key has returned or ctx is done. It
// returns nil at once when key has no live task.
func (r *Registry) WaitKey(ctx context.Context, key string) error {
	r.mu.Lock()
	t, ok := r.tasks[key]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every task has returned or ctx is done.
func (r *Registry) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
