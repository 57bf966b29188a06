package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dusk-indust/reportgen/internal/a2a"
	"github.com/dusk-indust/reportgen/internal/logger"
)

// Compile-time interface checks.
var (
	_ Agent       = (*BaseAgent)(nil)
	_ a2a.Handler = (*BaseAgent)(nil)
)

// DefaultRetention is how long finished tasks stay readable.
const DefaultRetention = time.Hour

// ProcessFunc is the function that concrete agents implement to handle
// incoming messages. It receives the task (in WORKING state) and the message,
// and returns artifacts to attach to the completed task.
type ProcessFunc func(ctx context.Context, task *a2a.Task, msg a2a.Message) ([]a2a.Artifact, error)

// BaseAgent provides the task lifecycle shared by agents. Blocking requests
// are processed inline; non-blocking ones return the submitted task and run
// in the background until they finish or are canceled.
type BaseAgent struct {
	store   *a2a.TaskStore
	card    a2a.AgentCard
	process ProcessFunc
	log     *logger.Logger

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	closed  bool
}

// Option configures a BaseAgent.
type Option func(*BaseAgent)

// WithRetention overrides DefaultRetention.
func WithRetention(d time.Duration) Option {
	return func(b *BaseAgent) { b.store = a2a.NewTaskStore(d) }
}

// WithLogger sets the agent's logger.
func WithLogger(log *logger.Logger) Option {
	return func(b *BaseAgent) { b.log = logger.OrNop(log) }
}

// NewBaseAgent creates a BaseAgent with the given card and process function.
func NewBaseAgent(card a2a.AgentCard, process ProcessFunc, opts ...Option) *BaseAgent {
	ctx, stop := context.WithCancel(context.Background())
	b := &BaseAgent{
		store:   a2a.NewTaskStore(DefaultRetention),
		card:    card,
		process: process,
		log:     logger.Nop(),
		baseCtx: ctx,
		stop:    stop,
		cancels: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.With("component", "agent", "agent", card.Name)
	return b
}

// Card returns the agent's A2A Agent Card.
func (b *BaseAgent) Card() a2a.AgentCard {
	return b.card
}

// Handler returns the HTTP handler for this agent.
func (b *BaseAgent) Handler() http.Handler {
	return a2a.NewServer(b.card, b).Handler()
}

// Serve runs the agent's HTTP server on addr until ctx is done.
func (b *BaseAgent) Serve(ctx context.Context, addr string) error {
	b.log.Info("agent listening", "addr", addr)
	err := a2a.NewServer(b.card, b).ListenAndServe(ctx, addr)

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if cerr := b.Close(closeCtx); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Close rejects new work, cancels background tasks and waits for them.
func (b *BaseAgent) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	for _, cancel := range b.cancels {
		cancel()
	}
	b.mu.Unlock()
	b.stop()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleTask processes an A2A task with a message and returns the final task.
// A processing error is returned alongside the failed task.
func (b *BaseAgent) HandleTask(ctx context.Context, task a2a.Task, msg a2a.Message) (*a2a.Task, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := b.admit(task, cancel); err != nil {
		return nil, err
	}
	defer b.wg.Done()
	defer b.untrack(task.ID)

	if err := b.execute(ctx, task.ID, msg); err != nil {
		result, _ := b.store.Get(task.ID)
		return result, err
	}
	return b.store.Get(task.ID)
}

// admit stores a submitted task, tracks its cancel func and counts it in wg.
// It holds mu throughout so Close cannot start waiting between the closed
// check and wg.Add. The caller must call wg.Done and untrack when finished.
func (b *BaseAgent) admit(task a2a.Task, cancel context.CancelFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("%w: shutting down", a2a.ErrUnavailable)
	}

	task.Status = a2a.TaskStatus{
		State:     a2a.TaskStateSubmitted,
		Timestamp: time.Now(),
	}
	if err := b.store.Create(task); err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	b.cancels[task.ID] = cancel
	b.wg.Add(1)
	return nil
}

// execute moves a submitted task through working to a terminal state. A task
// canceled while processing keeps its canceled state.
func (b *BaseAgent) execute(ctx context.Context, id string, msg a2a.Message) error {
	var task *a2a.Task
	if err := b.store.Update(id, func(t *a2a.Task) {
		if t.Status.State.IsTerminal() {
			return
		}
		t.Status = a2a.TaskStatus{State: a2a.TaskStateWorking, Timestamp: time.Now()}
		task = copyForProcess(t)
	}); err != nil {
		return fmt.Errorf("update task to working: %w", err)
	}
	if task == nil {
		return nil
	}

	start := time.Now()
	artifacts, err := b.process(ctx, task, msg)

	uerr := b.store.Update(id, func(t *a2a.Task) {
		if t.Status.State.IsTerminal() {
			return
		}
		if err != nil {
			t.Status = a2a.TaskStatus{
				State:     a2a.TaskStateFailed,
				Timestamp: time.Now(),
				Message:   &a2a.Message{Role: a2a.RoleAgent, Parts: []a2a.Part{a2a.TextPart(err.Error())}},
			}
			return
		}
		t.Status = a2a.TaskStatus{State: a2a.TaskStateCompleted, Timestamp: time.Now()}
		t.Artifacts = artifacts
	})
	if uerr != nil {
		// Pruned after a cancel; the result has nowhere to go.
		b.log.Warn("store task result", "task", id, "error", uerr)
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			b.log.Debug("task canceled", "task", id)
		} else {
			b.log.Warn("task failed", "task", id, "error", err)
		}
		return err
	}
	b.log.Debug("task completed", "task", id, "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

func copyForProcess(t *a2a.Task) *a2a.Task {
	c := *t
	c.Artifacts = nil
	return &c
}

func (b *BaseAgent) untrack(id string) {
	b.mu.Lock()
	delete(b.cancels, id)
	b.mu.Unlock()
}

// ---------------------------------------------------------------------------
// a2a.Handler implementation
// ---------------------------------------------------------------------------

// HandleSendMessage creates a task from the incoming message. Unless the
// request asks for non-blocking handling, it is processed before returning.
func (b *BaseAgent) HandleSendMessage(ctx context.Context, req a2a.SendMessageRequest) (*a2a.Task, error) {
	task := a2a.Task{
		ID:        uuid.NewString(),
		ContextID: req.Message.ContextID,
	}
	if req.Configuration == nil || req.Configuration.Blocking {
		return b.HandleTask(ctx, task, req.Message)
	}

	runCtx, cancel := context.WithCancel(b.baseCtx)
	if err := b.admit(task, cancel); err != nil {
		cancel()
		return nil, err
	}
	go func() {
		defer b.wg.Done()
		defer cancel()
		defer b.untrack(task.ID)
		_ = b.execute(runCtx, task.ID, req.Message)
	}()
	return b.store.Get(task.ID)
}

// HandleGetTask retrieves a task by ID from the store.
func (b *BaseAgent) HandleGetTask(_ context.Context, req a2a.GetTaskRequest) (*a2a.Task, error) {
	return b.store.Get(req.ID)
}

// HandleCancelTask cancels a task that has not finished and stops its
// processing. Finished tasks are returned unchanged.
func (b *BaseAgent) HandleCancelTask(_ context.Context, req a2a.CancelTaskRequest) (*a2a.Task, error) {
	err := b.store.Update(req.ID, func(t *a2a.Task) {
		if !t.Status.State.IsTerminal() {
			t.Status = a2a.TaskStatus{
				State:     a2a.TaskStateCanceled,
				Timestamp: time.Now(),
			}
		}
	})
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	cancel, running := b.cancels[req.ID]
	b.mu.Unlock()
	if running {
		cancel()
	}
	return b.store.Get(req.ID)
}
