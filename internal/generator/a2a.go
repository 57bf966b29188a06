package generator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dusk-indust/reportgen/internal/a2a"
	"github.com/dusk-indust/reportgen/internal/logger"
)

// Compile-time check.
var _ Generator = (*A2AGenerator)(nil)

// A2AConfig configures an A2AGenerator.
type A2AConfig struct {
	// Endpoint is the agent's JSON-RPC URL.
	Endpoint string

	// PollInterval is the delay between tasks/get calls.
	PollInterval time.Duration

	// MaxWait bounds how long one section may take end to end.
	MaxWait time.Duration

	// CancelTimeout bounds the best-effort tasks/cancel after MaxWait.
	CancelTimeout time.Duration
}

// DefaultA2AConfig returns the production polling parameters.
func DefaultA2AConfig(endpoint string) A2AConfig {
	return A2AConfig{
		Endpoint:      endpoint,
		PollInterval:  5 * time.Second,
		MaxWait:       10 * time.Minute,
		CancelTimeout: 10 * time.Second,
	}
}

// A2AGenerator submits each section as a non-blocking A2A task and polls it
// until it finishes or MaxWait elapses.
type A2AGenerator struct {
	client a2a.Client
	cfg    A2AConfig
	log    *logger.Logger
}

// NewA2AGenerator creates a generator that talks to cfg.Endpoint.
func NewA2AGenerator(client a2a.Client, cfg A2AConfig, log *logger.Logger) *A2AGenerator {
	def := DefaultA2AConfig(cfg.Endpoint)
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = def.MaxWait
	}
	if cfg.CancelTimeout <= 0 {
		cfg.CancelTimeout = def.CancelTimeout
	}
	return &A2AGenerator{
		client: client,
		cfg:    cfg,
		log:    logger.OrNop(log).With("component", "generator", "endpoint", cfg.Endpoint),
	}
}

// Generate sends the section request and waits for the agent's artifact text.
// A canceled ctx is returned as-is so callers can tell shutdown apart from a
// generation failure.
func (g *A2AGenerator) Generate(ctx context.Context, req Request) (string, error) {
	msg, err := buildMessage(req)
	if err != nil {
		return "", &Error{Kind: KindOther, Message: err.Error(), Err: err}
	}

	deadline := time.NewTimer(g.cfg.MaxWait)
	defer deadline.Stop()

	task, err := g.client.SendMessage(ctx, g.cfg.Endpoint, a2a.SendMessageRequest{
		Message: msg,
		Configuration: &a2a.SendMessageConfig{
			AcceptedOutputModes: []string{"text/markdown", "text/plain"},
			Blocking:            false,
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", Classify(err)
	}
	g.log.Debug("section task submitted", "section", req.Section.Name, "task", task.ID)

	ticker := time.NewTicker(g.cfg.PollInterval)
	defer ticker.Stop()

	for !task.Status.State.IsTerminal() {
		select {
		case <-ctx.Done():
			g.cancel(task.ID)
			return "", ctx.Err()
		case <-deadline.C:
			g.cancel(task.ID)
			return "", &Error{
				Kind:    KindTimeout,
				Message: fmt.Sprintf("section %q produced no result within %s", req.Section.Name, g.cfg.MaxWait),
			}
		case <-ticker.C:
			next, err := g.client.GetTask(ctx, g.cfg.Endpoint, a2a.GetTaskRequest{ID: task.ID})
			if err != nil {
				if ctx.Err() != nil {
					g.cancel(task.ID)
					return "", ctx.Err()
				}
				return "", Classify(err)
			}
			task = next
		}
	}

	return finish(req, task)
}

// cancel asks the agent to stop a task. It uses a fresh context because the
// caller's may already be done.
func (g *A2AGenerator) cancel(taskID string) {
	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.CancelTimeout)
	defer cancel()
	if _, err := g.client.CancelTask(ctx, g.cfg.Endpoint, a2a.CancelTaskRequest{ID: taskID}); err != nil {
		g.log.Warn("cancel section task", "task", taskID, "error", err)
	}
}

func finish(req Request, task *a2a.Task) (string, error) {
	switch task.Status.State {
	case a2a.TaskStateCompleted:
		text := strings.TrimSpace(task.Text())
		if text == "" {
			return "", &Error{Kind: KindOther, Message: fmt.Sprintf("section %q: agent returned no content", req.Section.Name)}
		}
		return text, nil
	default:
		reason := task.StatusText()
		if reason == "" {
			reason = "no reason given"
		}
		return "", &Error{
			Kind:    KindOther,
			Message: fmt.Sprintf("section %q: task %s: %s", req.Section.Name, task.Status.State, reason),
		}
	}
}

func buildMessage(req Request) (a2a.Message, error) {
	data, err := a2a.DataPart(NewSectionTask(req))
	if err != nil {
		return a2a.Message{}, fmt.Errorf("generator: encode section task: %w", err)
	}
	contextID := req.SubjectID + "/" + req.Variant
	return a2a.NewMessage(a2a.RoleUser, contextID, a2a.TextPart(describe(req)), data), nil
}
