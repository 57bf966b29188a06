// Package agent hosts A2A agents. BaseAgent carries the task lifecycle and
// the JSON-RPC server; SectionAgent plugs a section generator into it so the
// report service can be pointed at a local agent.
package agent

import (
	"context"
	"net/http"

	"github.com/dusk-indust/reportgen/internal/a2a"
)

// Agent is an A2A agent that can be served over HTTP.
type Agent interface {
	// Card returns the agent's A2A Agent Card.
	Card() a2a.AgentCard

	// HandleTask processes a task synchronously and returns its final state.
	HandleTask(ctx context.Context, task a2a.Task, msg a2a.Message) (*a2a.Task, error)

	// Handler returns the HTTP handler for the card and JSON-RPC endpoints.
	Handler() http.Handler

	// Serve listens on addr until ctx is done, then stops accepting work and
	// waits for running tasks.
	Serve(ctx context.Context, addr string) error
}
