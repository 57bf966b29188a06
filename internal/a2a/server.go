package a2a

import (
	"context"
	"errors"
	"net/http"
)

// WellKnownCardPath is where agents publish their AgentCard.
const WellKnownCardPath = "/.well-known/agent-card.json"

// Sentinel errors a Handler may return. The server maps them onto the A2A
// error codes so clients can tell them apart.
var (
	ErrTaskNotFound      = errors.New("a2a: task not found")
	ErrTaskNotCancelable = errors.New("a2a: task not cancelable")
	ErrUnavailable       = errors.New("a2a: agent unavailable")
)

// Handler processes incoming A2A requests for an agent.
type Handler interface {
	HandleSendMessage(ctx context.Context, req SendMessageRequest) (*Task, error)
	HandleGetTask(ctx context.Context, req GetTaskRequest) (*Task, error)
	HandleCancelTask(ctx context.Context, req CancelTaskRequest) (*Task, error)
}

// Server exposes a Handler over HTTP/JSON-RPC.
type Server struct {
	card    AgentCard
	handler Handler
}

// NewServer creates an A2A server for the given agent.
func NewServer(card AgentCard, handler Handler) *Server {
	return &Server{
		card:    card,
		handler: handler,
	}
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
