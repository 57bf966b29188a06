package a2a

import "context"

// Client sends section generation work to a remote agent.
type Client interface {
	// SendMessage submits a message. With Configuration.Blocking unset the
	// agent returns as soon as the task is accepted.
	SendMessage(ctx context.Context, endpoint string, req SendMessageRequest) (*Task, error)

	// GetTask retrieves a task by ID.
	GetTask(ctx context.Context, endpoint string, req GetTaskRequest) (*Task, error)

	// CancelTask cancels a running task.
	CancelTask(ctx context.Context, endpoint string, req CancelTaskRequest) (*Task, error)

	// DiscoverAgent fetches the Agent Card from the well-known URI.
	DiscoverAgent(ctx context.Context, baseURL string) (*AgentCard, error)
}
