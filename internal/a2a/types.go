package a2a

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskState represents the lifecycle state of an A2A task.
type TaskState string

const (
	TaskStateUnspecified TaskState = ""
	TaskStateSubmitted   TaskState = "submitted"
	TaskStateWorking     TaskState = "working"
	TaskStateCompleted   TaskState = "completed"
	TaskStateFailed      TaskState = "failed"
	TaskStateCanceled    TaskState = "canceled"
	TaskStateRejected    TaskState = "rejected"
)

// IsTerminal returns true if the task state is a final state.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCanceled, TaskStateRejected:
		return true
	}
	return false
}

// Role identifies the sender of a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Task is the unit of work tracked by an agent.
type Task struct {
	ID        string          `json:"id"`
	ContextID string          `json:"contextId"`
	Status    TaskStatus      `json:"status"`
	Artifacts []Artifact      `json:"artifacts,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// Text concatenates the text parts of every artifact in order.
func (t *Task) Text() string {
	var parts []string
	for _, a := range t.Artifacts {
		for _, p := range a.Parts {
			if p.Text != "" {
				parts = append(parts, p.Text)
			}
		}
	}
	return strings.Join(parts, "\n\n")
}

// StatusText returns the text of the status message, if any.
func (t *Task) StatusText() string {
	if t.Status.Message == nil {
		return ""
	}
	return t.Status.Message.Text()
}

// TaskStatus tracks the current state and when it changed.
type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Message is a unit of communication between client and agent.
type Message struct {
	MessageID string          `json:"messageId"`
	ContextID string          `json:"contextId,omitempty"`
	TaskID    string          `json:"taskId,omitempty"`
	Role      Role            `json:"role"`
	Parts     []Part          `json:"parts"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// NewMessage builds a message with a fresh id.
func NewMessage(role Role, contextID string, parts ...Part) Message {
	return Message{
		MessageID: uuid.NewString(),
		ContextID: contextID,
		Role:      role,
		Parts:     parts,
	}
}

// Text concatenates the message's text parts.
func (m Message) Text() string {
	var parts []string
	for _, p := range m.Parts {
		if p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Data decodes the first structured part into v. It reports whether a
// structured part was present.
func (m Message) Data(v any) (bool, error) {
	for _, p := range m.Parts {
		if len(p.Data) == 0 {
			continue
		}
		return true, json.Unmarshal(p.Data, v)
	}
	return false, nil
}

// Part carries content within a message or artifact. Exactly one of Text or
// Data is set.
type Part struct {
	Text      string          `json:"text,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	MediaType string          `json:"mediaType,omitempty"`
}

// TextPart creates a Part with text content.
func TextPart(text string) Part {
	return Part{Text: text, MediaType: "text/plain"}
}

// MarkdownPart creates a Part with markdown content.
func MarkdownPart(text string) Part {
	return Part{Text: text, MediaType: "text/markdown"}
}

// DataPart creates a Part with structured JSON data.
func DataPart(v any) (Part, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Part{}, err
	}
	return Part{Data: data, MediaType: "application/json"}, nil
}

// Artifact is an output produced by an agent for a task.
type Artifact struct {
	ArtifactID string `json:"artifactId"`
	Name       string `json:"name"`
	Parts      []Part `json:"parts"`
}

// AgentCard is the self-describing manifest for an A2A agent.
type AgentCard struct {
	Name               string       `json:"name"`
	Description        string       `json:"description"`
	Version            string       `json:"version"`
	URL                string       `json:"url,omitempty"`
	DefaultInputModes  []string     `json:"defaultInputModes"`
	DefaultOutputModes []string     `json:"defaultOutputModes"`
	Skills             []AgentSkill `json:"skills"`
}

// AgentSkill declares a distinct capability of an agent.
type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
}

// SendMessageRequest initiates a task.
type SendMessageRequest struct {
	Message       Message            `json:"message"`
	Configuration *SendMessageConfig `json:"configuration,omitempty"`
}

// SendMessageConfig controls message handling behavior.
type SendMessageConfig struct {
	AcceptedOutputModes []string `json:"acceptedOutputModes,omitempty"`
	Blocking            bool     `json:"blocking"`
}

// GetTaskRequest retrieves a task by ID.
type GetTaskRequest struct {
	ID string `json:"id"`
}

// CancelTaskRequest cancels a running task.
type CancelTaskRequest struct {
	ID string `json:"id"`
}
