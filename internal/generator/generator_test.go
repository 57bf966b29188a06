package generator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/reportgen/internal/a2a"
	"github.com/dusk-indust/reportgen/internal/catalog"
	"github.com/dusk-indust/reportgen/internal/upstream"
)

// mockClient implements a2a.Client with configurable functions. Unset
// functions return an error.
type mockClient struct {
	sendMessage func(ctx context.Context, endpoint string, req a2a.SendMessageRequest) (*a2a.Task, error)
	getTask     func(ctx context.Context, endpoint string, req a2a.GetTaskRequest) (*a2a.Task, error)
	cancelTask  func(ctx context.Context, endpoint string, req a2a.CancelTaskRequest) (*a2a.Task, error)
	cancels     atomic.Int32
}

func (m *mockClient) SendMessage(ctx context.Context, endpoint string, req a2a.SendMessageRequest) (*a2a.Task, error) {
	return m.sendMessage(ctx, endpoint, req)
}

func (m *mockClient) GetTask(ctx context.Context, endpoint string, req a2a.GetTaskRequest) (*a2a.Task, error) {
	if m.getTask == nil {
		return nil, errors.New("not implemented")
	}
	return m.getTask(ctx, endpoint, req)
}

func (m *mockClient) CancelTask(ctx context.Context, endpoint string, req a2a.CancelTaskRequest) (*a2a.Task, error) {
	m.cancels.Add(1)
	if m.cancelTask == nil {
		return &a2a.Task{ID: req.ID, Status: a2a.TaskStatus{State: a2a.TaskStateCanceled}}, nil
	}
	return m.cancelTask(ctx, endpoint, req)
}

func (m *mockClient) DiscoverAgent(context.Context, string) (*a2a.AgentCard, error) {
	return nil, errors.New("not implemented")
}

func task(id string, state a2a.TaskState, text string) *a2a.Task {
	t := &a2a.Task{ID: id, Status: a2a.TaskStatus{State: state, Timestamp: time.Now()}}
	if text != "" {
		t.Artifacts = []a2a.Artifact{{ArtifactID: "art-" + id, Name: "section", Parts: []a2a.Part{a2a.MarkdownPart(text)}}}
	}
	return t
}

func testRequest() Request {
	return Request{
		Section:   catalog.SectionDefinition{ID: 2, Name: "strengths", Title: "Core Strengths", Dependencies: []int{1}},
		SubjectID: "alice",
		Variant:   "full",
		Payload:   upstream.Payload{"role": "engineer"},
		Upstream:  map[string]string{"profile-overview": "overview text"},
	}
}

func fastConfig() A2AConfig {
	return A2AConfig{
		Endpoint:      "http://agent.test",
		PollInterval:  5 * time.Millisecond,
		MaxWait:       200 * time.Millisecond,
		CancelTimeout: 50 * time.Millisecond,
	}
}

func TestA2AGenerator_PollsUntilCompleted(t *testing.T) {
	var polls atomic.Int32
	client := &mockClient{
		sendMessage: func(_ context.Context, endpoint string, req a2a.SendMessageRequest) (*a2a.Task, error) {
			assert.Equal(t, "http://agent.test", endpoint)
			require.NotNil(t, req.Configuration)
			assert.False(t, req.Configuration.Blocking)

			var st SectionTask
			ok, err := req.Message.Data(&st)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, 2, st.SectionID)
			assert.Equal(t, "overview text", st.Upstream["profile-overview"])
			assert.Equal(t, "alice/full", req.Message.ContextID)

			return task("t1", a2a.TaskStateSubmitted, ""), nil
		},
		getTask: func(_ context.Context, _ string, req a2a.GetTaskRequest) (*a2a.Task, error) {
			if polls.Add(1) < 3 {
				return task(req.ID, a2a.TaskStateWorking, ""), nil
			}
			return task(req.ID, a2a.TaskStateCompleted, "  strengths body \n"), nil
		},
	}

	content, err := NewA2AGenerator(client, fastConfig(), nil).Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "strengths body", content)
	assert.EqualValues(t, 3, polls.Load())
	assert.Zero(t, client.cancels.Load())
}

func TestA2AGenerator_ImmediateCompletionSkipsPolling(t *testing.T) {
	client := &mockClient{
		sendMessage: func(context.Context, string, a2a.SendMessageRequest) (*a2a.Task, error) {
			return task("t1", a2a.TaskStateCompleted, "done"), nil
		},
	}
	content, err := NewA2AGenerator(client, fastConfig(), nil).Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "done", content)
}

func TestA2AGenerator_TimeoutCancelsTask(t *testing.T) {
	client := &mockClient{
		sendMessage: func(context.Context, string, a2a.SendMessageRequest) (*a2a.Task, error) {
			return task("t1", a2a.TaskStateSubmitted, ""), nil
		},
		getTask: func(_ context.Context, _ string, req a2a.GetTaskRequest) (*a2a.Task, error) {
			return task(req.ID, a2a.TaskStateWorking, ""), nil
		},
	}

	_, err := NewA2AGenerator(client, fastConfig(), nil).Generate(context.Background(), testRequest())
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.True(t, strings.HasPrefix(err.Error(), "timeout: "), err.Error())
	assert.EqualValues(t, 1, client.cancels.Load())
}

func TestA2AGenerator_FailedTask(t *testing.T) {
	for _, state := range []a2a.TaskState{a2a.TaskStateFailed, a2a.TaskStateRejected, a2a.TaskStateCanceled} {
		t.Run(string(state), func(t *testing.T) {
			client := &mockClient{
				sendMessage: func(context.Context, string, a2a.SendMessageRequest) (*a2a.Task, error) {
					tk := task("t1", state, "")
					msg := a2a.NewMessage(a2a.RoleAgent, "", a2a.TextPart("content policy"))
					tk.Status.Message = &msg
					return tk, nil
				},
			}
			_, err := NewA2AGenerator(client, fastConfig(), nil).Generate(context.Background(), testRequest())
			require.Error(t, err)
			assert.Equal(t, KindOther, KindOf(err))
			assert.Contains(t, err.Error(), "content policy")
		})
	}
}

func TestA2AGenerator_EmptyContent(t *testing.T) {
	client := &mockClient{
		sendMessage: func(context.Context, string, a2a.SendMessageRequest) (*a2a.Task, error) {
			return task("t1", a2a.TaskStateCompleted, "   "), nil
		},
	}
	_, err := NewA2AGenerator(client, fastConfig(), nil).Generate(context.Background(), testRequest())
	require.Error(t, err)
	assert.Equal(t, KindOther, KindOf(err))
	assert.Contains(t, err.Error(), "no content")
}

func TestA2AGenerator_ServiceUnavailable(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"http 503", &a2a.HTTPError{Method: a2a.MethodSendMessage, StatusCode: 503}},
		{"http 502", &a2a.HTTPError{Method: a2a.MethodSendMessage, StatusCode: 502}},
		{"rpc unavailable", &a2a.RPCError{Method: a2a.MethodSendMessage, Code: a2a.ErrCodeServiceUnavailable, Message: "busy"}},
		{"connection refused", fmt.Errorf("a2a: message/send: %w", &net.OpError{Op: "dial", Err: errors.New("connection refused")})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockClient{
				sendMessage: func(context.Context, string, a2a.SendMessageRequest) (*a2a.Task, error) {
					return nil, tt.err
				},
			}
			_, err := NewA2AGenerator(client, fastConfig(), nil).Generate(context.Background(), testRequest())
			require.Error(t, err)
			assert.Equal(t, KindServiceUnavailable, KindOf(err))
			assert.Equal(t, UnavailableMessage, UserMessage(err))
			assert.True(t, strings.HasPrefix(err.Error(), "service unavailable: "))
		})
	}
}

func TestA2AGenerator_PollErrorIsClassified(t *testing.T) {
	client := &mockClient{
		sendMessage: func(context.Context, string, a2a.SendMessageRequest) (*a2a.Task, error) {
			return task("t1", a2a.TaskStateWorking, ""), nil
		},
		getTask: func(context.Context, string, a2a.GetTaskRequest) (*a2a.Task, error) {
			return nil, &a2a.HTTPError{Method: a2a.MethodGetTask, StatusCode: 504}
		},
	}
	_, err := NewA2AGenerator(client, fastConfig(), nil).Generate(context.Background(), testRequest())
	assert.Equal(t, KindServiceUnavailable, KindOf(err))
}

func TestA2AGenerator_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &mockClient{
		sendMessage: func(context.Context, string, a2a.SendMessageRequest) (*a2a.Task, error) {
			cancel()
			return task("t1", a2a.TaskStateWorking, ""), nil
		},
		getTask: func(_ context.Context, _ string, req a2a.GetTaskRequest) (*a2a.Task, error) {
			return task(req.ID, a2a.TaskStateWorking, ""), nil
		},
	}
	_, err := NewA2AGenerator(client, fastConfig(), nil).Generate(ctx, testRequest())
	assert.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 1, client.cancels.Load())
}

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify(nil))

	typed := &Error{Kind: KindTimeout, Message: "slow"}
	assert.Same(t, typed, Classify(fmt.Errorf("wrapped: %w", typed)))

	assert.Equal(t, KindTimeout, Classify(context.DeadlineExceeded).Kind)
	assert.Equal(t, KindOther, Classify(&a2a.HTTPError{StatusCode: 500}).Kind)
	assert.Equal(t, KindOther, Classify(errors.New("bad prompt")).Kind)
	assert.Equal(t, KindOther, KindOf(errors.New("plain")))
}

func TestError_Messages(t *testing.T) {
	assert.Equal(t, "timeout: no answer", (&Error{Kind: KindTimeout, Message: "no answer"}).Error())
	assert.Equal(t, "service unavailable: down", (&Error{Kind: KindServiceUnavailable, Message: "down"}).Error())
	assert.Equal(t, "provider said no", (&Error{Kind: KindOther, Message: "provider said no"}).Error())
	assert.Equal(t, "provider said no", UserMessage(&Error{Kind: KindOther, Message: "provider said no"}))
}

func TestSectionTask_RoundTrip(t *testing.T) {
	req := testRequest()
	assert.Equal(t, req, NewSectionTask(req).Request())
}

func TestTemplateGenerator(t *testing.T) {
	content, err := TemplateGenerator{}.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Contains(t, content, "## Core Strengths")
	assert.Contains(t, content, "Source fields: role.")
	assert.Contains(t, content, "Builds on: profile-overview.")
	assert.Contains(t, content, "TODO")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = TemplateGenerator{}.Generate(ctx, testRequest())
	assert.ErrorIs(t, err, context.Canceled)
}
