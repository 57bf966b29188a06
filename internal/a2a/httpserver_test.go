package a2a

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHandler is a Handler with overridable behavior.
type fakeHandler struct {
	sendFn   func(ctx context.Context, req SendMessageRequest) (*Task, error)
	getFn    func(ctx context.Context, req GetTaskRequest) (*Task, error)
	cancelFn func(ctx context.Context, req CancelTaskRequest) (*Task, error)
}

func (h *fakeHandler) HandleSendMessage(ctx context.Context, req SendMessageRequest) (*Task, error) {
	return h.sendFn(ctx, req)
}

func (h *fakeHandler) HandleGetTask(ctx context.Context, req GetTaskRequest) (*Task, error) {
	return h.getFn(ctx, req)
}

func (h *fakeHandler) HandleCancelTask(ctx context.Context, req CancelTaskRequest) (*Task, error) {
	return h.cancelFn(ctx, req)
}

func TestServer_RoundTripThroughClient(t *testing.T) {
	h := &fakeHandler{
		sendFn: func(_ context.Context, req SendMessageRequest) (*Task, error) {
			return &Task{ID: "t1", ContextID: req.Message.ContextID, Status: TaskStatus{State: TaskStateSubmitted}}, nil
		},
		getFn: func(_ context.Context, req GetTaskRequest) (*Task, error) {
			return &Task{ID: req.ID, Status: TaskStatus{State: TaskStateCompleted}}, nil
		},
		cancelFn: func(_ context.Context, req CancelTaskRequest) (*Task, error) {
			return &Task{ID: req.ID, Status: TaskStatus{State: TaskStateCanceled}}, nil
		},
	}
	ts := httptest.NewServer(NewServer(AgentCard{Name: "x"}, h).Handler())
	defer ts.Close()

	c := NewHTTPClient()
	ctx := context.Background()

	task, err := c.SendMessage(ctx, ts.URL, SendMessageRequest{Message: NewMessage(RoleUser, "ctx-9", TextPart("go"))})
	require.NoError(t, err)
	assert.Equal(t, "ctx-9", task.ContextID)

	task, err = c.GetTask(ctx, ts.URL, GetTaskRequest{ID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, TaskStateCompleted, task.Status.State)

	task, err = c.CancelTask(ctx, ts.URL, CancelTaskRequest{ID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, TaskStateCanceled, task.Status.State)
}

func TestServer_MapsSentinelErrorsToCodes(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{ErrTaskNotFound, ErrCodeTaskNotFound},
		{ErrTaskNotCancelable, ErrCodeTaskNotCancelable},
		{ErrUnavailable, ErrCodeServiceUnavailable},
		{errors.New("boom"), ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			h := &fakeHandler{getFn: func(context.Context, GetTaskRequest) (*Task, error) { return nil, tt.err }}
			ts := httptest.NewServer(NewServer(AgentCard{}, h).Handler())
			defer ts.Close()

			_, err := NewHTTPClient().GetTask(context.Background(), ts.URL, GetTaskRequest{ID: "t"})
			var rpcErr *RPCError
			require.True(t, errors.As(err, &rpcErr))
			assert.Equal(t, tt.code, rpcErr.Code)
		})
	}
}

func TestServer_ParseAndMethodErrors(t *testing.T) {
	ts := httptest.NewServer(NewServer(AgentCard{}, &fakeHandler{}).Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL, "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	c := NewHTTPClient()
	err = c.call(context.Background(), ts.URL, "tasks/unknown", struct{}{}, nil)
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, ErrCodeMethodNotFound, rpcErr.Code)

	err = c.call(context.Background(), ts.URL, MethodGetTask, []int{1}, nil)
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, ErrCodeInvalidParams, rpcErr.Code)
}

func TestServer_ListenAndServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer(AgentCard{}, &fakeHandler{}).ListenAndServe(ctx, "127.0.0.1:0") }()

	cancel()
	assert.NoError(t, <-done)
}
