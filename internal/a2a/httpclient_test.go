package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rpcHandler decodes a JSONRPCRequest and writes back fn's response.
func rpcHandler(t *testing.T, fn func(req JSONRPCRequest) JSONRPCResponse) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req JSONRPCRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		assert.Equal(t, JSONRPCVersion, req.JSONRPC)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(fn(req))
	}
}

func resultOf(t *testing.T, id any, v any) JSONRPCResponse {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return JSONRPCResponse{JSONRPC: JSONRPCVersion, ID: id, Result: data}
}

func TestSendMessage_HappyPath(t *testing.T) {
	ts := httptest.NewServer(rpcHandler(t, func(req JSONRPCRequest) JSONRPCResponse {
		assert.Equal(t, MethodSendMessage, req.Method)

		var params SendMessageRequest
		require.NoError(t, json.Unmarshal(req.Params, &params))
		assert.Equal(t, "hello", params.Message.Text())
		require.NotNil(t, params.Configuration)
		assert.False(t, params.Configuration.Blocking)

		return resultOf(t, req.ID, Task{ID: "task-1", Status: TaskStatus{State: TaskStateSubmitted}})
	}))
	defer ts.Close()

	task, err := NewHTTPClient().SendMessage(context.Background(), ts.URL, SendMessageRequest{
		Message:       NewMessage(RoleUser, "ctx", TextPart("hello")),
		Configuration: &SendMessageConfig{Blocking: false},
	})
	require.NoError(t, err)
	assert.Equal(t, "task-1", task.ID)
	assert.Equal(t, TaskStateSubmitted, task.Status.State)
}

func TestGetAndCancelTask(t *testing.T) {
	ts := httptest.NewServer(rpcHandler(t, func(req JSONRPCRequest) JSONRPCResponse {
		var params GetTaskRequest
		require.NoError(t, json.Unmarshal(req.Params, &params))
		assert.Equal(t, "task-7", params.ID)

		state := TaskStateWorking
		if req.Method == MethodCancelTask {
			state = TaskStateCanceled
		}
		return resultOf(t, req.ID, Task{ID: params.ID, Status: TaskStatus{State: state}})
	}))
	defer ts.Close()

	c := NewHTTPClient()
	task, err := c.GetTask(context.Background(), ts.URL, GetTaskRequest{ID: "task-7"})
	require.NoError(t, err)
	assert.Equal(t, TaskStateWorking, task.Status.State)

	task, err = c.CancelTask(context.Background(), ts.URL, CancelTaskRequest{ID: "task-7"})
	require.NoError(t, err)
	assert.Equal(t, TaskStateCanceled, task.Status.State)
}

func TestCall_RPCError(t *testing.T) {
	ts := httptest.NewServer(rpcHandler(t, func(req JSONRPCRequest) JSONRPCResponse {
		return JSONRPCResponse{
			JSONRPC: JSONRPCVersion,
			ID:      req.ID,
			Error:   &JSONRPCError{Code: ErrCodeServiceUnavailable, Message: "overloaded"},
		}
	}))
	defer ts.Close()

	_, err := NewHTTPClient().GetTask(context.Background(), ts.URL, GetTaskRequest{ID: "x"})
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, ErrCodeServiceUnavailable, rpcErr.Code)
	assert.Contains(t, err.Error(), "overloaded")
}

func TestCall_HTTPErrorStatus(t *testing.T) {
	tests := []struct {
		status      int
		unavailable bool
	}{
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusGatewayTimeout, true},
		{http.StatusInternalServerError, false},
		{http.StatusUnauthorized, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "upstream says no", tt.status)
			}))
			defer ts.Close()

			_, err := NewHTTPClient().SendMessage(context.Background(), ts.URL, SendMessageRequest{})
			var httpErr *HTTPError
			require.True(t, errors.As(err, &httpErr))
			assert.Equal(t, tt.status, httpErr.StatusCode)
			assert.Equal(t, tt.unavailable, httpErr.Unavailable())
			assert.Contains(t, err.Error(), "upstream says no")
		})
	}
}

func TestCall_BearerToken(t *testing.T) {
	ts := httptest.NewServer(rpcHandler(t, func(req JSONRPCRequest) JSONRPCResponse {
		return resultOf(t, req.ID, Task{ID: "t"})
	}))
	defer ts.Close()

	var gotAuth string
	wrapped := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		ts.Config.Handler.ServeHTTP(w, r)
	}))
	defer wrapped.Close()

	_, err := NewHTTPClient(WithBearerToken("s3cret")).GetTask(context.Background(), wrapped.URL, GetTaskRequest{ID: "t"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer s3cret", gotAuth)
}

func TestCall_ContextTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewHTTPClient().GetTask(ctx, ts.URL, GetTaskRequest{ID: "t"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDiscoverAgent(t *testing.T) {
	card := AgentCard{Name: "sections", Version: "1.0.0", Skills: []AgentSkill{{ID: "generate-section", Name: "Generate"}}}
	ts := httptest.NewServer(NewServer(card, nil).Handler())
	defer ts.Close()

	got, err := NewHTTPClient().DiscoverAgent(context.Background(), ts.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, "sections", got.Name)
	require.Len(t, got.Skills, 1)
}

func TestDiscoverAgent_Non200(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	_, err := NewHTTPClient().DiscoverAgent(context.Background(), ts.URL)
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
}
