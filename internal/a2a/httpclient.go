package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Compile-time interface check.
var _ Client = (*HTTPClient)(nil)

// HTTPClient implements the Client interface using HTTP/JSON-RPC.
type HTTPClient struct {
	http      *http.Client
	token     string
	requestID atomic.Int64
}

// ClientOption configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.http.Timeout = d
	}
}

// WithHTTPClient replaces the underlying *http.Client entirely.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.http = hc
	}
}

// WithBearerToken sends an Authorization header on every call.
func WithBearerToken(token string) ClientOption {
	return func(c *HTTPClient) {
		c.token = token
	}
}

// NewHTTPClient creates a new A2A HTTP client.
func NewHTTPClient(opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendMessage calls message/send.
func (c *HTTPClient) SendMessage(ctx context.Context, endpoint string, req SendMessageRequest) (*Task, error) {
	var task Task
	if err := c.call(ctx, endpoint, MethodSendMessage, req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// GetTask calls tasks/get.
func (c *HTTPClient) GetTask(ctx context.Context, endpoint string, req GetTaskRequest) (*Task, error) {
	var task Task
	if err := c.call(ctx, endpoint, MethodGetTask, req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// CancelTask calls tasks/cancel.
func (c *HTTPClient) CancelTask(ctx context.Context, endpoint string, req CancelTaskRequest) (*Task, error) {
	var task Task
	if err := c.call(ctx, endpoint, MethodCancelTask, req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// DiscoverAgent fetches the Agent Card from the well-known URI.
func (c *HTTPClient) DiscoverAgent(ctx context.Context, baseURL string) (*AgentCard, error) {
	url := strings.TrimRight(baseURL, "/") + WellKnownCardPath

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("a2a: create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("a2a: discover agent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &HTTPError{Method: "discover", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var card AgentCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return nil, fmt.Errorf("a2a: decode agent card: %w", err)
	}
	return &card, nil
}

func (c *HTTPClient) setHeaders(r *http.Request) {
	r.Header.Set("Accept", "application/json")
	if c.token != "" {
		r.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// call performs a JSON-RPC 2.0 call over HTTP POST.
func (c *HTTPClient) call(ctx context.Context, endpoint, method string, params any, result any) error {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("a2a: marshal params: %w", err)
	}

	body, err := json.Marshal(JSONRPCRequest{
		JSONRPC: JSONRPCVersion,
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  paramsJSON,
	})
	if err != nil {
		return fmt.Errorf("a2a: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("a2a: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.setHeaders(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("a2a: %s: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("a2a: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &HTTPError{Method: method, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var rpcResp JSONRPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("a2a: decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return &RPCError{
			Method:  method,
			Code:    rpcResp.Error.Code,
			Message: rpcResp.Error.Message,
			Data:    rpcResp.Error.Data,
		}
	}

	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("a2a: decode result: %w", err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// RPCError represents a JSON-RPC error returned by a remote agent.
type RPCError struct {
	Method  string
	Code    int
	Message string
	Data    json.RawMessage
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("a2a: %s: rpc error %d: %s (data: %s)", e.Method, e.Code, e.Message, string(e.Data))
	}
	return fmt.Sprintf("a2a: %s: rpc error %d: %s", e.Method, e.Code, e.Message)
}

// HTTPError is a non-200 response from the agent endpoint.
type HTTPError struct {
	Method     string
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("a2a: %s: HTTP %d", e.Method, e.StatusCode)
	}
	return fmt.Sprintf("a2a: %s: HTTP %d: %s", e.Method, e.StatusCode, body)
}

// Unavailable reports whether the status code means the agent or a gateway in
// front of it is temporarily unable to serve.
func (e *HTTPError) Unavailable() bool {
	switch e.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
