package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const shutdownGrace = 5 * time.Second

// Handler returns the HTTP handler serving the agent card and the JSON-RPC
// endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+WellKnownCardPath, s.handleAgentCard)
	mux.HandleFunc("POST /", s.handleJSONRPC)
	return mux
}

func (s *Server) handleAgentCard(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.card); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// handleJSONRPC decodes a JSON-RPC 2.0 request and dispatches it by method.
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONRPCError(w, nil, ErrCodeParse, "Parse error: "+err.Error())
		return
	}

	ctx := r.Context()
	switch req.Method {
	case MethodSendMessage:
		dispatch(ctx, w, &req, s.handler.HandleSendMessage)
	case MethodGetTask:
		dispatch(ctx, w, &req, s.handler.HandleGetTask)
	case MethodCancelTask:
		dispatch(ctx, w, &req, s.handler.HandleCancelTask)
	default:
		writeJSONRPCError(w, req.ID, ErrCodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method))
	}
}

// dispatch unmarshals params into P, calls fn and writes the result.
func dispatch[P any](ctx context.Context, w http.ResponseWriter, req *JSONRPCRequest, fn func(context.Context, P) (*Task, error)) {
	var params P
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeJSONRPCError(w, req.ID, ErrCodeInvalidParams, "Invalid params: "+err.Error())
		return
	}

	result, err := fn(ctx, params)
	if err != nil {
		writeJSONRPCError(w, req.ID, errorCode(err), err.Error())
		return
	}
	writeJSONRPCResult(w, req.ID, result)
}

func errorCode(err error) int {
	switch {
	case errors.Is(err, ErrTaskNotFound):
		return ErrCodeTaskNotFound
	case errors.Is(err, ErrTaskNotCancelable):
		return ErrCodeTaskNotCancelable
	case errors.Is(err, ErrUnavailable):
		return ErrCodeServiceUnavailable
	default:
		return ErrCodeInternal
	}
}

func writeJSONRPCResult(w http.ResponseWriter, id any, result any) {
	data, err := json.Marshal(result)
	if err != nil {
		writeJSONRPCError(w, id, ErrCodeInternal, "Failed to marshal result: "+err.Error())
		return
	}
	_ = json.NewEncoder(w).Encode(JSONRPCResponse{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Result:  data,
	})
}

func writeJSONRPCError(w http.ResponseWriter, id any, code int, message string) {
	_ = json.NewEncoder(w).Encode(JSONRPCResponse{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
		},
	})
}
