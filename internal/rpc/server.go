// Package rpc exposes the swap daemon's JSON-RPC 2.0 API and the WebSocket
// event stream.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/moneroswap/swapd/internal/swap"
	"github.com/moneroswap/swapd/pkg/logging"
)

// Server is a JSON-RPC 2.0 server over HTTP.
type Server struct {
	controller *swap.Controller
	log        *logging.Logger
	wsHub      *WSHub

	server   *http.Server
	listener net.Listener

	handlers map[string]Handler
	mu       sync.RWMutex
}

// Handler is a JSON-RPC method handler.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Standard error codes plus server-defined swap codes.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603

	CodeSwapNotFound  = -32000
	CodeInvalidState  = -32001
	CodeWindowClosed  = -32002
	CodeChainFailure  = -32003
	CodeSecretFailure = -32004
)

// NewServer creates a JSON-RPC server over the given controller.
func NewServer(controller *swap.Controller) *Server {
	s := &Server{
		controller: controller,
		log:        logging.GetDefault().Component("rpc"),
		handlers:   make(map[string]Handler),
	}
	s.registerHandlers()
	return s
}

func (s *Server) registerHandlers() {
	s.handlers["swap_createAssetToXMR"] = s.swapCreateAssetToXMR
	s.handlers["swap_createXMRToAsset"] = s.swapCreateXMRToAsset
	s.handlers["swap_lockXMR"] = s.swapLockXMR
	s.handlers["swap_confirmXMRLock"] = s.swapConfirmXMRLock
	s.handlers["swap_setReady"] = s.swapSetReady
	s.handlers["swap_claim"] = s.swapClaim
	s.handlers["swap_refund"] = s.swapRefund
	s.handlers["swap_sweepXMR"] = s.swapSweepXMR
	s.handlers["swap_get"] = s.swapGet
	s.handlers["swap_list"] = s.swapList
}

// Hub returns the server's WebSocket hub, or nil before Start.
func (s *Server) Hub() *WSHub {
	return s.wsHub
}

// Start begins serving on addr. The WebSocket hub starts with the server.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	s.wsHub = NewWSHub()
	go s.wsHub.Run()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /", s.handleRPC)
	mux.HandleFunc("GET /ws", s.handleWS)

	s.server = &http.Server{
		Handler:      corsMiddleware(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("RPC server error", "error", err)
		}
	}()

	s.log.Info("RPC server started", "addr", addr, "ws", "ws://"+addr+"/ws")
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, nil, ParseError, "Parse error", nil)
		return
	}
	if req.JSONRPC != "2.0" {
		s.writeError(w, req.ID, InvalidRequest, "Invalid Request", nil)
		return
	}

	s.mu.RLock()
	handler, ok := s.handlers[req.Method]
	s.mu.RUnlock()
	if !ok {
		s.writeError(w, req.ID, MethodNotFound, "Method not found", req.Method)
		return
	}

	// correlation id for tracing a request through the logs
	traceID := uuid.NewString()
	s.log.Debug("rpc request", "method", req.Method, "trace_id", traceID)

	result, err := handler(r.Context(), req.Params)
	if err != nil {
		s.log.Warn("rpc request failed",
			"method", req.Method, "trace_id", traceID, "error", err)
		s.writeError(w, req.ID, errorCode(err), err.Error(), nil)
		return
	}
	s.writeResult(w, req.ID, result)
}

// errorCode maps controller errors onto JSON-RPC error codes so clients can
// branch without parsing messages.
func errorCode(err error) int {
	switch {
	case errors.Is(err, swap.ErrInvalidParameters):
		return InvalidParams
	case errors.Is(err, swap.ErrSwapNotFound):
		return CodeSwapNotFound
	case errors.Is(err, swap.ErrInvalidState):
		return CodeInvalidState
	case errors.Is(err, swap.ErrTooEarlyToClaim),
		errors.Is(err, swap.ErrTooLateToClaim),
		errors.Is(err, swap.ErrNotTimeToRefund):
		return CodeWindowClosed
	case errors.Is(err, swap.ErrChainSubmission),
		errors.Is(err, swap.ErrChainConfirmationTimeout),
		errors.Is(err, swap.ErrInsufficientBalance):
		return CodeChainFailure
	case errors.Is(err, swap.ErrSecretMismatch),
		errors.Is(err, swap.ErrSecretNotAvailable):
		return CodeSecretFailure
	default:
		return InternalError
	}
}

func (s *Server) writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Error("failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, id interface{}, code int, message string, data interface{}) {
	resp := Response{
		JSONRPC: "2.0",
		Error:   &Error{Code: code, Message: message, Data: data},
		ID:      id,
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Error("failed to write error response", "error", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
