package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rpggio/fundflow/internal/mcp"
)

// RPCHandler dispatches a named method on behalf of the caller.
type RPCHandler interface {
	Handle(ctx context.Context, caller, method string, params json.RawMessage) (any, error)
}

// apiError is implemented by errors that carry a stable code for clients.
type apiError interface {
	error
	CodeValue() string
	MessageValue() string
	DetailsValue() any
	RecoveryHintValue() string
}

// Options configures the HTTP router.
type Options struct {
	Handler RPCHandler
	// Auth guards /rpc. It must put the caller identity in the request context.
	Auth func(http.Handler) http.Handler
	// MCP serves the streamable MCP transport; it authenticates on its own.
	MCP         http.Handler
	Metrics     http.Handler
	MetricsPath string
	Logger      *slog.Logger
}

// Server wires HTTP handlers.
type Server struct {
	handler RPCHandler
	logger  *slog.Logger
}

// NewServer creates an HTTP server router with middleware.
func NewServer(opts Options) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	srv := &Server{handler: opts.Handler, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", srv.handleHealth)

	if opts.Metrics != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, opts.Metrics)
	}

	if opts.MCP != nil {
		r.Handle("/mcp", opts.MCP)
		r.Handle("/mcp/*", opts.MCP)
	}

	r.Group(func(r chi.Router) {
		if opts.Auth != nil {
			r.Use(opts.Auth)
		}
		r.Post("/rpc", srv.handleRPC)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	req, err := ParseRequest(r.Body)
	if err != nil {
		code := ErrInvalidReq
		if errors.Is(err, errParse) {
			code = ErrParseCode
		}
		WriteError(w, nil, code, err.Error(), nil)
		return
	}

	caller, ok := IdentityFromContext(r.Context())
	if !ok || caller == "" {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}

	result, err := s.handler.Handle(r.Context(), caller, req.Method, req.Params)
	if err != nil {
		s.writeHandlerError(w, r, req, err)
		return
	}

	WriteResult(w, req.ID, result)
}

func (s *Server) writeHandlerError(w http.ResponseWriter, r *http.Request, req Request, err error) {
	var apiErr apiError
	switch {
	case errors.As(err, &apiErr):
		WriteError(w, req.ID, ErrApplication, apiErr.MessageValue(), map[string]any{
			"code":          apiErr.CodeValue(),
			"details":       apiErr.DetailsValue(),
			"recovery_hint": apiErr.RecoveryHintValue(),
		})
	case errors.Is(err, mcp.ErrUnknownMethod):
		WriteError(w, req.ID, ErrMethodNotFound, err.Error(), nil)
	case errors.Is(err, mcp.ErrInvalidParams):
		WriteError(w, req.ID, ErrInvalidParams, err.Error(), nil)
	default:
		s.logger.Error("rpc failed",
			"method", req.Method,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		WriteError(w, req.ID, ErrInternal, "internal error", nil)
	}
}
