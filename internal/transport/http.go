package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/rickgao/opengroup/internal/rpc"
	"github.com/rickgao/opengroup/internal/version"
)

// RPCPath is where HTTP clients post envelopes.
const RPCPath = "/loki/v1/rpc"

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HTTPHandler serves envelopes over HTTP and the health check.
type HTTPHandler struct {
	handler HandlerFunc
	pinger  Pinger
	maxBody int64
	logger  *slog.Logger
}

// NewHTTPHandler creates an HTTPHandler. Bodies larger than maxBody bytes
// are refused.
func NewHTTPHandler(handler HandlerFunc, pinger Pinger, maxBody int64, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandler{
		handler: handler,
		pinger:  pinger,
		maxBody: maxBody,
		logger:  logger,
	}
}

// Register adds the RPC and health routes to mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST "+RPCPath, h.serveRPC)
	mux.HandleFunc("GET /health", h.serveHealth)
}

func (h *HTTPHandler) serveRPC(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)

	var call rpc.Call
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&call); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "request body too large"})
			return
		}
		h.logger.Warn("undecodable rpc envelope", "remote", r.RemoteAddr, "error", err)
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid rpc envelope"})
		return
	}

	reply := h.handler(r.Context(), call)
	writeJSON(w, reply.StatusCode, reply)
}

func (h *HTTPHandler) serveHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := struct {
		Status     string            `json:"status"`
		Version    version.BuildInfo `json:"version"`
		Components map[string]any    `json:"components"`
	}{
		Status:     "healthy",
		Version:    version.Info(),
		Components: make(map[string]any),
	}

	// Check database
	if err := h.pinger.Ping(ctx); err != nil {
		health.Status = "unhealthy"
		health.Components["postgres"] = map[string]string{
			"status": "disconnected",
			"error":  err.Error(),
		}
	} else {
		health.Components["postgres"] = "connected"
	}

	status := http.StatusOK
	if health.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
