package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fystack/chainsync/internal/control"
	"github.com/fystack/chainsync/pkg/common/logger"
	"github.com/fystack/chainsync/pkg/common/types"
)

type HealthResponse struct {
	Status    string                      `json:"status"`
	Timestamp time.Time                   `json:"timestamp"`
	Version   string                      `json:"version"`
	Syncs     map[string]types.SyncStatus `json:"syncs"`
}

type APIErrorResponse struct {
	Status    string    `json:"status"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// syncStates is what the health check needs from the manager.
type syncStates interface {
	SyncTypes() []string
	Snapshot(syncType string) (types.SyncState, bool)
}

type DaemonHTTPHandler struct {
	version string
	states  syncStates
	metrics http.Handler
	rpc     http.Handler
}

func NewDaemonHTTPHandler(version string, states syncStates, metrics, rpc http.Handler) *DaemonHTTPHandler {
	return &DaemonHTTPHandler{
		version: version,
		states:  states,
		metrics: metrics,
		rpc:     rpc,
	}
}

func (h *DaemonHTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.HandleHealth)
	mux.Handle("/metrics", h.metrics)
	mux.Handle("/rpc", h.rpc)
}

// HandleHealth reports "degraded" while any source sits in error.
func (h *DaemonHTTPHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorJSON(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   h.version,
		Syncs:     make(map[string]types.SyncStatus),
	}
	for _, name := range h.states.SyncTypes() {
		st, ok := h.states.Snapshot(name)
		if !ok {
			continue
		}
		response.Syncs[name] = st.Status
		if st.Status == types.StatusError {
			response.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, response)
}

func startHTTPServer(port int, version string, a *app) *http.Server {
	mux := http.NewServeMux()

	if version == "" {
		version = "1.0.0"
	}

	handler := NewDaemonHTTPHandler(version, a.manager, a.metrics.Handler(), control.NewHandler(a.control))
	handler.Register(mux)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info(
			"Chainsync HTTP server started",
			"port", port,
			"health_endpoint", "/health",
			"metrics_endpoint", "/metrics",
			"rpc_endpoint", "/rpc",
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed to start", "error", err)
		}
	}()

	return server
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("Failed to encode response", "status", statusCode, "err", err)
	}
}

func writeErrorJSON(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, APIErrorResponse{
		Status:    "error",
		Error:     message,
		Timestamp: time.Now().UTC(),
	})
}
