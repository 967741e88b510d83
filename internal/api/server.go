package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pipelinewatch/internal/config"
	"pipelinewatch/internal/telemetry"
)

// ReadinessChecker reports whether the watcher currently holds an open stream.
type ReadinessChecker interface {
	Ready() bool
}

// Server exposes health and metrics endpoints for the sidecar.
type Server struct {
	cfg   config.Config
	ready ReadinessChecker
}

// New constructs the ops server.
func New(cfg config.Config, ready ReadinessChecker) *Server {
	return &Server{cfg: cfg, ready: ready}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", s.handleReady)
	r.Mount("/metrics", telemetry.Handler())
	return r
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.ready == nil || !s.ready.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "watch not established", "namespace": s.cfg.Namespace})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "namespace": s.cfg.Namespace})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
