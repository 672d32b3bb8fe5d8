// Package server exposes the daemon's read-only status API.
//
// The server never mutates the job tree; it reports what the last
// completed cycle saw. All state arrives through the engine's status
// sink.
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/3leaps/qcherd/pkg/engine"
)

// HTTPErrorResponse is the JSON error envelope for all API errors.
type HTTPErrorResponse struct {
	Error HTTPError `json:"error"`
}

type HTTPError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Server serves the status API for one running orchestrator.
type Server struct {
	host    string
	port    int
	version string

	mu       sync.RWMutex
	lastSum  *engine.CycleSummary
	lastJobs []engine.JobStatus

	httpSrv  *http.Server
	listener net.Listener
}

// New creates a server bound to host:port. Port 0 picks a free port at
// Start time.
func New(host string, port int, version string) *Server {
	return &Server{host: host, port: port, version: version}
}

func (s *Server) Port() int { return s.port }

// PublishCycle implements engine.StatusSink.
func (s *Server) PublishCycle(sum engine.CycleSummary, jobs []engine.JobStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSum = &sum
	s.lastJobs = jobs
}

// Handler builds the router. Exposed separately from Start for tests.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/version", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/cycle", s.handleCycle)
		r.Get("/jobs", s.handleJobs)
	})
	return r
}

func (s *Server) handleCycle(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	sum := s.lastSum
	s.mu.RUnlock()
	if sum == nil {
		writeError(w, http.StatusNotFound, "NO_CYCLE", "no cycle has completed yet")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleJobs(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	jobs := s.lastJobs
	s.mu.RUnlock()
	if jobs == nil {
		jobs = []engine.JobStatus{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// Start binds the listener and serves in the background. The returned
// address is the bound one, useful when port 0 was requested.
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(s.host, strconv.Itoa(s.port)))
	if err != nil {
		return "", err
	}
	s.listener = ln
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() { _ = s.httpSrv.Serve(ln) }()
	return ln.Addr().String(), nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, HTTPErrorResponse{Error: HTTPError{Code: code, Message: message}})
}
