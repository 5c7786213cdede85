// Package api exposes a tiny JSON-over-HTTP API for the lookoutd
// daemon. It listens on a Unix domain socket (path comes from config)
// and delegates all resolution to internal/service.Service. No
// third-party HTTP framework is used, just net/http + encoding/json,
// which keeps the daemon's surface small.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/siftech/lookout/internal/buildinfo"
	"github.com/siftech/lookout/internal/service"
	"github.com/siftech/lookout/internal/socket"
	"github.com/siftech/lookout/pkg/eventloop"
	"github.com/siftech/lookout/pkg/resolver"
)

// ResolveRequest asks the daemon to resolve one hostname.
type ResolveRequest struct {
	Host string `json:"host"`
	// TimeoutMillis overrides the daemon's resolve budget when > 0.
	TimeoutMillis int64 `json:"timeout_ms,omitempty"`
}

// ResolveResponse carries one answered lookup.
type ResolveResponse struct {
	RequestID string        `json:"request_id"`
	Host      string        `json:"host"`
	Address   string        `json:"address"`
	Family    string        `json:"family"`
	Elapsed   time.Duration `json:"elapsed"`
}

// ErrorResponse reports a failed lookup. Code carries the resolver
// error code when the failure came from DNS.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code,omitempty"`
}

// StatusResponse reports daemon health and counters.
type StatusResponse struct {
	Resolver resolver.Stats `json:"resolver"`
	TasksRun int64          `json:"tasks_run"`
	Uptime   time.Duration  `json:"uptime"`
	Version  string         `json:"version"`
	Commit   string         `json:"commit"`
}

// -------- server -----------------------------------------------------

// Server handles HTTP API requests over a Unix domain socket.
type Server struct {
	svc     *service.Service
	timeout time.Duration
	mux     *http.ServeMux
	srv     *http.Server
}

// New creates an API server around svc. resolveTimeout is the default
// per-request budget; requests may shrink or extend it via timeout_ms.
func New(svc *service.Service, resolveTimeout time.Duration) *Server {
	if resolveTimeout <= 0 {
		resolveTimeout = 5 * time.Second
	}
	s := &Server{
		svc:     svc,
		timeout: resolveTimeout,
		mux:     http.NewServeMux(),
	}

	s.mux.HandleFunc("/v1/resolve", s.handleResolve)
	s.mux.HandleFunc("/v1/status", s.handleStatus)

	s.srv = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe starts the Unix-socket HTTP server.
func (s *Server) ListenAndServe(path string) error {
	ln, err := socket.Listen(path)
	if err != nil {
		return err
	}
	return s.srv.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error { return s.srv.Shutdown(ctx) }

// handleResolve resolves one hostname and reports the first address.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Host == "" {
		http.Error(w, "host required", http.StatusBadRequest)
		return
	}

	budget := s.timeout
	if req.TimeoutMillis > 0 {
		budget = time.Duration(req.TimeoutMillis) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(r.Context(), budget)
	defer cancel()

	res, err := s.svc.Resolve(ctx, req.Host)
	if err != nil {
		s.writeResolveError(w, err)
		return
	}

	resp := ResolveResponse{
		RequestID: res.RequestID,
		Host:      res.Host,
		Address:   res.Address,
		Family:    res.Family,
		Elapsed:   res.Elapsed,
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, fmt.Sprintf("Error encoding response: %v", err), http.StatusInternalServerError)
		return
	}
}

// handleStatus returns the daemon status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stats := s.svc.Stats()
	resp := StatusResponse{
		Resolver: stats.Resolver,
		TasksRun: stats.TasksRun,
		Uptime:   stats.Uptime,
		Version:  buildinfo.Version,
		Commit:   buildinfo.Commit,
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, fmt.Sprintf("Error encoding response: %v", err), http.StatusInternalServerError)
		return
	}
}

// writeResolveError maps resolution failures onto HTTP statuses:
// missing names are 404, timeouts 504, a stopped loop 503, and
// everything else 502.
func (s *Server) writeResolveError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	body := ErrorResponse{Error: err.Error()}

	var dnsErr *resolver.DNSError
	switch {
	case errors.As(err, &dnsErr):
		body.Code = dnsErr.Code
		if dnsErr.Code == resolver.CodeNotExist || dnsErr.Code == resolver.CodeNoData {
			status = http.StatusNotFound
		}
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, eventloop.ErrNotRunning):
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
