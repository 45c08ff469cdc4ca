// Package web serves the appliance's HTTP surfaces: the status page, a
// JSON snapshot, a live websocket stream, and Prometheus metrics.
package web

import (
	"context"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sumpwatch/internal/logger"
	"sumpwatch/internal/status"
)

// DefaultAddr is the listen address for the status page.
const DefaultAddr = ":8080"

// Server serves the status surfaces over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	log        *logger.Logger
}

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *status.Tracker, log *logger.Logger) *Server {
	s := &Server{tracker: tracker, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	sys := status.ReadSystemInfo()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap, sys)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	sys := status.ReadSystemInfo()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap, sys))
}
