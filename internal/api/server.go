// Package api serves the timer status over HTTP on the loopback interface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"nightthemeswitcher/internal/timer"

	"go.uber.org/zap"
)

// Timer is the part of the timer exposed over HTTP
type Timer interface {
	Snapshot() timer.Snapshot
	Toggle()
}

// Server provides HTTP API endpoints for the timer
type Server struct {
	timer  Timer
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a new API server listening on 127.0.0.1:port
func NewServer(t Timer, logger *zap.Logger, port int) *Server {
	s := &Server{
		timer:  t,
		logger: logger.Named("api"),
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the request router
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleSitemap)
	mux.HandleFunc("/api/timer", s.handleGetTimer)
	mux.HandleFunc("/api/timer/toggle", s.handleToggle)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// handleGetTimer returns the timer snapshot as JSON
func (s *Server) handleGetTimer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, s.timer.Snapshot())
	s.logger.Debug("Timer request served",
		zap.String("remote_addr", r.RemoteAddr))
}

// handleToggle forces the opposite state, like the on-demand keybinding
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.timer.Toggle()
	snapshot := s.timer.Snapshot()
	s.logger.Info("Toggled through the API",
		zap.String("state", string(snapshot.State)))
	s.writeJSON(w, http.StatusOK, snapshot)
}

// handleHealth returns a simple health check response
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Endpoint represents an API endpoint with its documentation
type Endpoint struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

// Endpoints lists the served endpoints
var Endpoints = []Endpoint{
	{Path: "/", Method: "GET", Description: "This sitemap"},
	{Path: "/api/timer", Method: "GET", Description: "Current state, authority and sun times"},
	{Path: "/api/timer/toggle", Method: "POST", Description: "Switch to the opposite state until the schedule agrees"},
	{Path: "/health", Method: "GET", Description: "Health check, returns {\"status\": \"ok\"}"},
}

// handleSitemap lists the available endpoints as plain text
func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "Night Theme Switcher API\n")
	fmt.Fprintf(w, "========================\n\n")
	for _, ep := range Endpoints {
		fmt.Fprintf(w, "  %-6s %-20s %s\n", ep.Method, ep.Path, ep.Description)
	}
}

// Start listens and serves in the background
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}
	s.logger.Info("Starting HTTP API server", zap.String("addr", listener.Addr().String()))

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop() error {
	s.logger.Info("Stopping HTTP API server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}
