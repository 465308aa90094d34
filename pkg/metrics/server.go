// HTTP server for the metrics endpoint and other host handlers
//
// Serves /metrics (Prometheus text), /health and /ready. Extra handlers,
// such as the websocket console, are mounted with Handle before Start.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

// Gatherer renders metrics in Prometheus text format.
type Gatherer interface {
	Gather() string
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Address to listen on, e.g. ":9100" or "127.0.0.1:9100".
	Address string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig returns default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:     ":9100",
		ReadTimeout: 10 * time.Second,
		// Long-lived websocket connections share this server, so no
		// write timeout by default.
	}
}

// Server serves metrics over HTTP.
type Server struct {
	g      Gatherer
	mux    *http.ServeMux
	server *http.Server

	mu       sync.RWMutex
	running  bool
	listener net.Listener
}

// NewServer creates a server for g listening on addr.
func NewServer(g Gatherer, addr string) *Server {
	cfg := DefaultServerConfig()
	cfg.Address = addr
	return NewServerWithConfig(g, cfg)
}

// NewServerWithConfig creates a server with custom config.
func NewServerWithConfig(g Gatherer, cfg ServerConfig) *Server {
	s := &Server{g: g, mux: http.NewServeMux()}
	s.mux.HandleFunc("/metrics", s.handleMetrics)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/ready", s.handleReady)
	s.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handle mounts h at path.
func (s *Server) Handle(path string, h http.Handler) { s.mux.Handle(path, h) }

// Handler returns the server's request router.
func (s *Server) Handler() http.Handler { return s.mux }

// Listen binds the listen address without serving yet.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("metrics server listen: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	return nil
}

// Addr returns the bound address once listening, else the configured one.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.server.Addr
}

// Start serves until Shutdown, binding first if Listen was not called.
func (s *Server) Start() error {
	s.mu.RLock()
	ln := s.listener
	s.mu.RUnlock()
	if ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
		s.mu.RLock()
		ln = s.listener
		s.mu.RUnlock()
	}

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	err := s.server.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server error: %w", err)
	}
	return nil
}

// StartAsync runs Start in a goroutine; the channel yields its error and
// is closed when the server stops.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return s.server.Shutdown(ctx)
}

// IsRunning reports whether Start is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	out := s.g.Gather()
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Length", fmt.Sprint(len(out)))
		return
	}
	_, _ = w.Write([]byte(out))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("OK\n"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if !s.IsRunning() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("Not Ready\n"))
		return
	}
	_, _ = w.Write([]byte("Ready\n"))
}
