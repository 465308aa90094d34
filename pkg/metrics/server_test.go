// Unit tests for the metrics HTTP server
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type staticGatherer string

func (s staticGatherer) Gather() string { return string(s) }

// TestServerEndpoints tests the built-in handlers through the mux
func TestServerEndpoints(t *testing.T) {
	s := NewServer(staticGatherer("tinyg_passes_total 7\n"), ":0")
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
		t.Errorf("wrong content type %q", rec.Header().Get("Content-Type"))
	}
	if rec.Body.String() != "tinyg_passes_total 7\n" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/metrics", nil))
	if rec.Body.Len() != 0 || rec.Header().Get("Content-Length") != "21" {
		t.Errorf("HEAD: body %q length %q", rec.Body.String(), rec.Header().Get("Content-Length"))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/metrics", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST: expected 405, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Body.String() != "OK\n" {
		t.Errorf("health: %q", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ready before start: expected 503, got %d", rec.Code)
	}
}

// TestServerHandle tests mounting an extra handler
func TestServerHandle(t *testing.T) {
	s := NewServer(staticGatherer(""), ":0")
	s.Handle("/console", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "console")
	}))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/console", nil))
	if rec.Body.String() != "console" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

// TestServerStartShutdown tests serving on a real listener
func TestServerStartShutdown(t *testing.T) {
	s := NewServer(NewControllerMetrics(), "127.0.0.1:0")
	if err := s.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	errCh := s.StartAsync()

	deadline := time.Now().Add(2 * time.Second)
	for !s.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "tinyg_uptime_seconds") {
		t.Errorf("metrics body missing uptime:\n%s", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err, ok := <-errCh; ok && err != nil {
		t.Errorf("server returned %v", err)
	}
	if s.IsRunning() {
		t.Error("server still marked running")
	}
}
