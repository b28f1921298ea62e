// Package api exposes the operational HTTP surface: health, readiness, a
// status document, and the Prometheus scrape endpoint.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config holds the API server settings
type Config struct {
	Enabled    bool
	ListenAddr string
}

// Status is the document served at /api/v1/status.
type Status struct {
	Hostname  string    `json:"hostname"`
	Version   string    `json:"version"`
	StartedAt time.Time `json:"started_at"`
	UptimeSec int64     `json:"uptime_seconds"`
	Directory string    `json:"directory"`
	Storage   string    `json:"storage"`
}

// StatusSource supplies the live fields of the status document.
type StatusSource struct {
	Hostname  string
	Version   string
	Directory string
	Storage   string
}

// Server serves the operational HTTP endpoints.
type Server struct {
	config    *Config
	source    StatusSource
	logger    *slog.Logger
	startedAt time.Time

	mu       sync.Mutex
	listener net.Listener
	httpSrv  *http.Server
}

// NewServer creates an API server; Start does the binding
func NewServer(config *Config, source StatusSource, logger *slog.Logger) *Server {
	return &Server{
		config:    config,
		source:    source,
		logger:    logger.With("component", "api"),
		startedAt: time.Now(),
	}
}

// Start binds the listener and serves until ctx is canceled. Disabled
// servers block until cancel so callers manage them uniformly.
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("api server disabled")
		<-ctx.Done()
		return nil
	}

	r := mux.NewRouter()
	r.Use(s.loggingMiddleware)
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.HandleFunc("/readyz", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/api/v1/status", s.handleStatus).Methods("GET")

	listener, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to create api listener: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.httpSrv = &http.Server{
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	s.mu.Unlock()

	s.logger.Info("api server listening", "addr", listener.Addr().String())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpSrv.Shutdown(shutdownCtx)
	}()

	if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

// Addr returns the bound listener address, or empty before Start
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := Status{
		Hostname:  s.source.Hostname,
		Version:   s.source.Version,
		StartedAt: s.startedAt,
		UptimeSec: int64(time.Since(s.startedAt).Seconds()),
		Directory: s.source.Directory,
		Storage:   s.source.Storage,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"duration", time.Since(start),
		)
	})
}
