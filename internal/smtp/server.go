package smtp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Server accepts SMTP connections and drives one session per connection
// through the reception pipeline.
type Server struct {
	config  *Config
	backend *Backend
	logger  *slog.Logger

	listener net.Listener
	sem      *semaphore.Weighted

	mu      sync.Mutex
	running bool
	conns   sync.WaitGroup
}

// NewServer creates a server around an already-constructed pipeline
func NewServer(config *Config, backend *Backend, logger *slog.Logger) *Server {
	return &Server{
		config:  config,
		backend: backend,
		logger:  logger.With("component", "smtp-server"),
		sem:     semaphore.NewWeighted(config.MaxConnections),
	}
}

// Start binds the listener and serves connections until ctx is canceled or
// Shutdown is called. A disabled server serves nothing but still blocks
// until ctx is canceled, so callers can manage it uniformly.
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("smtp listener disabled")
		<-ctx.Done()
		return nil
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to create listener: %w", err)
	}
	s.listener = listener
	s.running = true
	s.mu.Unlock()

	s.logger.Info("smtp server listening", "addr", listener.Addr().String())

	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()

	return s.acceptConnections(ctx)
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

func (s *Server) acceptConnections(ctx context.Context) error {
	metrics := GetMetrics()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.conns.Wait()
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		// The connection cap backpressures at accept time rather than
		// closing excess connections with an error banner.
		if err := s.sem.Acquire(ctx, 1); err != nil {
			conn.Close()
			s.conns.Wait()
			return nil
		}

		metrics.ConnectionsTotal.Inc()
		metrics.ConnectionsActive.Inc()
		s.conns.Add(1)
		go func() {
			defer func() {
				s.sem.Release(1)
				metrics.ConnectionsActive.Dec()
				s.conns.Done()
			}()
			newConnection(conn, s.config, s.backend, s.logger).serve(ctx)
		}()
	}
}

// Shutdown stops accepting and waits for in-flight sessions to finish
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	if s.listener != nil {
		s.listener.Close()
	}
	s.logger.Info("smtp server stopped")
}
