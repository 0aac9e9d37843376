// Package metrics provides the Prometheus metrics HTTP server of the web service.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultPath is the path metrics are served on.
const DefaultPath = "/metrics"

// Server exposes the metrics of a gatherer over HTTP.
type Server struct {
	httpServer *http.Server

	mu       sync.RWMutex
	listener net.Listener
}

// Config holds the configuration for the metrics server.
type Config struct {
	Host         string
	Port         int
	Path         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// New creates a metrics server for the provided gatherer.
func New(cfg Config, reg prometheus.Gatherer) *Server {
	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}

	mux := http.NewServeMux()
	mux.Handle("GET "+path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &Server{
		httpServer: &http.Server{
			Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Handler:      mux,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
}

// Listen binds the server address. It is called by ListenAndServe when needed.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}
	l, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.listener = l
	return nil
}

// ListenAndServe serves metrics until the server is shut down or closed.
func (s *Server) ListenAndServe() error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.mu.RLock()
	l := s.listener
	s.mu.RUnlock()
	return s.httpServer.Serve(l)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return errors.Join(s.httpServer.Shutdown(ctx), s.closeListener())
}

// Close stops the server.
func (s *Server) Close() error {
	return errors.Join(s.httpServer.Close(), s.closeListener())
}

// closeListener releases a listener that was bound but never served.
func (s *Server) closeListener() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.listener == nil {
		return nil
	}
	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// Addr returns the address the server is listening on, or an empty string before Listen.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
