// Package webservice provides the HTTP server exposing the REST endpoints derived from the data model.
package webservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/forgeapi/forgeapi/internal/auth"
	"github.com/forgeapi/forgeapi/internal/metrics"
	"github.com/forgeapi/forgeapi/internal/webservice/handlers"
	webmetrics "github.com/forgeapi/forgeapi/internal/webservice/metrics"
	"github.com/forgeapi/forgeapi/internal/webservice/middleware"
	"github.com/forgeapi/forgeapi/pkg/datamodel"
	"github.com/forgeapi/forgeapi/pkg/orm"
	"github.com/forgeapi/forgeapi/pkg/query"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"
)

// Server is a struct that holds the HTTP servers and their configuration.
type Server struct {
	httpServer    *http.Server
	metricsServer *metrics.Server
	cm            dConfigManager

	// This context is used to interrupt any action.
	// It must be the parent of gracefulCtx.
	ctx    context.Context
	cancel context.CancelFunc

	// This context waits for in-flight requests to interrupt.
	gracefulCtx    context.Context
	gracefulCancel context.CancelFunc

	mu       sync.RWMutex
	listener net.Listener
}

// StaticConfig holds the static configuration for the server.
type StaticConfig struct {
	ConfigPath string `mapstructure:"config-path"`

	ReadTimeout    time.Duration `mapstructure:"read-timeout"`
	WriteTimeout   time.Duration `mapstructure:"write-timeout"`
	RequestTimeout time.Duration `mapstructure:"request-timeout"`
	MaxHeaderBytes int           `mapstructure:"max-header-bytes"`
	MaxUploadBytes int           `mapstructure:"max-upload-bytes"`

	DefaultPageSize int `mapstructure:"default-page-size"`
	MaxPageSize     int `mapstructure:"max-page-size"`

	// TokenRate is the number of token requests allowed per second and client address.
	TokenRate  float64 `mapstructure:"token-rate"`
	TokenBurst int     `mapstructure:"token-burst"`

	ListenHost  string `mapstructure:"listen-host"`
	ListenPort  int    `mapstructure:"listen-port"`
	MetricsHost string `mapstructure:"metrics-host"`
	MetricsPort int    `mapstructure:"metrics-port"`
}

// Token endpoint limits used when the static configuration does not set them.
const (
	DefaultTokenRate  = 1.0
	DefaultTokenBurst = 5
)

type dConfigManager interface {
	Load() error
	Watch(context.Context) (<-chan struct{}, <-chan error, error)
	Series(name string) (query.Series, bool)
	Client(id string) (auth.Client, bool)
}

// Database is the connection used by the repositories and the health check.
type Database interface {
	orm.Querier
	Ping(ctx context.Context) error
}

// TokenAuthority issues and verifies bearer tokens.
type TokenAuthority interface {
	auth.Verifier
	handlers.TokenIssuer
}

type repositories map[string]*orm.Repository

func (r repositories) Store(model string) (handlers.Store, bool) {
	repo, ok := r[model]
	if !ok {
		return nil, false
	}
	return repo, true
}

// New creates a new Server serving the models of schema from db.
func New(ctx context.Context, cm dConfigManager, db Database, schema *datamodel.Schema, tokens TokenAuthority, sc StaticConfig) (*Server, error) {
	if err := cm.Load(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %v", err)
	}

	builder := query.NewBuilder(schema, query.WithPageSizes(sc.DefaultPageSize, sc.MaxPageSize))
	repos := make(repositories)
	for _, m := range schema.Models() {
		repo, err := orm.NewRepository(db, builder, m.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to create repository: %v", err)
		}
		repos[m.Name] = repo
	}

	ctx, cancel := context.WithCancel(ctx)
	gCtx, gCancel := context.WithCancel(ctx)

	s := Server{
		cm:     cm,
		ctx:    ctx,
		cancel: cancel,

		gracefulCtx:    gCtx,
		gracefulCancel: gCancel}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	mux := http.NewServeMux()
	route := func(pattern string, h http.Handler) {
		mux.Handle(pattern, webmetrics.HandlerApplyLabels(h))
	}
	authenticated := auth.Middleware(tokens)

	if sc.TokenRate <= 0 {
		sc.TokenRate = DefaultTokenRate
	}
	if sc.TokenBurst <= 0 {
		sc.TokenBurst = DefaultTokenBurst
	}
	limiter := middleware.NewIPLimiter(rate.Limit(sc.TokenRate), sc.TokenBurst)
	resource := handlers.NewResource(repos, int64(sc.MaxUploadBytes))

	route("GET /version", http.HandlerFunc(handlers.VersionHandler))
	route("GET /healthz", handlers.NewHealth(db))
	route("POST /auth/token", limiter.Wrap(handlers.NewToken(cm, tokens)))
	route("GET /api/models", authenticated(handlers.NewModels(schema)))
	route("GET /api/series/{name}", authenticated(handlers.NewSeries(cm, repos)))
	route("GET /api/{model}", authenticated(http.HandlerFunc(resource.List)))
	route("POST /api/{model}", authenticated(http.HandlerFunc(resource.Create)))
	route("GET /api/{model}/{id}", authenticated(http.HandlerFunc(resource.Get)))
	route("PATCH /api/{model}/{id}", authenticated(http.HandlerFunc(resource.Update)))
	route("PUT /api/{model}/{id}", authenticated(http.HandlerFunc(resource.Replace)))
	route("DELETE /api/{model}/{id}", authenticated(http.HandlerFunc(resource.Delete)))

	instrumented := webmetrics.NewMuxMiddleware(reg).Wrap("mux", webmetrics.NewRouteMiddleware(reg).Wrap("api", mux))

	s.httpServer = &http.Server{
		Addr:           net.JoinHostPort(sc.ListenHost, strconv.Itoa(sc.ListenPort)),
		ReadTimeout:    sc.ReadTimeout,
		WriteTimeout:   sc.WriteTimeout,
		Handler:        http.TimeoutHandler(middleware.Logging(instrumented), sc.RequestTimeout, `{"error":"request timed out"}`),
		MaxHeaderBytes: sc.MaxHeaderBytes,
	}
	s.metricsServer = metrics.New(metrics.Config{
		Host:         sc.MetricsHost,
		Port:         sc.MetricsPort,
		ReadTimeout:  sc.ReadTimeout,
		WriteTimeout: sc.WriteTimeout,
	}, reg)

	return &s, nil
}

// Run starts the HTTP servers and listens for incoming requests.
func (s *Server) Run() error {
	// already asked to quit?
	select {
	case <-s.gracefulCtx.Done():
		return errors.New("server is already shutting down")
	default:
	}

	_, watchErr, err := s.cm.Watch(s.gracefulCtx)
	if err != nil {
		s.cancel()
		return fmt.Errorf("failed to start watching configuration: %v", err)
	}

	l, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("failed to listen on %s: %v", s.httpServer.Addr, err)
	}
	if err := s.metricsServer.Listen(); err != nil {
		s.cancel()
		return errors.Join(fmt.Errorf("failed to listen for metrics: %v", err), l.Close())
	}
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()

	slog.Info("Starting server", "addr", l.Addr().String(), "metrics", s.metricsServer.Addr())

	serverErr := make(chan error, 2)
	go func() {
		if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("server: %v", err)
		}
	}()
	go func() {
		if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("metrics server: %v", err)
		}
	}()

	for {
		select {
		case <-s.gracefulCtx.Done():
			return s.stop()

		case err := <-serverErr:
			slog.Error("Server encountered error", "err", err)
			errC := s.close()
			s.cancel()
			return errors.Join(err, errC)

		case err, ok := <-watchErr:
			if !ok {
				// The watcher is gone, keep serving the last configuration.
				watchErr = nil
				continue
			}
			if err == nil {
				continue
			}
			slog.Error("Config watcher encountered unrecoverable error", "err", err)
			errC := s.close()
			s.cancel()
			return errors.Join(err, errC)
		}
	}
}

// stop ends a Run once the graceful context is done.
func (s *Server) stop() error {
	if s.ctx.Err() == nil {
		return s.shutdown()
	}

	// Forced quit or cancelled parent: nothing is left to wait for.
	if err := s.close(); err != nil {
		slog.Debug("Closing server after cancellation", "err", err)
	}
	return nil
}

// shutdown stops the servers after in-flight requests are served.
func (s *Server) shutdown() error {
	slog.Info("Graceful shutdown initiated")
	// use parent ctx so if you call s.cancel() elsewhere it unblocks Shutdown immediately
	err := errors.Join(s.httpServer.Shutdown(s.ctx), s.metricsServer.Shutdown(s.ctx), s.closeListener())
	// now kill everything else (watchers, handlers, etc.)
	s.cancel()
	if err != nil {
		slog.Error("Graceful shutdown failed", "err", err)
		return err
	}
	slog.Info("Server shut down gracefully")
	return nil
}

func (s *Server) close() error {
	return errors.Join(s.httpServer.Close(), s.metricsServer.Close(), s.closeListener())
}

// closeListener releases the primary listener if Serve never took ownership of it.
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

// Quit shuts down the HTTP servers. Unless forced, in-flight requests are served first.
func (s *Server) Quit(force bool) {
	if force {
		if err := s.close(); err != nil {
			slog.Warn("Failed to close server", "err", err)
		}
		s.cancel()
	} else {
		s.gracefulCancel()
	}
	slog.Info("Server quit")
}

// Addr returns the address the server listens on, or an empty string before Run.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// MetricsAddr returns the address the metrics are served on, or an empty string before Run.
func (s *Server) MetricsAddr() string {
	return s.metricsServer.Addr()
}
