// Package server is the dashboard's HTTP surface: the JSON API, the snapshot
// websocket, Prometheus exposition and the embedded browser client.
package server

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v3"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/sensor-dashboard/internal/dashboard"
	"github.com/sweeney/sensor-dashboard/internal/reading"
	"github.com/sweeney/sensor-dashboard/internal/telemetry"
)

// Telemetry is the data the handlers serve. *telemetry.Service implements it.
type Telemetry interface {
	Sensors(ctx context.Context) (*reading.Set, error)
	SystemMetrics(ctx context.Context) (*reading.Set, error)
	UPS(ctx context.Context) (*reading.Set, error)
	Snapshot(ctx context.Context) telemetry.Snapshot
}

// Options configures a Server. Registry and Static are optional.
type Options struct {
	Addr         string
	PollInterval time.Duration
	Rules        dashboard.Rules
	Registry     *prometheus.Registry
	Static       fs.FS
	Logger       *slog.Logger
}

// Server wraps the http.Server and the routes it serves.
type Server struct {
	httpServer   *http.Server
	telemetry    Telemetry
	rules        dashboard.Rules
	pollInterval time.Duration
	upgrader     websocket.Upgrader
	logger       *slog.Logger

	// done is closed by Shutdown; hijacked stream connections are not
	// tracked by http.Server and watch it instead.
	done     chan struct{}
	doneOnce sync.Once
}

// New builds the router and the underlying http.Server.
func New(t Telemetry, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}

	s := &Server{
		telemetry:    t,
		rules:        opts.Rules,
		pollInterval: pollInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		logger: logger,
		done:   make(chan struct{}),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httplog.RequestLogger(logger, &httplog.Options{
		Level:  slog.LevelInfo,
		Schema: httplog.SchemaECS.Concise(true),
	}))

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/sensors", s.handleSensors)
		r.Get("/system-metrics", s.handleSystemMetrics)
		r.Get("/ups", s.handleUPS)
		r.Get("/cards", s.handleCards)
		r.Get("/stream", s.handleStream)
	})
	if opts.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))
	}
	if opts.Static != nil {
		r.Handle("/*", http.FileServer(http.FS(opts.Static)))
	}

	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens and serves until Shutdown. It returns nil after a clean
// shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	s.doneOnce.Do(func() { close(s.done) })
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("server shutdown error", "err", err)
		return err
	}
	s.logger.Info("server shutdown complete")
	return nil
}
