package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/smukkama/traffic-server/internal/observability"
	"github.com/smukkama/traffic-server/pkg/config"
)

// Server is the HTTP read API
type Server struct {
	config     *config.HTTPConfig
	router     chi.Router
	httpServer *http.Server
	listener   net.Listener
	logger     *log.Logger
	wg         sync.WaitGroup
}

// NewServer creates the API server. gatherer backs /metrics; health may be nil.
func NewServer(cfg *config.HTTPConfig, querier MeasurementQuerier, health HealthChecker, gatherer prometheus.Gatherer, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	h := &handlers{querier: querier, health: health, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/measurements", h.listMeasurements)
	r.Get("/locations/{locationId}/measurements", h.locationMeasurements)
	r.Get("/healthz", h.healthz)
	r.Method(http.MethodGet, "/metrics", observability.Handler(gatherer))
	r.NotFound(h.notFound)

	return &Server{
		config: cfg,
		router: r,
		logger: logger,
	}
}

// Handler returns the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts listening on the configured port
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	s.listener = listener
	s.httpServer = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	s.logger.Printf("HTTP server listening on %s", listener.Addr())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("HTTP server error: %v", err)
		}
	}()

	return nil
}

// Addr returns the listening address once started
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop drains in-flight requests for up to the configured shutdown timeout
func (s *Server) Stop() {
	if s.httpServer == nil {
		return
	}

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Printf("HTTP server shutdown: %v", err)
	}

	s.wg.Wait()
	s.logger.Println("HTTP server stopped")
}
