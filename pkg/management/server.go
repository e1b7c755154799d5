// Package management serves the operational endpoints of a dynalock node:
// health, Prometheus metrics and the locks currently held.
package management

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/nimburion/dynalock/pkg/health"
	"github.com/nimburion/dynalock/pkg/observability/logger"
	"github.com/nimburion/dynalock/pkg/observability/metrics"
)

const (
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// LockLister reports the identity and held locks of a lock provider.
type LockLister interface {
	NodeID() string
	HeldLocks() []string
}

// Config holds management server settings.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

func (c *Config) normalize() {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
}

// Server exposes /healthz, /metrics and /locks.
type Server struct {
	config  Config
	router  *mux.Router
	log     logger.Logger
	health  *health.Registry
	metrics *metrics.Registry
	locks   LockLister

	httpServer *http.Server
}

// LocksResponse is the body of GET /locks.
type LocksResponse struct {
	NodeID string   `json:"node_id"`
	Locks  []string `json:"locks"`
}

// NewServer wires the management routes.
func NewServer(cfg Config, log logger.Logger, healthRegistry *health.Registry, metricsRegistry *metrics.Registry, locks LockLister) (*Server, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if healthRegistry == nil || metricsRegistry == nil {
		return nil, errors.New("health and metrics registries are required")
	}
	if locks == nil {
		return nil, errors.New("lock lister is required")
	}
	cfg.normalize()

	s := &Server{
		config:  cfg,
		router:  mux.NewRouter(),
		log:     log.With("component", "management"),
		health:  healthRegistry,
		metrics: metricsRegistry,
		locks:   locks,
	}
	s.router.Use(s.recoverPanics, s.observeRequests)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", metricsRegistry.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/locks", s.handleLocks).Methods(http.MethodGet)
	return s, nil
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves until ctx is canceled,
// then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("management listen on %s failed: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.httpServer = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info("starting management server", "addr", listener.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("management server failed: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("management server shutdown failed: %w", err)
	}
	s.log.Info("management server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	result := s.health.Check(r.Context())
	status := http.StatusOK
	if !result.IsHealthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, result)
}

func (s *Server) handleLocks(w http.ResponseWriter, _ *http.Request) {
	held := s.locks.HeldLocks()
	if held == nil {
		held = []string{}
	}
	writeJSON(w, http.StatusOK, LocksResponse{
		NodeID: s.locks.NodeID(),
		Locks:  held,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
