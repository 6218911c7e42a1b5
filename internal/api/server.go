package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
}

// DefaultServerConfig returns a sensible default configuration.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Server runs the station HTTP API with graceful shutdown.
type Server struct {
	httpServer *http.Server
	config     *ServerConfig
	logger     *slog.Logger
	stopOnce   sync.Once
}

// NewServer creates a new HTTP server around the given router.
func NewServer(router chi.Router, config *ServerConfig) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		config: config,
		logger: logger,
		httpServer: &http.Server{
			Addr:         config.Addr,
			Handler:      router,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
			ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
		},
	}
}

// Start binds the listen address and serves until Shutdown is called. It
// blocks; run it on its own goroutine.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Addr, err)
	}

	s.logger.InfoContext(ctx, "station API listening", "addr", listener.Addr().String())

	if err := s.httpServer.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server. Safe to call more
// than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		if s.config.ShutdownTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
			defer cancel()
		}
		s.logger.InfoContext(ctx, "draining HTTP server")
		err = s.httpServer.Shutdown(ctx)
	})
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// HealthCheckFunc probes one component.
type HealthCheckFunc func(ctx context.Context) error

// HealthChecker aggregates component health probes for the health endpoint.
type HealthChecker struct {
	mu     sync.RWMutex
	checks map[string]HealthCheckFunc
	logger *slog.Logger
}

// NewHealthChecker creates a new health checker.
func NewHealthChecker(logger *slog.Logger) *HealthChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthChecker{
		checks: make(map[string]HealthCheckFunc),
		logger: logger,
	}
}

// Register adds a named component probe.
func (h *HealthChecker) Register(name string, check HealthCheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// Check probes every registered component. The aggregate is unhealthy as
// soon as any single component is.
func (h *HealthChecker) Check(ctx context.Context) *HealthCheckResult {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := &HealthCheckResult{
		Status:     "healthy",
		Components: make(map[string]*ComponentHealthResult, len(h.checks)),
	}
	for name, check := range h.checks {
		component := &ComponentHealthResult{Status: "healthy"}
		if err := check(ctx); err != nil {
			component.Status = "unhealthy"
			component.Error = err.Error()
			result.Status = "unhealthy"
			h.logger.WarnContext(ctx, "health check failed", "component", name, "error", err)
		}
		result.Components[name] = component
	}
	return result
}

// HealthCheckResult is the aggregate health endpoint payload.
type HealthCheckResult struct {
	Status     string                            `json:"status"`
	Components map[string]*ComponentHealthResult `json:"components,omitempty"`
}

// ComponentHealthResult reports one component's health.
type ComponentHealthResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}
