// Package server hosts the storefront HTTP API: core routes, plugin route
// mounting, middleware and RFC 7807 problem responses.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net"
	"net/http"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/storefront/internal/metrics"
	"github.com/HerbHall/storefront/internal/plugin"
	"github.com/HerbHall/storefront/internal/version"
)

// Options configures the HTTP server.
type Options struct {
	Addr         string        `mapstructure:"addr"`
	StaticDir    string        `mapstructure:"static_dir"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	RateLimit    RateLimit     `mapstructure:"rate_limit"`
}

// RateLimit configures the global request limiter. RPS <= 0 disables it.
type RateLimit struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// Server serves the core routes, the enabled plugins' routes and the
// optional static site.
type Server struct {
	httpServer *http.Server
	registry   *plugin.Registry
	metrics    *metrics.Metrics
	logger     *zap.Logger
	mux        *http.ServeMux
	opts       Options
}

// New mounts every route and wraps the mux in request id, access log and
// rate limit middleware. metrics may be nil.
func New(opts Options, reg *plugin.Registry, m *metrics.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 15 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 30 * time.Second
	}
	mux := http.NewServeMux()

	s := &Server{
		registry: reg,
		metrics:  m,
		logger:   logger,
		mux:      mux,
		opts:     opts,
	}

	var handler http.Handler = mux
	handler = rateLimitMiddleware(opts.RateLimit, handler)
	handler = accessLogMiddleware(logger, m, handler)
	handler = requestIDMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      handler,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.registerCoreRoutes()
	s.mountPluginRoutes()
	s.mountStatic()

	return s
}

// Handler returns the root handler including middleware.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// registerCoreRoutes sets up routes that are always available.
func (s *Server) registerCoreRoutes() {
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/plugins", s.handlePlugins)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

// mountPluginRoutes registers each enabled plugin's routes under
// /api/v1/{plugin}, in plugin name order.
func (s *Server) mountPluginRoutes() {
	byPlugin := s.registry.AllRoutes()
	for _, name := range slices.Sorted(maps.Keys(byPlugin)) {
		for _, rt := range byPlugin[name] {
			pattern := rt.Method + " /api/v1/" + name + rt.Path
			s.mux.HandleFunc(pattern, rt.Handler)
			s.logger.Debug("route mounted", zap.String("pattern", pattern))
		}
	}
}

// mountStatic serves the storefront site from StaticDir at /.
func (s *Server) mountStatic() {
	if s.opts.StaticDir == "" {
		return
	}
	s.mux.Handle("GET /", http.FileServer(http.Dir(s.opts.StaticDir)))
	s.logger.Info("serving static site", zap.String("dir", s.opts.StaticDir))
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("http server listening", zap.String("addr", l.Addr().String()))
	err := s.httpServer.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("serve %s: %w", l.Addr(), err)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// respond writes v as JSON with the version header every core route sets.
func respond(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Storefront-Version", version.Short())
	_ = json.NewEncoder(w).Encode(v)
}

// handleHealth reports "degraded" when any plugin does.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	plugins := s.registry.Health(r.Context())
	status := "ok"
	for _, h := range plugins {
		if h.Status != plugin.StatusHealthy {
			status = "degraded"
			break
		}
	}
	respond(w, map[string]any{
		"status":  status,
		"service": "storefront",
		"version": version.Map(),
		"plugins": plugins,
	})
}

// handlePlugins lists enabled plugins in registration order.
func (s *Server) handlePlugins(w http.ResponseWriter, _ *http.Request) {
	infos := []plugin.Info{}
	for _, p := range s.registry.All() {
		infos = append(infos, p.Info())
	}
	respond(w, infos)
}
