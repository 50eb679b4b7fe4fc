// Package server wires the node's HTTP surfaces onto one listener.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/driftkv/driftkv/internal/config"
	"github.com/driftkv/driftkv/internal/handler"
	"github.com/driftkv/driftkv/internal/health"
	"github.com/driftkv/driftkv/internal/metrics"
	"github.com/driftkv/driftkv/internal/middleware"
	"go.uber.org/zap"
)

// Server hosts the client API, the admin API, the inter-node RPC
// endpoints, and the health probes on a single listener.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// Handlers bundles the HTTP handlers the server routes to.
type Handlers struct {
	KV       *handler.KVHandler
	Admin    *handler.AdminHandler
	Internal *handler.InternalHandler
	Health   *health.Handler
}

// New creates the node server with its full middleware chain.
func New(cfg config.ServerConfig, rlCfg config.RateLimitConfig, h Handlers, m *metrics.Metrics, logger *zap.Logger) *Server {
	router := mux.NewRouter()

	// Client API.
	api := router.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/keys/{key}", h.KV.Put).Methods(http.MethodPut)
	api.HandleFunc("/keys/{key}", h.KV.Get).Methods(http.MethodGet)
	api.HandleFunc("/keys/{key}", h.KV.Delete).Methods(http.MethodDelete)
	api.HandleFunc("/nodes", h.Admin.AddNode).Methods(http.MethodPost)
	api.HandleFunc("/nodes", h.Admin.ListNodes).Methods(http.MethodGet)
	api.HandleFunc("/nodes/{id}", h.Admin.RemoveNode).Methods(http.MethodDelete)

	// Inter-node RPC surface.
	internal := router.PathPrefix("/internal").Subrouter()
	internal.HandleFunc("/kv/{key}", h.Internal.Put).Methods(http.MethodPut)
	internal.HandleFunc("/kv/{key}", h.Internal.Get).Methods(http.MethodGet)
	internal.HandleFunc("/kv/{key}", h.Internal.Delete).Methods(http.MethodDelete)
	internal.HandleFunc("/meta", h.Internal.Meta).Methods(http.MethodGet)
	internal.HandleFunc("/ping", h.Internal.Ping).Methods(http.MethodGet)

	router.HandleFunc("/health/live", h.Health.Live).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", h.Health.Ready).Methods(http.MethodGet)

	chain := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.Recovery(logger),
		middleware.Logging(logger),
		metrics.Middleware(m),
	}
	if rlCfg.Enabled {
		limiter := middleware.NewRateLimiter(rlCfg.RequestsPerSecond, rlCfg.BurstSize, logger)
		api.Use(limiter.Limit)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      middleware.Chain(chain...)(router),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		logger: logger,
	}
}

// Start begins serving. It blocks until the listener closes.
func (s *Server) Start() error {
	s.logger.Info("starting server", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
