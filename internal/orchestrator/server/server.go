package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/schemafleet/schemafleet/internal/orchestrator/adapters/http/handlers"
	"github.com/schemafleet/schemafleet/internal/platform/config"
	"github.com/schemafleet/schemafleet/internal/platform/health"
	"github.com/schemafleet/schemafleet/internal/platform/logger"
	"github.com/schemafleet/schemafleet/internal/platform/metrics"
)

type Server struct {
	config     *config.Config
	logger     logger.Logger
	health     *health.Handler
	metrics    *metrics.Metrics
	handler    *handlers.OrchestratorHandler
	httpServer *http.Server
}

type Option func(*Server)

func WithConfig(cfg *config.Config) Option {
	return func(s *Server) { s.config = cfg }
}

func WithLogger(logger logger.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

func WithHandler(h *handlers.OrchestratorHandler) Option {
	return func(s *Server) { s.handler = h }
}

func New(opts ...Option) (*Server, error) {
	s := &Server{}
	for _, opt := range opts {
		opt(s)
	}

	if s.config == nil {
		return nil, fmt.Errorf("server requires a config")
	}
	if s.handler == nil {
		return nil, fmt.Errorf("server requires an orchestrator handler")
	}

	s.setupHTTPServer()
	return s, nil
}

func (s *Server) setupHTTPServer() {
	router := mux.NewRouter()

	// Health checks
	if s.health != nil {
		router.HandleFunc("/health/live", s.health.LivenessHandler()).Methods("GET")
		router.HandleFunc("/health/ready", s.health.ReadinessHandler()).Methods("GET")
	} else {
		router.HandleFunc("/health/live", s.handleLiveness).Methods("GET")
		router.HandleFunc("/health/ready", s.handleLiveness).Methods("GET")
	}

	// Orchestration endpoints
	router.HandleFunc("/api/v1/migrations/execute", s.handler.HandleExecute).Methods("POST")
	router.HandleFunc("/api/v1/migrations/plan", s.handler.HandlePlan).Methods("GET")
	router.HandleFunc("/api/v1/batches", s.handler.HandleListBatches).Methods("GET")
	router.HandleFunc("/api/v1/batches/{id}", s.handler.HandleGetBatch).Methods("GET")

	var handler http.Handler = router
	if s.metrics != nil {
		router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
		handler = s.metrics.HTTPMetricsMiddleware()(handler)
	}
	if s.logger != nil {
		handler = logger.HTTPMiddleware(s.logger)(handler)
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.HTTP.Port),
		Handler:      handler,
		ReadTimeout:  s.config.HTTP.ReadTimeout,
		WriteTimeout: s.config.HTTP.WriteTimeout,
		IdleTimeout:  s.config.HTTP.IdleTimeout,
	}
}

func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", "port", s.config.HTTP.Port)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"alive"}`)
}
