package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/contentscore/internal/analytics"
	"github.com/inferloop/contentscore/internal/observability/alerting"
	"github.com/inferloop/contentscore/internal/observability/health"
	"github.com/inferloop/contentscore/internal/observability/metrics"
	"github.com/inferloop/contentscore/internal/processors/batch"
	storageif "github.com/inferloop/contentscore/internal/storage/interfaces"
	"github.com/inferloop/contentscore/pkg/constants"
	"github.com/inferloop/contentscore/pkg/errors"
)

// Dependencies are the collaborators the API serves from. Only Pipeline is
// required; routes whose collaborator is missing answer 503.
type Dependencies struct {
	Pipeline  *batch.Pipeline
	Analytics *analytics.Engine
	Processor *batch.Processor
	Cache     storageif.Cache
	Metrics   *metrics.PrometheusMetrics
	Health    *health.HealthMonitor
	Alerts    *alerting.AlertManager
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	logger     *logrus.Logger
	config     *Config
	handlers   *Handlers
	limiter    *clientLimiter
	auth       *authenticator
	metrics    *metrics.PrometheusMetrics
}

// NewServer creates a new HTTP server instance
func NewServer(config *Config, deps *Dependencies, logger *logrus.Logger) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if deps == nil || deps.Pipeline == nil {
		return nil, errors.NewConfigurationError(errors.CodeMissingField, "server requires a scoring pipeline")
	}

	router := mux.NewRouter()
	server := &Server{
		router:   router,
		logger:   logger,
		config:   config,
		handlers: NewHandlers(deps, config, logger),
		metrics:  deps.Metrics,
	}
	if config.RateLimit.Enabled {
		server.limiter = newClientLimiter(config.RateLimit, nil)
	}
	if config.Auth.Enabled {
		server.auth = newAuthenticator(&config.Auth, logger)
	}

	server.setupRoutes()
	server.setupMiddleware()

	server.httpServer = &http.Server{
		Addr:         config.Address(),
		Handler:      router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return server, nil
}

// Start serves until the server is stopped. It returns nil after a clean
// shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithFields(logrus.Fields{
		"address": s.config.Address(),
		"tls":     s.config.TLSCertFile != "",
		"auth":    s.auth != nil,
	}).Info("Starting HTTP server")

	if s.limiter != nil {
		go s.pruneLimiters(ctx)
	}

	var err error
	if s.config.TLSCertFile != "" && s.config.TLSKeyFile != "" {
		err = s.httpServer.ListenAndServeTLS(s.config.TLSCertFile, s.config.TLSKeyFile)
	} else {
		err = s.httpServer.ListenAndServe()
	}
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.WithError(err).Error("Error shutting down HTTP server")
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Handler returns the fully wired HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes sets up the HTTP routes
func (s *Server) setupRoutes() {
	h := s.handlers

	// Health endpoints
	s.router.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	s.router.HandleFunc("/health/live", h.Live).Methods(http.MethodGet)
	s.router.HandleFunc("/version", h.Version).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix(constants.APIPrefix).Subrouter()

	// Content and scoring
	api.HandleFunc("/content", h.ListContent).Methods(http.MethodGet)
	api.HandleFunc("/score", h.ScoreItem).Methods(http.MethodPost)
	api.HandleFunc("/score/{id}", h.Score).Methods(http.MethodGet)
	api.HandleFunc("/history/{id}", h.History).Methods(http.MethodGet)

	// Analytics
	api.HandleFunc("/analyze/{id}", h.Analyze).Methods(http.MethodGet)
	api.HandleFunc("/analyze/{id}/trend", h.Trend).Methods(http.MethodGet)
	api.HandleFunc("/analyze/{id}/anomalies", h.Anomalies).Methods(http.MethodGet)
	api.HandleFunc("/analyze/{id}/forecast", h.Forecast).Methods(http.MethodGet)
	api.HandleFunc("/analyze/{id}/correlations", h.Correlations).Methods(http.MethodGet)
	api.HandleFunc("/insights/{id}", h.Insights).Methods(http.MethodGet)

	// Batch runs and alerts
	api.HandleFunc("/batch/{type}", h.RunBatch).Methods(http.MethodPost)
	api.HandleFunc("/alerts", h.Alerts).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(h.NotFound)
}

// setupMiddleware sets up HTTP middleware
func (s *Server) setupMiddleware() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoveryMiddleware)
	if s.config.EnableCORS {
		s.router.Use(s.corsMiddleware)
	}
	s.router.Use(s.requestSizeLimitMiddleware)
	s.router.Use(s.securityHeadersMiddleware)
	s.router.Use(s.rateLimitMiddleware)
	s.router.Use(s.authMiddleware)
	s.router.Use(s.timeoutMiddleware)
}

// pruneLimiters drops idle client buckets until ctx is done
func (s *Server) pruneLimiters(ctx context.Context) {
	ticker := time.NewTicker(s.limiter.expiry)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.limiter.prune(); removed > 0 {
				s.logger.WithField("removed", removed).Debug("Pruned idle rate limiters")
			}
		}
	}
}
