package metrics

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/contentscore/internal/cache"
	"github.com/inferloop/contentscore/internal/scoring"
	"github.com/inferloop/contentscore/pkg/errors"
	"github.com/inferloop/contentscore/pkg/models"
)

// PrometheusMetrics records scoring, analytics, cache and batch telemetry in
// a private registry
type PrometheusMetrics struct {
	logger   *logrus.Logger
	registry *prometheus.Registry
	server   *http.Server
	config   *PrometheusConfig
	mu       sync.RWMutex

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Scoring metrics
	scoresTotal   *prometheus.CounterVec
	scoreDuration prometheus.Histogram
	overallScore  prometheus.Histogram

	// Analytics metrics
	analysesTotal    *prometheus.CounterVec
	analysisDuration *prometheus.HistogramVec
	anomaliesTotal   *prometheus.CounterVec
	insightFailures  *prometheus.CounterVec

	// Cache metrics
	cacheRequestsTotal *prometheus.CounterVec

	// Batch metrics
	batchJobsTotal   *prometheus.CounterVec
	batchJobDuration *prometheus.HistogramVec
	batchQueueDepth  prometheus.Gauge

	// Application metrics
	errorsTotal  *prometheus.CounterVec
	healthStatus *prometheus.GaugeVec
}

// PrometheusConfig configures Prometheus metrics
type PrometheusConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Port      int    `json:"port" yaml:"port" mapstructure:"port"`
	Path      string `json:"path" yaml:"path" mapstructure:"path"`
	Namespace string `json:"namespace" yaml:"namespace" mapstructure:"namespace"`
	Subsystem string `json:"subsystem" yaml:"subsystem" mapstructure:"subsystem"`
}

// DefaultPrometheusConfig returns the default metrics configuration. Port 0
// means metrics are only served by the API server's own router.
func DefaultPrometheusConfig() *PrometheusConfig {
	return &PrometheusConfig{
		Enabled:   true,
		Port:      0,
		Path:      "/metrics",
		Namespace: "contentscore",
	}
}

// NewPrometheusMetrics creates a new Prometheus metrics instance
func NewPrometheusMetrics(config *PrometheusConfig, logger *logrus.Logger) (*PrometheusMetrics, error) {
	if config == nil {
		config = DefaultPrometheusConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}

	pm := &PrometheusMetrics{
		logger:   logger,
		registry: prometheus.NewRegistry(),
		config:   config,
	}

	pm.initializeMetrics()

	if err := pm.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return pm, nil
}

// Handler serves the registry in the Prometheus exposition format
func (pm *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Start starts a dedicated metrics server when a port is configured
func (pm *PrometheusMetrics) Start(ctx context.Context) error {
	if !pm.config.Enabled || pm.config.Port == 0 {
		pm.logger.Debug("Dedicated Prometheus server disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(pm.config.Path, pm.Handler())

	pm.mu.Lock()
	pm.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", pm.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := pm.server
	pm.mu.Unlock()

	pm.logger.WithFields(logrus.Fields{
		"port": pm.config.Port,
		"path": pm.config.Path,
	}).Info("Starting Prometheus metrics server")

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			pm.logger.WithError(err).Error("Prometheus metrics server error")
		}
	}()

	return nil
}

// Stop stops the dedicated metrics server
func (pm *PrometheusMetrics) Stop(ctx context.Context) error {
	pm.mu.RLock()
	server := pm.server
	pm.mu.RUnlock()
	if server == nil {
		return nil
	}

	pm.logger.Info("Stopping Prometheus metrics server")
	return server.Shutdown(ctx)
}

// RecordHTTPRequest records one API request
func (pm *PrometheusMetrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	pm.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	pm.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveScore records one scoring run
func (pm *PrometheusMetrics) ObserveScore(report *models.ScoreReport, duration time.Duration) {
	if report == nil {
		return
	}
	pm.scoresTotal.WithLabelValues(report.Grade, strconv.FormatBool(report.Valid)).Inc()
	pm.scoreDuration.Observe(duration.Seconds())
	if report.Valid {
		pm.overallScore.Observe(report.Overall)
	}
}

// ObserveCache records a cache lookup outcome
func (pm *PrometheusMetrics) ObserveCache(namespace string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	pm.cacheRequestsTotal.WithLabelValues(namespace, result).Inc()
}

// RecordAnalysis records one analytics operation of the given kind
// (analyze, trend, anomalies, forecast, correlation, insights)
func (pm *PrometheusMetrics) RecordAnalysis(kind string, err error, duration time.Duration) {
	pm.analysesTotal.WithLabelValues(kind, analysisStatus(err)).Inc()
	pm.analysisDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordAnomalies counts detected anomalies by severity
func (pm *PrometheusMetrics) RecordAnomalies(anomalies []models.Anomaly) {
	for _, a := range anomalies {
		pm.anomaliesTotal.WithLabelValues(a.Severity.String()).Inc()
	}
}

// RecordInsights records the anomalies and failed analyses of an insights report
func (pm *PrometheusMetrics) RecordInsights(report *models.InsightsReport) {
	if report == nil {
		return
	}
	pm.RecordAnomalies(report.Anomalies)
	for _, f := range report.Failures {
		pm.insightFailures.WithLabelValues(f.Analysis).Inc()
	}
}

// RecordBatchJob records a finished batch job
func (pm *PrometheusMetrics) RecordBatchJob(jobType, status string, duration time.Duration) {
	pm.batchJobsTotal.WithLabelValues(jobType, status).Inc()
	pm.batchJobDuration.WithLabelValues(jobType).Observe(duration.Seconds())
}

// SetQueueDepth sets the number of queued batch jobs
func (pm *PrometheusMetrics) SetQueueDepth(depth int) {
	pm.batchQueueDepth.Set(float64(depth))
}

// RecordError counts an error by component and error type
func (pm *PrometheusMetrics) RecordError(component string, err error) {
	if err == nil {
		return
	}
	pm.errorsTotal.WithLabelValues(component, errorType(err)).Inc()
}

// SetHealthStatus sets a component's health: 1 healthy, 0.5 degraded, 0 otherwise
func (pm *PrometheusMetrics) SetHealthStatus(component, status string) {
	value := 0.0
	switch status {
	case "healthy":
		value = 1
	case "degraded":
		value = 0.5
	}
	pm.healthStatus.WithLabelValues(component).Set(value)
}

// Registry returns the Prometheus registry
func (pm *PrometheusMetrics) Registry() *prometheus.Registry {
	return pm.registry
}

// initializeMetrics initializes all Prometheus metrics
func (pm *PrometheusMetrics) initializeMetrics() {
	namespace := pm.config.Namespace
	subsystem := pm.config.Subsystem

	// HTTP metrics
	pm.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	pm.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Scoring metrics
	pm.scoresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "scores_total",
			Help:      "Total number of scoring runs by grade",
		},
		[]string{"grade", "valid"},
	)

	pm.scoreDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "score_duration_seconds",
			Help:      "Scoring run duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)

	pm.overallScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "overall_score",
			Help:      "Distribution of overall content scores",
			Buckets:   prometheus.LinearBuckets(10, 10, 9),
		},
	)

	// Analytics metrics
	pm.analysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "analyses_total",
			Help:      "Total number of analytics operations",
		},
		[]string{"kind", "status"},
	)

	pm.analysisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "analysis_duration_seconds",
			Help:      "Analytics operation duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"kind"},
	)

	pm.anomaliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "anomalies_total",
			Help:      "Total number of detected anomalies",
		},
		[]string{"severity"},
	)

	pm.insightFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "insight_failures_total",
			Help:      "Analyses that failed inside insights reports",
		},
		[]string{"analysis"},
	)

	// Cache metrics
	pm.cacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cache_requests_total",
			Help:      "Cache lookups by outcome",
		},
		[]string{"namespace", "result"},
	)

	// Batch metrics
	pm.batchJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "batch_jobs_total",
			Help:      "Total number of batch jobs",
		},
		[]string{"type", "status"},
	)

	pm.batchJobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "batch_job_duration_seconds",
			Help:      "Batch job duration in seconds",
			Buckets:   []float64{0.01, 0.1, 1, 10, 60, 300},
		},
		[]string{"type"},
	)

	pm.batchQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "batch_queue_depth",
			Help:      "Number of queued batch jobs",
		},
	)

	// Application metrics
	pm.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "errors_total",
			Help:      "Total number of errors",
		},
		[]string{"component", "type"},
	)

	pm.healthStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "health_status",
			Help:      "Health status of components",
		},
		[]string{"component"},
	)
}

// registerMetrics registers all metrics with the Prometheus registry
func (pm *PrometheusMetrics) registerMetrics() error {
	metrics := []prometheus.Collector{
		pm.httpRequestsTotal,
		pm.httpRequestDuration,
		pm.scoresTotal,
		pm.scoreDuration,
		pm.overallScore,
		pm.analysesTotal,
		pm.analysisDuration,
		pm.anomaliesTotal,
		pm.insightFailures,
		pm.cacheRequestsTotal,
		pm.batchJobsTotal,
		pm.batchJobDuration,
		pm.batchQueueDepth,
		pm.errorsTotal,
		pm.healthStatus,
	}

	for _, metric := range metrics {
		if err := pm.registry.Register(metric); err != nil {
			return fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return nil
}

func analysisStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case stderrors.Is(err, errors.ErrInsufficientData):
		return "insufficient_data"
	case stderrors.Is(err, errors.ErrDataNotFound):
		return "no_data"
	default:
		return "error"
	}
}

func errorType(err error) string {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return string(appErr.Type)
	}
	return "unknown"
}

var (
	_ scoring.Observer = (*PrometheusMetrics)(nil)
	_ cache.Observer   = (*PrometheusMetrics)(nil)
)
