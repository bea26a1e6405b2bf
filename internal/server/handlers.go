package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/contentscore/internal/analytics"
	"github.com/inferloop/contentscore/internal/cache"
	"github.com/inferloop/contentscore/internal/observability/alerting"
	"github.com/inferloop/contentscore/internal/observability/health"
	"github.com/inferloop/contentscore/internal/processors/batch"
	"github.com/inferloop/contentscore/pkg/constants"
	"github.com/inferloop/contentscore/pkg/errors"
	"github.com/inferloop/contentscore/pkg/models"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
	maxLookbackDays     = 730
)

// recorder receives per-request analytics and error telemetry
type recorder interface {
	RecordAnalysis(kind string, err error, duration time.Duration)
	RecordAnomalies(anomalies []models.Anomaly)
	RecordError(component string, err error)
}

// Handlers contains all HTTP handlers for the API
type Handlers struct {
	pipeline  *batch.Pipeline
	engine    *analytics.Engine
	processor *batch.Processor
	scores    *cache.Loader[*models.ScoreReport]
	insights  *cache.Loader[*models.InsightsReport]
	health    *health.HealthMonitor
	alerts    *alerting.AlertManager
	recorder  recorder
	config    *Config
	logger    *logrus.Logger
	clock     func() time.Time
	startTime time.Time
}

// NewHandlers creates a new handlers instance
func NewHandlers(deps *Dependencies, config *Config, logger *logrus.Logger) *Handlers {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}

	var scoreOpts []cache.LoaderOption[*models.ScoreReport]
	var insightOpts []cache.LoaderOption[*models.InsightsReport]
	var rec recorder
	if deps.Metrics != nil {
		scoreOpts = append(scoreOpts, cache.WithObserver[*models.ScoreReport](deps.Metrics))
		insightOpts = append(insightOpts, cache.WithObserver[*models.InsightsReport](deps.Metrics))
		rec = deps.Metrics
	}

	return &Handlers{
		pipeline:  deps.Pipeline,
		engine:    deps.Analytics,
		processor: deps.Processor,
		scores:    cache.NewLoader[*models.ScoreReport](deps.Cache, constants.CacheNamespaceScore, config.CacheTTL, logger, scoreOpts...),
		insights:  cache.NewLoader[*models.InsightsReport](deps.Cache, constants.CacheNamespaceInsights, config.CacheTTL, logger, insightOpts...),
		health:    deps.Health,
		alerts:    deps.Alerts,
		recorder:  rec,
		config:    config,
		logger:    logger,
		clock:     time.Now,
		startTime: time.Now(),
	}
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.health == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"overall_status": health.StatusHealthy,
			"uptime":         time.Since(h.startTime).String(),
		})
		return
	}

	status := h.health.RunChecks(r.Context())
	code := http.StatusOK
	if status.OverallStatus == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// Live handles GET /health/live
func (h *Handlers) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "alive",
		"uptime": time.Since(h.startTime).String(),
	})
}

// Version handles GET /version
func (h *Handlers) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":        constants.AppName,
		"description": constants.AppDescription,
		"version":     constants.AppVersion,
		"api_version": constants.APIVersion,
	})
}

// ListContent handles GET /api/v1/content
func (h *Handlers) ListContent(w http.ResponseWriter, r *http.Request) {
	ids, err := h.pipeline.ListContent(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"content_ids": ids,
		"count":       len(ids),
	})
}

// Score handles GET /api/v1/score/{id}. refresh=true bypasses the cache.
func (h *Handlers) Score(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if queryBool(r, "refresh") {
		h.invalidate(r.Context(), id)
	}

	report, hit, err := h.scores.Get(r.Context(), id, func(ctx context.Context) (*models.ScoreReport, error) {
		return h.pipeline.Score(ctx, id)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	setCacheHeader(w, hit)
	writeJSON(w, http.StatusOK, report)
}

// ScoreItem handles POST /api/v1/score with a content snapshot as the body
func (h *Handlers) ScoreItem(w http.ResponseWriter, r *http.Request) {
	var item models.ContentItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		h.fail(w, r, badRequest(errors.CodeInvalidFormat, "Invalid content JSON").WithDetails(err.Error()))
		return
	}

	report, err := h.pipeline.ScoreItem(r.Context(), &item)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if item.ID != "" {
		h.invalidate(r.Context(), item.ID)
	}
	writeJSON(w, http.StatusOK, report)
}

// History handles GET /api/v1/history/{id}
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	reports, err := h.pipeline.History(r.Context(), mux.Vars(r)["id"], limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"content_id": mux.Vars(r)["id"],
		"reports":    reports,
		"count":      len(reports),
	})
}

// Analyze handles GET /api/v1/analyze/{id}: trends and anomalies for every
// requested metric
func (h *Handlers) Analyze(w http.ResponseWriter, r *http.Request) {
	window, err := h.window(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sensitivity, err := parseSensitivity(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	analysis, err := h.pipeline.Analyze(r.Context(), mux.Vars(r)["id"], queryList(r, "metrics"), window, sensitivity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

// Trend handles GET /api/v1/analyze/{id}/trend?metric=
func (h *Handlers) Trend(w http.ResponseWriter, r *http.Request) {
	metric, window, err := h.metricRequest(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	start := time.Now()
	trend, err := h.engine.AnalyzeTrend(r.Context(), mux.Vars(r)["id"], metric, window)
	h.record("trend", err, start)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trend)
}

// Anomalies handles GET /api/v1/analyze/{id}/anomalies?metric=&sensitivity=
func (h *Handlers) Anomalies(w http.ResponseWriter, r *http.Request) {
	metric, window, err := h.metricRequest(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sensitivity, err := parseSensitivity(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	start := time.Now()
	anomalies, err := h.engine.DetectAnomalies(r.Context(), mux.Vars(r)["id"], metric, window, sensitivity)
	h.record("anomalies", err, start)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if h.recorder != nil {
		h.recorder.RecordAnomalies(anomalies)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"metric":      metric,
		"sensitivity": sensitivity,
		"anomalies":   anomalies,
		"count":       len(anomalies),
	})
}

// Forecast handles GET /api/v1/analyze/{id}/forecast?metric=&horizon=&method=
func (h *Handlers) Forecast(w http.ResponseWriter, r *http.Request) {
	metric, window, err := h.metricRequest(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	horizon, err := queryInt(r, "horizon", h.defaultHorizon(), 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	start := time.Now()
	forecast, err := h.engine.Forecast(r.Context(), mux.Vars(r)["id"], metric, window, horizon, r.URL.Query().Get("method"))
	h.record("forecast", err, start)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, forecast)
}

// Correlations handles GET /api/v1/analyze/{id}/correlations?metrics=a,b
func (h *Handlers) Correlations(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		h.fail(w, r, unavailable("analytics engine"))
		return
	}
	window, err := h.window(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	start := time.Now()
	report, err := h.engine.Correlate(r.Context(), mux.Vars(r)["id"], queryList(r, "metrics"), window)
	h.record("correlation", err, start)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Insights handles GET /api/v1/insights/{id}. Reports are cached per item,
// metric list and window length; refresh=true recomputes.
func (h *Handlers) Insights(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	window, err := h.window(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	metrics := queryList(r, "metrics")
	key := insightsKey(id, metrics, r.URL.Query().Get("days"))
	if queryBool(r, "refresh") {
		if err := h.insights.Invalidate(r.Context(), key); err != nil {
			h.logger.WithError(err).WithField("content_id", id).Warn("Failed to invalidate cached insights")
		}
	}

	report, hit, err := h.insights.Get(r.Context(), key, func(ctx context.Context) (*models.InsightsReport, error) {
		return h.pipeline.Insights(ctx, id, metrics, window)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	setCacheHeader(w, hit)
	writeJSON(w, http.StatusOK, report)
}

// BatchRequest is the optional body of a batch run
type BatchRequest struct {
	ContentIDs []string `json:"content_ids"`
}

// RunBatch handles POST /api/v1/batch/{type}. An empty body runs the job for
// every published item.
func (h *Handlers) RunBatch(w http.ResponseWriter, r *http.Request) {
	if h.processor == nil {
		h.fail(w, r, unavailable("batch processor"))
		return
	}

	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		h.fail(w, r, badRequest(errors.CodeInvalidFormat, "Invalid batch request JSON").WithDetails(err.Error()))
		return
	}
	if len(req.ContentIDs) > constants.MaxBatchItems {
		h.fail(w, r, badRequest(errors.CodeOutOfRange,
			fmt.Sprintf("at most %d content IDs per batch", constants.MaxBatchItems)))
		return
	}

	jobType := mux.Vars(r)["type"]
	if p, ok := PrincipalFromContext(r.Context()); ok {
		h.logger.WithFields(logrus.Fields{
			"job_type":   jobType,
			"subject":    p.Subject,
			"request_id": getRequestID(r),
		}).Info("Batch run requested")
	}

	summary, err := h.processor.Run(r.Context(), jobType, req.ContentIDs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Alerts handles GET /api/v1/alerts
func (h *Handlers) Alerts(w http.ResponseWriter, r *http.Request) {
	if h.alerts == nil {
		h.fail(w, r, unavailable("alerting"))
		return
	}
	limit, err := queryInt(r, "limit", 50, 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	alerts := h.alerts.History(limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// NotFound handles unknown routes
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	err := errors.NewValidationError(errors.CodeInvalidInput, fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path))
	err.HTTPStatus = http.StatusNotFound
	writeError(w, r, err)
}

// fail logs server side errors and writes the error response
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	appErr := toAppError(err)
	if errors.HTTPStatusOf(appErr) >= http.StatusInternalServerError {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"path":       r.URL.Path,
			"request_id": getRequestID(r),
		}).Error("Request failed")
		if h.recorder != nil {
			h.recorder.RecordError("server", appErr)
		}
	}
	writeError(w, r, appErr)
}

func (h *Handlers) record(kind string, err error, start time.Time) {
	if h.recorder != nil {
		h.recorder.RecordAnalysis(kind, err, time.Since(start))
	}
}

func (h *Handlers) invalidate(ctx context.Context, id string) {
	if err := h.scores.Invalidate(ctx, id); err != nil {
		h.logger.WithError(err).WithField("content_id", id).Warn("Failed to invalidate cached score")
	}
}

// metricRequest parses the metric and window of a single-metric analysis
func (h *Handlers) metricRequest(r *http.Request) (string, analytics.Window, error) {
	if h.engine == nil {
		return "", analytics.Window{}, unavailable("analytics engine")
	}
	metric := strings.TrimSpace(r.URL.Query().Get("metric"))
	if metric == "" {
		return "", analytics.Window{}, badRequest(errors.CodeMissingField, "metric query parameter is required")
	}
	window, err := h.window(r)
	return metric, window, err
}

// window returns the analysis window ending now, days long
func (h *Handlers) window(r *http.Request) (analytics.Window, error) {
	days, err := queryInt(r, "days", h.config.LookbackDays, maxLookbackDays)
	if err != nil {
		return analytics.Window{}, err
	}
	return analytics.LastDays(h.clock(), days), nil
}

func (h *Handlers) defaultHorizon() int {
	if h.engine != nil && h.engine.Config().Insights.ForecastHorizon > 0 {
		return h.engine.Config().Insights.ForecastHorizon
	}
	return 7
}

func parseSensitivity(r *http.Request) (models.Sensitivity, error) {
	raw := r.URL.Query().Get("sensitivity")
	s, err := models.ParseSensitivity(raw)
	if err != nil {
		return "", badRequest(errors.CodeInvalidInput, err.Error()).WithCause(errors.ErrInvalidSensitivity)
	}
	return s, nil
}

func insightsKey(id string, metrics []string, days string) string {
	if len(metrics) == 0 && days == "" {
		return id
	}
	sorted := append([]string(nil), metrics...)
	sort.Strings(sorted)
	return fmt.Sprintf("%s|%s|%s", id, strings.Join(sorted, ","), days)
}
