package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/contentscore/internal/analytics"
	"github.com/inferloop/contentscore/internal/cache"
	"github.com/inferloop/contentscore/internal/observability/alerting"
	"github.com/inferloop/contentscore/internal/observability/health"
	"github.com/inferloop/contentscore/internal/observability/metrics"
	"github.com/inferloop/contentscore/internal/processors/batch"
	"github.com/inferloop/contentscore/internal/scoring"
	"github.com/inferloop/contentscore/internal/storage/implementations/file"
	"github.com/inferloop/contentscore/internal/storage/implementations/sqlite"
	"github.com/inferloop/contentscore/pkg/constants"
	"github.com/inferloop/contentscore/pkg/models"
)

var now = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func TestScoreIsCached(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(http.MethodGet, "/api/v1/score/post-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get(constants.HeaderCache))
	assert.NotEmpty(t, rec.Header().Get(constants.HeaderRequestID))

	var report models.ScoreReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "post-1", report.ContentID)
	assert.True(t, report.Valid)

	rec = srv.do(http.MethodGet, "/api/v1/score/post-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get(constants.HeaderCache))

	rec = srv.do(http.MethodGet, "/api/v1/score/post-1?refresh=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get(constants.HeaderCache))
}

func TestScoreUnknownContent(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(http.MethodGet, "/api/v1/score/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	body := decodeError(t, rec)
	assert.Equal(t, "DATA_NOT_FOUND", body.Error.Code)
	assert.Equal(t, "/api/v1/score/missing", body.Path)
	assert.Equal(t, rec.Header().Get(constants.HeaderRequestID), body.RequestID)
}

func TestScoreItemFromBody(t *testing.T) {
	srv := newTestServer(t, nil)

	payload, err := json.Marshal(contentItem("adhoc", "published"))
	require.NoError(t, err)
	rec := srv.do(http.MethodPost, "/api/v1/score", payload)
	require.Equal(t, http.StatusOK, rec.Code)

	var report models.ScoreReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "adhoc", report.ContentID)

	rec = srv.do(http.MethodPost, "/api/v1/score", []byte("{not json"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_FORMAT", decodeError(t, rec).Error.Code)
}

func TestHistory(t *testing.T) {
	srv := newTestServer(t, nil)

	require.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/api/v1/score/post-1", nil).Code)

	rec := srv.do(http.MethodGet, "/api/v1/history/post-1?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		ContentID string                `json:"content_id"`
		Reports   []*models.ScoreReport `json:"reports"`
		Count     int                   `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "post-1", body.ContentID)
	assert.Equal(t, 1, body.Count)

	rec = srv.do(http.MethodGet, "/api/v1/history/post-1?limit=500", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "OUT_OF_RANGE", decodeError(t, rec).Error.Code)
}

func TestTrendEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(http.MethodGet, "/api/v1/analyze/post-1/trend?metric=pageviews&days=60", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var trend models.TrendResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trend))
	assert.Equal(t, "pageviews", trend.Metric)
	assert.Equal(t, 30, trend.DataPoints)

	rec = srv.do(http.MethodGet, "/api/v1/analyze/post-1/trend", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MISSING_FIELD", decodeError(t, rec).Error.Code)

	rec = srv.do(http.MethodGet, "/api/v1/analyze/post-1/trend?metric=pageviews&days=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnomaliesEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(http.MethodGet, "/api/v1/analyze/post-1/anomalies?metric=pageviews", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Anomalies []models.Anomaly `json:"anomalies"`
		Count     int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotZero(t, body.Count)
	values := make([]float64, 0, len(body.Anomalies))
	for _, a := range body.Anomalies {
		values = append(values, a.Value)
	}
	assert.Contains(t, values, 400.0)

	rec = srv.do(http.MethodGet, "/api/v1/analyze/post-1/anomalies?metric=pageviews&sensitivity=extreme", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestForecastEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(http.MethodGet, "/api/v1/analyze/post-1/forecast?metric=bounce_rate&horizon=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var forecast models.ForecastResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &forecast))
	assert.Equal(t, 5, forecast.Horizon)
	assert.Len(t, forecast.Points, 5)

	rec = srv.do(http.MethodGet, "/api/v1/analyze/post-2/forecast?metric=pageviews", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnalyzeAndCorrelations(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(http.MethodGet, "/api/v1/analyze/post-1?metrics=pageviews,bounce_rate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var analysis batch.Analysis
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &analysis))
	assert.Len(t, analysis.Trends, 2)

	rec = srv.do(http.MethodGet, "/api/v1/analyze/post-1/correlations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var report models.CorrelationReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.ElementsMatch(t, []string{"bounce_rate", "pageviews"}, report.Metrics)
}

func TestInsightsAreCachedPerQuery(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(http.MethodGet, "/api/v1/insights/post-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get(constants.HeaderCache))
	var report models.InsightsReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "post-1", report.ContentID)
	assert.NotNil(t, report.Score)

	assert.Equal(t, "HIT", srv.do(http.MethodGet, "/api/v1/insights/post-1", nil).Header().Get(constants.HeaderCache))
	assert.Equal(t, "MISS", srv.do(http.MethodGet, "/api/v1/insights/post-1?metrics=pageviews", nil).Header().Get(constants.HeaderCache))
}

func TestRunBatch(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(http.MethodPost, "/api/v1/batch/score", []byte(`{"content_ids":["post-1","missing"]}`))
	require.Equal(t, http.StatusOK, rec.Code)
	var summary batch.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)

	rec = srv.do(http.MethodPost, "/api/v1/batch/score", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 2, summary.Succeeded)

	rec = srv.do(http.MethodPost, "/api/v1/batch/export", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMissingCollaboratorsAnswerUnavailable(t *testing.T) {
	srv := newTestServer(t, func(deps *Dependencies, _ *Config) {
		deps.Processor = nil
		deps.Analytics = nil
		deps.Alerts = nil
	})

	assert.Equal(t, http.StatusServiceUnavailable, srv.do(http.MethodPost, "/api/v1/batch/score", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, srv.do(http.MethodGet, "/api/v1/analyze/post-1/trend?metric=pageviews", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, srv.do(http.MethodGet, "/api/v1/alerts", nil).Code)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status health.SystemStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, health.StatusHealthy, status.OverallStatus)
	assert.Contains(t, status.CheckResults, "report_store")

	require.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/api/v1/score/post-1", nil).Code)
	rec = srv.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `contentscore_http_requests_total{method="GET",route="/api/v1/score/{id}",status="200"} 1`)
	assert.Contains(t, rec.Body.String(), "contentscore_cache_requests_total")

	assert.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/health/live", nil).Code)
	assert.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/version", nil).Code)
}

func TestAlertsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(http.MethodGet, "/api/v1/alerts?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"alerts":[],"count":0}`, rec.Body.String())
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, func(_ *Dependencies, config *Config) {
		config.RateLimit.RequestsPerMinute = 1
		config.RateLimit.Burst = 2
	})

	for i := 0; i < 2; i++ {
		rec := srv.do(http.MethodGet, "/api/v1/content", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "1", rec.Header().Get(constants.HeaderRateLimit))
	}

	rec := srv.do(http.MethodGet, "/api/v1/content", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(constants.HeaderRetryAfter))
	assert.Equal(t, "0", rec.Header().Get(constants.HeaderRateLimitRemaining))

	// health checks are never limited
	assert.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/health/live", nil).Code)
}

func TestRequestTooLarge(t *testing.T) {
	srv := newTestServer(t, func(_ *Dependencies, config *Config) {
		config.MaxRequestSize = 16
	})

	rec := srv.do(http.MethodPost, "/api/v1/score", bytes.Repeat([]byte("x"), 64))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestNotFound(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(http.MethodGet, "/api/v2/anything", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decodeError(t, rec).Error.Message, "no route for GET /api/v2/anything")
}

func TestNewServerRequiresPipeline(t *testing.T) {
	_, err := NewServer(DefaultConfig(), &Dependencies{}, logrus.New())
	assert.Error(t, err)

	config := DefaultConfig()
	config.Port = 0
	_, err = NewServer(config, &Dependencies{}, logrus.New())
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Equal(t, "0.0.0.0:8080", DefaultConfig().Address())

	config := DefaultConfig()
	config.ReadTimeout = 0
	config.TLSCertFile = "cert.pem"
	config.RateLimit.Burst = 0
	err := config.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid server configuration")
}

func TestClientLimiterPrunesIdleClients(t *testing.T) {
	current := now
	limiter := newClientLimiter(RateLimitConfig{RequestsPerMinute: 60, Burst: 1, IdleExpiry: time.Minute},
		func() time.Time { return current })

	assert.True(t, limiter.allow("a").Allowed)
	blocked := limiter.allow("a")
	assert.False(t, blocked.Allowed)
	assert.Equal(t, time.Second, blocked.RetryAfter)
	assert.True(t, limiter.allow("b").Allowed)

	current = current.Add(2 * time.Second)
	assert.True(t, limiter.allow("a").Allowed)

	current = current.Add(90 * time.Second)
	assert.Equal(t, 2, limiter.prune())
	assert.Equal(t, 0, limiter.size())
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", getClientIP(r))

	r.Header.Set(constants.HeaderRealIP, "10.0.0.2")
	assert.Equal(t, "10.0.0.2", getClientIP(r))

	r.Header.Set(constants.HeaderForwardedFor, "203.0.113.7, 10.0.0.3")
	assert.Equal(t, "203.0.113.7", getClientIP(r))
}

// Helper functions

type testServer struct {
	*Server
}

func (s *testServer) do(method, path string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set(constants.HeaderContentType, constants.ContentTypeJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func newTestServer(t *testing.T, customize func(*Dependencies, *Config)) *testServer {
	t.Helper()
	ctx := context.Background()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	clock := func() time.Time { return now }

	content, err := file.NewContentProvider(&file.ContentProviderConfig{BasePath: t.TempDir()}, logger)
	require.NoError(t, err)
	require.NoError(t, content.SaveContent(ctx, contentItem("post-1", "published")))
	require.NoError(t, content.SaveContent(ctx, contentItem("post-2", "published")))

	store, err := file.NewMetricStore(&file.MetricStoreConfig{BasePath: t.TempDir()}, logger)
	require.NoError(t, err)
	require.NoError(t, store.Connect(ctx))
	pageviews := make([]float64, 30)
	bounce := make([]float64, 30)
	for i := range pageviews {
		pageviews[i] = 100 + float64(i%3)
		bounce[i] = 0.4 + 0.001*float64(i)
	}
	pageviews[25] = 400
	start := now.AddDate(0, 0, -30)
	require.NoError(t, store.Write(ctx, "post-1", models.NewMetricSeries("pageviews", start, 24*time.Hour, pageviews)))
	require.NoError(t, store.Write(ctx, "post-1", models.NewMetricSeries("bounce_rate", start, 24*time.Hour, bounce)))

	reports, err := sqlite.NewReportStore(&sqlite.SQLiteConfig{Path: filepath.Join(t.TempDir(), "reports.db")}, logger)
	require.NoError(t, err)
	require.NoError(t, reports.Connect(ctx))
	t.Cleanup(func() { reports.Close() })

	prom, err := metrics.NewPrometheusMetrics(nil, logger)
	require.NoError(t, err)

	monitor := health.NewHealthMonitor(nil, logger)
	monitor.RegisterCheck(health.NewStorageCheck("report_store", reports, true))

	alerts := alerting.NewAlertManager(nil, logger)
	scorer := scoring.NewEngine(nil, nil, logger, scoring.WithClock(clock))
	engine := analytics.NewEngine(store, scorer, nil, logger, analytics.WithAggregatorClock(clock))
	pipeline := batch.NewPipeline(content, scorer, engine, nil, logger,
		batch.WithReportStore(reports), batch.WithAlerts(alerts))
	batchConfig := batch.DefaultConfig()
	batchConfig.Archive = false
	processor := batch.NewProcessor(pipeline, batchConfig, logger, batch.WithClock(clock), batch.WithRecorder(prom))

	deps := &Dependencies{
		Pipeline:  pipeline,
		Analytics: engine,
		Processor: processor,
		Cache:     cache.NewMemoryCache(nil, logger),
		Metrics:   prom,
		Health:    monitor,
		Alerts:    alerts,
	}
	config := DefaultConfig()
	if customize != nil {
		customize(deps, config)
	}

	srv, err := NewServer(config, deps, logger)
	require.NoError(t, err)
	srv.handlers.clock = clock
	return &testServer{Server: srv}
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
	Path      string `json:"path"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func contentItem(id, status string) *models.ContentItem {
	return &models.ContentItem{
		ID:              id,
		URL:             "https://example.com/" + id,
		Title:           "How to Measure Content Performance in 2024",
		Status:          status,
		MetaDescription: "A practical guide to measuring content performance with the metrics that matter for organic growth.",
		FocusKeyword:    "content performance",
		Body:            "<h1>Content performance</h1><p>Content performance is measured over time.</p><a href=\"/guides\">Guides</a>",
	}
}
