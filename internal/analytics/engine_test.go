package analytics

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/contentscore/pkg/errors"
	"github.com/inferloop/contentscore/pkg/interfaces"
	"github.com/inferloop/contentscore/pkg/models"
)

func TestNewEngine(t *testing.T) {
	engine := NewEngine(nil, nil, nil, nil)

	assert.NotNil(t, engine)
	assert.NotNil(t, engine.logger)
	assert.Equal(t, DefaultConfig(), engine.Config())
	assert.Len(t, engine.Forecasts().Registry().Names(), 2)
}

func TestEngineLoadSeries(t *testing.T) {
	store := newMemoryStore()
	engine := NewEngine(store, stubScorer(), nil, logrus.New())

	series, err := engine.LoadSeries(context.Background(), "post-1", nil, Window{})
	require.NoError(t, err)
	assert.Len(t, series, 4)

	series, err = engine.LoadSeries(context.Background(), "post-1", []string{"ctr", "missing"}, Window{})
	require.NoError(t, err)
	assert.Len(t, series, 1)
	assert.Contains(t, series, "ctr")
}

func TestEngineLoadSeriesWithoutStore(t *testing.T) {
	engine := NewEngine(nil, nil, nil, logrus.New())

	_, err := engine.LoadSeries(context.Background(), "post-1", nil, Window{})

	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeStorage))
}

func TestEngineLoadSeriesStoreError(t *testing.T) {
	store := newMemoryStore()
	store.fail = fmt.Errorf("query timeout: %w", errors.ErrStorageTimeout)
	engine := NewEngine(store, nil, nil, logrus.New())

	_, err := engine.LoadSeries(context.Background(), "post-1", []string{"ctr"}, Window{})

	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrStorageTimeout))
}

func TestEngineAnalyses(t *testing.T) {
	engine := NewEngine(newMemoryStore(), stubScorer(), nil, logrus.New())
	ctx := context.Background()

	trend, err := engine.AnalyzeTrend(ctx, "post-1", "bounce_rate", Window{})
	require.NoError(t, err)
	assert.Equal(t, models.DirectionDeclining, trend.Direction)

	anomalies, err := engine.DetectAnomalies(ctx, "post-1", "sessions", Window{}, models.SensitivityMedium)
	require.NoError(t, err)
	assert.Len(t, anomalies, 1)

	forecast, err := engine.Forecast(ctx, "post-1", "organic_traffic", Window{}, 7, "")
	require.NoError(t, err)
	assert.Equal(t, MethodLinearRegression, forecast.Method)

	forecast, err = engine.Forecast(ctx, "post-1", "organic_traffic", Window{}, 7, MethodExponentialSmoothing)
	require.NoError(t, err)
	assert.Equal(t, MethodExponentialSmoothing, forecast.Method)

	correlations, err := engine.Correlate(ctx, "post-1", []string{"organic_traffic", "bounce_rate"}, Window{})
	require.NoError(t, err)
	assert.Len(t, correlations.Entries, 1)

	_, err = engine.AnalyzeTrend(ctx, "post-1", "missing", Window{})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrDataNotFound))
}

func TestEngineInsights(t *testing.T) {
	engine := NewEngine(newMemoryStore(), stubScorer(), nil, logrus.New(), WithAggregatorClock(insightsClock))

	report, err := engine.Insights(context.Background(), publishedItem(), nil, LastDays(insightsClock(), 90), stubScoringConfig())
	require.NoError(t, err)

	assert.Len(t, report.Trends, 4)
	assert.Equal(t, insightsClock(), report.GeneratedAt)
	assert.Equal(t, StatusAttentionNeeded, report.Summary.Status)
}

// Helper functions

type memoryStore struct {
	series map[string]*models.MetricSeries
	fail   error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{series: insightsSeries()}
}

func (m *memoryStore) Connect(context.Context) error { return nil }
func (m *memoryStore) Close() error { return nil }
func (m *memoryStore) Ping(context.Context) error { return nil }

func (m *memoryStore) Health(context.Context) (*interfaces.HealthStatus, error) {
	return &interfaces.HealthStatus{Status: "healthy"}, nil
}

func (m *memoryStore) Query(_ context.Context, q *models.MetricQuery) (*models.MetricSeries, error) {
	if m.fail != nil {
		return nil, m.fail
	}
	s, ok := m.series[q.Metric]
	if !ok {
		return nil, errors.ErrDataNotFound
	}
	return s, nil
}

func (m *memoryStore) Write(_ context.Context, _ string, s *models.MetricSeries) error {
	m.series[s.Metric] = s
	return nil
}

func (m *memoryStore) ListMetrics(context.Context, string) ([]string, error) {
	names := make([]string, 0, len(m.series))
	for name := range m.series {
		names = append(names, name)
	}
	return names, nil
}

var _ interfaces.MetricStore = (*memoryStore)(nil)
