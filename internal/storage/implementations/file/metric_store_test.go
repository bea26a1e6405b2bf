package file

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/contentscore/pkg/errors"
	"github.com/inferloop/contentscore/pkg/models"
)

func TestNewMetricStoreInvalidConfig(t *testing.T) {
	_, err := NewMetricStore(nil, logrus.New())
	require.Error(t, err)

	_, err = NewMetricStore(&MetricStoreConfig{}, logrus.New())
	require.Error(t, err)
}

func TestMetricStoreConnect(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "metrics")

	store, err := NewMetricStore(&MetricStoreConfig{BasePath: missing}, logrus.New())
	require.NoError(t, err)
	err = store.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrStorageConnectionFailed))

	store, err = NewMetricStore(&MetricStoreConfig{BasePath: missing, CreateDirs: true}, logrus.New())
	require.NoError(t, err)
	require.NoError(t, store.Connect(context.Background()))
	assert.DirExists(t, missing)
}

func TestMetricStoreWriteAndQuery(t *testing.T) {
	store := openMetricStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "post-1", models.NewMetricSeries("pageviews", start, 24*time.Hour, []float64{10, 12, 15})))
	require.NoError(t, store.Write(ctx, "post-1", models.NewMetricSeries("pageviews", start.AddDate(0, 0, 3), 24*time.Hour, []float64{18, 21})))

	series, err := store.Query(ctx, &models.MetricQuery{ContentID: "post-1", Metric: "pageviews"})
	require.NoError(t, err)
	assert.Equal(t, "pageviews", series.Metric)
	assert.Equal(t, []float64{10, 12, 15, 18, 21}, series.Values())

	// Start inclusive, end exclusive
	series, err = store.Query(ctx, &models.MetricQuery{
		ContentID: "post-1",
		Metric:    "pageviews",
		Start:     start.AddDate(0, 0, 1),
		End:       start.AddDate(0, 0, 4),
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{12, 15, 18}, series.Values())

	series, err = store.Query(ctx, &models.MetricQuery{ContentID: "post-1", Metric: "pageviews", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []float64{18, 21}, series.Values())
}

func TestMetricStoreQueryNormalizes(t *testing.T) {
	store := openMetricStore(t)
	ctx := context.Background()

	series := &models.MetricSeries{Metric: "shares", Points: []models.DataPoint{
		{Timestamp: start.AddDate(0, 0, 1), Value: 2},
		{Timestamp: start, Value: 1},
		{Timestamp: start.AddDate(0, 0, 1), Value: 3},
	}}
	require.NoError(t, store.Write(ctx, "post-1", series))

	got, err := store.Query(ctx, &models.MetricQuery{ContentID: "post-1", Metric: "shares"})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 3}, got.Values())
}

func TestMetricStoreNotFound(t *testing.T) {
	store := openMetricStore(t)
	ctx := context.Background()

	_, err := store.Query(ctx, &models.MetricQuery{ContentID: "post-1", Metric: "pageviews"})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrDataNotFound))

	require.NoError(t, store.Write(ctx, "post-1", models.NewMetricSeries("pageviews", start, time.Hour, []float64{1})))
	_, err = store.Query(ctx, &models.MetricQuery{ContentID: "post-1", Metric: "pageviews", Start: start.AddDate(1, 0, 0)})
	assert.True(t, stderrors.Is(err, errors.ErrDataNotFound))
}

func TestMetricStoreCorruptFile(t *testing.T) {
	store := openMetricStore(t)
	dir := filepath.Join(store.config.BasePath, "post-1")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pageviews.csv"),
		[]byte("timestamp,value\n2024-01-01T00:00:00Z,abc\n"), 0o644))

	_, err := store.Query(context.Background(), &models.MetricQuery{ContentID: "post-1", Metric: "pageviews"})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrInvalidInputData))
}

func TestMetricStoreListMetrics(t *testing.T) {
	store := openMetricStore(t)
	ctx := context.Background()

	metrics, err := store.ListMetrics(ctx, "post-1")
	require.NoError(t, err)
	assert.Empty(t, metrics)

	for _, m := range []string{"shares", "pageviews"} {
		require.NoError(t, store.Write(ctx, "post-1", models.NewMetricSeries(m, start, time.Hour, []float64{1})))
	}
	metrics, err = store.ListMetrics(ctx, "post-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"pageviews", "shares"}, metrics)
}

func TestMetricStoreNotConnected(t *testing.T) {
	store, err := NewMetricStore(&MetricStoreConfig{BasePath: t.TempDir()}, logrus.New())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Query(ctx, &models.MetricQuery{ContentID: "a", Metric: "b"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeStorage))
	assert.Error(t, store.Write(ctx, "a", models.NewMetricSeries("b", start, time.Hour, nil)))

	health, err := store.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "unhealthy", health.Status)
}

// Helper functions

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func openMetricStore(t *testing.T) *MetricStore {
	t.Helper()
	store, err := NewMetricStore(&MetricStoreConfig{BasePath: t.TempDir()}, logrus.New())
	require.NoError(t, err)
	require.NoError(t, store.Connect(context.Background()))
	return store
}
