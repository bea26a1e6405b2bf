package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/contentscore/internal/storage/implementations/file"
	"github.com/inferloop/contentscore/pkg/models"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestItemQualityCycles(t *testing.T) {
	g := NewGenerator(testGeneratorConfig())

	strong := g.Item(0, now)
	weak := g.Item(2, now)

	assert.Equal(t, "content-audit-1", strong.ID)
	assert.True(t, strong.IsPublished())
	assert.NotEmpty(t, strong.MetaDescription)
	assert.Empty(t, weak.MetaDescription)
	assert.Greater(t, len(strong.Body), len(weak.Body))
	assert.Contains(t, strong.Body, "<a href=")
	assert.NotContains(t, weak.Body, "<a href=")
	assert.Less(t, strong.Technical.LoadTimeMs, weak.Technical.LoadTimeMs)
}

func TestSeriesShape(t *testing.T) {
	cfg := testGeneratorConfig()
	g := NewGenerator(cfg)
	profile := Profile{Metric: "ctr", Unit: "ratio", Base: 0.5, Trend: 0.05, Noise: 0.5, Min: 0, Max: 1}

	series := g.Series(profile, now)

	assert.Equal(t, "ctr", series.Metric)
	assert.Equal(t, "ratio", series.Unit)
	require.Len(t, series.Points, cfg.Days)
	assert.True(t, series.Points[len(series.Points)-1].Timestamp.Before(now))
	for i, p := range series.Points {
		assert.GreaterOrEqual(t, p.Value, 0.0)
		assert.LessOrEqual(t, p.Value, 1.0)
		if i > 0 {
			assert.True(t, p.Timestamp.After(series.Points[i-1].Timestamp))
		}
	}
}

func TestSeriesIsDeterministicForSeed(t *testing.T) {
	profile := getDefaultConfig().Profiles[0]

	a := NewGenerator(testGeneratorConfig()).Series(profile, now)
	b := NewGenerator(testGeneratorConfig()).Series(profile, now)

	assert.Equal(t, a.Values(), b.Values())
}

func TestTrendForVariesDirection(t *testing.T) {
	g := NewGenerator(testGeneratorConfig())
	profile := Profile{Metric: "pageviews", Trend: 0.01}

	assert.Equal(t, 0.01, g.TrendFor(profile, 0).Trend)
	assert.Equal(t, -0.01, g.TrendFor(profile, 1).Trend)
	assert.Equal(t, 0.0, g.TrendFor(profile, 3).Trend)
}

func TestPopulate(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	content, err := file.NewContentProvider(&file.ContentProviderConfig{BasePath: filepath.Join(dir, "content")}, logger)
	require.NoError(t, err)
	store, err := file.NewMetricStore(&file.MetricStoreConfig{BasePath: filepath.Join(dir, "metrics"), CreateDirs: true}, logger)
	require.NoError(t, err)
	require.NoError(t, store.Connect(ctx))
	defer store.Close()

	cfg := testGeneratorConfig()
	cfg.Items = 2
	written, err := Populate(ctx, NewGenerator(cfg), content, store, now, logger)
	require.NoError(t, err)
	assert.Equal(t, 2*len(cfg.Profiles), written)

	ids, err := content.ListContent(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	metrics, err := store.ListMetrics(ctx, "content-audit-1")
	require.NoError(t, err)
	assert.Len(t, metrics, len(cfg.Profiles))

	series, err := store.Query(ctx, &models.MetricQuery{ContentID: "content-audit-1", Metric: "pageviews"})
	require.NoError(t, err)
	assert.Equal(t, cfg.Days, series.Len())
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "generator.yaml")
	require.NoError(t, os.WriteFile(path, []byte("items: 3\ndays: 30\ninterval: 12h\n"), 0o644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Items)
	assert.Equal(t, 30, cfg.Days)
	assert.Equal(t, 12*time.Hour, cfg.Interval)
	assert.NotEmpty(t, cfg.Profiles)

	require.NoError(t, os.WriteFile(path, []byte("items: 0\n"), 0o644))
	_, err = loadConfig(path)
	assert.Error(t, err)
}

// Helper functions

func testGeneratorConfig() *Config {
	cfg := getDefaultConfig()
	cfg.Days = 28
	cfg.Seed = 42
	return cfg
}
