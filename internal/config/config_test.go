package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/contentscore/internal/scoring"
	"github.com/inferloop/contentscore/pkg/constants"
	"github.com/inferloop/contentscore/pkg/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, constants.DefaultPort, cfg.Server.Port)
	assert.Equal(t, constants.DefaultReadTimeout, cfg.Server.ReadTimeout)
	assert.Equal(t, constants.DefaultWorkerCount, cfg.Batch.Workers)
	assert.Equal(t, "medium", cfg.Analytics.Anomaly.Sensitivity)
	assert.InDelta(t, 0.25, cfg.Analytics.Insights.HealthWeights["organic_traffic"], 1e-9)
	assert.Equal(t, constants.StorageTypeFile, cfg.Storage.MetricStore)
	assert.Equal(t, constants.StorageTypeSQLite, cfg.Storage.ReportStore)
	assert.Equal(t, "./data/reports.db", cfg.Storage.SQLite.Path)
	assert.Equal(t, time.Hour, cfg.Storage.MemoryCache.DefaultTTL)
	assert.Equal(t, 10, cfg.Scoring.Engine.MaxRecommendations)
	assert.True(t, cfg.Schedule.Enabled)

	assert.NoError(t, cfg.Validate())
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
  format: text
server:
  port: 9000
  read_timeout: 5s
batch:
  workers: 8
storage:
  metric_store: influxdb
  influxdb:
    url: http://influx:8086
schedule:
  weekday: friday
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, constants.DefaultWriteTimeout, cfg.Server.WriteTimeout)
	assert.Equal(t, 8, cfg.Batch.Workers)
	assert.Equal(t, constants.DefaultQueueSize, cfg.Batch.QueueSize)
	assert.Equal(t, constants.StorageTypeInfluxDB, cfg.Storage.MetricStore)
	assert.Equal(t, "http://influx:8086", cfg.Storage.InfluxDB.URL)
	assert.Equal(t, "content_metrics", cfg.Storage.InfluxDB.Bucket)

	weekday, err := cfg.Schedule.ParseWeekday()
	require.NoError(t, err)
	assert.Equal(t, time.Friday, weekday)

	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("CONTENTSCORE_SERVER_PORT", "9191")
	t.Setenv("CONTENTSCORE_STORAGE_CACHE", "redis")
	t.Setenv("CONTENTSCORE_BATCH_JOB_TIMEOUT", "45s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, constants.StorageTypeRedis, cfg.Storage.Cache)
	assert.Equal(t, 45*time.Second, cfg.Batch.JobTimeout)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad server", func(c *Config) { c.Server.Port = 0 }, "server"},
		{"bad analytics", func(c *Config) { c.Analytics.MinDataPoints = 1 }, "analytics"},
		{"bad batch", func(c *Config) { c.Batch.Workers = 0 }, "batch"},
		{"unknown metric store", func(c *Config) { c.Storage.MetricStore = "mongo" }, "storage.metric_store"},
		{"influx without bucket", func(c *Config) {
			c.Storage.MetricStore = constants.StorageTypeInfluxDB
			c.Storage.InfluxDB.Bucket = ""
		}, "storage.influxdb"},
		{"unknown report store", func(c *Config) { c.Storage.ReportStore = "mysql" }, "storage.report_store"},
		{"s3 without bucket", func(c *Config) { c.Storage.Archive = constants.StorageTypeS3 }, "storage.s3.bucket"},
		{"redis without addr", func(c *Config) {
			c.Storage.Cache = constants.StorageTypeRedis
			c.Storage.Redis.Addr = ""
		}, "storage.redis.addr"},
		{"telegram without token", func(c *Config) {
			c.Alerting.Telegram.Enabled = true
			c.Alerting.Telegram.ChatID = "42"
		}, "alerting.telegram.bot_token"},
		{"schedule hour", func(c *Config) { c.Schedule.Hour = 24 }, "schedule.hour"},
		{"schedule weekday", func(c *Config) { c.Schedule.Weekday = "someday" }, "schedule.weekday"},
		{"schedule timezone", func(c *Config) { c.Schedule.Timezone = "Mars/Olympus" }, "schedule.timezone"},
		{"schedule job type", func(c *Config) { c.Schedule.Weekly = "export" }, "schedule.weekly"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration))
			assert.Contains(t, fieldsOf(t, err), tt.field)
		})
	}
}

func TestValidateDisabledScheduleSkipsChecks(t *testing.T) {
	cfg := Default()
	cfg.Schedule.Enabled = false
	cfg.Schedule.Hour = 99

	assert.NoError(t, cfg.Validate())
}

func TestLoadScoring(t *testing.T) {
	cfg := Default()
	registry := scoring.NewDefaultRegistry()

	scoringCfg, err := cfg.LoadScoring(registry)
	require.NoError(t, err)
	assert.Len(t, scoringCfg.Categories, 4)

	cfg.Scoring.ConfigPath = filepath.Join(t.TempDir(), "nope.yaml")
	_, err = cfg.LoadScoring(registry)
	assert.Error(t, err)
}

func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.Storage.Redis.Password = "hunter2"
	cfg.Alerting.Telegram.BotToken = "123:abc"
	cfg.Server.Auth.APIKeys = []string{"ops-key-0001"}

	redacted := cfg.Redacted()

	assert.Equal(t, redactedValue, redacted.Storage.Redis.Password)
	assert.Equal(t, redactedValue, redacted.Alerting.Telegram.BotToken)
	assert.Empty(t, redacted.Storage.TimescaleDB.Password)
	assert.Equal(t, []string{redactedValue}, redacted.Server.Auth.APIKeys)
	assert.Equal(t, "hunter2", cfg.Storage.Redis.Password)
	assert.Equal(t, "ops-key-0001", cfg.Server.Auth.APIKeys[0])
}

func TestCacheTTL(t *testing.T) {
	cfg := Default()
	cfg.Server.CacheTTL = 0
	assert.Equal(t, constants.DefaultCacheTTL, cfg.CacheTTL())

	cfg.Server.CacheTTL = time.Minute
	assert.Equal(t, time.Minute, cfg.CacheTTL())
}

func TestValidJobType(t *testing.T) {
	for _, jobType := range []string{"", "none", "score", "analyze", "insights"} {
		assert.True(t, ValidJobType(jobType), jobType)
	}
	assert.False(t, ValidJobType("generate"))
}

// Helper functions

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contentscore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func fieldsOf(t *testing.T, err error) []string {
	t.Helper()
	appErr, ok := err.(*errors.AppError)
	require.True(t, ok)
	ve, ok := appErr.Cause.(*errors.ValidationErrors)
	require.True(t, ok)

	fields := make([]string, 0, len(ve.Errors))
	for _, e := range ve.Errors {
		fields = append(fields, e.Field)
	}
	return fields
}
