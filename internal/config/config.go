package config

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/inferloop/contentscore/internal/analytics"
	"github.com/inferloop/contentscore/internal/observability/alerting"
	"github.com/inferloop/contentscore/internal/observability/health"
	"github.com/inferloop/contentscore/internal/observability/metrics"
	"github.com/inferloop/contentscore/internal/processors/batch"
	"github.com/inferloop/contentscore/internal/scoring"
	"github.com/inferloop/contentscore/internal/server"
	"github.com/inferloop/contentscore/internal/storage"
	"github.com/inferloop/contentscore/internal/storage/implementations/file"
	"github.com/inferloop/contentscore/internal/storage/implementations/influxdb"
	"github.com/inferloop/contentscore/internal/storage/implementations/redis"
	"github.com/inferloop/contentscore/internal/storage/implementations/s3"
	"github.com/inferloop/contentscore/internal/storage/implementations/sqlite"
	"github.com/inferloop/contentscore/internal/storage/implementations/timescaledb"
	storageif "github.com/inferloop/contentscore/internal/storage/interfaces"
	"github.com/inferloop/contentscore/pkg/constants"
	"github.com/inferloop/contentscore/pkg/errors"
)

const redactedValue = "********"

// Config represents the complete application configuration
type Config struct {
	Logging   LoggingConfig            `json:"logging" yaml:"logging" mapstructure:"logging"`
	Server    server.Config            `json:"server" yaml:"server" mapstructure:"server"`
	Scoring   ScoringConfig            `json:"scoring" yaml:"scoring" mapstructure:"scoring"`
	Analytics analytics.Config         `json:"analytics" yaml:"analytics" mapstructure:"analytics"`
	Storage   storage.Config           `json:"storage" yaml:"storage" mapstructure:"storage"`
	Batch     batch.Config             `json:"batch" yaml:"batch" mapstructure:"batch"`
	Schedule  ScheduleConfig           `json:"schedule" yaml:"schedule" mapstructure:"schedule"`
	Metrics   metrics.PrometheusConfig `json:"metrics" yaml:"metrics" mapstructure:"metrics"`
	Alerting  alerting.AlertConfig     `json:"alerting" yaml:"alerting" mapstructure:"alerting"`
	Health    health.HealthConfig      `json:"health" yaml:"health" mapstructure:"health"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level"`
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

// ScoringConfig points at the category/criterion file and tunes the engine.
// An empty ConfigPath uses the built-in categories.
type ScoringConfig struct {
	ConfigPath string               `json:"config_path" yaml:"config_path" mapstructure:"config_path"`
	Engine     scoring.EngineConfig `json:"engine" yaml:"engine" mapstructure:"engine"`
}

// ScheduleConfig drives the worker's recurring analysis runs
type ScheduleConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Hour     int    `json:"hour" yaml:"hour" mapstructure:"hour"`
	Daily    string `json:"daily" yaml:"daily" mapstructure:"daily"`
	Weekly   string `json:"weekly" yaml:"weekly" mapstructure:"weekly"`
	Weekday  string `json:"weekday" yaml:"weekday" mapstructure:"weekday"`
	Monthly  string `json:"monthly" yaml:"monthly" mapstructure:"monthly"`
	MonthDay int    `json:"month_day" yaml:"month_day" mapstructure:"month_day"`
	Timezone string `json:"timezone" yaml:"timezone" mapstructure:"timezone"`
}

// Location resolves Timezone, defaulting to UTC
func (s ScheduleConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(s.Timezone)
}

// ParseWeekday resolves Weekday, e.g. "monday"
func (s ScheduleConfig) ParseWeekday() (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), s.Weekday) {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", s.Weekday)
}

// Default returns the configuration used when no file or environment
// override is present
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  constants.DefaultLogLevel,
			Format: constants.DefaultLogFormat,
		},
		Server: *server.DefaultConfig(),
		Scoring: ScoringConfig{
			Engine: *scoring.DefaultEngineConfig(),
		},
		Analytics: *analytics.DefaultConfig(),
		Storage:   defaultStorage(),
		Batch:     *batch.DefaultConfig(),
		Schedule: ScheduleConfig{
			Enabled:  true,
			Hour:     2,
			Daily:    constants.JobTypeScore,
			Weekly:   constants.JobTypeAnalyze,
			Weekday:  "monday",
			Monthly:  constants.JobTypeInsights,
			MonthDay: 1,
			Timezone: "UTC",
		},
		Metrics:  *metrics.DefaultPrometheusConfig(),
		Alerting: *alerting.DefaultAlertConfig(),
		Health:   *health.DefaultHealthConfig(),
	}
}

func defaultStorage() storage.Config {
	return storage.Config{
		MetricStore: constants.StorageTypeFile,
		ReportStore: constants.StorageTypeSQLite,
		Cache:       constants.StorageTypeMemory,
		Archive:     constants.StorageTypeNone,
		InfluxDB: influxdb.InfluxDBConfig{
			URL:          "http://localhost:8086",
			Organization: "contentscore",
			Bucket:       "content_metrics",
			Measurement:  "content_metrics",
			Timeout:      constants.DefaultStorageTimeout,
			BatchSize:    1000,
			DefaultRange: "-90d",
		},
		FileMetrics: file.MetricStoreConfig{
			BasePath:   "./data/metrics",
			CreateDirs: true,
		},
		TimescaleDB: timescaledb.TimescaleDBConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "contentscore",
			SSLMode:  "disable",
			Table:    "score_reports",
		},
		SQLite: sqlite.SQLiteConfig{
			Path:        "./data/reports.db",
			BusyTimeout: 5 * time.Second,
		},
		Redis: redis.RedisConfig{
			Addr:         "localhost:6379",
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     10,
			TTL:          constants.DefaultCacheTTL,
			KeyPrefix:    "contentscore:",
		},
		MemoryCache: *storageif.DefaultCacheConfig(),
		S3: s3.S3Config{
			Region:       "us-east-1",
			Prefix:       "batch-runs",
			Timeout:      constants.DefaultStorageTimeout,
			MaxRetries:   3,
			StorageClass: "STANDARD",
		},
		Content: file.ContentProviderConfig{
			BasePath: "./data/content",
		},
	}
}

// Load reads configuration from path and CONTENTSCORE_ environment
// variables. An empty path loads defaults and environment only; a missing
// file is an error when path is given.
func Load(path string) (*Config, error) {
	v := viper.New()

	if err := setDefaults(v); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeConfiguration, errors.CodeConfigLoadFailed,
				fmt.Sprintf("failed to read config file %s", path))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeConfiguration, errors.CodeConfigLoadFailed,
			"failed to unmarshal config")
	}

	return &cfg, nil
}

// setDefaults registers every value of Default() with v, keyed the same way
// a YAML file would be
func setDefaults(v *viper.Viper) error {
	raw, err := yaml.Marshal(Default())
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeInternalError, "failed to encode defaults")
	}
	var tree map[string]interface{}
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeInternalError, "failed to decode defaults")
	}
	for key, value := range tree {
		v.SetDefault(key, value)
	}
	return nil
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	ve := errors.NewValidationErrors()
	ve.Message = "invalid configuration"

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		ve.Add("logging.level", errors.CodeInvalidConfig, "must be one of: debug, info, warn, error", c.Logging.Level)
	}
	validFormats := map[string]bool{constants.OutputFormatJSON: true, constants.OutputFormatText: true}
	if !validFormats[c.Logging.Format] {
		ve.Add("logging.format", errors.CodeInvalidConfig, "must be one of: json, text", c.Logging.Format)
	}

	nested := []struct {
		section string
		err     error
	}{
		{"server", c.Server.Validate()},
		{"analytics", c.Analytics.Validate()},
		{"batch", c.Batch.Validate()},
	}
	for _, n := range nested {
		if n.err != nil {
			ve.Add(n.section, errors.CodeInvalidConfig, describe(n.err), nil)
		}
	}

	c.validateStorage(ve)

	if c.Metrics.Enabled && c.Metrics.Path == "" {
		ve.Add("metrics.path", errors.CodeMissingField, "is required when metrics are enabled", nil)
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		ve.Add("metrics.port", errors.CodeOutOfRange, "must be between 0 and 65535", c.Metrics.Port)
	}

	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			ve.Add("alerting.telegram.bot_token", errors.CodeMissingField, "is required when telegram is enabled", nil)
		}
		if c.Alerting.Telegram.ChatID == "" {
			ve.Add("alerting.telegram.chat_id", errors.CodeMissingField, "is required when telegram is enabled", nil)
		}
	}
	if c.Alerting.HistorySize < 0 {
		ve.Add("alerting.history_size", errors.CodeOutOfRange, "must not be negative", c.Alerting.HistorySize)
	}

	if c.Health.Enabled && c.Health.CheckInterval < time.Second {
		ve.Add("health.check_interval", errors.CodeOutOfRange, "must be at least 1s", c.Health.CheckInterval.String())
	}

	c.validateSchedule(ve)

	if ve.HasErrors() {
		return errors.NewConfigurationError(errors.CodeInvalidConfig, "invalid configuration").WithCause(ve)
	}
	return nil
}

func (c *Config) validateStorage(ve *errors.ValidationErrors) {
	s := c.Storage
	switch s.MetricStore {
	case constants.StorageTypeFile:
		if s.FileMetrics.BasePath == "" {
			ve.Add("storage.file_metrics.base_path", errors.CodeMissingField, "is required for the file metric store", nil)
		}
	case constants.StorageTypeInfluxDB:
		if s.InfluxDB.URL == "" || s.InfluxDB.Bucket == "" {
			ve.Add("storage.influxdb", errors.CodeMissingField, "url and bucket are required", nil)
		}
	default:
		ve.Add("storage.metric_store", errors.CodeInvalidConfig, "must be one of: file, influxdb", s.MetricStore)
	}

	switch s.ReportStore {
	case "", constants.StorageTypeNone:
	case constants.StorageTypeSQLite:
		if s.SQLite.Path == "" {
			ve.Add("storage.sqlite.path", errors.CodeMissingField, "is required for the sqlite report store", nil)
		}
	case constants.StorageTypeTimescaleDB:
		if s.TimescaleDB.Host == "" || s.TimescaleDB.Database == "" {
			ve.Add("storage.timescaledb", errors.CodeMissingField, "host and database are required", nil)
		}
	default:
		ve.Add("storage.report_store", errors.CodeInvalidConfig, "must be one of: none, sqlite, timescaledb", s.ReportStore)
	}

	switch s.Cache {
	case "", constants.StorageTypeNone, constants.StorageTypeMemory:
	case constants.StorageTypeRedis:
		if s.Redis.Addr == "" && len(s.Redis.ClusterAddrs) == 0 {
			ve.Add("storage.redis.addr", errors.CodeMissingField, "addr or cluster_addrs is required", nil)
		}
	default:
		ve.Add("storage.cache", errors.CodeInvalidConfig, "must be one of: none, memory, redis", s.Cache)
	}

	switch s.Archive {
	case "", constants.StorageTypeNone:
	case constants.StorageTypeS3:
		if s.S3.Bucket == "" {
			ve.Add("storage.s3.bucket", errors.CodeMissingField, "is required for the s3 archive", nil)
		}
	default:
		ve.Add("storage.archive", errors.CodeInvalidConfig, "must be one of: none, s3", s.Archive)
	}

	if s.Content.BasePath == "" {
		ve.Add("storage.content.base_path", errors.CodeMissingField, "is required", nil)
	}
}

func (c *Config) validateSchedule(ve *errors.ValidationErrors) {
	s := c.Schedule
	if !s.Enabled {
		return
	}
	if s.Hour < 0 || s.Hour > 23 {
		ve.Add("schedule.hour", errors.CodeOutOfRange, "must be between 0 and 23", s.Hour)
	}
	if s.MonthDay < 1 || s.MonthDay > 28 {
		ve.Add("schedule.month_day", errors.CodeOutOfRange, "must be between 1 and 28", s.MonthDay)
	}
	if _, err := s.ParseWeekday(); err != nil {
		ve.Add("schedule.weekday", errors.CodeInvalidFormat, err.Error(), s.Weekday)
	}
	if _, err := s.Location(); err != nil {
		ve.Add("schedule.timezone", errors.CodeInvalidFormat, err.Error(), s.Timezone)
	}
	for field, jobType := range map[string]string{"daily": s.Daily, "weekly": s.Weekly, "monthly": s.Monthly} {
		if !ValidJobType(jobType) {
			ve.Add("schedule."+field, errors.CodeInvalidConfig, "must be one of: none, score, analyze, insights", jobType)
		}
	}
}

// ValidJobType reports whether jobType names a batch job. Empty and "none"
// disable a schedule slot.
func ValidJobType(jobType string) bool {
	switch jobType {
	case "", constants.StorageTypeNone, constants.JobTypeScore, constants.JobTypeAnalyze, constants.JobTypeInsights:
		return true
	}
	return false
}

// LoadScoring returns the scoring category configuration: the file at
// Scoring.ConfigPath when set, otherwise the built-in default. The result is
// validated against registry.
func (c *Config) LoadScoring(registry *scoring.Registry) (*scoring.Config, error) {
	if c.Scoring.ConfigPath != "" {
		return scoring.LoadConfig(c.Scoring.ConfigPath, registry)
	}
	cfg := scoring.DefaultConfig()
	if err := cfg.Validate(registry); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Redacted returns a copy of c with every credential masked
func (c *Config) Redacted() *Config {
	out := *c
	mask := func(s *string) {
		if *s != "" {
			*s = redactedValue
		}
	}
	mask(&out.Storage.InfluxDB.Token)
	mask(&out.Storage.TimescaleDB.Password)
	mask(&out.Storage.Redis.Password)
	mask(&out.Storage.S3.SecretAccessKey)
	mask(&out.Storage.S3.SessionToken)
	mask(&out.Alerting.Telegram.BotToken)
	mask(&out.Server.Auth.JWTSecret)
	if len(c.Server.Auth.APIKeys) > 0 {
		keys := make([]string, len(c.Server.Auth.APIKeys))
		for i := range keys {
			keys[i] = redactedValue
		}
		out.Server.Auth.APIKeys = keys
	}
	return &out
}

// CacheTTL is the TTL used for cached score and insights reports
func (c *Config) CacheTTL() time.Duration {
	if c.Server.CacheTTL > 0 {
		return c.Server.CacheTTL
	}
	return constants.DefaultCacheTTL
}

// describe flattens a nested configuration error into one line
func describe(err error) string {
	var ve *errors.ValidationErrors
	if stderrors.As(err, &ve) {
		return ve.Error()
	}
	return err.Error()
}
