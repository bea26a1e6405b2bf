package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/contentscore/internal/cache"
	"github.com/inferloop/contentscore/internal/storage/implementations/file"
	"github.com/inferloop/contentscore/internal/storage/implementations/influxdb"
	"github.com/inferloop/contentscore/internal/storage/implementations/redis"
	"github.com/inferloop/contentscore/internal/storage/implementations/s3"
	"github.com/inferloop/contentscore/internal/storage/implementations/sqlite"
	"github.com/inferloop/contentscore/internal/storage/implementations/timescaledb"
	storageif "github.com/inferloop/contentscore/internal/storage/interfaces"
	"github.com/inferloop/contentscore/pkg/constants"
	"github.com/inferloop/contentscore/pkg/errors"
	"github.com/inferloop/contentscore/pkg/interfaces"
)

// Config selects and configures every storage collaborator
type Config struct {
	MetricStore string `json:"metric_store" yaml:"metric_store" mapstructure:"metric_store"` // influxdb | file
	ReportStore string `json:"report_store" yaml:"report_store" mapstructure:"report_store"` // timescaledb | sqlite | none
	Cache       string `json:"cache" yaml:"cache" mapstructure:"cache"`                      // redis | memory | none
	Archive     string `json:"archive" yaml:"archive" mapstructure:"archive"`                // s3 | none

	InfluxDB    influxdb.InfluxDBConfig       `json:"influxdb" yaml:"influxdb" mapstructure:"influxdb"`
	FileMetrics file.MetricStoreConfig        `json:"file_metrics" yaml:"file_metrics" mapstructure:"file_metrics"`
	TimescaleDB timescaledb.TimescaleDBConfig `json:"timescaledb" yaml:"timescaledb" mapstructure:"timescaledb"`
	SQLite      sqlite.SQLiteConfig           `json:"sqlite" yaml:"sqlite" mapstructure:"sqlite"`
	Redis       redis.RedisConfig             `json:"redis" yaml:"redis" mapstructure:"redis"`
	MemoryCache storageif.CacheConfig         `json:"memory_cache" yaml:"memory_cache" mapstructure:"memory_cache"`
	S3          s3.S3Config                   `json:"s3" yaml:"s3" mapstructure:"s3"`
	Content     file.ContentProviderConfig    `json:"content" yaml:"content" mapstructure:"content"`
}

// MetricStoreCreateFunc builds an unconnected metric store
type MetricStoreCreateFunc func(config *Config, logger *logrus.Logger) (interfaces.MetricStore, error)

// ReportStoreCreateFunc builds an unconnected report store
type ReportStoreCreateFunc func(config *Config, logger *logrus.Logger) (interfaces.ReportStore, error)

// CacheCreateFunc builds a ready-to-use cache
type CacheCreateFunc func(ctx context.Context, config *Config, logger *logrus.Logger) (storageif.Cache, error)

// Factory builds storage collaborators from configuration
type Factory struct {
	config         *Config
	metricCreators map[string]MetricStoreCreateFunc
	reportCreators map[string]ReportStoreCreateFunc
	cacheCreators  map[string]CacheCreateFunc
	mu             sync.RWMutex
	logger         *logrus.Logger
}

// NewFactory creates a new storage factory
func NewFactory(config *Config, logger *logrus.Logger) *Factory {
	if logger == nil {
		logger = logrus.New()
	}
	if config == nil {
		config = &Config{}
	}

	factory := &Factory{
		config:         config,
		metricCreators: make(map[string]MetricStoreCreateFunc),
		reportCreators: make(map[string]ReportStoreCreateFunc),
		cacheCreators:  make(map[string]CacheCreateFunc),
		logger:         logger,
	}

	// Register default storage types
	factory.registerDefaults()

	return factory
}

// RegisterMetricStore registers a metric store backend
func (f *Factory) RegisterMetricStore(storageType string, createFunc MetricStoreCreateFunc) error {
	if err := validateRegistration(storageType, createFunc == nil); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metricCreators[storageType] = createFunc
	return nil
}

// RegisterReportStore registers a report store backend
func (f *Factory) RegisterReportStore(storageType string, createFunc ReportStoreCreateFunc) error {
	if err := validateRegistration(storageType, createFunc == nil); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reportCreators[storageType] = createFunc
	return nil
}

// RegisterCache registers a cache backend
func (f *Factory) RegisterCache(storageType string, createFunc CacheCreateFunc) error {
	if err := validateRegistration(storageType, createFunc == nil); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cacheCreators[storageType] = createFunc
	return nil
}

// SupportedTypes returns the registered backend names per concern
func (f *Factory) SupportedTypes() map[string][]string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return map[string][]string{
		"metric_store": sortedKeys(f.metricCreators),
		"report_store": sortedKeys(f.reportCreators),
		"cache":        sortedKeys(f.cacheCreators),
	}
}

// MetricStore creates and connects the configured metric store
func (f *Factory) MetricStore(ctx context.Context) (interfaces.MetricStore, error) {
	storageType := f.config.MetricStore
	if storageType == "" {
		storageType = constants.StorageTypeFile
	}

	f.mu.RLock()
	createFunc, exists := f.metricCreators[storageType]
	f.mu.RUnlock()
	if !exists {
		return nil, unsupported("metric store", storageType)
	}

	store, err := createFunc(f.config, f.logger)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed,
			fmt.Sprintf("Failed to create %s metric store", storageType))
	}
	if err := store.Connect(ctx); err != nil {
		store.Close()
		return nil, err
	}

	f.logger.WithField("storage_type", storageType).Info("Created metric store")
	return store, nil
}

// ReportStore creates and connects the configured report store. It returns
// nil without error when report history is disabled.
func (f *Factory) ReportStore(ctx context.Context) (interfaces.ReportStore, error) {
	storageType := f.config.ReportStore
	if storageType == "" || storageType == constants.StorageTypeNone {
		return nil, nil
	}

	f.mu.RLock()
	createFunc, exists := f.reportCreators[storageType]
	f.mu.RUnlock()
	if !exists {
		return nil, unsupported("report store", storageType)
	}

	store, err := createFunc(f.config, f.logger)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed,
			fmt.Sprintf("Failed to create %s report store", storageType))
	}
	if err := store.Connect(ctx); err != nil {
		store.Close()
		return nil, err
	}

	f.logger.WithField("storage_type", storageType).Info("Created report store")
	return store, nil
}

// Cache creates the configured cache, or nil when caching is disabled
func (f *Factory) Cache(ctx context.Context) (storageif.Cache, error) {
	storageType := f.config.Cache
	if storageType == "" || storageType == constants.StorageTypeNone {
		return nil, nil
	}

	f.mu.RLock()
	createFunc, exists := f.cacheCreators[storageType]
	f.mu.RUnlock()
	if !exists {
		return nil, unsupported("cache", storageType)
	}

	c, err := createFunc(ctx, f.config, f.logger)
	if err != nil {
		return nil, err
	}

	f.logger.WithField("storage_type", storageType).Info("Created cache")
	return c, nil
}

// Archive creates and connects the S3 report archive, or returns nil when
// archiving is disabled
func (f *Factory) Archive(ctx context.Context) (*s3.ReportArchive, error) {
	switch f.config.Archive {
	case "", constants.StorageTypeNone:
		return nil, nil
	case constants.StorageTypeS3:
	default:
		return nil, unsupported("archive", f.config.Archive)
	}

	archive, err := s3.NewReportArchive(&f.config.S3, f.logger)
	if err != nil {
		return nil, err
	}
	if err := archive.Connect(ctx); err != nil {
		return nil, err
	}
	return archive, nil
}

// ContentProvider creates the directory-backed content provider
func (f *Factory) ContentProvider() (*file.ContentProvider, error) {
	return file.NewContentProvider(&f.config.Content, f.logger)
}

// Backends holds every collaborator built from one Config. Optional
// collaborators are nil when disabled.
type Backends struct {
	Metrics interfaces.MetricStore
	Reports interfaces.ReportStore
	Cache   storageif.Cache
	Archive *s3.ReportArchive
	Content *file.ContentProvider
}

// Open builds all configured collaborators. On failure the ones already
// opened are closed.
func (f *Factory) Open(ctx context.Context) (*Backends, error) {
	b := &Backends{}
	var err error

	if b.Metrics, err = f.MetricStore(ctx); err != nil {
		return nil, err
	}
	if b.Reports, err = f.ReportStore(ctx); err != nil {
		b.Close()
		return nil, err
	}
	if b.Cache, err = f.Cache(ctx); err != nil {
		b.Close()
		return nil, err
	}
	if b.Archive, err = f.Archive(ctx); err != nil {
		b.Close()
		return nil, err
	}
	if b.Content, err = f.ContentProvider(); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// Close closes every opened collaborator and returns the first error
func (b *Backends) Close() error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	if b.Metrics != nil {
		keep(b.Metrics.Close())
	}
	if b.Reports != nil {
		keep(b.Reports.Close())
	}
	if b.Cache != nil {
		keep(b.Cache.Close())
	}
	if b.Archive != nil {
		keep(b.Archive.Close())
	}
	return first
}

// Health reports the health of every opened collaborator by name
func (b *Backends) Health(ctx context.Context) map[string]*interfaces.HealthStatus {
	out := make(map[string]*interfaces.HealthStatus)

	add := func(name string, s interfaces.Storage) {
		status, err := s.Health(ctx)
		if err != nil {
			status = &interfaces.HealthStatus{Status: "unhealthy", Errors: []string{err.Error()}}
		}
		out[name] = status
	}

	if b.Metrics != nil {
		add("metric_store", b.Metrics)
	}
	if b.Reports != nil {
		add("report_store", b.Reports)
	}
	if b.Cache != nil {
		status := &interfaces.HealthStatus{Status: "healthy"}
		if err := b.Cache.Health(ctx); err != nil {
			status.Status = "unhealthy"
			status.Errors = []string{err.Error()}
		}
		out["cache"] = status
	}
	return out
}

// registerDefaults registers the built-in storage implementations
func (f *Factory) registerDefaults() {
	f.RegisterMetricStore(constants.StorageTypeInfluxDB, func(config *Config, logger *logrus.Logger) (interfaces.MetricStore, error) {
		return influxdb.NewMetricStore(&config.InfluxDB, logger)
	})
	f.RegisterMetricStore(constants.StorageTypeFile, func(config *Config, logger *logrus.Logger) (interfaces.MetricStore, error) {
		return file.NewMetricStore(&config.FileMetrics, logger)
	})

	f.RegisterReportStore(constants.StorageTypeTimescaleDB, func(config *Config, logger *logrus.Logger) (interfaces.ReportStore, error) {
		return timescaledb.NewReportStore(&config.TimescaleDB, logger)
	})
	f.RegisterReportStore(constants.StorageTypeSQLite, func(config *Config, logger *logrus.Logger) (interfaces.ReportStore, error) {
		return sqlite.NewReportStore(&config.SQLite, logger)
	})

	f.RegisterCache(constants.StorageTypeRedis, func(ctx context.Context, config *Config, logger *logrus.Logger) (storageif.Cache, error) {
		c, err := redis.NewRedisCache(&config.Redis, logger)
		if err != nil {
			return nil, err
		}
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
		return c, nil
	})
	f.RegisterCache(constants.StorageTypeMemory, func(ctx context.Context, config *Config, logger *logrus.Logger) (storageif.Cache, error) {
		memConfig := config.MemoryCache
		return cache.NewMemoryCache(&memConfig, logger), nil
	})
}

func validateRegistration(storageType string, nilFunc bool) error {
	if storageType == "" {
		return errors.NewValidationError(errors.CodeMissingField, "Storage type cannot be empty")
	}
	if nilFunc {
		return errors.NewValidationError(errors.CodeMissingField, "Storage create function cannot be nil")
	}
	return nil
}

func unsupported(concern, storageType string) error {
	return errors.NewConfigurationError(errors.CodeInvalidConfig,
		fmt.Sprintf("%s type '%s' is not supported", concern, storageType)).WithCause(errors.ErrInvalidConfiguration)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
