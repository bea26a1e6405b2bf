package app

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/contentscore/internal/analytics"
	"github.com/inferloop/contentscore/internal/config"
	"github.com/inferloop/contentscore/internal/observability/alerting"
	"github.com/inferloop/contentscore/internal/observability/health"
	"github.com/inferloop/contentscore/internal/observability/metrics"
	"github.com/inferloop/contentscore/internal/processors/batch"
	"github.com/inferloop/contentscore/internal/scoring"
	"github.com/inferloop/contentscore/internal/server"
	"github.com/inferloop/contentscore/internal/storage"
)

// App holds every collaborator built from one configuration. Metrics and
// Alerts are nil when disabled.
type App struct {
	Config    *config.Config
	Backends  *storage.Backends
	Scorer    *scoring.Engine
	Scoring   *scoring.Config
	Analytics *analytics.Engine
	Pipeline  *batch.Pipeline
	Processor *batch.Processor
	Metrics   *metrics.PrometheusMetrics
	Health    *health.HealthMonitor
	Alerts    *alerting.AlertManager

	logger *logrus.Logger
}

// Option customizes how an App is built
type Option func(*options)

type options struct {
	clock func() time.Time
}

// WithClock sets the time source shared by scoring, analytics and batch runs
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// New opens the configured storage and builds the scoring and analytics
// stack on top of it. Storage opened before a failure is closed.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg == nil {
		cfg = config.Default()
	}
	o := &options{clock: time.Now}
	for _, opt := range opts {
		opt(o)
	}

	a := &App{Config: cfg, logger: logger}

	if cfg.Metrics.Enabled {
		m, err := metrics.NewPrometheusMetrics(&cfg.Metrics, logger)
		if err != nil {
			return nil, err
		}
		a.Metrics = m
	}

	registry := scoring.NewDefaultRegistry()
	scoringCfg, err := cfg.LoadScoring(registry)
	if err != nil {
		return nil, err
	}
	a.Scoring = scoringCfg

	backends, err := storage.NewFactory(&cfg.Storage, logger).Open(ctx)
	if err != nil {
		return nil, err
	}
	a.Backends = backends

	if cfg.Alerting.Enabled {
		if a.Alerts, err = newAlertManager(cfg, logger); err != nil {
			backends.Close()
			return nil, err
		}
	}

	scorerOpts := []scoring.Option{scoring.WithClock(o.clock)}
	if a.Metrics != nil {
		scorerOpts = append(scorerOpts, scoring.WithObserver(a.Metrics))
	}
	a.Scorer = scoring.NewEngine(registry, &cfg.Scoring.Engine, logger, scorerOpts...)
	a.Analytics = analytics.NewEngine(backends.Metrics, a.Scorer, &cfg.Analytics, logger,
		analytics.WithAggregatorClock(o.clock))

	pipelineOpts := make([]batch.PipelineOption, 0, 3)
	if backends.Reports != nil {
		pipelineOpts = append(pipelineOpts, batch.WithReportStore(backends.Reports))
	}
	if a.Alerts != nil {
		pipelineOpts = append(pipelineOpts, batch.WithAlerts(a.Alerts))
	}
	if a.Metrics != nil {
		pipelineOpts = append(pipelineOpts, batch.WithObserver(a.Metrics))
	}
	a.Pipeline = batch.NewPipeline(backends.Content, a.Scorer, a.Analytics, scoringCfg, logger, pipelineOpts...)

	processorOpts := []batch.ProcessorOption{batch.WithClock(o.clock)}
	if backends.Archive != nil {
		processorOpts = append(processorOpts, batch.WithArchive(backends.Archive))
	}
	if a.Metrics != nil {
		processorOpts = append(processorOpts, batch.WithRecorder(a.Metrics))
	}
	a.Processor = batch.NewProcessor(a.Pipeline, &cfg.Batch, logger, processorOpts...)

	a.Health = newHealthMonitor(cfg, backends, a.Metrics, logger)

	logger.WithFields(logrus.Fields{
		"metric_store": cfg.Storage.MetricStore,
		"report_store": cfg.Storage.ReportStore,
		"cache":        cfg.Storage.Cache,
		"archive":      cfg.Storage.Archive,
		"categories":   len(scoringCfg.Categories),
	}).Info("Application initialized")

	return a, nil
}

// ServerDependencies returns the collaborators the HTTP API serves from
func (a *App) ServerDependencies() *server.Dependencies {
	return &server.Dependencies{
		Pipeline:  a.Pipeline,
		Analytics: a.Analytics,
		Processor: a.Processor,
		Cache:     a.Backends.Cache,
		Metrics:   a.Metrics,
		Health:    a.Health,
		Alerts:    a.Alerts,
	}
}

// Close releases every storage connection
func (a *App) Close() error {
	if a.Backends == nil {
		return nil
	}
	if err := a.Backends.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close storage")
		return err
	}
	return nil
}

func newAlertManager(cfg *config.Config, logger *logrus.Logger) (*alerting.AlertManager, error) {
	am := alerting.NewAlertManager(&cfg.Alerting, logger)
	am.RegisterNotifier(alerting.NewLogNotifier(logger))

	if cfg.Alerting.Telegram.Enabled {
		notifier, err := alerting.NewTelegramNotifier(&cfg.Alerting.Telegram)
		if err != nil {
			return nil, err
		}
		am.RegisterNotifier(notifier)
	}
	return am, nil
}

func newHealthMonitor(cfg *config.Config, backends *storage.Backends, m *metrics.PrometheusMetrics, logger *logrus.Logger) *health.HealthMonitor {
	monitor := health.NewHealthMonitor(&cfg.Health, logger)
	if m != nil {
		monitor.SetRecorder(m)
	}

	if backends.Metrics != nil {
		monitor.RegisterCheck(health.NewStorageCheck("metric_store", backends.Metrics, true))
	}
	if backends.Reports != nil {
		monitor.RegisterCheck(health.NewStorageCheck("report_store", backends.Reports, false))
	}
	if backends.Cache != nil {
		monitor.RegisterCheck(health.NewBasicHealthCheck("cache", backends.Cache.Health, false, cfg.Health.Timeout))
	}
	return monitor
}
