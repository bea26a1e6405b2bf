package analytics

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/contentscore/internal/scoring"
	"github.com/inferloop/contentscore/pkg/errors"
	"github.com/inferloop/contentscore/pkg/interfaces"
	"github.com/inferloop/contentscore/pkg/models"
)

// Window bounds the history loaded for an analysis. A zero side is open.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// LastDays returns the window covering the days before now.
func LastDays(now time.Time, days int) Window {
	return Window{Start: now.AddDate(0, 0, -days), End: now}
}

// Engine runs the analyzers against series loaded from a metric store
type Engine struct {
	store        interfaces.MetricStore
	trends       *TrendAnalyzer
	anomalies    *AnomalyDetector
	correlations *CorrelationAnalyzer
	forecasts    *ForecastEngine
	aggregator   *Aggregator
	config       *Config
	logger       *logrus.Logger
}

// NewEngine creates a new analytics engine
func NewEngine(store interfaces.MetricStore, scorer *scoring.Engine, config *Config, logger *logrus.Logger, opts ...AggregatorOption) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}

	forecasts := NewForecastEngine(config, nil, logger)
	opts = append([]AggregatorOption{WithForecastEngine(forecasts)}, opts...)

	return &Engine{
		store:        store,
		trends:       NewTrendAnalyzer(config, logger),
		anomalies:    NewAnomalyDetector(config, logger),
		correlations: NewCorrelationAnalyzer(config, logger),
		forecasts:    forecasts,
		aggregator:   NewAggregator(scorer, config, logger, opts...),
		config:       config,
		logger:       logger,
	}
}

// Config returns the analytics configuration
func (e *Engine) Config() *Config {
	return e.config
}

// Forecasts returns the forecast engine, for registering extra methods
func (e *Engine) Forecasts() *ForecastEngine {
	return e.forecasts
}

// LoadSeries loads the named metrics of a content item. An empty metrics list
// loads every metric the store knows for the item. Metrics without data are
// skipped.
func (e *Engine) LoadSeries(ctx context.Context, contentID string, metrics []string, window Window) (map[string]*models.MetricSeries, error) {
	if e.store == nil {
		return nil, errors.NewStorageError(errors.CodeNotConnected, "no metric store configured")
	}
	if len(metrics) == 0 {
		names, err := e.store.ListMetrics(ctx, contentID)
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "failed to list metrics")
		}
		metrics = names
	}

	out := make(map[string]*models.MetricSeries, len(metrics))
	for _, metric := range metrics {
		series, err := e.store.Query(ctx, &models.MetricQuery{
			ContentID: contentID,
			Metric:    metric,
			Start:     window.Start,
			End:       window.End,
		})
		if stderrors.Is(err, errors.ErrDataNotFound) {
			e.logger.WithFields(logrus.Fields{
				"content_id": contentID,
				"metric":     metric,
			}).Debug("No data for metric")
			continue
		}
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeQueryFailed,
				fmt.Sprintf("failed to query metric %s", metric))
		}
		out[metric] = series
	}
	return out, nil
}

func (e *Engine) loadOne(ctx context.Context, contentID, metric string, window Window) (*models.MetricSeries, error) {
	series, err := e.LoadSeries(ctx, contentID, []string{metric}, window)
	if err != nil {
		return nil, err
	}
	s, ok := series[metric]
	if !ok {
		return nil, errors.NewStorageError(errors.CodeDataNotFound,
			fmt.Sprintf("no data for metric %s of content %s", metric, contentID)).WithCause(errors.ErrDataNotFound)
	}
	return s, nil
}

// AnalyzeTrend loads a metric and computes its trend
func (e *Engine) AnalyzeTrend(ctx context.Context, contentID, metric string, window Window) (*models.TrendResult, error) {
	s, err := e.loadOne(ctx, contentID, metric, window)
	if err != nil {
		return nil, err
	}
	return e.TrendOf(s), nil
}

// DetectAnomalies loads a metric and flags anomalous points
func (e *Engine) DetectAnomalies(ctx context.Context, contentID, metric string, window Window, sensitivity models.Sensitivity) ([]models.Anomaly, error) {
	s, err := e.loadOne(ctx, contentID, metric, window)
	if err != nil {
		return nil, err
	}
	return e.AnomaliesOf(s, sensitivity), nil
}

// TrendOf computes the trend of an already loaded series
func (e *Engine) TrendOf(series *models.MetricSeries) *models.TrendResult {
	return e.trends.Analyze(series, e.config.isInverse(series.Metric))
}

// AnomaliesOf flags anomalous points of an already loaded series
func (e *Engine) AnomaliesOf(series *models.MetricSeries, sensitivity models.Sensitivity) []models.Anomaly {
	return e.anomalies.Detect(series, sensitivity)
}

// Forecast loads a metric and forecasts horizon steps with method, or the
// configured default when method is empty
func (e *Engine) Forecast(ctx context.Context, contentID, metric string, window Window, horizon int, method string) (*models.ForecastResult, error) {
	s, err := e.loadOne(ctx, contentID, metric, window)
	if err != nil {
		return nil, err
	}
	if method == "" {
		return e.forecasts.Forecast(s, horizon)
	}
	return e.forecasts.ForecastWith(s, horizon, method)
}

// Correlate loads metrics and computes their correlation matrix
func (e *Engine) Correlate(ctx context.Context, contentID string, metrics []string, window Window) (*models.CorrelationReport, error) {
	series, err := e.LoadSeries(ctx, contentID, metrics, window)
	if err != nil {
		return nil, err
	}
	return e.correlations.Analyze(series), nil
}

// Insights loads the item's metrics and aggregates the full insights report
func (e *Engine) Insights(ctx context.Context, item *models.ContentItem, metrics []string, window Window, cfg *scoring.Config) (*models.InsightsReport, error) {
	var series map[string]*models.MetricSeries
	if item != nil && e.store != nil {
		loaded, err := e.LoadSeries(ctx, item.ID, metrics, window)
		if err != nil {
			return nil, err
		}
		series = loaded
	}
	return e.aggregator.Aggregate(ctx, item, series, cfg)
}

// Aggregate builds an insights report from already loaded series
func (e *Engine) Aggregate(ctx context.Context, item *models.ContentItem, series map[string]*models.MetricSeries, cfg *scoring.Config) (*models.InsightsReport, error) {
	return e.aggregator.Aggregate(ctx, item, series, cfg)
}
