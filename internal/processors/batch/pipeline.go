package batch

import (
	"context"
	stderrors "errors"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/contentscore/internal/analytics"
	"github.com/inferloop/contentscore/internal/observability/alerting"
	"github.com/inferloop/contentscore/internal/scoring"
	"github.com/inferloop/contentscore/pkg/errors"
	"github.com/inferloop/contentscore/pkg/interfaces"
	"github.com/inferloop/contentscore/pkg/models"
)

// Pipeline runs one content item through scoring and analytics and keeps
// the report history. Report store and alert manager are optional.
type Pipeline struct {
	content   interfaces.ContentProvider
	scorer    *scoring.Engine
	analytics *analytics.Engine
	scoring   *scoring.Config
	reports   interfaces.ReportStore
	alerts    *alerting.AlertManager
	observer  Observer
	logger    *logrus.Logger
}

// Observer receives analytics telemetry
type Observer interface {
	RecordAnalysis(kind string, err error, duration time.Duration)
	RecordAnomalies(anomalies []models.Anomaly)
	RecordInsights(report *models.InsightsReport)
}

// PipelineOption customizes a Pipeline
type PipelineOption func(*Pipeline)

// WithReportStore enables historical comparison and report persistence
func WithReportStore(store interfaces.ReportStore) PipelineOption {
	return func(p *Pipeline) { p.reports = store }
}

// WithAlerts sends every insights report through the alert manager
func WithAlerts(am *alerting.AlertManager) PipelineOption {
	return func(p *Pipeline) { p.alerts = am }
}

// WithObserver attaches a telemetry observer
func WithObserver(o Observer) PipelineOption {
	return func(p *Pipeline) { p.observer = o }
}

// Analysis is the trend and anomaly pass over every metric of one item
type Analysis struct {
	ContentID string                         `json:"content_id"`
	Trends    map[string]*models.TrendResult `json:"trends"`
	Anomalies []models.Anomaly               `json:"anomalies"`
}

// NewPipeline creates a pipeline. A nil scoring config uses the built-in one.
func NewPipeline(content interfaces.ContentProvider, scorer *scoring.Engine, engine *analytics.Engine, cfg *scoring.Config, logger *logrus.Logger, opts ...PipelineOption) *Pipeline {
	if logger == nil {
		logger = logrus.New()
	}
	if scorer == nil {
		scorer = scoring.NewEngine(nil, nil, logger)
	}
	if cfg == nil {
		cfg = scoring.DefaultConfig()
	}

	p := &Pipeline{
		content:   content,
		scorer:    scorer,
		analytics: engine,
		scoring:   cfg,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ListContent returns the IDs of every published item
func (p *Pipeline) ListContent(ctx context.Context) ([]string, error) {
	if p.content == nil {
		return nil, errors.NewConfigurationError(errors.CodeInvalidConfig, "no content provider configured")
	}
	return p.content.ListContent(ctx)
}

// Score looks up an item and scores it
func (p *Pipeline) Score(ctx context.Context, contentID string) (*models.ScoreReport, error) {
	item, err := p.lookup(ctx, contentID)
	if err != nil {
		return nil, err
	}
	return p.ScoreItem(ctx, item)
}

// ScoreItem scores an item, compares it with the previous report and saves it
func (p *Pipeline) ScoreItem(ctx context.Context, item *models.ContentItem) (*models.ScoreReport, error) {
	report, err := p.scorer.Score(item, p.scoring)
	if err != nil {
		return nil, err
	}
	p.withHistory(ctx, report)
	p.save(ctx, report)
	return report, nil
}

// Analyze computes trends and anomalies for the item's metrics. Anomalies
// are sorted by severity, most recent first.
func (p *Pipeline) Analyze(ctx context.Context, contentID string, metrics []string, window analytics.Window, sensitivity models.Sensitivity) (*Analysis, error) {
	start := time.Now()
	out, err := p.analyze(ctx, contentID, metrics, window, sensitivity)
	if p.observer != nil {
		p.observer.RecordAnalysis("analyze", err, time.Since(start))
		if out != nil {
			p.observer.RecordAnomalies(out.Anomalies)
		}
	}
	return out, err
}

func (p *Pipeline) analyze(ctx context.Context, contentID string, metrics []string, window analytics.Window, sensitivity models.Sensitivity) (*Analysis, error) {
	if p.analytics == nil {
		return nil, errors.NewConfigurationError(errors.CodeInvalidConfig, "no analytics engine configured")
	}
	series, err := p.analytics.LoadSeries(ctx, contentID, metrics, window)
	if err != nil {
		return nil, err
	}
	if len(series) == 0 {
		return nil, errors.NewStorageError(errors.CodeDataNotFound, "no metric data for content "+contentID).WithCause(errors.ErrDataNotFound)
	}

	names := make([]string, 0, len(series))
	for name := range series {
		names = append(names, name)
	}
	sort.Strings(names)

	out := &Analysis{
		ContentID: contentID,
		Trends:    make(map[string]*models.TrendResult, len(series)),
		Anomalies: make([]models.Anomaly, 0),
	}
	for _, name := range names {
		out.Trends[name] = p.analytics.TrendOf(series[name])
		out.Anomalies = append(out.Anomalies, p.analytics.AnomaliesOf(series[name], sensitivity)...)
	}
	analytics.SortAnomalies(out.Anomalies)
	return out, nil
}

// Insights looks up an item and builds its insights report
func (p *Pipeline) Insights(ctx context.Context, contentID string, metrics []string, window analytics.Window) (*models.InsightsReport, error) {
	item, err := p.lookup(ctx, contentID)
	if err != nil {
		return nil, err
	}
	return p.InsightsItem(ctx, item, metrics, window)
}

// InsightsItem builds the insights report for an item, saves its score
// report and dispatches the alerts it raises
func (p *Pipeline) InsightsItem(ctx context.Context, item *models.ContentItem, metrics []string, window analytics.Window) (*models.InsightsReport, error) {
	if p.analytics == nil {
		return nil, errors.NewConfigurationError(errors.CodeInvalidConfig, "no analytics engine configured")
	}
	start := time.Now()
	report, err := p.analytics.Insights(ctx, item, metrics, window, p.scoring)
	if p.observer != nil {
		p.observer.RecordAnalysis("insights", err, time.Since(start))
		p.observer.RecordInsights(report)
	}
	if err != nil {
		return nil, err
	}

	if report.Score != nil {
		p.withHistory(ctx, report.Score)
		p.save(ctx, report.Score)
	}
	if p.alerts != nil {
		if _, err := p.alerts.Process(ctx, report); err != nil {
			p.logger.WithError(err).WithField("content_id", report.ContentID).Warn("Alert delivery failed")
		}
	}
	return report, nil
}

// History returns stored reports for an item, newest first
func (p *Pipeline) History(ctx context.Context, contentID string, limit int) ([]*models.ScoreReport, error) {
	if p.reports == nil {
		return nil, errors.NewConfigurationError(errors.CodeInvalidConfig, "no report store configured")
	}
	return p.reports.History(ctx, contentID, limit)
}

func (p *Pipeline) lookup(ctx context.Context, contentID string) (*models.ContentItem, error) {
	if p.content == nil {
		return nil, errors.NewConfigurationError(errors.CodeInvalidConfig, "no content provider configured")
	}
	if contentID == "" {
		return nil, errors.NewValidationError(errors.CodeMissingField, "content id is required")
	}
	return p.content.GetContent(ctx, contentID)
}

func (p *Pipeline) withHistory(ctx context.Context, report *models.ScoreReport) {
	if p.reports == nil || !report.Valid {
		return
	}
	prev, err := p.reports.LatestReport(ctx, report.ContentID, report.GeneratedAt)
	if err != nil {
		if !stderrors.Is(err, errors.ErrDataNotFound) {
			p.logger.WithError(err).WithField("content_id", report.ContentID).Warn("Failed to load previous report")
		}
		return
	}
	report.Historical = scoring.CompareHistory(report, prev)
}

func (p *Pipeline) save(ctx context.Context, report *models.ScoreReport) {
	if p.reports == nil || report.ContentID == "" {
		return
	}
	if err := p.reports.SaveReport(ctx, report); err != nil {
		p.logger.WithError(err).WithField("content_id", report.ContentID).Warn("Failed to save report")
	}
}
