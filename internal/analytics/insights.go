package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/contentscore/internal/scoring"
	"github.com/inferloop/contentscore/pkg/models"
)

// Executive summary statuses.
const (
	StatusHealthy         = "healthy"
	StatusAttentionNeeded = "attention_needed"
	StatusCritical        = "critical"
)

// Analysis kinds recorded on failures and metrics.
const (
	AnalysisScore       = "score"
	AnalysisTrend       = "trend"
	AnalysisAnomaly     = "anomaly"
	AnalysisForecast    = "forecast"
	AnalysisCorrelation = "correlation"
)

// Aggregator combines the score report with every metric analysis into one
// insights report.
type Aggregator struct {
	scorer       *scoring.Engine
	trends       *TrendAnalyzer
	anomalies    *AnomalyDetector
	correlations *CorrelationAnalyzer
	forecasts    *ForecastEngine
	config       *Config
	logger       *logrus.Logger
	clock        func() time.Time
}

// AggregatorOption customizes an Aggregator.
type AggregatorOption func(*Aggregator)

// WithAggregatorClock sets the time source for report timestamps.
func WithAggregatorClock(clock func() time.Time) AggregatorOption {
	return func(a *Aggregator) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// WithForecastEngine replaces the default forecast engine.
func WithForecastEngine(f *ForecastEngine) AggregatorOption {
	return func(a *Aggregator) {
		if f != nil {
			a.forecasts = f
		}
	}
}

// NewAggregator creates an insights aggregator. A nil scorer uses a scoring
// engine with the built-in evaluators.
func NewAggregator(scorer *scoring.Engine, config *Config, logger *logrus.Logger, opts ...AggregatorOption) *Aggregator {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	if scorer == nil {
		scorer = scoring.NewEngine(nil, nil, logger)
	}

	a := &Aggregator{
		scorer:       scorer,
		trends:       NewTrendAnalyzer(config, logger),
		anomalies:    NewAnomalyDetector(config, logger),
		correlations: NewCorrelationAnalyzer(config, logger),
		forecasts:    NewForecastEngine(config, nil, logger),
		config:       config,
		logger:       logger,
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// run tracks attempted and failed analyses of one aggregation.
type run struct {
	attempts  int
	successes int
	failures  []models.AnalysisFailure
}

// do runs fn, recording an error or panic as a failure of analysis.
func (r *run) do(analysis, metric string, fn func() error) (ok bool) {
	r.attempts++
	defer func() {
		if p := recover(); p != nil {
			r.failures = append(r.failures, models.AnalysisFailure{
				Analysis: analysis,
				Metric:   metric,
				Reason:   fmt.Sprintf("panic: %v", p),
			})
			ok = false
		}
	}()

	if err := fn(); err != nil {
		r.failures = append(r.failures, models.AnalysisFailure{
			Analysis: analysis,
			Metric:   metric,
			Reason:   err.Error(),
		})
		return false
	}
	r.successes++
	return true
}

// Aggregate scores item and analyzes every metric series. Individual analysis
// failures are recorded on the report; only an invalid scoring configuration
// or a cancelled context is returned as an error.
func (a *Aggregator) Aggregate(ctx context.Context, item *models.ContentItem, series map[string]*models.MetricSeries, cfg *scoring.Config) (*models.InsightsReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	score, err := a.scorer.Score(item, cfg)
	if err != nil {
		return nil, err
	}

	generatedAt := a.clock().UTC()
	report := &models.InsightsReport{
		ID:              insightsID(score.ContentID, generatedAt),
		ContentID:       score.ContentID,
		GeneratedAt:     generatedAt,
		Score:           score,
		Trends:          make(map[string]*models.TrendResult),
		Anomalies:       make([]models.Anomaly, 0),
		Forecasts:       make(map[string]*models.ForecastResult),
		Recommendations: make([]models.Recommendation, 0),
		Risks:           make([]models.Risk, 0),
		Opportunities:   make([]models.Opportunity, 0),
		Failures:        make([]models.AnalysisFailure, 0),
	}

	r := &run{attempts: 1, successes: 1}
	if !score.Valid {
		r.successes = 0
		r.failures = append(r.failures, models.AnalysisFailure{
			Analysis: AnalysisScore,
			Reason:   "content is missing or not published",
		})
	}

	sensitivity, err := models.ParseSensitivity(a.config.Anomaly.Sensitivity)
	if err != nil {
		sensitivity = models.SensitivityMedium
	}

	metrics := make([]string, 0, len(series))
	for name, s := range series {
		if s != nil {
			metrics = append(metrics, name)
		}
	}
	sort.Strings(metrics)
	usable := make(map[string]*models.MetricSeries, len(metrics))

	for _, metric := range metrics {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s := series[metric]
		inverse := a.config.isInverse(metric)

		var trend *models.TrendResult
		r.do(AnalysisTrend, metric, func() error {
			if err := checkFinite(s); err != nil {
				return err
			}
			trend = a.trends.Analyze(s, inverse)
			return nil
		})
		if trend == nil {
			continue
		}
		report.Trends[metric] = trend
		usable[metric] = s
		if !trend.HasSignal() {
			// no signal yet; later analyses need the same minimum history
			continue
		}

		r.do(AnalysisAnomaly, metric, func() error {
			report.Anomalies = append(report.Anomalies, a.anomalies.Detect(s, sensitivity)...)
			return nil
		})
		r.do(AnalysisForecast, metric, func() error {
			forecast, err := a.forecasts.Forecast(s, a.config.Insights.ForecastHorizon)
			if err != nil {
				return err
			}
			report.Forecasts[metric] = forecast
			return nil
		})
	}
	SortAnomalies(report.Anomalies)

	if len(usable) >= 2 {
		r.do(AnalysisCorrelation, "", func() error {
			report.Correlations = a.correlations.Analyze(usable)
			return nil
		})
	}

	report.Recommendations = a.recommendations(score, report)
	report.Risks = risks(score, report)
	report.Opportunities = opportunities(score, report)
	report.Failures = append(report.Failures, r.failures...)
	report.Summary = a.summary(score, report, r)

	a.logger.WithFields(logrus.Fields{
		"report_id":       report.ID,
		"content_id":      report.ContentID,
		"metrics":         len(metrics),
		"anomalies":       len(report.Anomalies),
		"failures":        len(report.Failures),
		"status":          report.Summary.Status,
		"recommendations": len(report.Recommendations),
	}).Info("Generated insights report")

	return report, nil
}

// recommendations merges score, trend and anomaly recommendations, drops
// duplicates by source and text and keeps the highest ranked.
func (a *Aggregator) recommendations(score *models.ScoreReport, report *models.InsightsReport) []models.Recommendation {
	merged := make([]models.Recommendation, 0, len(score.Recommendations))
	merged = append(merged, score.Recommendations...)

	for _, metric := range sortedKeys(report.Trends) {
		trend := report.Trends[metric]
		if !trend.HasSignal() || trend.Direction != models.DirectionDeclining {
			continue
		}
		priority := models.PriorityMedium
		if trend.Significant {
			priority = models.PriorityHigh
		}
		change := math.Abs(trend.PeriodChangePercent)
		merged = append(merged, models.Recommendation{
			Source:              "trend:" + metric,
			Category:            "analytics",
			Text:                fmt.Sprintf("Investigate the decline in %s (%.1f%% over the period)", metric, -change),
			Priority:            priority,
			Effort:              "medium",
			Impact:              round2(math.Min(100, math.Max(10, change))),
			ExpectedImprovement: round2(math.Min(30, math.Max(5, change/2))),
		})
	}

	for _, an := range report.Anomalies {
		if an.Severity < models.SeverityHigh {
			continue
		}
		priority := models.PriorityMedium
		if an.Severity == models.SeverityCritical {
			priority = models.PriorityHigh
		}
		merged = append(merged, models.Recommendation{
			Source:              "anomaly:" + an.Metric,
			Category:            "analytics",
			Text:                fmt.Sprintf("Review the %s anomaly in %s on %s", an.Severity, an.Metric, an.Timestamp.Format("2006-01-02")),
			Priority:            priority,
			Effort:              "low",
			Impact:              round2(math.Min(100, 20*math.Abs(an.Deviation))),
			ExpectedImprovement: 5,
		})
	}

	seen := make(map[string]bool, len(merged))
	unique := merged[:0]
	for _, rec := range merged {
		key := rec.Source + "\x00" + rec.Text
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, rec)
	}

	scoring.RankRecommendations(unique)
	if max := a.config.Insights.MaxRecommendations; max > 0 && len(unique) > max {
		unique = unique[:max]
	}
	return unique
}

func risks(score *models.ScoreReport, report *models.InsightsReport) []models.Risk {
	out := make([]models.Risk, 0)
	if score.Valid && score.Overall < scoring.MediumPriorityThreshold {
		out = append(out, models.Risk{
			Metric:      "overall_score",
			Description: fmt.Sprintf("Overall content score %.1f is below %.0f", score.Overall, scoring.MediumPriorityThreshold),
			Level:       models.PriorityHigh,
		})
	}
	for _, metric := range sortedKeys(report.Trends) {
		trend := report.Trends[metric]
		if !trend.HasSignal() || trend.Direction != models.DirectionDeclining {
			continue
		}
		level := models.PriorityMedium
		if trend.Significant {
			level = models.PriorityHigh
		}
		out = append(out, models.Risk{
			Metric:      metric,
			Description: fmt.Sprintf("%s is declining (%.1f%% over the period)", metric, trend.PeriodChangePercent),
			Level:       level,
		})
	}
	critical := make(map[string]int)
	for _, an := range report.Anomalies {
		if an.Severity == models.SeverityCritical {
			critical[an.Metric]++
		}
	}
	for _, metric := range sortedKeys(critical) {
		out = append(out, models.Risk{
			Metric:      metric,
			Description: fmt.Sprintf("%d critical anomalies in %s", critical[metric], metric),
			Level:       models.PriorityHigh,
		})
	}
	return out
}

func opportunities(score *models.ScoreReport, report *models.InsightsReport) []models.Opportunity {
	out := make([]models.Opportunity, 0)
	if score.Competitive != nil && score.Competitive.ImprovementPotential > 0 {
		out = append(out, models.Opportunity{
			Metric:      "overall_score",
			Description: "Close the gap to top performers",
			Potential:   score.Competitive.ImprovementPotential,
		})
	}
	for _, f := range score.Opportunities {
		out = append(out, models.Opportunity{
			Metric:      f.Criterion,
			Description: f.Recommendation,
			Potential:   ExpectedScoreGain(f.Score),
		})
	}
	for _, metric := range sortedKeys(report.Trends) {
		trend := report.Trends[metric]
		if !trend.HasSignal() || trend.Direction != models.DirectionImproving || !trend.Significant {
			continue
		}
		out = append(out, models.Opportunity{
			Metric:      metric,
			Description: fmt.Sprintf("Sustain the growth in %s", metric),
			Potential:   round2(math.Abs(trend.Forecast.Days30 - trend.CurrentValue)),
		})
	}
	return out
}

// ExpectedScoreGain is the criterion score gain expected from acting on an
// opportunity.
func ExpectedScoreGain(score float64) float64 {
	return scoring.ExpectedImprovement(score)
}

func (a *Aggregator) summary(score *models.ScoreReport, report *models.InsightsReport, r *run) models.ExecutiveSummary {
	s := models.ExecutiveSummary{
		Status:       SummaryStatus(score.Overall),
		OverallScore: score.Overall,
		Grade:        score.Grade,
		HealthScore:  a.healthScore(report.Trends),
		Highlights:   make([]string, 0),
	}
	if r.attempts > 0 {
		s.Confidence = round2(float64(r.successes) / float64(r.attempts))
	}
	if !score.Valid {
		s.Status = StatusCritical
	}

	s.Highlights = append(s.Highlights, fmt.Sprintf("Overall score %.1f (%s)", score.Overall, score.Grade))
	improving, declining := 0, 0
	for _, t := range report.Trends {
		switch t.Direction {
		case models.DirectionImproving:
			improving++
		case models.DirectionDeclining:
			declining++
		}
	}
	if improving+declining > 0 {
		s.Highlights = append(s.Highlights, fmt.Sprintf("%d metrics improving, %d declining", improving, declining))
	}
	if n := len(report.Anomalies); n > 0 {
		s.Highlights = append(s.Highlights, fmt.Sprintf("%d anomalies detected", n))
	}
	if len(report.Recommendations) > 0 {
		s.Highlights = append(s.Highlights, "Top priority: "+report.Recommendations[0].Text)
	}
	return s
}

// healthScore weights the period change of the configured health metrics.
// Each metric maps to 50 + change/2 clamped to [0, 100]. Nil when none of the
// weighted metrics has a usable trend.
func (a *Aggregator) healthScore(trends map[string]*models.TrendResult) *float64 {
	sum, weights := 0.0, 0.0
	for metric, w := range a.config.Insights.HealthWeights {
		trend, ok := trends[metric]
		if !ok || !trend.HasSignal() || w <= 0 {
			continue
		}
		component := math.Max(0, math.Min(100, 50+trend.PeriodChangePercent/2))
		sum += component * w
		weights += w
	}
	if weights == 0 {
		return nil
	}
	h := round2(sum / weights)
	return &h
}

// SummaryStatus maps an overall score to an executive summary status.
func SummaryStatus(overall float64) string {
	switch {
	case overall >= 80:
		return StatusHealthy
	case overall >= 50:
		return StatusAttentionNeeded
	default:
		return StatusCritical
	}
}

func checkFinite(s *models.MetricSeries) error {
	for i, p := range s.Points {
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			return fmt.Errorf("metric %q: non-finite value at index %d", s.Metric, i)
		}
	}
	return nil
}

func insightsID(contentID string, at time.Time) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("insights|"+contentID+"|"+at.Format(time.RFC3339Nano))).String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
