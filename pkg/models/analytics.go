package models

import (
	"fmt"
	"strings"
	"time"
)

// Direction of a metric trend after inverse adjustment.
type Direction string

const (
	DirectionImproving Direction = "improving"
	DirectionStable    Direction = "stable"
	DirectionDeclining Direction = "declining"
	DirectionUnknown   Direction = "unknown"
)

// Data quality labels attached to trend results.
const (
	DataQualityInsufficient = "insufficient"
	DataQualityLow          = "low"
	DataQualityMedium       = "medium"
	DataQualityHigh         = "high"
)

// DescriptiveStats summarizes a sample.
type DescriptiveStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Mode   float64 `json:"mode"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Range  float64 `json:"range"`
	StdDev float64 `json:"std_dev"`
}

// Volatility describes dispersion of a metric.
type Volatility struct {
	CoefficientOfVariation float64 `json:"coefficient_of_variation"`
	StdDev                 float64 `json:"std_dev"`
	Variance               float64 `json:"variance"`
}

// SeasonalityInfo describes a detected periodic pattern.
type SeasonalityInfo struct {
	Detected        bool    `json:"detected"`
	Period          int     `json:"period,omitempty"`
	Strength        float64 `json:"strength"`
	Autocorrelation float64 `json:"autocorrelation"`
}

// TrendForecast is the naive linear extrapolation carried on a trend result.
type TrendForecast struct {
	Method  string  `json:"method"`
	Days7   float64 `json:"days_7"`
	Days30  float64 `json:"days_30"`
}

// TrendResult describes the trajectory of one metric.
type TrendResult struct {
	Metric              string           `json:"metric"`
	Inverse             bool             `json:"inverse"`
	DataPoints          int              `json:"data_points"`
	CurrentValue        float64          `json:"current_value"`
	PreviousValue       float64          `json:"previous_value"`
	FirstValue          float64          `json:"first_value"`
	PeriodChangePercent float64          `json:"period_change_percent"`
	DailyChangePercent  float64          `json:"daily_change_percent"`
	WeekOverWeekChange  *float64         `json:"week_over_week_change,omitempty"`
	Direction           Direction        `json:"direction"`
	Slope               float64          `json:"slope"`
	Intercept           float64          `json:"intercept"`
	RSquared            float64          `json:"r_squared"`
	PValue              float64          `json:"p_value"`
	Significant         bool             `json:"significant"`
	MovingAverage7      float64          `json:"moving_average_7"`
	MovingAverage30     float64          `json:"moving_average_30"`
	ExponentialMA7      float64          `json:"exponential_ma_7"`
	Volatility          Volatility       `json:"volatility"`
	Statistics          DescriptiveStats `json:"statistics"`
	Seasonality         SeasonalityInfo  `json:"seasonality"`
	Forecast            TrendForecast    `json:"forecast"`
	DataQualityScore    float64          `json:"data_quality_score"`
	DataQuality         string           `json:"data_quality"`
	Outliers            []int            `json:"outliers"`
}

// HasSignal reports whether the result carries a usable trend.
func (t *TrendResult) HasSignal() bool {
	return t != nil && t.DataQuality != DataQualityInsufficient
}

// Sensitivity tunes the anomaly threshold.
type Sensitivity string

const (
	SensitivityLow    Sensitivity = "low"
	SensitivityMedium Sensitivity = "medium"
	SensitivityHigh   Sensitivity = "high"
)

// ParseSensitivity parses a sensitivity name, case-insensitively.
func ParseSensitivity(s string) (Sensitivity, error) {
	switch Sensitivity(strings.ToLower(strings.TrimSpace(s))) {
	case SensitivityLow:
		return SensitivityLow, nil
	case SensitivityMedium, "":
		return SensitivityMedium, nil
	case SensitivityHigh:
		return SensitivityHigh, nil
	}
	return "", fmt.Errorf("unknown sensitivity %q", s)
}

// Severity of an anomaly.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a severity name.
func (s *Severity) UnmarshalText(b []byte) error {
	switch string(b) {
	case "low":
		*s = SeverityLow
	case "medium":
		*s = SeverityMedium
	case "high":
		*s = SeverityHigh
	case "critical":
		*s = SeverityCritical
	default:
		return fmt.Errorf("unknown severity %q", string(b))
	}
	return nil
}

// Anomaly is a point that deviates from its expected value.
type Anomaly struct {
	Metric     string    `json:"metric"`
	Index      int       `json:"index"`
	Timestamp  time.Time `json:"timestamp"`
	Value      float64   `json:"value"`
	Expected   float64   `json:"expected"`
	Lower      float64   `json:"lower"`
	Upper      float64   `json:"upper"`
	Deviation  float64   `json:"deviation"`
	Severity   Severity  `json:"severity"`
	Algorithms []string  `json:"algorithms"`
}

// CorrelationEntry relates two metrics.
type CorrelationEntry struct {
	MetricA     string  `json:"metric_a"`
	MetricB     string  `json:"metric_b"`
	Coefficient float64 `json:"coefficient"`
	SampleSize  int     `json:"sample_size"`
	PValue      float64 `json:"p_value"`
	Significant bool    `json:"significant"`
	Lag         int     `json:"lag"`
	Strength    string  `json:"strength"`
}

// CorrelationReport is the full pairwise analysis of a metric set.
type CorrelationReport struct {
	Metrics     []string           `json:"metrics"`
	Matrix      [][]float64        `json:"matrix"`
	Entries     []CorrelationEntry `json:"entries"`
	Significant []CorrelationEntry `json:"significant"`
	Lagged      []CorrelationEntry `json:"lagged,omitempty"`
}

// Coefficient returns the matrix value for two metrics.
func (r *CorrelationReport) Coefficient(a, b string) (float64, bool) {
	ia, ib := -1, -1
	for i, m := range r.Metrics {
		if m == a {
			ia = i
		}
		if m == b {
			ib = i
		}
	}
	if ia < 0 || ib < 0 {
		return 0, false
	}
	return r.Matrix[ia][ib], true
}

// ForecastPoint is a single forecast step.
type ForecastPoint struct {
	Step      int       `json:"step"`
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Lower     float64   `json:"lower"`
	Upper     float64   `json:"upper"`
}

// ForecastResult holds point forecasts with confidence bounds.
type ForecastResult struct {
	Metric         string          `json:"metric"`
	Horizon        int             `json:"horizon"`
	Method         string          `json:"method"`
	Points         []ForecastPoint `json:"points"`
	Accuracy       float64         `json:"accuracy"`
	ResidualStdDev float64         `json:"residual_std_dev"`
	Confidence     float64         `json:"confidence"`
}

// AnalysisFailure records an analysis that could not be completed.
type AnalysisFailure struct {
	Analysis string `json:"analysis"`
	Metric   string `json:"metric,omitempty"`
	Reason   string `json:"reason"`
}

// ExecutiveSummary is the headline of an insights report.
type ExecutiveSummary struct {
	Status       string   `json:"status"`
	OverallScore float64  `json:"overall_score"`
	Grade        string   `json:"grade"`
	HealthScore  *float64 `json:"health_score,omitempty"`
	Highlights   []string `json:"highlights"`
	Confidence   float64  `json:"confidence"`
}

// Risk is a negative signal surfaced by the analytics.
type Risk struct {
	Metric      string   `json:"metric"`
	Description string   `json:"description"`
	Level       Priority `json:"level"`
}

// Opportunity is a positive signal surfaced by the analytics.
type Opportunity struct {
	Metric      string  `json:"metric"`
	Description string  `json:"description"`
	Potential   float64 `json:"potential"`
}

// InsightsReport merges scoring and analytics for one content item.
type InsightsReport struct {
	ID              string                     `json:"id"`
	ContentID       string                     `json:"content_id"`
	GeneratedAt     time.Time                  `json:"generated_at"`
	Summary         ExecutiveSummary           `json:"summary"`
	Score           *ScoreReport               `json:"score"`
	Trends          map[string]*TrendResult    `json:"trends"`
	Anomalies       []Anomaly                  `json:"anomalies"`
	Forecasts       map[string]*ForecastResult `json:"forecasts"`
	Correlations    *CorrelationReport         `json:"correlations,omitempty"`
	Recommendations []Recommendation           `json:"recommendations"`
	Risks           []Risk                     `json:"risks"`
	Opportunities   []Opportunity              `json:"opportunities"`
	Failures        []AnalysisFailure          `json:"failures"`
}
