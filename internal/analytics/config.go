package analytics

import (
	"fmt"

	"github.com/inferloop/contentscore/pkg/errors"
	"github.com/inferloop/contentscore/pkg/models"
)

// Config contains tuning for every analyzer in the package.
type Config struct {
	MinDataPoints  int      `json:"min_data_points" yaml:"min_data_points" mapstructure:"min_data_points"`
	StableSlope    float64  `json:"stable_slope" yaml:"stable_slope" mapstructure:"stable_slope"`
	OutlierIQR     float64  `json:"outlier_iqr" yaml:"outlier_iqr" mapstructure:"outlier_iqr"`
	InverseMetrics []string `json:"inverse_metrics" yaml:"inverse_metrics" mapstructure:"inverse_metrics"`

	Anomaly     AnomalyConfig     `json:"anomaly" yaml:"anomaly" mapstructure:"anomaly"`
	Correlation CorrelationConfig `json:"correlation" yaml:"correlation" mapstructure:"correlation"`
	Forecast    ForecastConfig    `json:"forecast" yaml:"forecast" mapstructure:"forecast"`
	Insights    InsightsConfig    `json:"insights" yaml:"insights" mapstructure:"insights"`
}

// AnomalyConfig tunes the anomaly detector
type AnomalyConfig struct {
	Sensitivity     string `json:"sensitivity" yaml:"sensitivity" mapstructure:"sensitivity"`
	WindowSize      int    `json:"window_size" yaml:"window_size" mapstructure:"window_size"`
	MinWindowPoints int    `json:"min_window_points" yaml:"min_window_points" mapstructure:"min_window_points"`
	MaxAnomalies    int    `json:"max_anomalies" yaml:"max_anomalies" mapstructure:"max_anomalies"`
	MaxPeriod       int    `json:"max_period" yaml:"max_period" mapstructure:"max_period"`
}

// CorrelationConfig tunes the correlation analyzer
type CorrelationConfig struct {
	Threshold  float64 `json:"threshold" yaml:"threshold" mapstructure:"threshold"`
	MinSamples int     `json:"min_samples" yaml:"min_samples" mapstructure:"min_samples"`
	MaxLag     int     `json:"max_lag" yaml:"max_lag" mapstructure:"max_lag"`
}

// ForecastConfig tunes the forecast engine
type ForecastConfig struct {
	Method     string  `json:"method" yaml:"method" mapstructure:"method"`
	MaxHorizon int     `json:"max_horizon" yaml:"max_horizon" mapstructure:"max_horizon"`
	Confidence float64 `json:"confidence" yaml:"confidence" mapstructure:"confidence"`
	Alpha      float64 `json:"alpha" yaml:"alpha" mapstructure:"alpha"`
	Beta       float64 `json:"beta" yaml:"beta" mapstructure:"beta"`
}

// InsightsConfig tunes the insights aggregator
type InsightsConfig struct {
	ForecastHorizon    int                `json:"forecast_horizon" yaml:"forecast_horizon" mapstructure:"forecast_horizon"`
	MaxRecommendations int                `json:"max_recommendations" yaml:"max_recommendations" mapstructure:"max_recommendations"`
	HealthWeights      map[string]float64 `json:"health_weights" yaml:"health_weights" mapstructure:"health_weights"`
}

// DefaultConfig returns the default analytics configuration
func DefaultConfig() *Config {
	return &Config{
		MinDataPoints: 7,
		StableSlope:   0.01,
		OutlierIQR:    1.5,
		InverseMetrics: []string{
			"bounce_rate", "exit_rate", "load_time", "page_load_time",
			"lcp", "cls", "inp", "avg_position", "search_rankings",
		},
		Anomaly: AnomalyConfig{
			Sensitivity:     "medium",
			WindowSize:      7,
			MinWindowPoints: 4,
			MaxAnomalies:    10,
			MaxPeriod:       30,
		},
		Correlation: CorrelationConfig{
			Threshold:  0.7,
			MinSamples: 7,
			MaxLag:     7,
		},
		Forecast: ForecastConfig{
			Method:     MethodLinearRegression,
			MaxHorizon: 90,
			Confidence: 0.95,
			Alpha:      0.5,
			Beta:       0.3,
		},
		Insights: InsightsConfig{
			ForecastHorizon:    30,
			MaxRecommendations: 10,
			HealthWeights: map[string]float64{
				"organic_traffic": 0.25,
				"search_rankings": 0.20,
				"ctr":             0.15,
				"core_web_vitals": 0.15,
				"technical":       0.15,
				"engagement":      0.10,
			},
		},
	}
}

// Validate checks the configuration ranges
func (c *Config) Validate() error {
	ve := errors.NewValidationErrors()
	ve.Message = "invalid analytics configuration"

	if c.MinDataPoints < 3 {
		ve.Add("min_data_points", errors.CodeOutOfRange, "must be at least 3", c.MinDataPoints)
	}
	if c.StableSlope < 0 {
		ve.Add("stable_slope", errors.CodeOutOfRange, "must not be negative", c.StableSlope)
	}
	if c.OutlierIQR <= 0 {
		ve.Add("outlier_iqr", errors.CodeOutOfRange, "must be positive", c.OutlierIQR)
	}
	if _, err := models.ParseSensitivity(c.Anomaly.Sensitivity); err != nil {
		ve.Add("anomaly.sensitivity", errors.CodeInvalidFormat, err.Error(), c.Anomaly.Sensitivity)
	}
	if c.Anomaly.WindowSize < 2 {
		ve.Add("anomaly.window_size", errors.CodeOutOfRange, "must be at least 2", c.Anomaly.WindowSize)
	}
	if c.Anomaly.MinWindowPoints < 2 || c.Anomaly.MinWindowPoints > c.Anomaly.WindowSize {
		ve.Add("anomaly.min_window_points", errors.CodeOutOfRange,
			fmt.Sprintf("must be between 2 and window_size (%d)", c.Anomaly.WindowSize), c.Anomaly.MinWindowPoints)
	}
	if c.Correlation.Threshold <= 0 || c.Correlation.Threshold > 1 {
		ve.Add("correlation.threshold", errors.CodeOutOfRange, "must be in (0, 1]", c.Correlation.Threshold)
	}
	if c.Correlation.MaxLag < 0 {
		ve.Add("correlation.max_lag", errors.CodeOutOfRange, "must not be negative", c.Correlation.MaxLag)
	}
	if c.Forecast.MaxHorizon < 1 {
		ve.Add("forecast.max_horizon", errors.CodeOutOfRange, "must be at least 1", c.Forecast.MaxHorizon)
	}
	if c.Forecast.Alpha <= 0 || c.Forecast.Alpha >= 1 {
		ve.Add("forecast.alpha", errors.CodeOutOfRange, "must be in (0, 1)", c.Forecast.Alpha)
	}
	if c.Forecast.Beta <= 0 || c.Forecast.Beta >= 1 {
		ve.Add("forecast.beta", errors.CodeOutOfRange, "must be in (0, 1)", c.Forecast.Beta)
	}
	if _, ok := zScores[c.Forecast.Confidence]; !ok {
		ve.Add("forecast.confidence", errors.CodeOutOfRange, "must be one of 0.90, 0.95, 0.99", c.Forecast.Confidence)
	}

	if ve.HasErrors() {
		return errors.NewConfigurationError(errors.CodeInvalidConfig, ve.Message).
			WithDetails(ve.Error()).
			WithCause(ve)
	}
	return nil
}

func (c *Config) isInverse(metric string) bool {
	for _, m := range c.InverseMetrics {
		if m == metric {
			return true
		}
	}
	return false
}
