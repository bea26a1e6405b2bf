package analytics

import (
	"math"

	"github.com/sirupsen/logrus"

	mathutil "github.com/inferloop/contentscore/internal/utils/math"
	"github.com/inferloop/contentscore/pkg/models"
)

// ForecastMethodNaive labels the linear extrapolation carried on trend results.
const ForecastMethodNaive = "naive_linear"

// TrendAnalyzer computes the trajectory of a metric series
type TrendAnalyzer struct {
	config *Config
	logger *logrus.Logger
}

// NewTrendAnalyzer creates a trend analyzer
func NewTrendAnalyzer(config *Config, logger *logrus.Logger) *TrendAnalyzer {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &TrendAnalyzer{config: config, logger: logger}
}

// Analyze describes the trend of series. Short series yield a result with
// DataQuality "insufficient" instead of an error. When inverse is set a
// decrease counts as an improvement.
func (t *TrendAnalyzer) Analyze(series *models.MetricSeries, inverse bool) *models.TrendResult {
	var metric string
	if series != nil {
		metric = series.Metric
		series = series.Normalized()
	}

	values := series.Values()
	n := len(values)
	sign := 1.0
	if inverse {
		sign = -1
	}

	result := &models.TrendResult{
		Metric:          metric,
		Inverse:         inverse,
		DataPoints:      n,
		Direction:       models.DirectionUnknown,
		MovingAverage7:  mathutil.MovingAverage(values, 7),
		MovingAverage30: mathutil.MovingAverage(values, 30),
		ExponentialMA7:  mathutil.ExponentialMovingAverage(values, 7),
		Forecast:        models.TrendForecast{Method: ForecastMethodNaive},
		Outliers:        make([]int, 0),
	}
	if n > 0 {
		result.CurrentValue = values[n-1]
		result.FirstValue = values[0]
		result.PreviousValue = values[0]
		if n > 1 {
			result.PreviousValue = values[n-2]
		}
	}

	if n < t.config.MinDataPoints {
		result.DataQuality = models.DataQualityInsufficient
		t.logger.WithFields(logrus.Fields{
			"metric":     metric,
			"points":     n,
			"min_points": t.config.MinDataPoints,
		}).Debug("Insufficient data for trend analysis")
		return result
	}

	result.PeriodChangePercent = round2(sign * mathutil.PercentChange(result.FirstValue, result.CurrentValue))
	result.DailyChangePercent = round2(sign * mathutil.PercentChange(result.PreviousValue, result.CurrentValue))
	if n >= 14 {
		wow := round2(sign * mathutil.PercentChange(mathutil.Mean(values[n-14:n-7]), mathutil.Mean(values[n-7:])))
		result.WeekOverWeekChange = &wow
	}

	reg := mathutil.LinearRegression(values)
	result.Slope = reg.Slope
	result.Intercept = reg.Intercept
	result.RSquared = round4(reg.RSquared)
	result.PValue = reg.PValue
	result.Significant = reg.PValue < 0.05
	result.Direction = t.direction(sign * reg.Slope)

	sd := mathutil.StandardDeviation(values)
	result.Volatility = models.Volatility{
		CoefficientOfVariation: round4(mathutil.CoefficientOfVariation(values)),
		StdDev:                 sd,
		Variance:               mathutil.Variance(values),
	}
	lo, hi := mathutil.Min(values), mathutil.Max(values)
	result.Statistics = models.DescriptiveStats{
		Count:  n,
		Mean:   mathutil.Mean(values),
		Median: mathutil.Median(values),
		Mode:   mathutil.Mode(values),
		Min:    lo,
		Max:    hi,
		Range:  hi - lo,
		StdDev: sd,
	}
	result.Seasonality = DetectSeasonality(values, t.config.Anomaly.MaxPeriod)

	result.Forecast.Days7 = reg.Predict(float64(n - 1 + 7))
	result.Forecast.Days30 = reg.Predict(float64(n - 1 + 30))

	result.Outliers = mathutil.OutlierIndexes(values, t.config.OutlierIQR)
	result.DataQualityScore = dataQualityScore(series, len(result.Outliers))
	result.DataQuality = qualityLabel(result.DataQualityScore)

	return result
}

func (t *TrendAnalyzer) direction(adjustedSlope float64) models.Direction {
	switch {
	case math.Abs(adjustedSlope) < t.config.StableSlope:
		return models.DirectionStable
	case adjustedSlope > 0:
		return models.DirectionImproving
	default:
		return models.DirectionDeclining
	}
}

// dataQualityScore combines completeness against the median sampling interval,
// the share of non-outliers and sample size into a 0-100 score.
func dataQualityScore(series *models.MetricSeries, outliers int) float64 {
	n := series.Len()
	if n == 0 {
		return 0
	}

	completeness := 1.0
	if spacing := series.MedianSpacing(); spacing > 0 {
		span := series.Points[n-1].Timestamp.Sub(series.Points[0].Timestamp)
		expected := float64(span/spacing) + 1
		completeness = math.Min(1, float64(n)/expected)
	}
	clean := 1 - float64(outliers)/float64(n)
	size := math.Min(1, float64(n)/30)

	return round2(100 * (0.5*completeness + 0.3*clean + 0.2*size))
}

func qualityLabel(score float64) string {
	switch {
	case score >= 80:
		return models.DataQualityHigh
	case score >= 50:
		return models.DataQualityMedium
	default:
		return models.DataQualityLow
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
