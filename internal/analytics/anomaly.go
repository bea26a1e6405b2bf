package analytics

import (
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	mathutil "github.com/inferloop/contentscore/internal/utils/math"
	"github.com/inferloop/contentscore/pkg/models"
)

// Detection pass names reported on anomalies.
const (
	AlgorithmZScore       = "zscore"
	AlgorithmMovingWindow = "moving_window"
	AlgorithmSeasonal     = "seasonal"
)

var sensitivityThresholds = map[models.Sensitivity]float64{
	models.SensitivityLow:    1.5,
	models.SensitivityMedium: 2.0,
	models.SensitivityHigh:   2.5,
}

// Threshold returns the deviation threshold, in standard deviations, for a
// sensitivity. Unknown values fall back to medium.
func Threshold(s models.Sensitivity) float64 {
	if t, ok := sensitivityThresholds[s]; ok {
		return t
	}
	return sensitivityThresholds[models.SensitivityMedium]
}

// SeverityFor maps a deviation in standard deviations to a severity.
func SeverityFor(deviation float64) models.Severity {
	d := math.Abs(deviation)
	switch {
	case d >= 3:
		return models.SeverityCritical
	case d >= 2.5:
		return models.SeverityHigh
	case d >= 2:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// AnomalyDetector flags points that deviate from their expected value
type AnomalyDetector struct {
	config *Config
	logger *logrus.Logger
}

// NewAnomalyDetector creates an anomaly detector
func NewAnomalyDetector(config *Config, logger *logrus.Logger) *AnomalyDetector {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &AnomalyDetector{config: config, logger: logger}
}

type candidate struct {
	index      int
	deviation  float64
	expected   float64
	lower      float64
	upper      float64
	algorithms []string
}

// Detect runs the z-score, moving-window and seasonal passes and merges their
// hits per point. The result is ordered by severity, then recency. Series
// shorter than MinDataPoints yield no anomalies.
func (d *AnomalyDetector) Detect(series *models.MetricSeries, sensitivity models.Sensitivity) []models.Anomaly {
	anomalies := make([]models.Anomaly, 0)
	if series.Len() == 0 {
		return anomalies
	}

	series = series.Normalized()
	if series.Len() < d.config.MinDataPoints {
		d.logger.WithFields(logrus.Fields{
			"metric":     series.Metric,
			"points":     series.Len(),
			"min_points": d.config.MinDataPoints,
		}).Debug("Insufficient data for anomaly detection")
		return anomalies
	}
	values := series.Values()
	threshold := Threshold(sensitivity)

	found := make(map[int]*candidate)
	merge := func(i int, deviation, expected, sd float64, algorithm string) {
		c, ok := found[i]
		if !ok {
			c = &candidate{index: i}
			found[i] = c
		}
		c.algorithms = append(c.algorithms, algorithm)
		if math.Abs(deviation) > math.Abs(c.deviation) {
			c.deviation = deviation
			c.expected = expected
			c.lower = expected - threshold*sd
			c.upper = expected + threshold*sd
		}
	}

	d.zScorePass(values, threshold, merge)
	d.movingWindowPass(values, threshold, merge)
	d.seasonalPass(values, threshold, merge)

	for _, c := range found {
		p := series.Points[c.index]
		anomalies = append(anomalies, models.Anomaly{
			Metric:     series.Metric,
			Index:      c.index,
			Timestamp:  p.Timestamp,
			Value:      p.Value,
			Expected:   c.expected,
			Lower:      c.lower,
			Upper:      c.upper,
			Deviation:  round4(c.deviation),
			Severity:   SeverityFor(c.deviation),
			Algorithms: c.algorithms,
		})
	}

	SortAnomalies(anomalies)
	if max := d.config.Anomaly.MaxAnomalies; max > 0 && len(anomalies) > max {
		anomalies = anomalies[:max]
	}

	if len(anomalies) > 0 {
		d.logger.WithFields(logrus.Fields{
			"metric":      series.Metric,
			"anomalies":   len(anomalies),
			"sensitivity": string(sensitivity),
		}).Debug("Detected anomalies")
	}
	return anomalies
}

func (d *AnomalyDetector) zScorePass(values []float64, threshold float64, merge func(int, float64, float64, float64, string)) {
	mean := mathutil.Mean(values)
	sd := mathutil.StandardDeviation(values)
	if sd == 0 {
		return
	}
	for i, v := range values {
		if z := mathutil.ZScore(v, mean, sd); math.Abs(z) > threshold {
			merge(i, z, mean, sd, AlgorithmZScore)
		}
	}
}

// movingWindowPass compares every point with the window of points before it.
func (d *AnomalyDetector) movingWindowPass(values []float64, threshold float64, merge func(int, float64, float64, float64, string)) {
	size := d.config.Anomaly.WindowSize
	minPoints := d.config.Anomaly.MinWindowPoints
	for i := minPoints; i < len(values); i++ {
		start := i - size
		if start < 0 {
			start = 0
		}
		window := values[start:i]
		if len(window) < minPoints {
			continue
		}
		mean := mathutil.Mean(window)
		sd := mathutil.StandardDeviation(window)
		if sd == 0 {
			continue
		}
		if z := mathutil.ZScore(values[i], mean, sd); math.Abs(z) > threshold {
			merge(i, z, mean, sd, AlgorithmMovingWindow)
		}
	}
}

func (d *AnomalyDetector) seasonalPass(values []float64, threshold float64, merge func(int, float64, float64, float64, string)) {
	info := DetectSeasonality(values, d.config.Anomaly.MaxPeriod)
	if !info.Detected {
		return
	}

	expected := seasonalProfile(values, info.Period)
	residuals := make([]float64, 0, len(values))
	for i, v := range values {
		if !math.IsNaN(expected[i]) {
			residuals = append(residuals, v-expected[i])
		}
	}
	sd := mathutil.StandardDeviation(residuals)
	if sd == 0 {
		return
	}
	mean := mathutil.Mean(residuals)
	for i, v := range values {
		if math.IsNaN(expected[i]) {
			continue
		}
		if z := mathutil.ZScore(v-expected[i], mean, sd); math.Abs(z) > threshold {
			merge(i, z, expected[i], sd, AlgorithmSeasonal)
		}
	}
}

// SortAnomalies orders anomalies by severity, then most recent first.
func SortAnomalies(anomalies []models.Anomaly) {
	sort.SliceStable(anomalies, func(i, j int) bool {
		if anomalies[i].Severity != anomalies[j].Severity {
			return anomalies[i].Severity > anomalies[j].Severity
		}
		if !anomalies[i].Timestamp.Equal(anomalies[j].Timestamp) {
			return anomalies[i].Timestamp.After(anomalies[j].Timestamp)
		}
		return anomalies[i].Metric < anomalies[j].Metric
	})
}
