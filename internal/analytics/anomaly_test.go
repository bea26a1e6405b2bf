package analytics

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/contentscore/pkg/models"
)

func TestDetectSpike(t *testing.T) {
	detector := NewAnomalyDetector(nil, logrus.New())

	anomalies := detector.Detect(dailySeries("organic_traffic", 10, 12, 11, 13, 50, 14, 13), models.SensitivityMedium)
	require.Len(t, anomalies, 1)

	spike := anomalies[0]
	assert.Equal(t, 4, spike.Index)
	assert.Equal(t, 50.0, spike.Value)
	assert.Equal(t, "organic_traffic", spike.Metric)
	assert.True(t, seriesStart.AddDate(0, 0, 4).Equal(spike.Timestamp))
	assert.GreaterOrEqual(t, int(spike.Severity), int(models.SeverityHigh))
	assert.Contains(t, spike.Algorithms, AlgorithmZScore)
	assert.Contains(t, spike.Algorithms, AlgorithmMovingWindow)
	assert.Equal(t, 11.5, spike.Expected)
	assert.Less(t, spike.Upper, spike.Value)
}

func TestDetectConstantSeries(t *testing.T) {
	detector := NewAnomalyDetector(nil, logrus.New())

	anomalies := detector.Detect(dailySeries("ctr", 4, 4, 4, 4, 4, 4, 4, 4, 4, 4), models.SensitivityHigh)

	assert.NotNil(t, anomalies)
	assert.Empty(t, anomalies)
}

func TestDetectEmptySeries(t *testing.T) {
	detector := NewAnomalyDetector(nil, logrus.New())

	assert.Empty(t, detector.Detect(nil, models.SensitivityMedium))
	assert.Empty(t, detector.Detect(&models.MetricSeries{Metric: "ctr"}, models.SensitivityMedium))
}

func TestDetectShortSeries(t *testing.T) {
	detector := NewAnomalyDetector(nil, logrus.New())

	anomalies := detector.Detect(dailySeries("ctr", 10, 10, 11, 10, 10, 40), models.SensitivityMedium)

	assert.NotNil(t, anomalies)
	assert.Empty(t, anomalies)
}

func TestDetectSeasonalDip(t *testing.T) {
	detector := NewAnomalyDetector(nil, logrus.New())
	week := []float64{10, 10, 10, 10, 10, 30, 30}
	values := make([]float64, 0, 6*len(week))
	for i := 0; i < 6; i++ {
		values = append(values, week...)
	}
	values[33] = 10

	anomalies := detector.Detect(dailySeries("pageviews", values...), models.SensitivityMedium)

	dip := findAnomaly(anomalies, 33)
	require.NotNil(t, dip)
	assert.Equal(t, []string{AlgorithmSeasonal}, dip.Algorithms)
	assert.Equal(t, 30.0, dip.Expected)
	assert.Equal(t, models.SeverityCritical, dip.Severity)
	assert.Less(t, dip.Deviation, 0.0)
}

func TestDetectMergesPasses(t *testing.T) {
	detector := NewAnomalyDetector(nil, logrus.New())
	series := dailySeries("organic_traffic", 10, 12, 11, 13, 50, 14, 13)

	zOnly := make(map[int]float64)
	detector.zScorePass(series.Values(), Threshold(models.SensitivityMedium), func(i int, deviation, _, _ float64, _ string) {
		zOnly[i] = deviation
	})
	require.Contains(t, zOnly, 4)

	anomalies := detector.Detect(series, models.SensitivityMedium)
	require.Len(t, anomalies, 1)

	merged := anomalies[0]
	assert.Equal(t, []string{AlgorithmZScore, AlgorithmMovingWindow}, merged.Algorithms)
	assert.Greater(t, merged.Severity, SeverityFor(zOnly[4]))
	assert.Equal(t, models.SeverityCritical, merged.Severity)
	assert.Equal(t, SeverityFor(merged.Deviation), merged.Severity)
}

func TestDetectSensitivity(t *testing.T) {
	detector := NewAnomalyDetector(nil, logrus.New())
	series := dailySeries("ctr", 10, 11, 10, 11, 10, 11, 10, 11, 10, 14)

	low := detector.Detect(series, models.SensitivityLow)
	high := detector.Detect(series, models.SensitivityHigh)

	assert.GreaterOrEqual(t, len(low), len(high))
}

func TestThreshold(t *testing.T) {
	assert.Equal(t, 1.5, Threshold(models.SensitivityLow))
	assert.Equal(t, 2.0, Threshold(models.SensitivityMedium))
	assert.Equal(t, 2.5, Threshold(models.SensitivityHigh))
	assert.Equal(t, 2.0, Threshold(models.Sensitivity("extreme")))
}

func TestSeverityFor(t *testing.T) {
	assert.Equal(t, models.SeverityCritical, SeverityFor(3.2))
	assert.Equal(t, models.SeverityCritical, SeverityFor(-4))
	assert.Equal(t, models.SeverityHigh, SeverityFor(2.7))
	assert.Equal(t, models.SeverityMedium, SeverityFor(2.1))
	assert.Equal(t, models.SeverityLow, SeverityFor(1.6))
}

func TestSortAnomalies(t *testing.T) {
	anomalies := []models.Anomaly{
		{Metric: "ctr", Timestamp: seriesStart, Severity: models.SeverityMedium},
		{Metric: "ctr", Timestamp: seriesStart.AddDate(0, 0, 1), Severity: models.SeverityCritical},
		{Metric: "organic_traffic", Timestamp: seriesStart.AddDate(0, 0, 2), Severity: models.SeverityMedium},
		{Metric: "bounce_rate", Timestamp: seriesStart, Severity: models.SeverityMedium},
	}

	SortAnomalies(anomalies)

	assert.Equal(t, models.SeverityCritical, anomalies[0].Severity)
	assert.Equal(t, "organic_traffic", anomalies[1].Metric)
	assert.Equal(t, "bounce_rate", anomalies[2].Metric)
	assert.Equal(t, "ctr", anomalies[3].Metric)
}

func TestDetectCapsResults(t *testing.T) {
	config := DefaultConfig()
	config.Anomaly.MaxAnomalies = 1
	detector := NewAnomalyDetector(config, logrus.New())

	anomalies := detector.Detect(dailySeries("ctr", 10, 10, 11, 10, 11, 60, 10, 11, 10, 11, 10, -40, 10), models.SensitivityLow)

	assert.Len(t, anomalies, 1)
}

// Helper functions

func findAnomaly(anomalies []models.Anomaly, index int) *models.Anomaly {
	for i := range anomalies {
		if anomalies[i].Index == index {
			return &anomalies[i]
		}
	}
	return nil
}
