package models

import (
	"fmt"
	"sort"
	"time"
)

// DataPoint is a single timestamped observation.
type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// MetricSeries is an ordered sequence of observations for one named metric.
// Timestamps are strictly increasing.
type MetricSeries struct {
	Metric string      `json:"metric"`
	Unit   string      `json:"unit,omitempty"`
	Points []DataPoint `json:"points"`
}

// NewMetricSeries builds a series from values spaced one interval apart.
func NewMetricSeries(metric string, start time.Time, interval time.Duration, values []float64) *MetricSeries {
	points := make([]DataPoint, len(values))
	for i, v := range values {
		points[i] = DataPoint{Timestamp: start.Add(time.Duration(i) * interval), Value: v}
	}
	return &MetricSeries{Metric: metric, Points: points}
}

// Len returns the number of observations.
func (s *MetricSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Points)
}

// Values returns the observation values in order.
func (s *MetricSeries) Values() []float64 {
	out := make([]float64, s.Len())
	if s == nil {
		return out
	}
	for i, p := range s.Points {
		out[i] = p.Value
	}
	return out
}

// Timestamps returns the observation timestamps in order.
func (s *MetricSeries) Timestamps() []time.Time {
	out := make([]time.Time, s.Len())
	if s == nil {
		return out
	}
	for i, p := range s.Points {
		out[i] = p.Timestamp
	}
	return out
}

// Last returns the most recent observation.
func (s *MetricSeries) Last() (DataPoint, bool) {
	if s.Len() == 0 {
		return DataPoint{}, false
	}
	return s.Points[len(s.Points)-1], true
}

// Validate checks that timestamps are strictly increasing.
func (s *MetricSeries) Validate() error {
	if s == nil {
		return fmt.Errorf("series is nil")
	}
	for i := 1; i < len(s.Points); i++ {
		if !s.Points[i].Timestamp.After(s.Points[i-1].Timestamp) {
			return fmt.Errorf("metric %q: timestamp at index %d is not after index %d", s.Metric, i, i-1)
		}
	}
	return nil
}

// Normalized returns a copy sorted by timestamp with duplicate timestamps
// collapsed to the last observation seen.
func (s *MetricSeries) Normalized() *MetricSeries {
	points := make([]DataPoint, len(s.Points))
	copy(points, s.Points)
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})

	out := make([]DataPoint, 0, len(points))
	for _, p := range points {
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(p.Timestamp) {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	return &MetricSeries{Metric: s.Metric, Unit: s.Unit, Points: out}
}

// MedianSpacing returns the median gap between consecutive observations.
func (s *MetricSeries) MedianSpacing() time.Duration {
	if s.Len() < 2 {
		return 0
	}
	gaps := make([]time.Duration, 0, s.Len()-1)
	for i := 1; i < len(s.Points); i++ {
		gaps = append(gaps, s.Points[i].Timestamp.Sub(s.Points[i-1].Timestamp))
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i] < gaps[j] })
	return gaps[len(gaps)/2]
}

// MetricQuery selects one metric of one content item over a time range.
// Zero Start or End leaves that side open.
type MetricQuery struct {
	ContentID string    `json:"content_id"`
	Metric    string    `json:"metric"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Limit     int       `json:"limit,omitempty"`
}
