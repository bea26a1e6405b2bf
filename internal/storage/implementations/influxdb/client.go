package influxdb

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/contentscore/pkg/errors"
	"github.com/inferloop/contentscore/pkg/interfaces"
	"github.com/inferloop/contentscore/pkg/models"
)

// InfluxDBConfig contains configuration for the InfluxDB metric store
type InfluxDBConfig struct {
	URL          string        `json:"url" yaml:"url" mapstructure:"url"`
	Token        string        `json:"token" yaml:"token" mapstructure:"token"`
	Organization string        `json:"organization" yaml:"organization" mapstructure:"organization"`
	Bucket       string        `json:"bucket" yaml:"bucket" mapstructure:"bucket"`
	Measurement  string        `json:"measurement" yaml:"measurement" mapstructure:"measurement"`
	Timeout      time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	BatchSize    int           `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size"`
	UseGZip      bool          `json:"use_gzip" yaml:"use_gzip" mapstructure:"use_gzip"`

	// DefaultRange is the lookback used when a query has no start, e.g. "-90d"
	DefaultRange string `json:"default_range" yaml:"default_range" mapstructure:"default_range"`
}

// MetricStore reads and writes content metric histories in InfluxDB. Each
// content item is a content_id tag, each metric a field of one measurement.
type MetricStore struct {
	config    *InfluxDBConfig
	client    influxdb2.Client
	writeAPI  api.WriteAPIBlocking
	queryAPI  api.QueryAPI
	logger    *logrus.Logger
	connected bool
}

// NewMetricStore creates a new InfluxDB metric store
func NewMetricStore(config *InfluxDBConfig, logger *logrus.Logger) (*MetricStore, error) {
	if config == nil {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "InfluxDB config cannot be nil")
	}
	if config.URL == "" || config.Bucket == "" {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "InfluxDB url and bucket are required")
	}

	if logger == nil {
		logger = logrus.New()
	}

	// Set defaults
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.BatchSize == 0 {
		config.BatchSize = 1000
	}
	if config.Measurement == "" {
		config.Measurement = "content_metrics"
	}
	if config.DefaultRange == "" {
		config.DefaultRange = "-90d"
	}

	return &MetricStore{
		config: config,
		logger: logger,
	}, nil
}

// Connect establishes connection to InfluxDB
func (s *MetricStore) Connect(ctx context.Context) error {
	if s.connected {
		return nil
	}

	options := influxdb2.DefaultOptions()
	options.SetBatchSize(uint(s.config.BatchSize))
	options.SetUseGZip(s.config.UseGZip)
	options.SetHTTPRequestTimeout(uint(s.config.Timeout / time.Second))

	s.client = influxdb2.NewClientWithOptions(s.config.URL, s.config.Token, options)

	ok, err := s.client.Ping(ctx)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "Failed to connect to InfluxDB")
	}
	if !ok {
		return errors.NewStorageError(errors.CodeConnectionFailed, "InfluxDB ping failed").WithCause(errors.ErrStorageConnectionFailed)
	}

	s.writeAPI = s.client.WriteAPIBlocking(s.config.Organization, s.config.Bucket)
	s.queryAPI = s.client.QueryAPI(s.config.Organization)
	s.connected = true

	s.logger.WithFields(logrus.Fields{
		"url":          s.config.URL,
		"organization": s.config.Organization,
		"bucket":       s.config.Bucket,
	}).Info("Connected to InfluxDB")

	return nil
}

// Close closes the connection to InfluxDB
func (s *MetricStore) Close() error {
	if !s.connected {
		return nil
	}
	if s.client != nil {
		s.client.Close()
	}
	s.connected = false
	s.logger.Info("Disconnected from InfluxDB")
	return nil
}

// Ping tests the connection
func (s *MetricStore) Ping(ctx context.Context) error {
	if !s.connected {
		return errors.NewStorageError(errors.CodeNotConnected, "Not connected to InfluxDB")
	}
	ok, err := s.client.Ping(ctx)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "InfluxDB ping failed")
	}
	if !ok {
		return errors.NewStorageError(errors.CodeConnectionFailed, "InfluxDB ping returned false")
	}
	return nil
}

// Health returns the health status of the store
func (s *MetricStore) Health(ctx context.Context) (*interfaces.HealthStatus, error) {
	start := time.Now()
	status := &interfaces.HealthStatus{
		Status: "healthy",
		Metadata: map[string]interface{}{
			"url":    s.config.URL,
			"bucket": s.config.Bucket,
		},
	}
	if err := s.Ping(ctx); err != nil {
		status.Status = "unhealthy"
		status.Errors = append(status.Errors, err.Error())
	}
	status.Latency = time.Since(start)
	status.LastCheck = time.Now()
	return status, nil
}

// Query returns one metric of one content item, oldest first
func (s *MetricStore) Query(ctx context.Context, query *models.MetricQuery) (*models.MetricSeries, error) {
	if !s.connected {
		return nil, errors.NewStorageError(errors.CodeNotConnected, "Not connected to InfluxDB")
	}
	if query == nil || query.ContentID == "" || query.Metric == "" {
		return nil, errors.NewValidationError(errors.CodeMissingField, "content id and metric are required")
	}

	flux := s.buildFluxQuery(query)
	s.logger.WithFields(logrus.Fields{
		"content_id": query.ContentID,
		"metric":     query.Metric,
		"query":      flux,
	}).Debug("Executing InfluxDB query")

	result, err := s.queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeQueryFailed, "Failed to execute InfluxDB query")
	}
	defer result.Close()

	series := &models.MetricSeries{
		Metric: query.Metric,
		Points: make([]models.DataPoint, 0),
	}
	for result.Next() {
		record := result.Record()
		value, ok := toFloat(record.Value())
		if !ok {
			continue
		}
		series.Points = append(series.Points, models.DataPoint{
			Timestamp: record.Time(),
			Value:     value,
		})
	}
	if result.Err() != nil {
		return nil, errors.WrapError(result.Err(), errors.ErrorTypeStorage, errors.CodeReadFailed, "Error reading query results")
	}
	if len(series.Points) == 0 {
		return nil, errors.NewStorageError(errors.CodeDataNotFound,
			fmt.Sprintf("no %s data for content %s", query.Metric, query.ContentID)).WithCause(errors.ErrDataNotFound)
	}

	series = series.Normalized()
	s.logger.WithFields(logrus.Fields{
		"content_id":  query.ContentID,
		"metric":      query.Metric,
		"data_points": series.Len(),
	}).Debug("Read metric series from InfluxDB")

	return series, nil
}

// Write appends the series observations for a content item
func (s *MetricStore) Write(ctx context.Context, contentID string, series *models.MetricSeries) error {
	if !s.connected {
		return errors.NewStorageError(errors.CodeNotConnected, "Not connected to InfluxDB")
	}
	if series == nil || contentID == "" {
		return errors.NewValidationError(errors.CodeMissingField, "content id and series are required")
	}

	points := s.toPoints(contentID, series)
	for start := 0; start < len(points); start += s.config.BatchSize {
		end := start + s.config.BatchSize
		if end > len(points) {
			end = len(points)
		}
		if err := s.writeAPI.WritePoint(ctx, points[start:end]...); err != nil {
			return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to write to InfluxDB")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"content_id":  contentID,
		"metric":      series.Metric,
		"data_points": len(points),
	}).Debug("Wrote metric series to InfluxDB")

	return nil
}

// ListMetrics returns the field keys recorded for a content item
func (s *MetricStore) ListMetrics(ctx context.Context, contentID string) ([]string, error) {
	if !s.connected {
		return nil, errors.NewStorageError(errors.CodeNotConnected, "Not connected to InfluxDB")
	}

	result, err := s.queryAPI.Query(ctx, s.buildListQuery(contentID))
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeQueryFailed, "Failed to list metrics")
	}
	defer result.Close()

	metrics := make([]string, 0)
	for result.Next() {
		if name, ok := result.Record().Value().(string); ok {
			metrics = append(metrics, name)
		}
	}
	if result.Err() != nil {
		return nil, errors.WrapError(result.Err(), errors.ErrorTypeStorage, errors.CodeReadFailed, "Error reading list results")
	}
	sort.Strings(metrics)
	return metrics, nil
}

func (s *MetricStore) toPoints(contentID string, series *models.MetricSeries) []*write.Point {
	points := make([]*write.Point, 0, len(series.Points))
	for _, p := range series.Points {
		points = append(points, influxdb2.NewPointWithMeasurement(s.config.Measurement).
			AddTag("content_id", contentID).
			AddField(series.Metric, p.Value).
			SetTime(p.Timestamp))
	}
	return points
}

// buildFluxQuery builds the Flux query selecting one metric of one item
func (s *MetricStore) buildFluxQuery(query *models.MetricQuery) string {
	var b strings.Builder
	fmt.Fprintf(&b, `from(bucket: %s)`, fluxString(s.config.Bucket))

	start := s.config.DefaultRange
	if !query.Start.IsZero() {
		start = query.Start.UTC().Format(time.RFC3339)
	}
	if !query.End.IsZero() {
		fmt.Fprintf(&b, "\n  |> range(start: %s, stop: %s)", start, query.End.UTC().Format(time.RFC3339))
	} else {
		fmt.Fprintf(&b, "\n  |> range(start: %s)", start)
	}

	fmt.Fprintf(&b, "\n  |> filter(fn: (r) => r._measurement == %s)", fluxString(s.config.Measurement))
	fmt.Fprintf(&b, "\n  |> filter(fn: (r) => r.content_id == %s)", fluxString(query.ContentID))
	fmt.Fprintf(&b, "\n  |> filter(fn: (r) => r._field == %s)", fluxString(query.Metric))
	b.WriteString("\n  |> sort(columns: [\"_time\"])")

	if query.Limit > 0 {
		fmt.Fprintf(&b, "\n  |> tail(n: %d)", query.Limit)
	}
	return b.String()
}

// buildListQuery builds the Flux query listing a content item's metrics
func (s *MetricStore) buildListQuery(contentID string) string {
	return fmt.Sprintf(`import "influxdata/influxdb/schema"

schema.fieldKeys(
  bucket: %s,
  predicate: (r) => r._measurement == %s and r.content_id == %s,
  start: %s,
)`, fluxString(s.config.Bucket), fluxString(s.config.Measurement), fluxString(contentID), s.config.DefaultRange)
}

// fluxString quotes s as a Flux string literal
func fluxString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "${", `\${`)
	return `"` + r.Replace(s) + `"`
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

var _ interfaces.MetricStore = (*MetricStore)(nil)
