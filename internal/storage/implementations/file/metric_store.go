package file

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/contentscore/pkg/errors"
	"github.com/inferloop/contentscore/pkg/interfaces"
	"github.com/inferloop/contentscore/pkg/models"
)

// MetricStoreConfig contains configuration for the CSV metric store
type MetricStoreConfig struct {
	BasePath   string `json:"base_path" yaml:"base_path" mapstructure:"base_path"`
	CreateDirs bool   `json:"create_dirs" yaml:"create_dirs" mapstructure:"create_dirs"`
	SyncWrites bool   `json:"sync_writes" yaml:"sync_writes" mapstructure:"sync_writes"`
}

// MetricStore keeps metric histories as CSV files laid out as
// <base>/<content_id>/<metric>.csv with a "timestamp,value" header.
type MetricStore struct {
	config    *MetricStoreConfig
	logger    *logrus.Logger
	mu        sync.RWMutex
	connected bool
}

// NewMetricStore creates a CSV metric store
func NewMetricStore(config *MetricStoreConfig, logger *logrus.Logger) (*MetricStore, error) {
	if config == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidConfig, "MetricStoreConfig cannot be nil")
	}
	if config.BasePath == "" {
		return nil, errors.NewValidationError(errors.CodeInvalidConfig, "BasePath is required")
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &MetricStore{config: config, logger: logger}, nil
}

// Connect checks the base directory, creating it when configured to
func (s *MetricStore) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}

	if s.config.CreateDirs {
		if err := os.MkdirAll(s.config.BasePath, 0o755); err != nil {
			return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed,
				fmt.Sprintf("Failed to create directory: %s", s.config.BasePath))
		}
	}
	info, err := os.Stat(s.config.BasePath)
	if err != nil || !info.IsDir() {
		return errors.NewStorageError(errors.CodeConnectionFailed,
			fmt.Sprintf("Base path does not exist: %s", s.config.BasePath)).WithCause(errors.ErrStorageConnectionFailed)
	}

	s.connected = true
	s.logger.WithField("base_path", s.config.BasePath).Info("File metric store ready")
	return nil
}

// Close marks the store closed
func (s *MetricStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

// Ping checks the base directory is still reachable
func (s *MetricStore) Ping(ctx context.Context) error {
	if !s.isConnected() {
		return errors.NewStorageError(errors.CodeNotConnected, "File metric store not connected")
	}
	if _, err := os.Stat(s.config.BasePath); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "Base path unavailable")
	}
	return nil
}

// Health returns the health status of the store
func (s *MetricStore) Health(ctx context.Context) (*interfaces.HealthStatus, error) {
	start := time.Now()
	status := &interfaces.HealthStatus{
		Status:   "healthy",
		Metadata: map[string]interface{}{"base_path": s.config.BasePath},
	}
	if err := s.Ping(ctx); err != nil {
		status.Status = "unhealthy"
		status.Errors = append(status.Errors, err.Error())
	}
	status.Latency = time.Since(start)
	status.LastCheck = time.Now()
	return status, nil
}

// Query reads one metric of one content item, filtered to the query window
func (s *MetricStore) Query(ctx context.Context, query *models.MetricQuery) (*models.MetricSeries, error) {
	if !s.isConnected() {
		return nil, errors.NewStorageError(errors.CodeNotConnected, "File metric store not connected")
	}
	if query == nil || query.ContentID == "" || query.Metric == "" {
		return nil, errors.NewValidationError(errors.CodeMissingField, "content id and metric are required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	path := s.filePath(query.ContentID, query.Metric)
	points, err := readCSV(path)
	if os.IsNotExist(err) {
		return nil, errors.NewStorageError(errors.CodeDataNotFound,
			fmt.Sprintf("no %s data for content %s", query.Metric, query.ContentID)).WithCause(errors.ErrDataNotFound)
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed,
			fmt.Sprintf("Failed to read %s", path))
	}

	series := (&models.MetricSeries{Metric: query.Metric, Points: filterWindow(points, query.Start, query.End)}).Normalized()
	if query.Limit > 0 && series.Len() > query.Limit {
		series.Points = series.Points[series.Len()-query.Limit:]
	}
	if series.Len() == 0 {
		return nil, errors.NewStorageError(errors.CodeDataNotFound,
			fmt.Sprintf("no %s data for content %s in window", query.Metric, query.ContentID)).WithCause(errors.ErrDataNotFound)
	}
	return series, nil
}

// Write appends observations to the metric's CSV file
func (s *MetricStore) Write(ctx context.Context, contentID string, series *models.MetricSeries) error {
	if !s.isConnected() {
		return errors.NewStorageError(errors.CodeNotConnected, "File metric store not connected")
	}
	if series == nil || contentID == "" || series.Metric == "" {
		return errors.NewValidationError(errors.CodeMissingField, "content id and metric are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.filePath(contentID, series.Metric)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to create content directory")
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
			fmt.Sprintf("Failed to open file: %s", path))
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to stat file")
	}

	writer := csv.NewWriter(file)
	// Write header if file is new
	if stat.Size() == 0 {
		if err := writer.Write([]string{"timestamp", "value"}); err != nil {
			return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to write header")
		}
	}
	for _, p := range series.Points {
		record := []string{
			p.Timestamp.UTC().Format(time.RFC3339Nano),
			strconv.FormatFloat(p.Value, 'f', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to write record")
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to flush records")
	}
	if s.config.SyncWrites {
		if err := file.Sync(); err != nil {
			return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to sync file")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"content_id":  contentID,
		"metric":      series.Metric,
		"data_points": series.Len(),
	}).Debug("Appended metric series")
	return nil
}

// ListMetrics returns the metric names recorded for a content item
func (s *MetricStore) ListMetrics(ctx context.Context, contentID string) ([]string, error) {
	if !s.isConnected() {
		return nil, errors.NewStorageError(errors.CodeNotConnected, "File metric store not connected")
	}

	entries, err := os.ReadDir(filepath.Join(s.config.BasePath, safeName(contentID)))
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to list metrics")
	}

	metrics := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".csv") {
			metrics = append(metrics, strings.TrimSuffix(e.Name(), ".csv"))
		}
	}
	sort.Strings(metrics)
	return metrics, nil
}

func (s *MetricStore) isConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *MetricStore) filePath(contentID, metric string) string {
	return filepath.Join(s.config.BasePath, safeName(contentID), safeName(metric)+".csv")
}

func readCSV(path string) ([]models.DataPoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	points := make([]models.DataPoint, 0)
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		if len(record) < 2 {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(record[0]))
		if err != nil {
			if line == 1 {
				continue // header
			}
			return nil, fmt.Errorf("line %d: invalid timestamp %q: %w", line, record[0], errors.ErrInvalidInputData)
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid value %q: %w", line, record[1], errors.ErrInvalidInputData)
		}
		points = append(points, models.DataPoint{Timestamp: ts, Value: value})
	}
	return points, nil
}

func filterWindow(points []models.DataPoint, start, end time.Time) []models.DataPoint {
	out := make([]models.DataPoint, 0, len(points))
	for _, p := range points {
		if !start.IsZero() && p.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && !p.Timestamp.Before(end) {
			continue
		}
		out = append(out, p)
	}
	return out
}

var _ interfaces.MetricStore = (*MetricStore)(nil)
