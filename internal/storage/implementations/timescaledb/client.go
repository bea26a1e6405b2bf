package timescaledb

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/contentscore/pkg/errors"
	"github.com/inferloop/contentscore/pkg/interfaces"
	"github.com/inferloop/contentscore/pkg/models"
)

// TimescaleDBConfig holds configuration for the TimescaleDB report store
type TimescaleDBConfig struct {
	Host              string        `json:"host" yaml:"host" mapstructure:"host"`
	Port              int           `json:"port" yaml:"port" mapstructure:"port"`
	Database          string        `json:"database" yaml:"database" mapstructure:"database"`
	Username          string        `json:"username" yaml:"username" mapstructure:"username"`
	Password          string        `json:"password" yaml:"password" mapstructure:"password"`
	SSLMode           string        `json:"ssl_mode" yaml:"ssl_mode" mapstructure:"ssl_mode"`
	ConnectTimeout    time.Duration `json:"connect_timeout" yaml:"connect_timeout" mapstructure:"connect_timeout"`
	QueryTimeout      time.Duration `json:"query_timeout" yaml:"query_timeout" mapstructure:"query_timeout"`
	MaxConnections    int           `json:"max_connections" yaml:"max_connections" mapstructure:"max_connections"`
	MaxIdleConns      int           `json:"max_idle_conns" yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime   time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	Table             string        `json:"table" yaml:"table" mapstructure:"table"`
	ChunkTimeInterval string        `json:"chunk_time_interval" yaml:"chunk_time_interval" mapstructure:"chunk_time_interval"`
	RetentionPolicy   string        `json:"retention_policy" yaml:"retention_policy" mapstructure:"retention_policy"`
}

// ReportStore keeps score report history in a TimescaleDB hypertable
type ReportStore struct {
	config *TimescaleDBConfig
	db     *sql.DB
	logger *logrus.Logger
	mu     sync.RWMutex
	closed bool
}

// NewReportStore creates a new TimescaleDB report store
func NewReportStore(config *TimescaleDBConfig, logger *logrus.Logger) (*ReportStore, error) {
	if config == nil {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "TimescaleDB config cannot be nil")
	}
	if config.Host == "" || config.Database == "" {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "TimescaleDB host and database are required")
	}

	if logger == nil {
		logger = logrus.New()
	}

	// Set defaults
	if config.Port == 0 {
		config.Port = 5432
	}
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	if config.QueryTimeout == 0 {
		config.QueryTimeout = 30 * time.Second
	}
	if config.MaxConnections == 0 {
		config.MaxConnections = 10
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 2
	}
	if config.Table == "" {
		config.Table = "score_reports"
	}
	if config.ChunkTimeInterval == "" {
		config.ChunkTimeInterval = "7 days"
	}

	return &ReportStore{
		config: config,
		logger: logger,
	}, nil
}

// Connect opens the connection pool and applies pending migrations
func (ts *ReportStore) Connect(ctx context.Context) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.db != nil {
		return nil // Already connected
	}

	db, err := sql.Open("postgres", ts.connString())
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "Failed to open database connection")
	}

	// Configure connection pool
	db.SetMaxOpenConns(ts.config.MaxConnections)
	db.SetMaxIdleConns(ts.config.MaxIdleConns)
	db.SetConnMaxLifetime(ts.config.ConnMaxLifetime)

	// Test connection
	pingCtx, cancel := context.WithTimeout(ctx, ts.config.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "Failed to ping database")
	}

	if err := ts.migrate(ctx, db); err != nil {
		db.Close()
		return err
	}

	ts.db = db
	ts.closed = false

	ts.logger.WithFields(logrus.Fields{
		"host":     ts.config.Host,
		"port":     ts.config.Port,
		"database": ts.config.Database,
		"table":    ts.config.Table,
	}).Info("Connected to TimescaleDB")

	return nil
}

// Close closes the database connection
func (ts *ReportStore) Close() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.closed || ts.db == nil {
		return nil
	}

	err := ts.db.Close()
	ts.db = nil
	ts.closed = true
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "Failed to close database connection")
	}

	ts.logger.Info("TimescaleDB connection closed")
	return nil
}

// Ping tests the database connection
func (ts *ReportStore) Ping(ctx context.Context) error {
	db, err := ts.conn()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, ts.config.QueryTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "Database ping failed")
	}
	return nil
}

// Health returns the health status of the store
func (ts *ReportStore) Health(ctx context.Context) (*interfaces.HealthStatus, error) {
	start := time.Now()
	status := &interfaces.HealthStatus{
		Status: "healthy",
		Metadata: map[string]interface{}{
			"host":  ts.config.Host,
			"table": ts.config.Table,
		},
	}

	if err := ts.Ping(ctx); err != nil {
		status.Status = "unhealthy"
		status.Errors = append(status.Errors, fmt.Sprintf("Connection failed: %v", err))
	} else {
		ts.mu.RLock()
		stats := ts.db.Stats()
		ts.mu.RUnlock()
		status.Metadata["open_connections"] = stats.OpenConnections
		if stats.OpenConnections >= ts.config.MaxConnections {
			status.Status = "degraded"
		}
	}

	status.Latency = time.Since(start)
	status.LastCheck = time.Now()
	return status, nil
}

// SaveReport persists a report. Saving the same report ID twice is a no-op.
func (ts *ReportStore) SaveReport(ctx context.Context, report *models.ScoreReport) error {
	db, err := ts.conn()
	if err != nil {
		return err
	}
	if report == nil || report.ID == "" || report.ContentID == "" {
		return errors.NewValidationError(errors.CodeMissingField, "report id and content id are required")
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to encode report")
	}

	ctx, cancel := context.WithTimeout(ctx, ts.config.QueryTimeout)
	defer cancel()

	if _, err := db.ExecContext(ctx, ts.insertQuery(),
		report.ID, report.ContentID, report.Overall, report.Grade, report.Valid, report.GeneratedAt, payload,
	); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to save report")
	}

	ts.logger.WithFields(logrus.Fields{
		"report_id":  report.ID,
		"content_id": report.ContentID,
		"overall":    report.Overall,
	}).Debug("Saved score report")
	return nil
}

// LatestReport returns the newest valid report for contentID generated strictly before the given time
func (ts *ReportStore) LatestReport(ctx context.Context, contentID string, before time.Time) (*models.ScoreReport, error) {
	db, err := ts.conn()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, ts.config.QueryTimeout)
	defer cancel()

	var payload []byte
	err = db.QueryRowContext(ctx, ts.latestQuery(), contentID, before).Scan(&payload)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewStorageError(errors.CodeDataNotFound,
			fmt.Sprintf("no report for content %s before %s", contentID, before.Format(time.RFC3339))).WithCause(errors.ErrDataNotFound)
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to read latest report")
	}
	return decodeReport(payload)
}

// History returns reports for a content item, newest first
func (ts *ReportStore) History(ctx context.Context, contentID string, limit int) ([]*models.ScoreReport, error) {
	db, err := ts.conn()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	ctx, cancel := context.WithTimeout(ctx, ts.config.QueryTimeout)
	defer cancel()

	rows, err := db.QueryContext(ctx, ts.historyQuery(), contentID, limit)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeQueryFailed, "Failed to query report history")
	}
	defer rows.Close()

	return scanReports(rows)
}

// LatestScores returns the newest valid report per content item among contentIDs
func (ts *ReportStore) LatestScores(ctx context.Context, contentIDs []string) (map[string]*models.ScoreReport, error) {
	db, err := ts.conn()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, ts.config.QueryTimeout)
	defer cancel()

	rows, err := db.QueryContext(ctx, ts.latestScoresQuery(), pq.Array(contentIDs))
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeQueryFailed, "Failed to query latest scores")
	}
	defer rows.Close()

	reports, err := scanReports(rows)
	if err != nil {
		return nil, err
	}
	latest := make(map[string]*models.ScoreReport, len(reports))
	for _, r := range reports {
		latest[r.ContentID] = r
	}
	return latest, nil
}

// Helper methods

func (ts *ReportStore) conn() (*sql.DB, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	if ts.closed || ts.db == nil {
		return nil, errors.NewStorageError(errors.CodeNotConnected, "Database not connected")
	}
	return ts.db, nil
}

func (ts *ReportStore) connString() string {
	parts := []string{
		"host=" + quoteConnValue(ts.config.Host),
		fmt.Sprintf("port=%d", ts.config.Port),
		"dbname=" + quoteConnValue(ts.config.Database),
		"sslmode=" + quoteConnValue(ts.config.SSLMode),
		fmt.Sprintf("connect_timeout=%d", int(ts.config.ConnectTimeout/time.Second)),
	}
	if ts.config.Username != "" {
		parts = append(parts, "user="+quoteConnValue(ts.config.Username))
	}
	if ts.config.Password != "" {
		parts = append(parts, "password="+quoteConnValue(ts.config.Password))
	}
	return strings.Join(parts, " ")
}

func (ts *ReportStore) table() string {
	return pq.QuoteIdentifier(ts.config.Table)
}

func (ts *ReportStore) insertQuery() string {
	return fmt.Sprintf(`INSERT INTO %s (id, content_id, overall, grade, valid, generated_at, report)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id, generated_at) DO NOTHING`, ts.table())
}

func (ts *ReportStore) latestQuery() string {
	return fmt.Sprintf(`SELECT report FROM %s
	WHERE content_id = $1 AND generated_at < $2 AND valid
	ORDER BY generated_at DESC
	LIMIT 1`, ts.table())
}

func (ts *ReportStore) historyQuery() string {
	return fmt.Sprintf(`SELECT report FROM %s
	WHERE content_id = $1
	ORDER BY generated_at DESC
	LIMIT $2`, ts.table())
}

func (ts *ReportStore) latestScoresQuery() string {
	return fmt.Sprintf(`SELECT DISTINCT ON (content_id) report FROM %s
	WHERE content_id = ANY($1) AND valid
	ORDER BY content_id, generated_at DESC`, ts.table())
}

func scanReports(rows *sql.Rows) ([]*models.ScoreReport, error) {
	reports := make([]*models.ScoreReport, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to scan report")
		}
		report, err := decodeReport(payload)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Error reading report rows")
	}
	return reports, nil
}

func decodeReport(payload []byte) (*models.ScoreReport, error) {
	var report models.ScoreReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to decode report")
	}
	return &report, nil
}

// quoteConnValue quotes a libpq key/value connection string value
func quoteConnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

var _ interfaces.ReportStore = (*ReportStore)(nil)
