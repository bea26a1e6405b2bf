package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/inferloop/contentscore/pkg/errors"
	"github.com/inferloop/contentscore/pkg/interfaces"
	"github.com/inferloop/contentscore/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS score_reports (
	id TEXT PRIMARY KEY,
	content_id TEXT NOT NULL,
	overall REAL NOT NULL,
	grade TEXT NOT NULL,
	valid INTEGER NOT NULL,
	generated_at INTEGER NOT NULL,
	report TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_score_reports_content_time ON score_reports (content_id, generated_at DESC);
`

// SQLiteConfig holds configuration for the local report store
type SQLiteConfig struct {
	// Path is the database file; ":memory:" keeps everything in process
	Path        string        `json:"path" yaml:"path" mapstructure:"path"`
	BusyTimeout time.Duration `json:"busy_timeout" yaml:"busy_timeout" mapstructure:"busy_timeout"`
}

// ReportStore keeps score report history in a single SQLite file. It backs
// the CLI and single-node deployments where no Postgres is available.
type ReportStore struct {
	config *SQLiteConfig
	db     *sql.DB
	logger *logrus.Logger
	mu     sync.RWMutex
}

// NewReportStore creates a new SQLite report store
func NewReportStore(config *SQLiteConfig, logger *logrus.Logger) (*ReportStore, error) {
	if config == nil || config.Path == "" {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "SQLite path is required")
	}
	if logger == nil {
		logger = logrus.New()
	}
	if config.BusyTimeout == 0 {
		config.BusyTimeout = 5 * time.Second
	}
	return &ReportStore{config: config, logger: logger}, nil
}

// Connect opens the database file and creates the schema
func (s *ReportStore) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	if s.config.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(s.config.Path), 0o755); err != nil {
			return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "Failed to create database directory")
		}
	}

	db, err := sql.Open("sqlite", s.dsn())
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "Failed to open SQLite database")
	}
	// One connection keeps an in-memory database alive and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to create SQLite schema")
	}

	s.db = db
	s.logger.WithField("path", s.config.Path).Info("Opened SQLite report store")
	return nil
}

// Close closes the database
func (s *ReportStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "Failed to close SQLite database")
	}
	return nil
}

// Ping tests the database
func (s *ReportStore) Ping(ctx context.Context) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "SQLite ping failed")
	}
	return nil
}

// Health returns the health status of the store
func (s *ReportStore) Health(ctx context.Context) (*interfaces.HealthStatus, error) {
	start := time.Now()
	status := &interfaces.HealthStatus{
		Status:   "healthy",
		Metadata: map[string]interface{}{"path": s.config.Path},
	}
	if err := s.Ping(ctx); err != nil {
		status.Status = "unhealthy"
		status.Errors = append(status.Errors, err.Error())
	}
	status.Latency = time.Since(start)
	status.LastCheck = time.Now()
	return status, nil
}

// SaveReport persists a report. Saving the same report ID twice is a no-op.
func (s *ReportStore) SaveReport(ctx context.Context, report *models.ScoreReport) error {
	db, err := s.conn()
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

	_, err = db.ExecContext(ctx, `INSERT OR IGNORE INTO score_reports
		(id, content_id, overall, grade, valid, generated_at, report)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		report.ID, report.ContentID, report.Overall, report.Grade, report.Valid,
		report.GeneratedAt.UnixNano(), string(payload),
	)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to save report")
	}
	return nil
}

// LatestReport returns the newest valid report for contentID generated strictly before the given time
func (s *ReportStore) LatestReport(ctx context.Context, contentID string, before time.Time) (*models.ScoreReport, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	var payload string
	err = db.QueryRowContext(ctx, `SELECT report FROM score_reports
		WHERE content_id = ? AND generated_at < ? AND valid = 1
		ORDER BY generated_at DESC LIMIT 1`,
		contentID, before.UnixNano(),
	).Scan(&payload)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewStorageError(errors.CodeDataNotFound,
			fmt.Sprintf("no report for content %s before %s", contentID, before.Format(time.RFC3339))).WithCause(errors.ErrDataNotFound)
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to read latest report")
	}
	return decode(payload)
}

// History returns reports for a content item, newest first
func (s *ReportStore) History(ctx context.Context, contentID string, limit int) ([]*models.ScoreReport, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.QueryContext(ctx, `SELECT report FROM score_reports
		WHERE content_id = ?
		ORDER BY generated_at DESC LIMIT ?`, contentID, limit)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeQueryFailed, "Failed to query report history")
	}
	defer rows.Close()

	reports := make([]*models.ScoreReport, 0)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to scan report")
		}
		report, err := decode(payload)
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

func (s *ReportStore) conn() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.NewStorageError(errors.CodeNotConnected, "SQLite database not open")
	}
	return s.db, nil
}

func (s *ReportStore) dsn() string {
	pragmas := []string{
		fmt.Sprintf("_pragma=busy_timeout(%d)", s.config.BusyTimeout.Milliseconds()),
		"_pragma=journal_mode(WAL)",
	}
	if s.config.Path == ":memory:" {
		pragmas = pragmas[:1]
	}
	return s.config.Path + "?" + strings.Join(pragmas, "&")
}

func decode(payload string) (*models.ScoreReport, error) {
	var report models.ScoreReport
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to decode report")
	}
	return &report, nil
}

var _ interfaces.ReportStore = (*ReportStore)(nil)
