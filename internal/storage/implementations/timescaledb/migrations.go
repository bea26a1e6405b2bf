package timescaledb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/contentscore/pkg/errors"
)

// migrationLockID is the advisory lock key held while migrating
const migrationLockID = 727_001

// Migration is one versioned schema change. Optional statements may fail
// without failing the migration, e.g. TimescaleDB-only calls on plain Postgres.
type Migration struct {
	Version    int
	Name       string
	Statements []string
	Optional   []string
}

// Checksum identifies the migration body
func (m Migration) Checksum() string {
	sum := sha256.Sum256([]byte(strings.Join(append(append([]string{}, m.Statements...), m.Optional...), ";")))
	return hex.EncodeToString(sum[:8])
}

// Migrations returns the ordered schema migrations for the configured table
func (ts *ReportStore) Migrations() []Migration {
	table := ts.table()
	index := pq.QuoteIdentifier("idx_" + ts.config.Table + "_content_time")

	migrations := []Migration{
		{
			Version: 1,
			Name:    "create_score_reports",
			Statements: []string{
				fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT NOT NULL,
		content_id TEXT NOT NULL,
		overall DOUBLE PRECISION NOT NULL,
		grade TEXT NOT NULL,
		valid BOOLEAN NOT NULL,
		generated_at TIMESTAMPTZ NOT NULL,
		report JSONB NOT NULL,
		PRIMARY KEY (id, generated_at)
	)`, table),
				fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (content_id, generated_at DESC)", index, table),
			},
			Optional: []string{
				"CREATE EXTENSION IF NOT EXISTS timescaledb CASCADE",
				fmt.Sprintf("SELECT create_hypertable(%s, 'generated_at', chunk_time_interval => INTERVAL %s, if_not_exists => TRUE)",
					pq.QuoteLiteral(ts.config.Table), pq.QuoteLiteral(ts.config.ChunkTimeInterval)),
			},
		},
	}

	if ts.config.RetentionPolicy != "" {
		migrations = append(migrations, Migration{
			Version: 2,
			Name:    "score_reports_retention",
			Optional: []string{
				fmt.Sprintf("SELECT add_retention_policy(%s, INTERVAL %s, if_not_exists => TRUE)",
					pq.QuoteLiteral(ts.config.Table), pq.QuoteLiteral(ts.config.RetentionPolicy)),
			},
		})
	}
	return migrations
}

// migrate applies every migration newer than the recorded schema version
func (ts *ReportStore) migrate(ctx context.Context, db *sql.DB) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "Failed to acquire migration connection")
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to acquire migration lock")
	}
	defer func() {
		if _, err := conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			ts.logger.WithError(err).Warn("Failed to release migration lock")
		}
	}()

	if _, err := conn.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		checksum TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to create migration table")
	}

	var current int
	if err := conn.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to read schema version")
	}

	for _, m := range pending(ts.Migrations(), current) {
		start := time.Now()
		if err := ts.apply(ctx, conn, m); err != nil {
			return err
		}
		ts.logger.WithFields(logrus.Fields{
			"version":  m.Version,
			"name":     m.Name,
			"duration": time.Since(start),
		}).Info("Applied schema migration")
	}
	return nil
}

func (ts *ReportStore) apply(ctx context.Context, conn *sql.Conn, m Migration) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to begin migration")
	}
	defer tx.Rollback()

	for _, stmt := range m.Statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
				fmt.Sprintf("Migration %d (%s) failed", m.Version, m.Name))
		}
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name, checksum) VALUES ($1, $2, $3)",
		m.Version, m.Name, m.Checksum(),
	); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to record migration")
	}
	if err := tx.Commit(); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to commit migration")
	}

	// Optional statements run outside the transaction
	for _, stmt := range m.Optional {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			ts.logger.WithError(err).WithField("version", m.Version).Warn("Optional migration statement failed")
		}
	}
	return nil
}

// pending returns migrations above current, in version order
func pending(migrations []Migration, current int) []Migration {
	out := make([]Migration, 0, len(migrations))
	for _, m := range migrations {
		if m.Version > current {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out
}
