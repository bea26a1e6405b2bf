package timescaledb

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/contentscore/pkg/errors"
	"github.com/inferloop/contentscore/pkg/models"
)

func TestNewReportStore(t *testing.T) {
	store := testStore(t, "")

	assert.Equal(t, 5432, store.config.Port)
	assert.Equal(t, "disable", store.config.SSLMode)
	assert.Equal(t, "score_reports", store.config.Table)
	assert.Equal(t, 10*time.Second, store.config.ConnectTimeout)
	assert.Equal(t, "7 days", store.config.ChunkTimeInterval)
}

func TestNewReportStoreInvalidConfig(t *testing.T) {
	_, err := NewReportStore(nil, logrus.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config cannot be nil")

	_, err = NewReportStore(&TimescaleDBConfig{Host: "localhost"}, logrus.New())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeStorage))
}

func TestConnString(t *testing.T) {
	store, err := NewReportStore(&TimescaleDBConfig{
		Host:     "db.internal",
		Database: "content",
		Username: "scorer",
		Password: "it's secret",
	}, logrus.New())
	require.NoError(t, err)

	conn := store.connString()
	assert.Contains(t, conn, "host=db.internal")
	assert.Contains(t, conn, "port=5432")
	assert.Contains(t, conn, "dbname=content")
	assert.Contains(t, conn, "user=scorer")
	assert.Contains(t, conn, `password='it\'s secret'`)
	assert.Contains(t, conn, "connect_timeout=10")
}

func TestQuoteConnValue(t *testing.T) {
	assert.Equal(t, "plain", quoteConnValue("plain"))
	assert.Equal(t, "''", quoteConnValue(""))
	assert.Equal(t, `'a b'`, quoteConnValue("a b"))
	assert.Equal(t, `'a\\b'`, quoteConnValue(`a\b`))
}

func TestQueriesUseQuotedTable(t *testing.T) {
	store := testStore(t, "reports")

	assert.Contains(t, store.insertQuery(), `INSERT INTO "reports"`)
	assert.Contains(t, store.insertQuery(), "ON CONFLICT (id, generated_at) DO NOTHING")
	assert.Contains(t, store.latestQuery(), "generated_at < $2 AND valid")
	assert.Contains(t, store.latestQuery(), "LIMIT 1")
	assert.Contains(t, store.historyQuery(), "LIMIT $2")
	assert.Contains(t, store.latestScoresQuery(), "DISTINCT ON (content_id)")
	assert.Contains(t, store.latestScoresQuery(), "ANY($1)")
}

func TestMigrations(t *testing.T) {
	store := testStore(t, "")

	migrations := store.Migrations()
	require.Len(t, migrations, 1)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Contains(t, migrations[0].Statements[0], `CREATE TABLE IF NOT EXISTS "score_reports"`)
	assert.Contains(t, migrations[0].Optional[1], "create_hypertable('score_reports'")
	assert.Contains(t, migrations[0].Optional[1], "INTERVAL '7 days'")
	assert.Len(t, migrations[0].Checksum(), 16)

	store.config.RetentionPolicy = "365 days"
	migrations = store.Migrations()
	require.Len(t, migrations, 2)
	assert.Contains(t, migrations[1].Optional[0], "add_retention_policy")
}

func TestPendingMigrations(t *testing.T) {
	migrations := []Migration{{Version: 3}, {Version: 1}, {Version: 2}}

	out := pending(migrations, 1)
	require.Len(t, out, 2)
	assert.Equal(t, 2, out[0].Version)
	assert.Equal(t, 3, out[1].Version)

	assert.Empty(t, pending(migrations, 3))
}

func TestReportStoreNotConnected(t *testing.T) {
	store := testStore(t, "")
	ctx := context.Background()

	err := store.SaveReport(ctx, &models.ScoreReport{ID: "r1", ContentID: "post-1"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeStorage))

	_, err = store.LatestReport(ctx, "post-1", time.Now())
	assert.Error(t, err)

	_, err = store.History(ctx, "post-1", 10)
	assert.Error(t, err)

	_, err = store.LatestScores(ctx, []string{"post-1"})
	assert.Error(t, err)

	health, err := store.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "unhealthy", health.Status)

	assert.NoError(t, store.Close())
}

func TestDecodeReport(t *testing.T) {
	report, err := decodeReport([]byte(`{"id":"r1","content_id":"post-1","overall":74,"grade":"B","valid":true}`))
	require.NoError(t, err)
	assert.Equal(t, 74.0, report.Overall)

	_, err = decodeReport([]byte("{"))
	assert.Error(t, err)
}

// Helper functions

func testStore(t *testing.T, table string) *ReportStore {
	t.Helper()
	store, err := NewReportStore(&TimescaleDBConfig{Host: "localhost", Database: "content", Table: table}, logrus.New())
	require.NoError(t, err)
	return store
}
