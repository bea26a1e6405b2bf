package sqlite

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/contentscore/pkg/errors"
	"github.com/inferloop/contentscore/pkg/models"
)

func TestNewReportStoreInvalidConfig(t *testing.T) {
	_, err := NewReportStore(nil, logrus.New())
	require.Error(t, err)

	_, err = NewReportStore(&SQLiteConfig{}, logrus.New())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeStorage))
}

func TestReportStoreSaveAndHistory(t *testing.T) {
	store := openStore(t, ":memory:")
	ctx := context.Background()

	for i, overall := range []float64{60, 68, 74} {
		require.NoError(t, store.SaveReport(ctx, report("r"+string(rune('1'+i)), "post-1", overall, day(i))))
	}
	require.NoError(t, store.SaveReport(ctx, report("other", "post-2", 90, day(0))))

	// Duplicate IDs are ignored
	require.NoError(t, store.SaveReport(ctx, report("r1", "post-1", 10, day(5))))

	history, err := store.History(ctx, "post-1", 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, 74.0, history[0].Overall)
	assert.Equal(t, 60.0, history[2].Overall)

	history, err = store.History(ctx, "post-1", 1)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestReportStoreLatestReport(t *testing.T) {
	store := openStore(t, ":memory:")
	ctx := context.Background()

	require.NoError(t, store.SaveReport(ctx, report("r1", "post-1", 60, day(0))))
	require.NoError(t, store.SaveReport(ctx, report("r2", "post-1", 68, day(1))))

	invalid := report("r3", "post-1", 0, day(2))
	invalid.Valid = false
	require.NoError(t, store.SaveReport(ctx, invalid))

	latest, err := store.LatestReport(ctx, "post-1", day(3))
	require.NoError(t, err)
	assert.Equal(t, "r2", latest.ID)
	assert.True(t, latest.GeneratedAt.Equal(day(1)))

	latest, err = store.LatestReport(ctx, "post-1", day(1))
	require.NoError(t, err)
	assert.Equal(t, "r1", latest.ID)

	_, err = store.LatestReport(ctx, "post-1", day(0))
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrDataNotFound))
}

func TestReportStoreFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "reports.db")
	store := openStore(t, path)

	require.NoError(t, store.SaveReport(context.Background(), report("r1", "post-1", 74, day(0))))

	health, err := store.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
}

func TestReportStoreValidation(t *testing.T) {
	store := openStore(t, ":memory:")

	err := store.SaveReport(context.Background(), &models.ScoreReport{ID: "r1"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestReportStoreClosed(t *testing.T) {
	store, err := NewReportStore(&SQLiteConfig{Path: ":memory:"}, logrus.New())
	require.NoError(t, err)

	_, err = store.History(context.Background(), "post-1", 1)
	assert.True(t, errors.IsType(err, errors.ErrorTypeStorage))
	assert.NoError(t, store.Close())
}

func TestDSN(t *testing.T) {
	store, err := NewReportStore(&SQLiteConfig{Path: "/tmp/r.db"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/r.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", store.dsn())
}

// Helper functions

func openStore(t *testing.T, path string) *ReportStore {
	t.Helper()
	store, err := NewReportStore(&SQLiteConfig{Path: path}, logrus.New())
	require.NoError(t, err)
	require.NoError(t, store.Connect(context.Background()))
	t.Cleanup(func() { store.Close() })
	return store
}

func day(i int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

func report(id, contentID string, overall float64, at time.Time) *models.ScoreReport {
	return &models.ScoreReport{
		ID:          id,
		ContentID:   contentID,
		Valid:       true,
		Overall:     overall,
		Grade:       "B",
		GeneratedAt: at,
	}
}
