package alerting

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/contentscore/pkg/models"
)

func TestEvaluateAnomalyRule(t *testing.T) {
	am := NewAlertManager(nil, logrus.New())

	report := insightsReport()
	report.Anomalies = []models.Anomaly{
		{Metric: "pageviews", Severity: models.SeverityMedium, Timestamp: day(1)},
		{Metric: "pageviews", Severity: models.SeverityHigh, Timestamp: day(2), Value: 50, Expected: 12, Deviation: 2.7},
		{Metric: "bounce_rate", Severity: models.SeverityCritical, Timestamp: day(3)},
	}

	alerts := am.Evaluate(report)
	require.Len(t, alerts, 2)
	assert.Equal(t, SeverityCritical, alerts[0].Severity)
	assert.Equal(t, "bounce_rate", alerts[0].Metric)
	assert.Equal(t, SeverityWarning, alerts[1].Severity)
	assert.Equal(t, "anomaly", alerts[1].Rule)
	assert.Equal(t, "post-1", alerts[1].ContentID)
	assert.Contains(t, alerts[1].Message, "high anomaly in pageviews")
	assert.NotEmpty(t, alerts[1].ID)
}

func TestEvaluateScoreDropRule(t *testing.T) {
	am := NewAlertManager(nil, logrus.New())

	report := insightsReport()
	report.Score.Historical = &models.HistoricalComparison{PreviousScore: 80, Change: -12, Trend: "declining"}
	alerts := am.Evaluate(report)
	require.Len(t, alerts, 1)
	assert.Equal(t, "score_drop", alerts[0].Rule)
	assert.Equal(t, SeverityWarning, alerts[0].Severity)

	report.Score.Historical.Change = -25
	alerts = am.Evaluate(report)
	require.Len(t, alerts, 1)
	assert.Equal(t, SeverityCritical, alerts[0].Severity)

	report.Score.Historical.Change = -5
	assert.Empty(t, am.Evaluate(report))
}

func TestEvaluateCriticalStatus(t *testing.T) {
	am := NewAlertManager(nil, logrus.New())

	report := insightsReport()
	report.Summary.Status = "critical"
	report.Summary.OverallScore = 32

	alerts := am.Evaluate(report)
	require.Len(t, alerts, 1)
	assert.Equal(t, "critical_status", alerts[0].Rule)
	assert.Contains(t, alerts[0].Message, "32.0")
}

func TestProcessSuppressesRepeats(t *testing.T) {
	config := DefaultAlertConfig()
	config.RepeatInterval = time.Hour
	am := NewAlertManager(config, logrus.New())
	now := day(10)
	am.clock = func() time.Time { return now }

	notifier := &recordingNotifier{}
	am.RegisterNotifier(notifier)
	am.RegisterNotifier(NewLogNotifier(logrus.New()))

	report := insightsReport()
	report.Summary.Status = "critical"

	sent, err := am.Process(context.Background(), report)
	require.NoError(t, err)
	assert.Len(t, sent, 1)

	sent, err = am.Process(context.Background(), report)
	require.NoError(t, err)
	assert.Empty(t, sent)
	assert.Equal(t, 1, notifier.calls)

	now = now.Add(2 * time.Hour)
	sent, err = am.Process(context.Background(), report)
	require.NoError(t, err)
	assert.Len(t, sent, 1)
	assert.Equal(t, 2, notifier.calls)

	history := am.History(0)
	assert.Len(t, history, 2)
	assert.Len(t, am.History(1), 1)
}

func TestProcessReportsNotifierErrors(t *testing.T) {
	am := NewAlertManager(nil, logrus.New())
	failing := &recordingNotifier{err: fmt.Errorf("chat unreachable")}
	ok := &recordingNotifier{}
	am.RegisterNotifier(failing)
	am.RegisterNotifier(ok)

	report := insightsReport()
	report.Summary.Status = "critical"

	sent, err := am.Process(context.Background(), report)
	require.Error(t, err)
	assert.Len(t, sent, 1)
	assert.Equal(t, 1, ok.calls)
}

func TestProcessDisabled(t *testing.T) {
	config := DefaultAlertConfig()
	config.Enabled = false
	am := NewAlertManager(config, logrus.New())

	report := insightsReport()
	report.Summary.Status = "critical"

	sent, err := am.Process(context.Background(), report)
	require.NoError(t, err)
	assert.Nil(t, sent)
}

func TestCustomRule(t *testing.T) {
	am := NewAlertManager(nil, logrus.New())
	am.RegisterRule(&funcRule{})

	alerts := am.Evaluate(insightsReport())
	require.Len(t, alerts, 1)
	assert.Equal(t, "custom", alerts[0].Rule)
}

// Helper functions

type recordingNotifier struct {
	calls int
	err   error
}

func (n *recordingNotifier) Name() string { return "recording" }

func (n *recordingNotifier) Notify(ctx context.Context, alerts []*Alert) error {
	n.calls++
	return n.err
}

type funcRule struct{}

func (r *funcRule) Name() string { return "custom" }

func (r *funcRule) Evaluate(report *models.InsightsReport) []*Alert {
	return []*Alert{{Severity: SeverityInfo, Message: "checked"}}
}

func day(i int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

func insightsReport() *models.InsightsReport {
	return &models.InsightsReport{
		ContentID:   "post-1",
		GeneratedAt: day(5),
		Summary:     models.ExecutiveSummary{Status: "healthy", OverallScore: 82},
		Score:       &models.ScoreReport{ContentID: "post-1", Overall: 68, Valid: true, GeneratedAt: day(5)},
	}
}
