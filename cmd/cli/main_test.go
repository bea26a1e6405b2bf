package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/contentscore/cmd/cli/commands"
	"github.com/inferloop/contentscore/internal/processors/batch"
	"github.com/inferloop/contentscore/pkg/models"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCmd(&commands.GlobalOptions{})

	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"score", "history", "analyze", "forecast", "correlate", "insights", "batch", "config", "token"} {
		assert.Contains(t, names, want)
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("env-file"))
	assert.NotNil(t, root.PersistentFlags().Lookup("verbose"))
}

func TestScoreCommand(t *testing.T) {
	env := newTestEnv(t)

	stdout, _, err := env.run("score", "post-1", "--format", "json")
	require.NoError(t, err)

	var report models.ScoreReport
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, "post-1", report.ContentID)
	assert.Len(t, report.Categories, 4)
	assert.True(t, report.Overall > 0 && report.Overall <= 100)
	assert.Equal(t, now, report.GeneratedAt)

	stdout, _, err = env.run("history", "post-1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Score History: post-1")
	assert.Contains(t, stdout, "2024-06-01 12:00:00")
}

func TestScoreCommandText(t *testing.T) {
	env := newTestEnv(t)

	stdout, _, err := env.run("score", "post-1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Content Score: post-1")
	assert.Contains(t, stdout, "Overall:")
	assert.Contains(t, stdout, "Categories:")
}

func TestScoreCommandFromFile(t *testing.T) {
	env := newTestEnv(t)

	path := filepath.Join(t.TempDir(), "draft.yaml")
	writeFile(t, path, `
title: Content Performance Checklist
status: draft
focus_keyword: content performance
meta_description: A checklist for reviewing content performance before and after publishing a new article.
body: "<h1>Content performance checklist</h1><p>Review content performance every month.</p>"
`)
	output := filepath.Join(t.TempDir(), "report.json")

	stdout, _, err := env.run("score", "--file", path, "--format", "json", "-o", output)
	require.NoError(t, err)
	assert.Empty(t, stdout)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	var report models.ScoreReport
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, "draft", report.ContentID)
	assert.Equal(t, "Content Performance Checklist", report.Title)
}

func TestScoreCommandArguments(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.run("score")
	assert.Error(t, err)

	_, _, err = env.run("score", "post-1", "--file", "draft.yaml")
	assert.Error(t, err)

	_, _, err = env.run("score", "post-1", "--format", "html")
	assert.Error(t, err)

	_, _, err = env.run("score", "missing-post")
	assert.Error(t, err)

	_, _, err = env.run("score", "--file", filepath.Join(t.TempDir(), "draft.txt"))
	assert.Error(t, err)
}

func TestAnalyzeCommand(t *testing.T) {
	env := newTestEnv(t)

	stdout, _, err := env.run("analyze", "post-1", "--metrics", "pageviews", "--format", "json")
	require.NoError(t, err)

	var analysis batch.Analysis
	require.NoError(t, json.Unmarshal([]byte(stdout), &analysis))
	assert.Equal(t, "post-1", analysis.ContentID)
	require.Contains(t, analysis.Trends, "pageviews")
	assert.Equal(t, models.DirectionImproving, analysis.Trends["pageviews"].Direction)

	_, _, err = env.run("analyze", "post-1", "--sensitivity", "extreme")
	assert.Error(t, err)

	_, _, err = env.run("analyze", "post-1", "--days=-3")
	assert.Error(t, err)
}

func TestForecastCommand(t *testing.T) {
	env := newTestEnv(t)

	stdout, _, err := env.run("forecast", "post-1", "--metric", "pageviews", "--horizon", "5", "--format", "json")
	require.NoError(t, err)

	var forecast models.ForecastResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &forecast))
	assert.Equal(t, "pageviews", forecast.Metric)
	require.Len(t, forecast.Points, 5)
	assert.True(t, forecast.Points[4].Value > forecast.Points[0].Value)

	stdout, _, err = env.run("forecast", "post-1", "--metric", "pageviews", "--horizon", "3")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Forecast: pageviews")

	_, _, err = env.run("forecast", "post-1")
	assert.Error(t, err)

	_, _, err = env.run("forecast", "post-1", "--metric", "pageviews", "--method", "crystal_ball")
	assert.Error(t, err)
}

func TestCorrelateCommand(t *testing.T) {
	env := newTestEnv(t)

	stdout, _, err := env.run("correlate", "post-1", "--metrics", "pageviews,sessions", "--format", "json")
	require.NoError(t, err)

	var report models.CorrelationReport
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	r, ok := report.Coefficient("pageviews", "sessions")
	require.True(t, ok)
	assert.Greater(t, r, 0.9)
}

func TestInsightsCommand(t *testing.T) {
	env := newTestEnv(t)

	stdout, _, err := env.run("insights", "post-1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Content Insights: post-1")
	assert.Contains(t, stdout, "Trends:")
	assert.Contains(t, stdout, "pageviews")
}

func TestBatchCommand(t *testing.T) {
	env := newTestEnv(t)

	stdout, _, err := env.run("batch", "score", "--format", "json")
	require.NoError(t, err)

	var summary batch.Summary
	require.NoError(t, json.Unmarshal([]byte(stdout), &summary))
	assert.Equal(t, "score", summary.Type)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Succeeded)

	_, _, err = env.run("batch", "generate")
	assert.Error(t, err)

	_, _, err = env.run("batch", "score", "--ids", "missing-post")
	assert.Error(t, err)
}

func TestConfigValidateCommand(t *testing.T) {
	env := newTestEnv(t)

	stdout, _, err := env.run("config", "validate")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Configuration OK")
	assert.Contains(t, stdout, "- report store: sqlite")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	writeFile(t, bad, "server:\n  port: 70000\nschedule:\n  hour: 25\n")
	_, stderr, err := env.runWithConfig(bad, "config", "validate")
	assert.Error(t, err)
	assert.Contains(t, stderr, "server.port")
	assert.Contains(t, stderr, "schedule.hour")
}

func TestConfigShowCommand(t *testing.T) {
	env := newTestEnv(t)

	stdout, _, err := env.run("config", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, "metric_store: file")
	assert.Contains(t, stdout, env.metricsDir)
}

func TestTokenCommand(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.run("token", "--subject", "dashboard")
	assert.Error(t, err)

	withSecret := filepath.Join(t.TempDir(), "auth.yaml")
	writeFile(t, withSecret, "server:\n  auth:\n    jwt_secret: 0123456789abcdef0123\n    jwt_expiration: 2h\n")

	stdout, _, err := env.runWithConfig(withSecret, "token", "--subject", "scheduler", "--scopes", "read,write", "--format", "json")
	require.NoError(t, err)

	var result commands.TokenResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	assert.Equal(t, "scheduler", result.Subject)
	assert.Equal(t, []string{"read", "write"}, result.Scopes)
	assert.Equal(t, now.Add(2*time.Hour), result.ExpiresAt)
	assert.Len(t, strings.Split(result.Token, "."), 3)

	_, _, err = env.runWithConfig(withSecret, "token", "--subject", "scheduler", "--scopes", "admin")
	assert.Error(t, err)
}

// Helper functions

type testEnv struct {
	t          *testing.T
	configPath string
	metricsDir string
}

// newTestEnv writes a config with file metrics, file content and sqlite
// reports, one published item and 30 days of metrics ending yesterday
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	metricsDir := filepath.Join(dir, "metrics")
	contentDir := filepath.Join(dir, "content")
	require.NoError(t, os.MkdirAll(filepath.Join(metricsDir, "post-1"), 0o755))
	require.NoError(t, os.MkdirAll(contentDir, 0o755))

	configPath := filepath.Join(dir, "contentscore.yaml")
	writeFile(t, configPath, fmt.Sprintf(`
logging:
  level: error
metrics:
  enabled: false
alerting:
  enabled: false
storage:
  metric_store: file
  report_store: sqlite
  cache: memory
  archive: none
  file_metrics:
    base_path: %s
  content:
    base_path: %s
  sqlite:
    path: %s
`, metricsDir, contentDir, filepath.Join(dir, "reports.db")))

	item, err := json.Marshal(contentItem("post-1"))
	require.NoError(t, err)
	writeFile(t, filepath.Join(contentDir, "post-1.json"), string(item))

	var pageviews, sessions strings.Builder
	pageviews.WriteString("timestamp,value\n")
	sessions.WriteString("timestamp,value\n")
	for i := 0; i < 30; i++ {
		ts := now.AddDate(0, 0, i-30).Format(time.RFC3339)
		pv := 100 + 5*float64(i) + float64(i%7)*3
		noise := 4.0
		if i%2 == 0 {
			noise = -4.0
		}
		fmt.Fprintf(&pageviews, "%s,%g\n", ts, pv)
		fmt.Fprintf(&sessions, "%s,%g\n", ts, 0.8*pv+noise)
	}
	writeFile(t, filepath.Join(metricsDir, "post-1", "pageviews.csv"), pageviews.String())
	writeFile(t, filepath.Join(metricsDir, "post-1", "sessions.csv"), sessions.String())

	return &testEnv{t: t, configPath: configPath, metricsDir: metricsDir}
}

func (e *testEnv) run(args ...string) (string, string, error) {
	return e.runWithConfig(e.configPath, args...)
}

func (e *testEnv) runWithConfig(configPath string, args ...string) (string, string, error) {
	e.t.Helper()
	global := &commands.GlobalOptions{Clock: func() time.Time { return now }}
	root := newRootCmd(global)

	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{
		"--config", configPath,
		"--env-file", filepath.Join(e.t.TempDir(), "missing.env"),
	}, args...))

	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func contentItem(id string) *models.ContentItem {
	return &models.ContentItem{
		ID:              id,
		URL:             "https://example.com/" + id,
		Title:           "How to Measure Content Performance in 2024",
		Status:          "published",
		MetaDescription: "A practical guide to measuring content performance with the metrics that matter for organic growth.",
		FocusKeyword:    "content performance",
		Body:            "<h1>Content performance</h1><p>Content performance is measured over time.</p><a href=\"/guides\">Guides</a>",
	}
}
