package alerting

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/contentscore/internal/analytics"
	"github.com/inferloop/contentscore/pkg/models"
)

// AlertManager turns insights reports into alerts and dispatches them to
// notifiers. Repeats of the same alert are suppressed for RepeatInterval.
type AlertManager struct {
	logger    *logrus.Logger
	config    *AlertConfig
	mu        sync.RWMutex
	rules     []Rule
	sent      map[string]time.Time // alert key -> last notification
	history   []Alert
	notifiers []Notifier
	clock     func() time.Time
}

// AlertConfig configures the alert manager
type AlertConfig struct {
	Enabled             bool          `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	MinAnomalySeverity  string        `json:"min_anomaly_severity" yaml:"min_anomaly_severity" mapstructure:"min_anomaly_severity"`
	ScoreDropThreshold  float64       `json:"score_drop_threshold" yaml:"score_drop_threshold" mapstructure:"score_drop_threshold"`
	RepeatInterval      time.Duration `json:"repeat_interval" yaml:"repeat_interval" mapstructure:"repeat_interval"`
	NotificationTimeout time.Duration `json:"notification_timeout" yaml:"notification_timeout" mapstructure:"notification_timeout"`
	HistorySize         int           `json:"history_size" yaml:"history_size" mapstructure:"history_size"`

	Telegram TelegramConfig `json:"telegram" yaml:"telegram" mapstructure:"telegram"`
}

// Rule inspects an insights report and returns the alerts it raises
type Rule interface {
	Name() string
	Evaluate(report *models.InsightsReport) []*Alert
}

// AlertSeverity defines alert severity levels
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// Alert is a notable condition found for one content item
type Alert struct {
	ID        string        `json:"id"`
	Rule      string        `json:"rule"`
	ContentID string        `json:"content_id"`
	Metric    string        `json:"metric,omitempty"`
	Severity  AlertSeverity `json:"severity"`
	Message   string        `json:"message"`
	Value     float64       `json:"value"`
	Threshold float64       `json:"threshold"`
	// ObservedAt is the timestamp of the underlying signal
	ObservedAt time.Time `json:"observed_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// key identifies repeats of the same condition
func (a *Alert) key() string {
	return fmt.Sprintf("%s|%s|%s|%d", a.Rule, a.ContentID, a.Metric, a.ObservedAt.Unix())
}

// Notifier delivers alerts
type Notifier interface {
	Name() string
	Notify(ctx context.Context, alerts []*Alert) error
}

// NewAlertManager creates a new alert manager
func NewAlertManager(config *AlertConfig, logger *logrus.Logger) *AlertManager {
	if config == nil {
		config = DefaultAlertConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}

	am := &AlertManager{
		logger:  logger,
		config:  config,
		sent:    make(map[string]time.Time),
		history: make([]Alert, 0),
		clock:   time.Now,
	}
	am.rules = []Rule{
		&AnomalyRule{MinSeverity: parseSeverity(config.MinAnomalySeverity)},
		&ScoreDropRule{Threshold: config.ScoreDropThreshold},
		&CriticalStatusRule{},
	}
	return am
}

// RegisterRule adds a rule evaluated after the built-in ones
func (am *AlertManager) RegisterRule(rule Rule) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.rules = append(am.rules, rule)
}

// RegisterNotifier adds a notification channel
func (am *AlertManager) RegisterNotifier(notifier Notifier) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.notifiers = append(am.notifiers, notifier)

	am.logger.WithField("notifier", notifier.Name()).Info("Registered alert notifier")
}

// Evaluate runs every rule against a report without notifying
func (am *AlertManager) Evaluate(report *models.InsightsReport) []*Alert {
	if report == nil {
		return nil
	}

	am.mu.RLock()
	rules := append([]Rule(nil), am.rules...)
	am.mu.RUnlock()

	now := am.clock()
	var alerts []*Alert
	for _, rule := range rules {
		for _, alert := range rule.Evaluate(report) {
			alert.ID = uuid.New().String()
			alert.Rule = rule.Name()
			alert.ContentID = report.ContentID
			alert.CreatedAt = now
			alerts = append(alerts, alert)
		}
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		return severityRank(alerts[i].Severity) > severityRank(alerts[j].Severity)
	})
	return alerts
}

// Process evaluates a report and notifies every channel of the alerts not
// already sent within RepeatInterval. It returns the alerts dispatched.
func (am *AlertManager) Process(ctx context.Context, report *models.InsightsReport) ([]*Alert, error) {
	if !am.config.Enabled {
		return nil, nil
	}

	fresh := am.suppressRepeats(am.Evaluate(report))
	if len(fresh) == 0 {
		return nil, nil
	}

	am.mu.RLock()
	notifiers := append([]Notifier(nil), am.notifiers...)
	am.mu.RUnlock()

	timeout := am.config.NotificationTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var firstErr error
	for _, n := range notifiers {
		nctx, cancel := context.WithTimeout(ctx, timeout)
		err := n.Notify(nctx, fresh)
		cancel()
		if err != nil {
			am.logger.WithError(err).WithFields(logrus.Fields{
				"notifier": n.Name(),
				"alerts":   len(fresh),
			}).Error("Failed to send alerts")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	am.logger.WithFields(logrus.Fields{
		"content_id": report.ContentID,
		"alerts":     len(fresh),
	}).Info("Dispatched alerts")
	return fresh, firstErr
}

// History returns the most recent dispatched alerts, newest first
func (am *AlertManager) History(limit int) []Alert {
	am.mu.RLock()
	defer am.mu.RUnlock()

	n := len(am.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Alert, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, am.history[i])
	}
	return out
}

func (am *AlertManager) suppressRepeats(alerts []*Alert) []*Alert {
	am.mu.Lock()
	defer am.mu.Unlock()

	now := am.clock()
	for k, at := range am.sent {
		if now.Sub(at) >= am.config.RepeatInterval {
			delete(am.sent, k)
		}
	}

	fresh := make([]*Alert, 0, len(alerts))
	for _, a := range alerts {
		k := a.key()
		if _, seen := am.sent[k]; seen {
			continue
		}
		am.sent[k] = now
		fresh = append(fresh, a)
		am.history = append(am.history, *a)
	}
	if over := len(am.history) - am.config.HistorySize; am.config.HistorySize > 0 && over > 0 {
		am.history = am.history[over:]
	}
	return fresh
}

// AnomalyRule raises one alert per anomaly at or above MinSeverity
type AnomalyRule struct {
	MinSeverity models.Severity
}

// Name returns the rule name
func (r *AnomalyRule) Name() string { return "anomaly" }

// Evaluate implements Rule
func (r *AnomalyRule) Evaluate(report *models.InsightsReport) []*Alert {
	var alerts []*Alert
	for _, a := range report.Anomalies {
		if int(a.Severity) < int(r.MinSeverity) {
			continue
		}
		severity := SeverityWarning
		if a.Severity == models.SeverityCritical {
			severity = SeverityCritical
		}
		alerts = append(alerts, &Alert{
			Metric:   a.Metric,
			Severity: severity,
			Message: fmt.Sprintf("%s anomaly in %s: %.2f (expected %.2f, %.1fσ)",
				a.Severity, a.Metric, a.Value, a.Expected, a.Deviation),
			Value:      a.Value,
			Threshold:  a.Expected,
			ObservedAt: a.Timestamp,
		})
	}
	return alerts
}

// ScoreDropRule raises an alert when the score fell by at least Threshold
// points since the previous report
type ScoreDropRule struct {
	Threshold float64
}

// Name returns the rule name
func (r *ScoreDropRule) Name() string { return "score_drop" }

// Evaluate implements Rule
func (r *ScoreDropRule) Evaluate(report *models.InsightsReport) []*Alert {
	if r.Threshold <= 0 || report.Score == nil || report.Score.Historical == nil {
		return nil
	}
	h := report.Score.Historical
	if -h.Change < r.Threshold {
		return nil
	}

	severity := SeverityWarning
	if -h.Change >= 2*r.Threshold {
		severity = SeverityCritical
	}
	return []*Alert{{
		Severity: severity,
		Message: fmt.Sprintf("score dropped %.1f points (%.1f -> %.1f)",
			-h.Change, h.PreviousScore, report.Score.Overall),
		Value:      report.Score.Overall,
		Threshold:  h.PreviousScore - r.Threshold,
		ObservedAt: report.Score.GeneratedAt,
	}}
}

// CriticalStatusRule raises an alert when the executive summary is critical
type CriticalStatusRule struct{}

// Name returns the rule name
func (r *CriticalStatusRule) Name() string { return "critical_status" }

// Evaluate implements Rule
func (r *CriticalStatusRule) Evaluate(report *models.InsightsReport) []*Alert {
	if report.Summary.Status != analytics.StatusCritical {
		return nil
	}
	return []*Alert{{
		Severity:   SeverityCritical,
		Message:    fmt.Sprintf("content health is critical (overall score %.1f)", report.Summary.OverallScore),
		Value:      report.Summary.OverallScore,
		Threshold:  50,
		ObservedAt: report.GeneratedAt,
	}}
}

// LogNotifier writes alerts to the logger
type LogNotifier struct {
	logger *logrus.Logger
}

// NewLogNotifier creates a notifier that logs alerts
func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	if logger == nil {
		logger = logrus.New()
	}
	return &LogNotifier{logger: logger}
}

// Name returns the notifier name
func (n *LogNotifier) Name() string { return "log" }

// Notify implements Notifier
func (n *LogNotifier) Notify(ctx context.Context, alerts []*Alert) error {
	for _, a := range alerts {
		entry := n.logger.WithFields(logrus.Fields{
			"alert_id":   a.ID,
			"rule":       a.Rule,
			"content_id": a.ContentID,
			"metric":     a.Metric,
			"severity":   a.Severity,
		})
		if a.Severity == SeverityCritical {
			entry.Error(a.Message)
		} else {
			entry.Warn(a.Message)
		}
	}
	return nil
}

// DefaultAlertConfig returns the default alerting configuration
func DefaultAlertConfig() *AlertConfig {
	return &AlertConfig{
		Enabled:             true,
		MinAnomalySeverity:  "high",
		ScoreDropThreshold:  10,
		RepeatInterval:      24 * time.Hour,
		NotificationTimeout: 10 * time.Second,
		HistorySize:         500,
		Telegram: TelegramConfig{
			MaxRetries: 3,
			RetryDelay: time.Second,
		},
	}
}

func parseSeverity(s string) models.Severity {
	var sev models.Severity
	if err := sev.UnmarshalText([]byte(s)); err != nil {
		return models.SeverityHigh
	}
	return sev
}

func severityRank(s AlertSeverity) int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}
