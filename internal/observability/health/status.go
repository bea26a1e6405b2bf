package health

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/contentscore/pkg/interfaces"
)

// HealthMonitor runs registered checks and keeps the last system status
type HealthMonitor struct {
	logger    *logrus.Logger
	config    *HealthConfig
	mu        sync.RWMutex
	checks    map[string]HealthCheck
	status    *SystemStatus
	recorder  StatusRecorder
	startTime time.Time
}

// HealthConfig configures health monitoring
type HealthConfig struct {
	Enabled       bool          `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	CheckInterval time.Duration `json:"check_interval" yaml:"check_interval" mapstructure:"check_interval"`
	Timeout       time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// HealthCheck defines a health check
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) HealthResult
	Critical() bool
	Timeout() time.Duration
}

// StatusRecorder receives per-check statuses, e.g. a metrics gauge
type StatusRecorder interface {
	SetHealthStatus(component, status string)
}

// HealthResult represents the result of a health check
type HealthResult struct {
	Status    HealthStatus      `json:"status"`
	Message   string            `json:"message"`
	Duration  time.Duration     `json:"duration"`
	Timestamp time.Time         `json:"timestamp"`
	Details   map[string]string `json:"details,omitempty"`
}

// HealthStatus represents the health status
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
	StatusUnknown   HealthStatus = "unknown"
)

// SystemStatus represents overall system health
type SystemStatus struct {
	OverallStatus  HealthStatus            `json:"overall_status"`
	CheckResults   map[string]HealthResult `json:"check_results"`
	LastCheck      time.Time               `json:"last_check"`
	CriticalIssues []string                `json:"critical_issues"`
	Uptime         time.Duration           `json:"uptime"`
	StartTime      time.Time               `json:"start_time"`
}

// NewHealthMonitor creates a new health monitor
func NewHealthMonitor(config *HealthConfig, logger *logrus.Logger) *HealthMonitor {
	if config == nil {
		config = DefaultHealthConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}

	now := time.Now()
	return &HealthMonitor{
		logger: logger,
		config: config,
		checks: make(map[string]HealthCheck),
		status: &SystemStatus{
			OverallStatus:  StatusUnknown,
			CheckResults:   make(map[string]HealthResult),
			CriticalIssues: make([]string, 0),
			StartTime:      now,
		},
		startTime: now,
	}
}

// SetRecorder attaches a recorder notified after every check
func (hm *HealthMonitor) SetRecorder(r StatusRecorder) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.recorder = r
}

// RegisterCheck registers a new health check
func (hm *HealthMonitor) RegisterCheck(check HealthCheck) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.checks[check.Name()] = check
	hm.logger.WithField("check", check.Name()).Debug("Registered health check")
}

// Start runs all checks every CheckInterval until ctx is done
func (hm *HealthMonitor) Start(ctx context.Context) {
	if !hm.config.Enabled || hm.config.CheckInterval <= 0 {
		hm.logger.Info("Periodic health monitoring disabled")
		return
	}

	go func() {
		ticker := time.NewTicker(hm.config.CheckInterval)
		defer ticker.Stop()

		hm.RunChecks(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				hm.RunChecks(ctx)
			}
		}
	}()
}

// GetStatus returns a copy of the last computed status
func (hm *HealthMonitor) GetStatus() *SystemStatus {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	status := &SystemStatus{
		OverallStatus:  hm.status.OverallStatus,
		LastCheck:      hm.status.LastCheck,
		StartTime:      hm.startTime,
		Uptime:         time.Since(hm.startTime),
		CheckResults:   make(map[string]HealthResult, len(hm.status.CheckResults)),
		CriticalIssues: append([]string(nil), hm.status.CriticalIssues...),
	}
	for k, v := range hm.status.CheckResults {
		status.CheckResults[k] = v
	}
	return status
}

// RunChecks executes every check concurrently and returns the new status
func (hm *HealthMonitor) RunChecks(ctx context.Context) *SystemStatus {
	hm.mu.RLock()
	checks := make([]HealthCheck, 0, len(hm.checks))
	for _, c := range hm.checks {
		checks = append(checks, c)
	}
	recorder := hm.recorder
	hm.mu.RUnlock()

	results := make([]HealthResult, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(i int, c HealthCheck) {
			defer wg.Done()
			results[i] = hm.executeCheck(ctx, c)
		}(i, check)
	}
	wg.Wait()

	byName := make(map[string]HealthResult, len(checks))
	critical := make([]string, 0)
	degraded := false
	for i, c := range checks {
		r := results[i]
		byName[c.Name()] = r
		if recorder != nil {
			recorder.SetHealthStatus(c.Name(), string(r.Status))
		}
		switch {
		case r.Status == StatusUnhealthy && c.Critical():
			critical = append(critical, c.Name())
		case r.Status != StatusHealthy:
			degraded = true
		}
	}
	sort.Strings(critical)

	overall := StatusHealthy
	if len(critical) > 0 {
		overall = StatusUnhealthy
	} else if degraded {
		overall = StatusDegraded
	}

	hm.mu.Lock()
	hm.status = &SystemStatus{
		OverallStatus:  overall,
		CheckResults:   byName,
		LastCheck:      time.Now(),
		CriticalIssues: critical,
		StartTime:      hm.startTime,
	}
	hm.mu.Unlock()

	if overall != StatusHealthy {
		hm.logger.WithFields(logrus.Fields{
			"status":   overall,
			"critical": strings.Join(critical, ","),
		}).Warn("Health check reported problems")
	}
	return hm.GetStatus()
}

func (hm *HealthMonitor) executeCheck(ctx context.Context, check HealthCheck) HealthResult {
	start := time.Now()

	timeout := check.Timeout()
	if timeout <= 0 {
		timeout = hm.config.Timeout
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := check.Check(checkCtx)
	result.Duration = time.Since(start)
	result.Timestamp = time.Now()

	hm.logger.WithFields(logrus.Fields{
		"check":    check.Name(),
		"status":   result.Status,
		"duration": result.Duration,
	}).Debug("Health check completed")
	return result
}

// BasicHealthCheck wraps a function returning nil when healthy
type BasicHealthCheck struct {
	name      string
	checkFunc func(ctx context.Context) error
	critical  bool
	timeout   time.Duration
}

// NewBasicHealthCheck creates a new basic health check
func NewBasicHealthCheck(name string, checkFunc func(ctx context.Context) error, critical bool, timeout time.Duration) *BasicHealthCheck {
	return &BasicHealthCheck{
		name:      name,
		checkFunc: checkFunc,
		critical:  critical,
		timeout:   timeout,
	}
}

// Name returns the check name
func (c *BasicHealthCheck) Name() string { return c.name }

// Critical returns whether this check is critical
func (c *BasicHealthCheck) Critical() bool { return c.critical }

// Timeout returns the check timeout
func (c *BasicHealthCheck) Timeout() time.Duration { return c.timeout }

// Check executes the health check
func (c *BasicHealthCheck) Check(ctx context.Context) HealthResult {
	if err := c.checkFunc(ctx); err != nil {
		return HealthResult{Status: StatusUnhealthy, Message: err.Error()}
	}
	return HealthResult{Status: StatusHealthy, Message: "OK"}
}

// StorageCheck adapts a storage backend's Health report
type StorageCheck struct {
	name     string
	storage  interfaces.Storage
	critical bool
}

// NewStorageCheck creates a check backed by a storage backend
func NewStorageCheck(name string, storage interfaces.Storage, critical bool) *StorageCheck {
	return &StorageCheck{name: name, storage: storage, critical: critical}
}

// Name returns the check name
func (c *StorageCheck) Name() string { return c.name }

// Critical returns whether this check is critical
func (c *StorageCheck) Critical() bool { return c.critical }

// Timeout returns zero so the monitor default applies
func (c *StorageCheck) Timeout() time.Duration { return 0 }

// Check executes the health check
func (c *StorageCheck) Check(ctx context.Context) HealthResult {
	hs, err := c.storage.Health(ctx)
	if err != nil {
		return HealthResult{Status: StatusUnhealthy, Message: err.Error()}
	}

	result := HealthResult{
		Status:  HealthStatus(hs.Status),
		Message: "OK",
		Details: make(map[string]string, len(hs.Metadata)),
	}
	switch result.Status {
	case StatusHealthy, StatusDegraded, StatusUnhealthy:
	default:
		result.Status = StatusUnknown
	}
	if len(hs.Errors) > 0 {
		result.Message = strings.Join(hs.Errors, "; ")
	}
	for k, v := range hs.Metadata {
		result.Details[k] = fmt.Sprint(v)
	}
	return result
}

// DefaultHealthConfig returns the default health configuration
func DefaultHealthConfig() *HealthConfig {
	return &HealthConfig{
		Enabled:       true,
		CheckInterval: 30 * time.Second,
		Timeout:       5 * time.Second,
	}
}
