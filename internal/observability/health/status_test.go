package health

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/contentscore/pkg/interfaces"
)

func TestRunChecksHealthy(t *testing.T) {
	hm := NewHealthMonitor(nil, logrus.New())
	assert.Equal(t, StatusUnknown, hm.GetStatus().OverallStatus)

	hm.RegisterCheck(NewBasicHealthCheck("scorer", func(ctx context.Context) error { return nil }, true, time.Second))
	hm.RegisterCheck(NewStorageCheck("metric_store", &fakeStorage{status: "healthy", meta: map[string]interface{}{"base_path": "/data"}}, true))

	status := hm.RunChecks(context.Background())
	assert.Equal(t, StatusHealthy, status.OverallStatus)
	require.Len(t, status.CheckResults, 2)
	assert.Equal(t, "/data", status.CheckResults["metric_store"].Details["base_path"])
	assert.Empty(t, status.CriticalIssues)
	assert.False(t, hm.GetStatus().LastCheck.IsZero())
}

func TestRunChecksDegradedAndCritical(t *testing.T) {
	hm := NewHealthMonitor(nil, logrus.New())
	hm.RegisterCheck(NewBasicHealthCheck("cache", func(ctx context.Context) error {
		return fmt.Errorf("redis unreachable")
	}, false, 0))

	status := hm.RunChecks(context.Background())
	assert.Equal(t, StatusDegraded, status.OverallStatus)
	assert.Equal(t, "redis unreachable", status.CheckResults["cache"].Message)

	hm.RegisterCheck(NewStorageCheck("metric_store", &fakeStorage{err: fmt.Errorf("gone")}, true))
	status = hm.RunChecks(context.Background())
	assert.Equal(t, StatusUnhealthy, status.OverallStatus)
	assert.Equal(t, []string{"metric_store"}, status.CriticalIssues)
}

func TestStorageCheckStatuses(t *testing.T) {
	check := NewStorageCheck("reports", &fakeStorage{status: "degraded", errors: []string{"slow", "lagging"}}, false)
	r := check.Check(context.Background())
	assert.Equal(t, StatusDegraded, r.Status)
	assert.Equal(t, "slow; lagging", r.Message)

	check = NewStorageCheck("reports", &fakeStorage{status: "weird"}, false)
	assert.Equal(t, StatusUnknown, check.Check(context.Background()).Status)
}

func TestRecorderReceivesStatuses(t *testing.T) {
	hm := NewHealthMonitor(nil, logrus.New())
	rec := &fakeRecorder{statuses: make(map[string]string)}
	hm.SetRecorder(rec)
	hm.RegisterCheck(NewBasicHealthCheck("scorer", func(ctx context.Context) error { return nil }, true, 0))

	hm.RunChecks(context.Background())
	assert.Equal(t, "healthy", rec.statuses["scorer"])
}

func TestCheckTimeout(t *testing.T) {
	hm := NewHealthMonitor(&HealthConfig{Timeout: 10 * time.Millisecond}, logrus.New())
	hm.RegisterCheck(NewBasicHealthCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, true, 0))

	status := hm.RunChecks(context.Background())
	assert.Equal(t, StatusUnhealthy, status.OverallStatus)
}

// Helper functions

type fakeStorage struct {
	status string
	errors []string
	meta   map[string]interface{}
	err    error
}

func (s *fakeStorage) Connect(ctx context.Context) error { return nil }
func (s *fakeStorage) Close() error                      { return nil }
func (s *fakeStorage) Ping(ctx context.Context) error    { return s.err }

func (s *fakeStorage) Health(ctx context.Context) (*interfaces.HealthStatus, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &interfaces.HealthStatus{Status: s.status, Errors: s.errors, Metadata: s.meta}, nil
}

type fakeRecorder struct {
	statuses map[string]string
}

func (r *fakeRecorder) SetHealthStatus(component, status string) {
	r.statuses[component] = status
}
