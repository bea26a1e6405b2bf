package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/contentscore/internal/config"
)

func TestNewSchedulerRejectsBadConfig(t *testing.T) {
	cfg := testScheduleConfig()
	cfg.Timezone = "Nowhere/Special"
	_, err := NewScheduler(cfg, 4, quietLogger())
	assert.Error(t, err)

	cfg = testScheduleConfig()
	cfg.Weekday = "caturday"
	_, err = NewScheduler(cfg, 4, quietLogger())
	assert.Error(t, err)
}

func TestNextRun(t *testing.T) {
	s := newTestScheduler(t, testScheduleConfig())

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"before hour", time.Date(2024, 6, 3, 1, 30, 0, 0, time.UTC), time.Date(2024, 6, 3, 2, 0, 0, 0, time.UTC)},
		{"at hour", time.Date(2024, 6, 3, 2, 0, 0, 0, time.UTC), time.Date(2024, 6, 4, 2, 0, 0, 0, time.UTC)},
		{"after hour", time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC), time.Date(2024, 6, 4, 2, 0, 0, 0, time.UTC)},
		{"month end", time.Date(2024, 6, 30, 23, 0, 0, 0, time.UTC), time.Date(2024, 7, 1, 2, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(s.NextRun(tt.now)), "got %s", s.NextRun(tt.now))
		})
	}
}

func TestNextRunUsesTimezone(t *testing.T) {
	cfg := testScheduleConfig()
	cfg.Timezone = "America/New_York"
	s := newTestScheduler(t, cfg)

	// 05:00 UTC is 01:00 in New York during daylight saving time
	next := s.NextRun(time.Date(2024, 6, 3, 5, 0, 0, 0, time.UTC))
	assert.True(t, time.Date(2024, 6, 3, 6, 0, 0, 0, time.UTC).Equal(next), "got %s", next.UTC())
}

func TestDue(t *testing.T) {
	s := newTestScheduler(t, testScheduleConfig())

	// 2024-06-04 is a Tuesday
	assert.Equal(t, []string{"score"}, jobTypes(s.Due(time.Date(2024, 6, 4, 2, 0, 0, 0, time.UTC))))
	// 2024-06-03 is a Monday
	assert.Equal(t, []string{"score", "analyze"}, jobTypes(s.Due(time.Date(2024, 6, 3, 2, 0, 0, 0, time.UTC))))
	// 2024-07-01 is a Monday and the first of the month
	jobs := s.Due(time.Date(2024, 7, 1, 2, 0, 0, 0, time.UTC))
	assert.Equal(t, []string{"score", "analyze", "insights"}, jobTypes(jobs))
	assert.Equal(t, "monthly-insights-20240701", jobs[2].ID)
	assert.Equal(t, "monthly", jobs[2].Slot)
}

func TestDueSkipsDisabledAndDuplicateSlots(t *testing.T) {
	cfg := testScheduleConfig()
	cfg.Daily = "none"
	cfg.Weekly = "insights"
	s := newTestScheduler(t, cfg)

	jobs := s.Due(time.Date(2024, 7, 1, 2, 0, 0, 0, time.UTC))
	require.Len(t, jobs, 1)
	assert.Equal(t, "insights", jobs[0].Type)
	assert.Equal(t, "weekly", jobs[0].Slot)
}

func TestSchedulerStartEnqueuesDueJobs(t *testing.T) {
	s := newTestScheduler(t, testScheduleConfig())
	s.clock = func() time.Time { return time.Date(2024, 6, 3, 1, 0, 0, 0, time.UTC) }

	fire := make(chan time.Time, 1)
	fire <- time.Time{}
	var waits []time.Duration
	s.after = func(d time.Duration) <-chan time.Time {
		waits = append(waits, d)
		return fire
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	first := <-s.GetJobQueue()
	second := <-s.GetJobQueue()
	cancel()
	<-done

	assert.Equal(t, "score", first.Type)
	assert.Equal(t, "analyze", second.Type)
	assert.True(t, time.Date(2024, 6, 3, 2, 0, 0, 0, time.UTC).Equal(first.ScheduledAt))
	require.NotEmpty(t, waits)
	assert.Equal(t, time.Hour, waits[0])
}

func TestSchedulerStopClosesQueue(t *testing.T) {
	s := newTestScheduler(t, testScheduleConfig())
	require.True(t, s.Enqueue(testJob("score")))

	s.Stop()
	s.Stop()

	assert.False(t, s.Enqueue(testJob("analyze")))
	job, ok := <-s.GetJobQueue()
	require.True(t, ok)
	assert.Equal(t, "score", job.Type)
	_, ok = <-s.GetJobQueue()
	assert.False(t, ok)
}

func TestSchedulerEnqueueFullQueue(t *testing.T) {
	s, err := NewScheduler(testScheduleConfig(), 1, quietLogger())
	require.NoError(t, err)

	assert.True(t, s.Enqueue(testJob("score")))
	assert.False(t, s.Enqueue(testJob("analyze")))
}

// Helper functions

func testScheduleConfig() config.ScheduleConfig {
	return config.Default().Schedule
}

func newTestScheduler(t *testing.T, cfg config.ScheduleConfig) *Scheduler {
	t.Helper()
	s, err := NewScheduler(cfg, 8, quietLogger())
	require.NoError(t, err)
	return s
}

func jobTypes(jobs []*Job) []string {
	out := make([]string, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Type)
	}
	return out
}
