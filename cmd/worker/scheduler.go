package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/contentscore/internal/config"
	"github.com/inferloop/contentscore/pkg/constants"
)

// Job is one scheduled batch run
type Job struct {
	ID          string    `json:"id"`
	Slot        string    `json:"slot"`
	Type        string    `json:"type"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// Scheduler enqueues the daily, weekly and monthly batch runs at the
// configured hour
type Scheduler struct {
	config   config.ScheduleConfig
	location *time.Location
	weekday  time.Weekday
	logger   *logrus.Logger
	jobQueue chan *Job
	clock    func() time.Time
	after    func(time.Duration) <-chan time.Time
	mu       sync.RWMutex
	running  bool
}

func NewScheduler(cfg config.ScheduleConfig, queueSize int, logger *logrus.Logger) (*Scheduler, error) {
	location, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid schedule timezone: %w", err)
	}
	weekday, err := cfg.ParseWeekday()
	if err != nil {
		return nil, err
	}
	if queueSize < 1 {
		queueSize = 1
	}

	return &Scheduler{
		config:   cfg,
		location: location,
		weekday:  weekday,
		logger:   logger,
		jobQueue: make(chan *Job, queueSize),
		clock:    time.Now,
		after:    time.After,
		running:  true,
	}, nil
}

func (s *Scheduler) Start(ctx context.Context) {
	s.logger.WithFields(logrus.Fields{
		"hour":     s.config.Hour,
		"timezone": s.location.String(),
	}).Info("Scheduler started")

	for {
		next := s.NextRun(s.clock())
		s.logger.WithField("next_run", next.Format(time.RFC3339)).Debug("Waiting for next scheduled run")

		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopping due to context cancellation")
			return
		case <-s.after(next.Sub(s.clock())):
			if !s.isRunning() {
				s.logger.Info("Scheduler stopped")
				return
			}
			for _, job := range s.Due(next) {
				s.Enqueue(job)
			}
		}
	}
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	close(s.jobQueue)
	s.logger.Info("Scheduler stop requested")
}

func (s *Scheduler) GetJobQueue() <-chan *Job {
	return s.jobQueue
}

// Enqueue queues job unless the scheduler is stopped or the queue is full
func (s *Scheduler) Enqueue(job *Job) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.running {
		return false
	}
	select {
	case s.jobQueue <- job:
		s.logger.WithFields(logrus.Fields{
			"jobID": job.ID,
			"type":  job.Type,
			"slot":  job.Slot,
		}).Info("Job queued")
		return true
	default:
		s.logger.WithField("jobID", job.ID).Warn("Job queue is full, dropping scheduled run")
		return false
	}
}

// NextRun returns the first scheduled hour strictly after t
func (s *Scheduler) NextRun(t time.Time) time.Time {
	local := t.In(s.location)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.config.Hour, 0, 0, 0, s.location)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Due returns the jobs scheduled on the calendar day of at. A job type
// scheduled by several slots on the same day runs once.
func (s *Scheduler) Due(at time.Time) []*Job {
	local := at.In(s.location)

	slots := []struct {
		name    string
		jobType string
		due     bool
	}{
		{constants.ScheduleDaily, s.config.Daily, true},
		{constants.ScheduleWeekly, s.config.Weekly, local.Weekday() == s.weekday},
		{constants.ScheduleMonthly, s.config.Monthly, local.Day() == s.config.MonthDay},
	}

	seen := make(map[string]bool)
	jobs := make([]*Job, 0, len(slots))
	for _, slot := range slots {
		if !slot.due || slot.jobType == "" || slot.jobType == constants.StorageTypeNone || seen[slot.jobType] {
			continue
		}
		seen[slot.jobType] = true
		jobs = append(jobs, &Job{
			ID:          fmt.Sprintf("%s-%s-%s", slot.name, slot.jobType, local.Format("20060102")),
			Slot:        slot.name,
			Type:        slot.jobType,
			ScheduledAt: at,
		})
	}
	return jobs
}

func (s *Scheduler) isRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
