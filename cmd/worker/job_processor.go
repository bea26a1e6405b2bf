package main

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/contentscore/internal/processors/batch"
)

// Runner executes one batch job over every published item
type Runner interface {
	Run(ctx context.Context, jobType string, ids []string) (*batch.Summary, error)
}

type JobProcessor struct {
	runner        Runner
	concurrency   int
	logger        *logrus.Logger
	scheduler     *Scheduler
	activeJobs    int32
	completedJobs int64
	failedJobs    int64
	wg            sync.WaitGroup
}

func NewJobProcessor(runner Runner, concurrency int, logger *logrus.Logger) *JobProcessor {
	if concurrency < 1 {
		concurrency = 1
	}
	return &JobProcessor{
		runner:      runner,
		concurrency: concurrency,
		logger:      logger,
	}
}

func (jp *JobProcessor) Start(ctx context.Context) {
	jp.logger.Info("Job processor started")

	// Create worker pool
	for i := 0; i < jp.concurrency; i++ {
		jp.wg.Add(1)
		go jp.worker(ctx, i)
	}

	// Wait for all workers to complete
	jp.wg.Wait()
	jp.logger.Info("All workers stopped")
}

func (jp *JobProcessor) SetScheduler(scheduler *Scheduler) {
	jp.scheduler = scheduler
}

func (jp *JobProcessor) worker(ctx context.Context, workerID int) {
	defer jp.wg.Done()

	jp.logger.WithField("workerID", workerID).Debug("Worker started")

	for {
		select {
		case <-ctx.Done():
			jp.logger.WithField("workerID", workerID).Debug("Worker stopping")
			return
		case job, ok := <-jp.scheduler.GetJobQueue():
			if !ok {
				jp.logger.WithField("workerID", workerID).Debug("Job queue closed, worker stopping")
				return
			}

			jp.processJob(ctx, job, workerID)
		}
	}
}

// processJob runs one job. A run in which every item failed counts as a
// failed job.
func (jp *JobProcessor) processJob(ctx context.Context, job *Job, workerID int) *batch.Summary {
	atomic.AddInt32(&jp.activeJobs, 1)
	defer atomic.AddInt32(&jp.activeJobs, -1)

	startTime := time.Now()
	logger := jp.logger.WithFields(logrus.Fields{
		"jobID":    job.ID,
		"jobType":  job.Type,
		"slot":     job.Slot,
		"workerID": workerID,
	})

	logger.Info("Processing job")

	summary, err := jp.runner.Run(ctx, job.Type, nil)
	duration := time.Since(startTime)

	if err != nil {
		atomic.AddInt64(&jp.failedJobs, 1)
		logger.WithError(err).WithField("duration", duration).Error("Job failed")
		return nil
	}

	entry := logger.WithFields(logrus.Fields{
		"duration":  duration,
		"runID":     summary.ID,
		"total":     summary.Total,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"cancelled": summary.Cancelled,
	})
	if summary.ArchiveLocation != "" {
		entry = entry.WithField("archive", summary.ArchiveLocation)
	}

	if summary.Total > 0 && summary.Succeeded == 0 {
		atomic.AddInt64(&jp.failedJobs, 1)
		entry.Error("Job failed for every content item")
		return summary
	}

	atomic.AddInt64(&jp.completedJobs, 1)
	entry.Info("Job completed successfully")
	return summary
}

func (jp *JobProcessor) ActiveJobs() int32 {
	return atomic.LoadInt32(&jp.activeJobs)
}

func (jp *JobProcessor) CompletedJobs() int64 {
	return atomic.LoadInt64(&jp.completedJobs)
}

func (jp *JobProcessor) FailedJobs() int64 {
	return atomic.LoadInt64(&jp.failedJobs)
}
