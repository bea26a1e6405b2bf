package batch

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/contentscore/pkg/constants"
	"github.com/inferloop/contentscore/pkg/errors"
	"github.com/inferloop/contentscore/pkg/models"
)

// Worker processes jobs from a shared queue
type Worker struct {
	id       int
	logger   *logrus.Entry
	config   *Config
	pipeline *Pipeline
}

// NewWorker creates a new batch worker
func NewWorker(id int, pipeline *Pipeline, config *Config, logger *logrus.Logger) *Worker {
	return &Worker{
		id:       id,
		logger:   logger.WithField("worker_id", id),
		config:   config,
		pipeline: pipeline,
	}
}

// Start processes jobs until the queue is closed or ctx is done
func (w *Worker) Start(ctx context.Context, jobQueue <-chan *Job, resultQueue chan<- *Result) {
	w.logger.Debug("Worker started")
	defer w.logger.Debug("Worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobQueue:
			if !ok {
				return
			}
			resultQueue <- w.processJob(ctx, job)
		}
	}
}

// processJob runs a job, retrying transient failures
func (w *Worker) processJob(ctx context.Context, job *Job) *Result {
	startTime := time.Now()
	job.Status = constants.JobStatusRunning
	job.StartedAt = &startTime

	result := &Result{JobID: job.ID, Type: job.Type, ContentID: job.ContentID}
	var err error
	for {
		job.Attempts++
		err = w.executeJob(ctx, job, result)
		if err == nil || !retryable(err) || job.Attempts > w.config.MaxRetries {
			break
		}

		w.logger.WithError(err).WithFields(logrus.Fields{
			"job_id":     job.ID,
			"content_id": job.ContentID,
			"attempt":    job.Attempts,
		}).Warn("Job failed, will retry")

		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-time.After(w.config.RetryDelay * time.Duration(job.Attempts)):
			continue
		}
		break
	}

	completed := time.Now()
	job.CompletedAt = &completed
	result.Attempts = job.Attempts
	result.Duration = completed.Sub(startTime)

	switch {
	case err == nil:
		job.Status = constants.JobStatusCompleted
	case stderrors.Is(err, context.Canceled):
		job.Status = constants.JobStatusCancelled
		result.Error = err.Error()
	default:
		job.Status = constants.JobStatusFailed
		result.Error = err.Error()
		w.logger.WithError(err).WithFields(logrus.Fields{
			"job_id":     job.ID,
			"job_type":   job.Type,
			"content_id": job.ContentID,
			"attempts":   job.Attempts,
		}).Error("Job failed")
	}
	result.Status = job.Status
	return result
}

// executeJob runs one attempt of a job under the job timeout
func (w *Worker) executeJob(ctx context.Context, job *Job, result *Result) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewInternalError(fmt.Sprintf("job panicked: %v", r))
		}
	}()

	timeout := w.config.JobTimeout
	if timeout <= 0 {
		timeout = constants.DefaultJobTimeout
	}
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch job.Type {
	case constants.JobTypeScore:
		result.Score, err = w.pipeline.Score(jobCtx, job.ContentID)
	case constants.JobTypeAnalyze:
		sensitivity, perr := models.ParseSensitivity(w.config.Sensitivity)
		if perr != nil {
			sensitivity = models.SensitivityMedium
		}
		result.Analysis, err = w.pipeline.Analyze(jobCtx, job.ContentID, w.config.Metrics, job.Window, sensitivity)
	case constants.JobTypeInsights:
		result.Insights, err = w.pipeline.Insights(jobCtx, job.ContentID, w.config.Metrics, job.Window)
	default:
		err = errors.NewValidationError(errors.CodeInvalidFormat, fmt.Sprintf("unknown job type: %s", job.Type))
	}
	if err != nil && ctx.Err() == nil && jobCtx.Err() == context.DeadlineExceeded {
		err = errors.NewAppError(errors.ErrorTypeJob, errors.CodeJobTimeout,
			fmt.Sprintf("job timed out after %s", timeout)).WithCause(errors.ErrJobTimeout)
	}
	return err
}

// retryable reports whether another attempt could succeed
func retryable(err error) bool {
	switch {
	case stderrors.Is(err, context.Canceled):
		return false
	case stderrors.Is(err, errors.ErrContentNotFound), stderrors.Is(err, errors.ErrDataNotFound):
		return false
	case errors.IsType(err, errors.ErrorTypeValidation), errors.IsType(err, errors.ErrorTypeConfiguration):
		return false
	}
	return true
}
