package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/contentscore/internal/analytics"
	"github.com/inferloop/contentscore/pkg/constants"
	"github.com/inferloop/contentscore/pkg/errors"
	"github.com/inferloop/contentscore/pkg/interfaces"
	"github.com/inferloop/contentscore/pkg/models"
)

// Processor runs one job per content item over a bounded worker pool
type Processor struct {
	logger   *logrus.Logger
	config   *Config
	pipeline *Pipeline
	archive  interfaces.ReportArchive
	recorder Recorder
	clock    func() time.Time
}

// Config contains batch processor configuration
type Config struct {
	Workers      int           `json:"workers" yaml:"workers" mapstructure:"workers"`
	QueueSize    int           `json:"queue_size" yaml:"queue_size" mapstructure:"queue_size"`
	BatchSize    int           `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size"`
	JobTimeout   time.Duration `json:"job_timeout" yaml:"job_timeout" mapstructure:"job_timeout"`
	MaxRetries   int           `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
	RetryDelay   time.Duration `json:"retry_delay" yaml:"retry_delay" mapstructure:"retry_delay"`
	LookbackDays int           `json:"lookback_days" yaml:"lookback_days" mapstructure:"lookback_days"`
	Metrics      []string      `json:"metrics" yaml:"metrics" mapstructure:"metrics"`
	Sensitivity  string        `json:"sensitivity" yaml:"sensitivity" mapstructure:"sensitivity"`
	Archive      bool          `json:"archive" yaml:"archive" mapstructure:"archive"`
}

// Recorder receives batch telemetry
type Recorder interface {
	RecordBatchJob(jobType, status string, duration time.Duration)
	SetQueueDepth(depth int)
}

// Job is the work for one content item
type Job struct {
	ID          string           `json:"id"`
	Type        string           `json:"type"`
	ContentID   string           `json:"content_id"`
	Window      analytics.Window `json:"window"`
	Status      string           `json:"status"`
	Attempts    int              `json:"attempts"`
	CreatedAt   time.Time        `json:"created_at"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// Result is the outcome of one job
type Result struct {
	JobID     string                 `json:"job_id"`
	Type      string                 `json:"type"`
	ContentID string                 `json:"content_id"`
	Status    string                 `json:"status"`
	Attempts  int                    `json:"attempts"`
	Duration  time.Duration          `json:"duration"`
	Error     string                 `json:"error,omitempty"`
	Score     *models.ScoreReport    `json:"score,omitempty"`
	Analysis  *Analysis              `json:"analysis,omitempty"`
	Insights  *models.InsightsReport `json:"insights,omitempty"`
}

// Summary describes a finished batch run
type Summary struct {
	ID              string        `json:"id"`
	Type            string        `json:"type"`
	StartedAt       time.Time     `json:"started_at"`
	CompletedAt     time.Time     `json:"completed_at"`
	Duration        time.Duration `json:"duration"`
	Total           int           `json:"total"`
	Succeeded       int           `json:"succeeded"`
	Failed          int           `json:"failed"`
	Cancelled       int           `json:"cancelled"`
	Results         []*Result     `json:"results"`
	ArchiveLocation string        `json:"archive_location,omitempty"`
	ArchiveError    string        `json:"archive_error,omitempty"`
}

// ProcessorOption customizes a Processor
type ProcessorOption func(*Processor)

// WithArchive writes every run summary to archive when Config.Archive is set
func WithArchive(archive interfaces.ReportArchive) ProcessorOption {
	return func(p *Processor) { p.archive = archive }
}

// WithRecorder attaches a telemetry recorder
func WithRecorder(r Recorder) ProcessorOption {
	return func(p *Processor) { p.recorder = r }
}

// WithClock sets the time source for job windows and timestamps
func WithClock(clock func() time.Time) ProcessorOption {
	return func(p *Processor) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// NewProcessor creates a new batch processor
func NewProcessor(pipeline *Pipeline, config *Config, logger *logrus.Logger, opts ...ProcessorOption) *Processor {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}

	p := &Processor{
		logger:   logger,
		config:   config,
		pipeline: pipeline,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DefaultConfig returns default batch processor configuration
func DefaultConfig() *Config {
	return &Config{
		Workers:      constants.DefaultWorkerCount,
		QueueSize:    constants.DefaultQueueSize,
		BatchSize:    constants.DefaultBatchSize,
		JobTimeout:   constants.DefaultJobTimeout,
		MaxRetries:   constants.DefaultMaxRetries,
		RetryDelay:   constants.DefaultRetryDelay,
		LookbackDays: int(constants.DefaultLookback / (24 * time.Hour)),
		Sensitivity:  string(models.SensitivityMedium),
		Archive:      true,
	}
}

// Validate checks the batch configuration
func (c *Config) Validate() error {
	verrs := errors.NewValidationErrors()
	if c.Workers <= 0 {
		verrs.Add("batch.workers", errors.CodeInvalidConfig, "must be positive", c.Workers)
	}
	if c.BatchSize <= 0 {
		verrs.Add("batch.batch_size", errors.CodeInvalidConfig, "must be positive", c.BatchSize)
	}
	if c.QueueSize < c.Workers {
		verrs.Add("batch.queue_size", errors.CodeInvalidConfig, "must be at least the worker count", c.QueueSize)
	}
	if c.MaxRetries < 0 {
		verrs.Add("batch.max_retries", errors.CodeInvalidConfig, "must not be negative", c.MaxRetries)
	}
	if c.LookbackDays <= 0 {
		verrs.Add("batch.lookback_days", errors.CodeInvalidConfig, "must be positive", c.LookbackDays)
	}
	if _, err := models.ParseSensitivity(c.Sensitivity); err != nil {
		verrs.Add("batch.sensitivity", errors.CodeInvalidConfig, err.Error(), c.Sensitivity)
	}
	if verrs.HasErrors() {
		return errors.NewConfigurationError(errors.CodeInvalidConfig, "invalid batch configuration").WithCause(verrs)
	}
	return nil
}

// Run executes jobType for every content ID, or for every published item
// when ids is empty. Failed items are recorded in the summary and never stop
// the run. Only setup errors are returned.
func (p *Processor) Run(ctx context.Context, jobType string, ids []string) (*Summary, error) {
	if !validJobType(jobType) {
		return nil, errors.NewValidationError(errors.CodeInvalidFormat, fmt.Sprintf("unknown job type: %s", jobType))
	}
	if p.pipeline == nil {
		return nil, errors.NewConfigurationError(errors.CodeInvalidConfig, "batch processor has no pipeline")
	}
	if len(ids) == 0 {
		listed, err := p.pipeline.ListContent(ctx)
		if err != nil {
			return nil, err
		}
		ids = listed
	}

	start := p.clock()
	summary := &Summary{
		ID:        uuid.New().String(),
		Type:      jobType,
		StartedAt: start,
		Total:     len(ids),
		Results:   make([]*Result, 0, len(ids)),
	}
	window := analytics.LastDays(start, p.config.LookbackDays)

	p.logger.WithFields(logrus.Fields{
		"run_id":   summary.ID,
		"job_type": jobType,
		"items":    len(ids),
		"workers":  p.workers(),
	}).Info("Starting batch run")

	for offset := 0; offset < len(ids); offset += p.batchSize() {
		end := offset + p.batchSize()
		if end > len(ids) {
			end = len(ids)
		}

		jobs := make([]*Job, 0, end-offset)
		for _, id := range ids[offset:end] {
			jobs = append(jobs, &Job{
				ID:        uuid.New().String(),
				Type:      jobType,
				ContentID: id,
				Window:    window,
				Status:    constants.JobStatusPending,
				CreatedAt: p.clock(),
			})
		}
		summary.Results = append(summary.Results, p.runChunk(ctx, jobs, len(ids)-end)...)
	}

	for _, r := range summary.Results {
		switch r.Status {
		case constants.JobStatusCompleted:
			summary.Succeeded++
		case constants.JobStatusCancelled:
			summary.Cancelled++
		default:
			summary.Failed++
		}
	}
	summary.CompletedAt = p.clock()
	summary.Duration = summary.CompletedAt.Sub(start)
	p.archiveSummary(ctx, summary)

	p.logger.WithFields(logrus.Fields{
		"run_id":    summary.ID,
		"job_type":  jobType,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"cancelled": summary.Cancelled,
		"duration":  summary.Duration,
	}).Info("Batch run completed")
	return summary, nil
}

// runChunk feeds jobs to the workers and returns results in job order.
// pending is the number of items still waiting in later chunks.
func (p *Processor) runChunk(ctx context.Context, jobs []*Job, pending int) []*Result {
	queue := make(chan *Job, minInt(len(jobs), p.queueSize()))
	results := make(chan *Result, len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < minInt(p.workers(), len(jobs)); i++ {
		worker := NewWorker(i, p.pipeline, p.config, p.logger)
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.Start(ctx, queue, results)
		}(worker)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(queue)
		for i, job := range jobs {
			p.setQueueDepth(pending + len(jobs) - i)
			select {
			case queue <- job:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	byJob := make(map[string]*Result, len(jobs))
	for r := range results {
		byJob[r.JobID] = r
		if p.recorder != nil {
			p.recorder.RecordBatchJob(r.Type, r.Status, r.Duration)
		}
	}
	p.setQueueDepth(pending)

	ordered := make([]*Result, 0, len(jobs))
	for _, job := range jobs {
		if r, ok := byJob[job.ID]; ok {
			ordered = append(ordered, r)
			continue
		}
		// never taken by a worker before cancellation
		ordered = append(ordered, cancelledResult(job, ctx.Err()))
	}
	return ordered
}

func (p *Processor) archiveSummary(ctx context.Context, summary *Summary) {
	if p.archive == nil || !p.config.Archive {
		return
	}
	name := fmt.Sprintf("%s/%s/%s", summary.Type, summary.StartedAt.UTC().Format("2006-01-02"), summary.ID)
	location, err := p.archive.Archive(ctx, name, summary)
	if err != nil {
		summary.ArchiveError = err.Error()
		p.logger.WithError(err).WithField("run_id", summary.ID).Error("Failed to archive batch summary")
		return
	}
	summary.ArchiveLocation = location
}

func (p *Processor) setQueueDepth(depth int) {
	if p.recorder != nil {
		p.recorder.SetQueueDepth(depth)
	}
}

func (p *Processor) workers() int {
	if p.config.Workers <= 0 {
		return 1
	}
	return p.config.Workers
}

func (p *Processor) batchSize() int {
	if p.config.BatchSize <= 0 {
		return constants.DefaultBatchSize
	}
	return p.config.BatchSize
}

func (p *Processor) queueSize() int {
	if p.config.QueueSize <= 0 {
		return 1
	}
	return p.config.QueueSize
}

func cancelledResult(job *Job, err error) *Result {
	msg := "cancelled"
	if err != nil {
		msg = err.Error()
	}
	return &Result{
		JobID:     job.ID,
		Type:      job.Type,
		ContentID: job.ContentID,
		Status:    constants.JobStatusCancelled,
		Error:     msg,
	}
}

func validJobType(t string) bool {
	switch t {
	case constants.JobTypeScore, constants.JobTypeAnalyze, constants.JobTypeInsights:
		return true
	}
	return false
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
