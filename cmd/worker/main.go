package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/contentscore/internal/app"
	"github.com/inferloop/contentscore/internal/config"
	"github.com/inferloop/contentscore/pkg/constants"
)

type WorkerConfig struct {
	WorkerID    string
	ConfigFile  string
	EnvFile     string
	Concurrency int
	QueueSize   int
	RunOnce     string
	LogLevel    string
	LogFormat   string
}

var logger *logrus.Logger

func main() {
	workerConfig := parseFlags()

	if err := loadEnvFile(workerConfig.EnvFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load(workerConfig.ConfigFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	workerConfig.apply(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.Logging.Level, cfg.Logging.Format)

	logger.WithFields(logrus.Fields{
		"workerID":    workerConfig.WorkerID,
		"concurrency": workerConfig.Concurrency,
		"runOnce":     workerConfig.RunOnce,
	}).Info("Starting content analysis worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize worker")
	}
	defer application.Close()

	if workerConfig.RunOnce != "" {
		if err := runOnce(ctx, application.Processor, workerConfig.RunOnce); err != nil {
			logger.WithError(err).Error("Run failed")
			application.Close()
			os.Exit(1)
		}
		return
	}

	if err := runScheduled(ctx, cancel, cfg, workerConfig, application); err != nil {
		logger.WithError(err).Error("Worker shutdown failed")
		application.Close()
		os.Exit(1)
	}

	logger.Info("Worker stopped successfully")
}

func runScheduled(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, workerConfig *WorkerConfig, application *app.App) error {
	if !cfg.Schedule.Enabled {
		return fmt.Errorf("scheduling is disabled; use -run-once to run a single job")
	}

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if application.Metrics != nil {
		if err := application.Metrics.Start(ctx); err != nil {
			return err
		}
		defer application.Metrics.Stop(context.Background())
	}
	application.Health.Start(ctx)

	// Initialize scheduler
	scheduler, err := NewScheduler(cfg.Schedule, workerConfig.QueueSize, logger)
	if err != nil {
		return err
	}

	// Initialize job processor
	processor := NewJobProcessor(application.Processor, workerConfig.Concurrency, logger)
	processor.SetScheduler(scheduler)

	// Start worker components
	go scheduler.Start(ctx)
	go processor.Start(ctx)

	// Monitor worker health
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logger.WithFields(logrus.Fields{
					"activeJobs":    processor.ActiveJobs(),
					"completedJobs": processor.CompletedJobs(),
					"failedJobs":    processor.FailedJobs(),
				}).Debug("Worker health check")
			}
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	logger.Info("Shutdown signal received")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Batch.JobTimeout+30*time.Second)
	defer shutdownCancel()

	err = gracefulShutdown(shutdownCtx, scheduler, processor)
	cancel()
	return err
}

// runOnce executes a single batch job and logs its summary
func runOnce(ctx context.Context, runner Runner, jobType string) error {
	switch jobType {
	case constants.JobTypeScore, constants.JobTypeAnalyze, constants.JobTypeInsights:
	default:
		return fmt.Errorf("unknown job type %q", jobType)
	}

	processor := NewJobProcessor(runner, 1, logger)
	job := &Job{
		ID:          fmt.Sprintf("manual-%s-%d", jobType, time.Now().Unix()),
		Slot:        "manual",
		Type:        jobType,
		ScheduledAt: time.Now(),
	}
	processor.processJob(ctx, job, 0)
	if processor.FailedJobs() > 0 {
		return fmt.Errorf("job %s failed", job.ID)
	}
	return nil
}

func parseFlags() *WorkerConfig {
	workerConfig := &WorkerConfig{}

	flag.StringVar(&workerConfig.WorkerID, "worker-id", generateWorkerID(), "Unique worker ID")
	flag.StringVar(&workerConfig.ConfigFile, "config", "", "Path to configuration file")
	flag.StringVar(&workerConfig.EnvFile, "env-file", ".env", "Path to a .env file loaded before the environment is read")
	flag.IntVar(&workerConfig.Concurrency, "concurrency", 1, "Number of batch runs executed at once")
	flag.IntVar(&workerConfig.QueueSize, "queue-size", 8, "Scheduled runs buffered while others execute")
	flag.StringVar(&workerConfig.RunOnce, "run-once", "", "Run one job type (score, analyze, insights) and exit")
	flag.StringVar(&workerConfig.LogLevel, "log-level", "", "Log level (overrides logging.level)")
	flag.StringVar(&workerConfig.LogFormat, "log-format", "", "Log format (overrides logging.format)")

	flag.Parse()

	return workerConfig
}

func (w *WorkerConfig) apply(cfg *config.Config) {
	if w.LogLevel != "" {
		cfg.Logging.Level = w.LogLevel
	}
	if w.LogFormat != "" {
		cfg.Logging.Format = w.LogFormat
	}
}

// loadEnvFile loads path into the environment when it exists
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

func setupLogger(level, format string) *logrus.Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func generateWorkerID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

func gracefulShutdown(ctx context.Context, scheduler *Scheduler, processor *JobProcessor) error {
	logger.Info("Starting graceful shutdown")

	// Stop accepting new jobs
	scheduler.Stop()

	// Wait for active jobs to complete
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		if processor.ActiveJobs() == 0 {
			logger.Info("All jobs completed")
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("shutdown timeout exceeded")
		case <-ticker.C:
			logger.WithField("activeJobs", processor.ActiveJobs()).Info("Waiting for jobs to complete")
		}
	}
}
