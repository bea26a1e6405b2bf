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
	"github.com/inferloop/contentscore/internal/server"
)

func main() {
	flags, err := ParseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}
	if flags.Version {
		printVersion(os.Stdout)
		os.Exit(0)
	}

	if err := run(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(flags *Flags) error {
	if err := loadEnvFile(flags.EnvFile); err != nil {
		return err
	}

	cfg, err := config.Load(flags.ConfigFile)
	if err != nil {
		return err
	}
	flags.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)

	logger.WithFields(GetBuildInfo().fields()).Info("Starting content scoring API server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	if application.Metrics != nil {
		if err := application.Metrics.Start(ctx); err != nil {
			return err
		}
	}
	application.Health.Start(ctx)

	srv, err := server.NewServer(&cfg.Server, application.ServerDependencies(), logger)
	if err != nil {
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(ctx)
	}()

	// Wait for shutdown signal or a server failure
	select {
	case sig := <-sigChan:
		logger.WithField("signal", sig.String()).Info("Shutdown signal received")
	case err := <-errChan:
		if err != nil {
			logger.WithError(err).Error("Server failed")
			return err
		}
	}
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+5*time.Second)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}
	if application.Metrics != nil {
		if err := application.Metrics.Stop(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Metrics server shutdown failed")
		}
	}

	logger.Info("Server stopped")
	return nil
}

// loadEnvFile loads path into the environment when it exists
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func setupLogger(level, format string) *logrus.Logger {
	logger := logrus.New()

	// Set log level
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set log format
	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}
