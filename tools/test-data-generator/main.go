package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/inferloop/contentscore/internal/config"
	"github.com/inferloop/contentscore/internal/storage"
	"github.com/inferloop/contentscore/internal/storage/implementations/file"
	"github.com/inferloop/contentscore/pkg/interfaces"
)

func main() {
	var (
		configFile    = flag.String("config", "", "Application configuration file (storage settings)")
		envFile       = flag.String("env-file", ".env", "Path to a .env file loaded before the environment is read")
		generatorFile = flag.String("generator-config", "", "YAML file with generator settings and metric profiles")
		items         = flag.Int("items", 0, "Number of content items to generate")
		days          = flag.Int("days", 0, "Days of metric history per item")
		seed          = flag.Int64("seed", 0, "Random seed (0 uses the current time)")
		verbose       = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	// Setup logging
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	if _, err := os.Stat(*envFile); err == nil {
		if err := godotenv.Load(*envFile); err != nil {
			logger.WithError(err).Fatal("Failed to load env file")
		}
	}
	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	genConfig := getDefaultConfig()
	if *generatorFile != "" {
		if genConfig, err = loadConfig(*generatorFile); err != nil {
			logger.WithError(err).Fatal("Failed to load generator config")
		}
	}
	if *items > 0 {
		genConfig.Items = *items
	}
	if *days > 0 {
		genConfig.Days = *days
	}
	if *seed != 0 {
		genConfig.Seed = *seed
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	factory := storage.NewFactory(&cfg.Storage, logger)
	metricStore, err := factory.MetricStore(ctx)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open metric store")
	}
	defer metricStore.Close()

	content, err := factory.ContentProvider()
	if err != nil {
		logger.WithError(err).Fatal("Failed to open content directory")
	}

	logger.WithFields(logrus.Fields{
		"items":        genConfig.Items,
		"days":         genConfig.Days,
		"metrics":      len(genConfig.Profiles),
		"metric_store": cfg.Storage.MetricStore,
		"content_path": cfg.Storage.Content.BasePath,
	}).Info("Starting test data generation")

	written, err := Populate(ctx, NewGenerator(genConfig), content, metricStore, time.Now(), logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to generate data")
	}

	logger.WithFields(logrus.Fields{
		"items":  genConfig.Items,
		"series": written,
	}).Info("Test data generation completed")
}

// Populate saves the generated items and writes every profile's history for
// each of them. It returns the number of series written.
func Populate(ctx context.Context, g *Generator, content *file.ContentProvider, store interfaces.MetricStore, now time.Time, logger *logrus.Logger) (int, error) {
	written := 0
	for i := 0; i < g.config.Items; i++ {
		item := g.Item(i, now)
		if err := content.SaveContent(ctx, item); err != nil {
			return written, fmt.Errorf("failed to save content %s: %w", item.ID, err)
		}

		for _, profile := range g.config.Profiles {
			series := g.Series(g.TrendFor(profile, i), now)
			if err := store.Write(ctx, item.ID, series); err != nil {
				return written, fmt.Errorf("failed to write %s for %s: %w", profile.Metric, item.ID, err)
			}
			written++
		}

		logger.WithFields(logrus.Fields{
			"content_id": item.ID,
			"title":      item.Title,
		}).Debug("Generated content item")
	}
	return written, nil
}

func loadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	config := getDefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}
	if config.Items < 1 || config.Days < 1 {
		return nil, fmt.Errorf("items and days must be positive")
	}
	return config, nil
}
