package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inferloop/contentscore/internal/analytics"
	"github.com/inferloop/contentscore/internal/app"
	"github.com/inferloop/contentscore/internal/config"
)

// GlobalOptions holds the persistent flags of the root command
type GlobalOptions struct {
	ConfigFile string
	EnvFile    string
	Verbose    bool

	// Clock overrides the analysis time source in tests
	Clock func() time.Time
}

// AddFlags registers the global flags on the root command
func (g *GlobalOptions) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&g.ConfigFile, "config", "", "config file (defaults plus CONTENTSCORE_* environment when empty)")
	cmd.PersistentFlags().StringVar(&g.EnvFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	cmd.PersistentFlags().BoolVarP(&g.Verbose, "verbose", "v", false, "verbose output")
}

// LoadConfig reads the dotenv file and the configuration, then validates it
func (g *GlobalOptions) LoadConfig() (*config.Config, error) {
	if err := loadEnvFile(g.EnvFile); err != nil {
		return nil, fmt.Errorf("failed to load env file %s: %w", g.EnvFile, err)
	}
	cfg, err := config.Load(g.ConfigFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewApp builds the application stack for one command invocation. The CLI
// never serves metrics.
func (g *GlobalOptions) NewApp(ctx context.Context, cmd *cobra.Command) (*app.App, error) {
	cfg, err := g.LoadConfig()
	if err != nil {
		return nil, err
	}
	cfg.Metrics.Enabled = false

	var opts []app.Option
	if g.Clock != nil {
		opts = append(opts, app.WithClock(g.Clock))
	}
	return app.New(ctx, cfg, g.logger(cmd), opts...)
}

// Window returns the analysis window ending now. Zero days uses the
// configured batch lookback.
func (g *GlobalOptions) Window(a *app.App, days int) (analytics.Window, error) {
	if days < 0 {
		return analytics.Window{}, fmt.Errorf("days must be positive, got %d", days)
	}
	if days == 0 {
		days = a.Config.Batch.LookbackDays
	}
	return analytics.LastDays(g.now(), days), nil
}

func (g *GlobalOptions) now() time.Time {
	if g.Clock != nil {
		return g.Clock()
	}
	return time.Now()
}

// logger writes to stderr so that command output stays machine readable
func (g *GlobalOptions) logger(cmd *cobra.Command) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	if g.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}
	return logger
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}
