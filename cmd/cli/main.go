package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/inferloop/contentscore/cmd/cli/commands"
	"github.com/inferloop/contentscore/pkg/constants"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	rootCmd := newRootCmd(&commands.GlobalOptions{})

	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(global *commands.GlobalOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "contentscore-cli",
		Short: "Content quality scoring and performance analytics CLI",
		Long: `A command-line interface for scoring content quality and analyzing the
performance history of published content: trends, anomalies, forecasts,
correlations and combined insights reports.`,
		Version:       constants.AppVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	global.AddFlags(rootCmd)

	// Add commands
	rootCmd.AddCommand(commands.NewScoreCmd(global))
	rootCmd.AddCommand(commands.NewHistoryCmd(global))
	rootCmd.AddCommand(commands.NewAnalyzeCmd(global))
	rootCmd.AddCommand(commands.NewForecastCmd(global))
	rootCmd.AddCommand(commands.NewCorrelateCmd(global))
	rootCmd.AddCommand(commands.NewInsightsCmd(global))
	rootCmd.AddCommand(commands.NewBatchCmd(global))
	rootCmd.AddCommand(commands.NewConfigCmd(global))
	rootCmd.AddCommand(commands.NewTokenCmd(global))

	return rootCmd
}
