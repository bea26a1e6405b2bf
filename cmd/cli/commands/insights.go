package commands

import (
	"io"

	"github.com/spf13/cobra"
)

type InsightsOptions struct {
	Metrics []string
	Days    int
	Output  OutputOptions
}

func NewInsightsCmd(global *GlobalOptions) *cobra.Command {
	opts := &InsightsOptions{}

	cmd := &cobra.Command{
		Use:   "insights <content-id>",
		Short: "Generate the full insights report of a content item",
		Long: `Score a content item and combine the score with trends, anomalies, forecasts
and correlations of its metrics into an executive summary, risks,
opportunities and prioritized recommendations. Analyses that cannot run are
listed as skipped rather than failing the report.`,
		Example: `  # Insights over the default lookback
  contentscore-cli insights getting-started

  # Write a JSON report for the last 60 days
  contentscore-cli insights getting-started --days 60 --format json -o insights.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInsights(cmd, global, opts, args[0])
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Metrics, "metrics", "m", nil, "Metrics to include (default: every stored metric)")
	cmd.Flags().IntVarP(&opts.Days, "days", "d", 0, "Days of history to use (default: batch.lookback_days)")
	opts.Output.addFlags(cmd)

	return cmd
}

func runInsights(cmd *cobra.Command, global *GlobalOptions, opts *InsightsOptions, contentID string) error {
	if err := opts.Output.validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := global.NewApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	window, err := global.Window(a, opts.Days)
	if err != nil {
		return err
	}
	report, err := a.Pipeline.Insights(ctx, contentID, opts.Metrics, window)
	if err != nil {
		return err
	}

	return opts.Output.write(cmd, report, func(w io.Writer) { printInsights(w, report) })
}
