package commands

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/inferloop/contentscore/pkg/models"
)

type AnalyzeOptions struct {
	Metrics     []string
	Days        int
	Sensitivity string
	Output      OutputOptions
}

func NewAnalyzeCmd(global *GlobalOptions) *cobra.Command {
	opts := &AnalyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze <content-id>",
		Short: "Analyze performance trends and anomalies of a content item",
		Long: `Analyze the stored performance metrics of a content item. Every metric gets
a trend (direction, regression fit, moving averages, seasonality) and the
series are scanned for anomalies.`,
		Example: `  # Trends and anomalies for every stored metric
  contentscore-cli analyze getting-started

  # Two metrics over the last 30 days, flagging smaller deviations
  contentscore-cli analyze getting-started --metrics pageviews,bounce_rate --days 30 --sensitivity high`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, global, opts, args[0])
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Metrics, "metrics", "m", nil, "Metrics to analyze (default: every stored metric)")
	cmd.Flags().IntVarP(&opts.Days, "days", "d", 0, "Days of history to analyze (default: batch.lookback_days)")
	cmd.Flags().StringVar(&opts.Sensitivity, "sensitivity", string(models.SensitivityMedium), "Anomaly sensitivity (low, medium, high)")
	opts.Output.addFlags(cmd)

	return cmd
}

func runAnalyze(cmd *cobra.Command, global *GlobalOptions, opts *AnalyzeOptions, contentID string) error {
	if err := opts.Output.validate(); err != nil {
		return err
	}
	sensitivity, err := models.ParseSensitivity(opts.Sensitivity)
	if err != nil {
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
	analysis, err := a.Pipeline.Analyze(ctx, contentID, opts.Metrics, window, sensitivity)
	if err != nil {
		return err
	}

	return opts.Output.write(cmd, analysis, func(w io.Writer) { printAnalysis(w, analysis) })
}
