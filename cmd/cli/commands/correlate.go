package commands

import (
	"io"

	"github.com/spf13/cobra"
)

type CorrelateOptions struct {
	Metrics []string
	Days    int
	Output  OutputOptions
}

func NewCorrelateCmd(global *GlobalOptions) *cobra.Command {
	opts := &CorrelateOptions{}

	cmd := &cobra.Command{
		Use:   "correlate <content-id>",
		Short: "Correlate the performance metrics of a content item",
		Long: `Compute pairwise Pearson correlations between stored metrics, with
significance tests and lagged relationships.`,
		Example: `  # Every stored metric
  contentscore-cli correlate getting-started

  # Selected metrics as JSON
  contentscore-cli correlate getting-started --metrics pageviews,sessions,conversions --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCorrelate(cmd, global, opts, args[0])
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Metrics, "metrics", "m", nil, "Metrics to correlate (default: every stored metric)")
	cmd.Flags().IntVarP(&opts.Days, "days", "d", 0, "Days of history to use (default: batch.lookback_days)")
	opts.Output.addFlags(cmd)

	return cmd
}

func runCorrelate(cmd *cobra.Command, global *GlobalOptions, opts *CorrelateOptions, contentID string) error {
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
	report, err := a.Analytics.Correlate(ctx, contentID, opts.Metrics, window)
	if err != nil {
		return err
	}

	return opts.Output.write(cmd, report, func(w io.Writer) { printCorrelations(w, report) })
}
