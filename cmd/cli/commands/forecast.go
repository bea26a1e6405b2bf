package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

type ForecastOptions struct {
	Metric  string
	Horizon int
	Method  string
	Days    int
	Output  OutputOptions
}

func NewForecastCmd(global *GlobalOptions) *cobra.Command {
	opts := &ForecastOptions{}

	cmd := &cobra.Command{
		Use:   "forecast <content-id>",
		Short: "Forecast a performance metric of a content item",
		Long: `Forecast a stored metric with confidence bounds. The method defaults to the
configured one (linear_regression or exponential_smoothing). Accuracy is the
backtest score of the fitted method.`,
		Example: `  # Forecast pageviews for the next week
  contentscore-cli forecast getting-started --metric pageviews

  # Two weeks ahead with exponential smoothing
  contentscore-cli forecast getting-started --metric sessions --horizon 14 --method exponential_smoothing`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runForecast(cmd, global, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Metric, "metric", "", "Metric to forecast (required)")
	cmd.Flags().IntVar(&opts.Horizon, "horizon", 0, "Steps to forecast (default: analytics.insights.forecast_horizon)")
	cmd.Flags().StringVar(&opts.Method, "method", "", "Forecast method (default: analytics.forecast.method)")
	cmd.Flags().IntVarP(&opts.Days, "days", "d", 0, "Days of history to fit (default: batch.lookback_days)")
	opts.Output.addFlags(cmd)

	cmd.MarkFlagRequired("metric")

	return cmd
}

func runForecast(cmd *cobra.Command, global *GlobalOptions, opts *ForecastOptions, contentID string) error {
	if err := opts.Output.validate(); err != nil {
		return err
	}
	if opts.Horizon < 0 {
		return fmt.Errorf("horizon must be positive, got %d", opts.Horizon)
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
	horizon := opts.Horizon
	if horizon == 0 {
		horizon = a.Config.Analytics.Insights.ForecastHorizon
	}

	forecast, err := a.Analytics.Forecast(ctx, contentID, opts.Metric, window, horizon, opts.Method)
	if err != nil {
		return err
	}

	return opts.Output.write(cmd, forecast, func(w io.Writer) { printForecast(w, forecast) })
}
