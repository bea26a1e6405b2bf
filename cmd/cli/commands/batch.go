package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/inferloop/contentscore/pkg/constants"
)

type BatchOptions struct {
	ContentIDs []string
	Output     OutputOptions
}

func NewBatchCmd(global *GlobalOptions) *cobra.Command {
	opts := &BatchOptions{}

	cmd := &cobra.Command{
		Use:   "batch <score|analyze|insights>",
		Short: "Run a batch job over published content",
		Long: `Run one batch job over every published content item, or over the items
given with --ids. Items are processed by the configured worker pool with
retries; the summary is archived when an archive backend is configured.`,
		Example: `  # Score every published item
  contentscore-cli batch score

  # Refresh insights for two items
  contentscore-cli batch insights --ids getting-started,pricing --format json`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{constants.JobTypeScore, constants.JobTypeAnalyze, constants.JobTypeInsights},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, global, opts, args[0])
		},
	}

	cmd.Flags().StringSliceVar(&opts.ContentIDs, "ids", nil, "Content IDs to process (default: every published item)")
	opts.Output.addFlags(cmd)

	return cmd
}

func runBatch(cmd *cobra.Command, global *GlobalOptions, opts *BatchOptions, jobType string) error {
	if err := opts.Output.validate(); err != nil {
		return err
	}
	switch jobType {
	case constants.JobTypeScore, constants.JobTypeAnalyze, constants.JobTypeInsights:
	default:
		return fmt.Errorf("unknown job type %q (score, analyze, insights)", jobType)
	}

	ctx := cmd.Context()
	a, err := global.NewApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	summary, err := a.Processor.Run(ctx, jobType, opts.ContentIDs)
	if err != nil {
		return err
	}

	if err := opts.Output.write(cmd, summary, func(w io.Writer) { printSummary(w, summary) }); err != nil {
		return err
	}
	if summary.Total > 0 && summary.Succeeded == 0 {
		return fmt.Errorf("batch %s failed for every content item", summary.ID)
	}
	return nil
}
