package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

type HistoryOptions struct {
	Limit  int
	Output OutputOptions
}

func NewHistoryCmd(global *GlobalOptions) *cobra.Command {
	opts := &HistoryOptions{}

	cmd := &cobra.Command{
		Use:   "history <content-id>",
		Short: "List the saved score reports of a content item",
		Example: `  # The last ten reports
  contentscore-cli history getting-started --limit 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, global, opts, args[0])
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Maximum number of reports, newest first")
	opts.Output.addFlags(cmd)

	return cmd
}

func runHistory(cmd *cobra.Command, global *GlobalOptions, opts *HistoryOptions, contentID string) error {
	if err := opts.Output.validate(); err != nil {
		return err
	}
	if opts.Limit < 1 {
		return fmt.Errorf("limit must be positive, got %d", opts.Limit)
	}

	ctx := cmd.Context()
	a, err := global.NewApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	reports, err := a.Pipeline.History(ctx, contentID, opts.Limit)
	if err != nil {
		return err
	}

	return opts.Output.write(cmd, reports, func(w io.Writer) { printHistory(w, contentID, reports) })
}
