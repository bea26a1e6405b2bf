package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/inferloop/contentscore/pkg/models"
)

type ScoreOptions struct {
	InputFile string
	Output    OutputOptions
}

func NewScoreCmd(global *GlobalOptions) *cobra.Command {
	opts := &ScoreOptions{}

	cmd := &cobra.Command{
		Use:   "score [content-id]",
		Short: "Score a content item against the configured criteria",
		Long: `Score a published content item, or a local JSON or YAML file, across the
SEO, readability, technical and engagement categories. The report is compared
with the previous one for the same item and saved to the report store.`,
		Example: `  # Score a published item
  contentscore-cli score getting-started

  # Score a draft before publishing
  contentscore-cli score --file draft.yaml --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScore(cmd, global, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.InputFile, "file", "f", "", "Content item file to score (.json, .yaml)")
	opts.Output.addFlags(cmd)

	return cmd
}

func runScore(cmd *cobra.Command, global *GlobalOptions, opts *ScoreOptions, args []string) error {
	if err := opts.Output.validate(); err != nil {
		return err
	}
	if (len(args) == 0) == (opts.InputFile == "") {
		return fmt.Errorf("provide either a content id or --file")
	}

	var item *models.ContentItem
	if opts.InputFile != "" {
		var err error
		if item, err = readContentFile(opts.InputFile); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	a, err := global.NewApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	var report *models.ScoreReport
	if item != nil {
		report, err = a.Pipeline.ScoreItem(ctx, item)
	} else {
		report, err = a.Pipeline.Score(ctx, args[0])
	}
	if err != nil {
		return err
	}

	return opts.Output.write(cmd, report, func(w io.Writer) { printScore(w, report) })
}

// readContentFile decodes a content item by file extension. An item without
// an ID takes the file name.
func readContentFile(path string) (*models.ContentItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read content file: %w", err)
	}

	var item models.ContentItem
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &item)
	case ".json":
		err = json.Unmarshal(data, &item)
	default:
		return nil, fmt.Errorf("unsupported content file %s (expected .json, .yaml or .yml)", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode content file %s: %w", path, err)
	}

	if item.ID == "" {
		base := filepath.Base(path)
		item.ID = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return &item, nil
}
