package commands

import (
	stderrors "errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/inferloop/contentscore/internal/config"
	"github.com/inferloop/contentscore/internal/scoring"
	"github.com/inferloop/contentscore/pkg/errors"
)

func NewConfigCmd(global *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
	}

	cmd.AddCommand(newConfigValidateCmd(global))
	cmd.AddCommand(newConfigShowCmd(global))

	return cmd
}

func newConfigValidateCmd(global *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and the scoring criteria",
		Long: `Load the configuration file, environment overrides and the scoring
configuration, and report every invalid field.`,
		Example: `  contentscore-cli config validate --config contentscore.yaml`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigValidate(cmd, global)
		},
	}
}

func runConfigValidate(cmd *cobra.Command, global *GlobalOptions) error {
	out := cmd.OutOrStdout()

	cfg, err := global.LoadConfig()
	if err != nil {
		printValidationErrors(cmd, err)
		return fmt.Errorf("configuration is invalid")
	}

	scoringCfg, err := cfg.LoadScoring(scoring.NewDefaultRegistry())
	if err != nil {
		printValidationErrors(cmd, err)
		return fmt.Errorf("scoring configuration is invalid")
	}

	source := global.ConfigFile
	if source == "" {
		source = "defaults"
	}
	fmt.Fprintf(out, "Configuration OK (%s)\n", source)
	fmt.Fprintf(out, "- metric store: %s\n", cfg.Storage.MetricStore)
	fmt.Fprintf(out, "- report store: %s\n", cfg.Storage.ReportStore)
	fmt.Fprintf(out, "- cache:        %s\n", cfg.Storage.Cache)
	fmt.Fprintf(out, "- archive:      %s\n", cfg.Storage.Archive)
	fmt.Fprintf(out, "- categories:   %d\n", len(scoringCfg.Categories))
	return nil
}

func newConfigShowCmd(global *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML, credentials masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := global.LoadConfig()
			if err != nil {
				return err
			}
			return printConfig(cmd, cfg)
		},
	}
}

func printConfig(cmd *cobra.Command, cfg *config.Config) error {
	encoder := yaml.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent(2)
	if err := encoder.Encode(cfg.Redacted()); err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	return encoder.Close()
}

// printValidationErrors lists each invalid field of a validation failure
func printValidationErrors(cmd *cobra.Command, err error) {
	out := cmd.ErrOrStderr()
	fmt.Fprintf(out, "Error: %v\n", err)

	var ve *errors.ValidationErrors
	if stderrors.As(err, &ve) {
		for _, fe := range ve.Errors {
			fmt.Fprintf(out, "- %s: %s\n", fe.Field, fe.Message)
		}
	}
}
