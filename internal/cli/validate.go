package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/temps-sh/replaykit/internal/config"
)

// ValidationResult holds validation results for JSON output.
type ValidationResult struct {
	Valid  bool   `json:"valid"`
	Config string `json:"config"`
	Error  string `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config.yaml>",
		Short: "Validate a capture config against the schema",
		Long: `Validate a YAML capture config against the embedded CUE schema.

Catches constraint violations (sample rate outside 0..1, batch size below 1,
sub-100ms flush intervals, missing base path) before the config reaches a
running pipeline.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, configFile string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	_, err := config.Load(configFile)
	if err != nil {
		if formatter.Format == "json" {
			_ = formatter.JSON(ValidationResult{Valid: false, Config: configFile, Error: err.Error()})
		} else {
			_ = formatter.Error(ErrCodeInvalid, err.Error(), nil)
		}
		return WrapExitError(ExitFailure, "config invalid", err)
	}

	if formatter.Format == "json" {
		return formatter.JSON(ValidationResult{Valid: true, Config: configFile})
	}
	fmt.Fprintf(formatter.Writer, "%s is valid\n", configFile)
	return nil
}
