package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/wrecker/internal/plan"
)

// ValidationResult holds validate output.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Problems []string `json:"problems,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <plan.yaml>",
		Short: "Validate a test plan without running it",
		Long: `Validate a YAML test plan against the plan schema.

Reports every schema violation, not just the first, so a plan can be
fixed in one pass.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	_, err := plan.Load(path)
	if err == nil {
		if opts.Format == "json" {
			return formatter.Success(ValidationResult{Valid: true})
		}
		fmt.Fprintln(formatter.Writer, "plan is valid")
		return nil
	}

	var planErr *plan.PlanError
	if !errors.As(err, &planErr) {
		// Not a validation outcome: unreadable file, bad path.
		_ = formatter.Error(err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	if opts.Format == "json" {
		_ = formatter.Success(ValidationResult{Valid: false, Problems: planErr.Problems})
	} else {
		fmt.Fprintf(formatter.Writer, "plan is invalid: %d problem(s)\n", len(planErr.Problems))
		for _, problem := range planErr.Problems {
			fmt.Fprintf(formatter.Writer, "  %s\n", problem)
		}
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d problem(s)", len(planErr.Problems)))
}
