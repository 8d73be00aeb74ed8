package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/wrecker/internal/history"
	"github.com/roach88/wrecker/internal/store"
)

// NewHistoryCommand creates the history command group.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	var storePath string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect stored runs",
	}
	cmd.PersistentFlags().StringVar(&storePath, "store", "wrecker.db", "SQLite database holding stored runs")

	cmd.AddCommand(newHistoryListCommand(rootOpts, &storePath))
	cmd.AddCommand(newHistoryShowCommand(rootOpts, &storePath))
	return cmd
}

// RunListing is one row of history list output.
type RunListing struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	StartedAt string `json:"started_at"`
	Duration  string `json:"duration"`
	Ops       int    `json:"ops"`
	Valid     *bool  `json:"valid,omitempty"`
}

func newHistoryListCommand(rootOpts *RootOptions, storePath *string) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List stored runs, most recent first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}

			s, err := store.Open(*storePath)
			if err != nil {
				_ = formatter.Error(err.Error(), nil)
				return NewExitError(ExitCommandError, err.Error())
			}
			defer s.Close()

			runs, err := s.ListRuns(cmd.Context())
			if err != nil {
				_ = formatter.Error(err.Error(), nil)
				return NewExitError(ExitCommandError, err.Error())
			}

			listings := make([]RunListing, 0, len(runs))
			for _, r := range runs {
				listings = append(listings, RunListing{
					ID:        r.ID,
					Name:      r.Name,
					StartedAt: r.StartedAt.Format(time.RFC3339),
					Duration:  r.Duration.Round(time.Millisecond).String(),
					Ops:       r.Ops,
					Valid:     r.Valid,
				})
			}

			if rootOpts.Format == "json" {
				return formatter.Success(listings)
			}
			if len(listings) == 0 {
				fmt.Fprintln(formatter.Writer, "no stored runs")
				return nil
			}
			for _, l := range listings {
				valid := "unchecked"
				if l.Valid != nil {
					valid = fmt.Sprintf("valid=%v", *l.Valid)
				}
				fmt.Fprintf(formatter.Writer, "%s  %s  %s  %d ops  %s  %s\n",
					l.ID, l.Name, l.StartedAt, l.Ops, l.Duration, valid)
			}
			return nil
		},
	}
}

func newHistoryShowCommand(rootOpts *RootOptions, storePath *string) *cobra.Command {
	return &cobra.Command{
		Use:           "show <run-id>",
		Short:         "Print a run's history as canonical JSON",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}

			s, err := store.Open(*storePath)
			if err != nil {
				_ = formatter.Error(err.Error(), nil)
				return NewExitError(ExitCommandError, err.Error())
			}
			defer s.Close()

			h, err := s.LoadHistory(cmd.Context(), args[0])
			if err != nil {
				_ = formatter.Error(err.Error(), nil)
				code := ExitCommandError
				if errors.Is(err, store.ErrRunNotFound) {
					code = ExitFailure
				}
				return NewExitError(code, err.Error())
			}

			data, err := history.CanonicalJSON(h)
			if err != nil {
				_ = formatter.Error(err.Error(), nil)
				return NewExitError(ExitCommandError, err.Error())
			}
			fmt.Fprintln(formatter.Writer, string(data))
			return nil
		},
	}
}
