package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/wrecker/internal/metrics"
	"github.com/roach88/wrecker/internal/nemesis"
	"github.com/roach88/wrecker/internal/plan"
	"github.com/roach88/wrecker/internal/runner"
	"github.com/roach88/wrecker/internal/store"
	"github.com/roach88/wrecker/internal/testutil"
)

// RunResult holds run output.
type RunResult struct {
	RunID    string `json:"run_id"`
	Name     string `json:"name"`
	Ops      int    `json:"ops"`
	Duration string `json:"duration"`
	Valid    *bool  `json:"valid,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		driver    string
		storePath string
	)

	cmd := &cobra.Command{
		Use:   "run <plan.yaml>",
		Short: "Run a test plan",
		Long: `Run a test plan against a system under test.

The only built-in driver is "mem", an in-process register store used to
exercise plans end to end. Real systems plug in through the client and
db interfaces.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(rootOpts, args[0], driver, storePath, cmd)
		},
	}

	cmd.Flags().StringVar(&driver, "driver", "mem", "system-under-test driver")
	cmd.Flags().StringVar(&storePath, "store", "", "SQLite database to persist the run into")
	return cmd
}

func runRun(opts *RootOptions, path, driver, storePath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	p, err := plan.Load(path)
	if err != nil {
		_ = formatter.Error(err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	env, err := buildEnv(driver)
	if err != nil {
		_ = formatter.Error(err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}
	env.Log = slog.Default()
	env.Metrics = metrics.New(prometheus.NewRegistry())

	if storePath != "" {
		s, err := store.Open(storePath)
		if err != nil {
			_ = formatter.Error(err.Error(), nil)
			return NewExitError(ExitCommandError, err.Error())
		}
		defer s.Close()
		env.Store = s
	}

	test, err := p.Build(env)
	if err != nil {
		_ = formatter.Error(err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	res, err := runner.Run(cmd.Context(), test)
	if err != nil {
		_ = formatter.Error(err.Error(), nil)
		return NewExitError(ExitFailure, err.Error())
	}

	out := RunResult{
		RunID:    res.RunID,
		Name:     res.Name,
		Ops:      len(res.History),
		Duration: res.Duration.Round(time.Millisecond).String(),
	}
	if res.Check != nil {
		out.Valid = &res.Check.Valid
	}

	if opts.Format == "json" {
		if err := formatter.Success(out); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(formatter.Writer, "run %s: %d ops in %s\n", out.RunID, out.Ops, out.Duration)
		if out.Valid != nil {
			fmt.Fprintf(formatter.Writer, "history valid: %v\n", *out.Valid)
		}
	}

	if out.Valid != nil && !*out.Valid {
		return NewExitError(ExitFailure, "history failed validity checking")
	}
	return nil
}

// buildEnv wires the collaborators for a named driver.
func buildEnv(driver string) (plan.Env, error) {
	switch driver {
	case "mem":
		return plan.Env{
			Client: testutil.NewMemClient(),
			DB:     testutil.NewFakeDB(),
			Net:    memNet{},
			Clock:  memClock{},
		}, nil
	default:
		return plan.Env{}, fmt.Errorf("unknown driver %q (only \"mem\" is built in)", driver)
	}
}

// memNet and memClock are the mem driver's fault primitives. The mem
// store has no real network or clock, so faults land as no-ops; the
// schedule and history shape are still fully exercised.
type memNet struct{}

func (memNet) Isolate(ctx context.Context, groups [][]string) error { return nil }
func (memNet) Heal(ctx context.Context) error                       { return nil }

type memClock struct{}

func (memClock) Bump(ctx context.Context, node string, delta time.Duration) error { return nil }
func (memClock) Reset(ctx context.Context, node string) error                     { return nil }

func (memClock) Strobe(ctx context.Context, node string, delta, period time.Duration) error {
	return nil
}

var _ nemesis.Partitioner = memNet{}
var _ nemesis.Clocker = memClock{}
var _ nemesis.Strober = memClock{}
