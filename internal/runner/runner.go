// Package runner orchestrates one test run: node setup, client fan-out,
// the worker and nemesis goroutines, history capture, persistence, and
// the checker handoff.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/wrecker/internal/checker"
	"github.com/roach88/wrecker/internal/client"
	"github.com/roach88/wrecker/internal/db"
	"github.com/roach88/wrecker/internal/gen"
	"github.com/roach88/wrecker/internal/history"
	"github.com/roach88/wrecker/internal/metrics"
	"github.com/roach88/wrecker/internal/nemesis"
	"github.com/roach88/wrecker/internal/store"
)

// DefaultPollInterval is how long a process sleeps before re-polling a
// pending generator.
const DefaultPollInterval = 5 * time.Millisecond

// Test is everything one run needs. Client and Generator are required;
// DB, Nemesis, Checker, Store, and Metrics are optional collaborators.
type Test struct {
	Name        string
	Nodes       []string
	Concurrency int

	Client    client.Client
	Generator gen.Generator

	DB      db.DB
	Nemesis nemesis.Nemesis
	Checker checker.Checker
	Store   *store.Store
	Metrics *metrics.Metrics

	// Watchdog, when set, runs for the duration of the workload and is
	// cancelled once the generator is exhausted. Plans install
	// db.Restarter.Watchdog here.
	Watchdog func(context.Context)

	// PollInterval overrides DefaultPollInterval.
	PollInterval time.Duration

	// Now overrides the elapsed-time source. Tests install a manual
	// clock here; the default measures wall time from run start.
	Now func() time.Duration

	// Log defaults to slog.Default().
	Log *slog.Logger
}

func (t *Test) validate() error {
	switch {
	case t.Client == nil:
		return errors.New("test has no client")
	case t.Generator == nil:
		return errors.New("test has no generator")
	case t.Concurrency <= 0:
		return fmt.Errorf("concurrency %d, need at least 1", t.Concurrency)
	case len(t.Nodes) == 0:
		return errors.New("test has no nodes")
	}
	return nil
}

// Result is the artifact of a run: identity, the complete history, and
// the checker verdict when one ran.
type Result struct {
	RunID     string
	Name      string
	StartedAt time.Time
	Duration  time.Duration
	History   history.History

	// Check is nil when the test had no checker or the run aborted
	// before the history was complete.
	Check *checker.Result
}

// NodeErrors aggregates per-node failures from a lifecycle stage.
type NodeErrors struct {
	Stage string
	Nodes map[string]error
}

func (e *NodeErrors) Error() string {
	names := make([]string, 0, len(e.Nodes))
	for node := range e.Nodes {
		names = append(names, node)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, node := range names {
		parts = append(parts, fmt.Sprintf("%s: %v", node, e.Nodes[node]))
	}
	return fmt.Sprintf("%s failed on %d node(s): %s", e.Stage, len(names), strings.Join(parts, "; "))
}

func (e *NodeErrors) Unwrap() []error {
	errs := make([]error, 0, len(e.Nodes))
	for _, err := range e.Nodes {
		errs = append(errs, err)
	}
	return errs
}

// Run executes one test. The returned Result carries whatever history
// was recorded even when err is non-nil; teardown always runs, and its
// errors are joined with the run error.
func Run(ctx context.Context, t *Test) (*Result, error) {
	if err := t.validate(); err != nil {
		return nil, fmt.Errorf("invalid test: %w", err)
	}

	runID := uuid.NewString()
	logger := t.Log
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("run", runID, "test", t.Name)

	now := t.Now
	if now == nil {
		base := time.Now()
		now = func() time.Duration { return time.Since(base) }
	}

	nem := t.Nemesis
	if nem == nil {
		nem = nemesis.Noop{}
	}

	r := &run{
		t:    t,
		nem:  nem,
		log:  logger,
		hlog: history.NewLog(),
		sched: &scheduler{
			gen:   t.Generator,
			now:   now,
			procs: procsFor(t.Concurrency),
		},
		poll: t.PollInterval,
	}
	if r.poll <= 0 {
		r.poll = DefaultPollInterval
	}

	started := time.Now()
	logger.Info("run starting", "nodes", t.Nodes, "concurrency", t.Concurrency)

	runErr := r.setup(ctx)
	if runErr == nil {
		r.execute(ctx)
	}

	// Teardown ignores a cancelled run context; healing the cluster
	// must not be skipped because the run was.
	tearErr := r.teardown(context.WithoutCancel(ctx))

	result := &Result{
		RunID:     runID,
		Name:      t.Name,
		StartedAt: started,
		Duration:  time.Since(started),
		History:   r.hlog.History(),
	}
	logger.Info("run finished", "ops", len(result.History), "duration", result.Duration)

	if runErr == nil && t.Checker != nil {
		info := checker.TestInfo{Name: t.Name, Nodes: t.Nodes}
		verdict, err := t.Checker.Check(ctx, info, result.History)
		if err != nil {
			runErr = fmt.Errorf("checker: %w", err)
		} else {
			result.Check = &verdict
			logger.Info("checker verdict", "valid", verdict.Valid)
		}
	}

	if runErr == nil && t.Store != nil {
		if err := t.Store.SaveRun(ctx, r.record(result)); err != nil {
			runErr = fmt.Errorf("persist run: %w", err)
		}
	}

	return result, errors.Join(runErr, tearErr)
}

// procsFor lists every process id drawing from the generator: the
// worker slots plus the nemesis.
func procsFor(concurrency int) []int {
	procs := make([]int, 0, concurrency+1)
	for i := 0; i < concurrency; i++ {
		procs = append(procs, i)
	}
	return append(procs, history.Nemesis)
}

// run is the mutable state of one execution.
type run struct {
	t     *Test
	nem   nemesis.Nemesis
	log   *slog.Logger
	hlog  *history.Log
	sched *scheduler
	poll  time.Duration

	clients  []client.Client
	nemReady bool
}

func (r *run) setup(ctx context.Context) error {
	if r.t.DB != nil {
		if err := forEachNode(ctx, "setup", r.t.Nodes, r.t.DB.Setup); err != nil {
			return err
		}
	}

	for i := 0; i < r.t.Concurrency; i++ {
		node := r.t.Nodes[i%len(r.t.Nodes)]
		c, err := r.t.Client.Open(ctx, node)
		if err != nil {
			return fmt.Errorf("open client %d against %s: %w", i, node, err)
		}
		r.clients = append(r.clients, c)
		if err := c.Setup(ctx); err != nil {
			return fmt.Errorf("set up client %d against %s: %w", i, node, err)
		}
	}

	if err := r.nem.Setup(ctx); err != nil {
		return fmt.Errorf("nemesis setup: %w", err)
	}
	r.nemReady = true
	return nil
}

func (r *run) teardown(ctx context.Context) error {
	var errs []error

	if r.nemReady {
		if err := r.nem.Teardown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("nemesis teardown: %w", err))
		}
	}

	for i, c := range r.clients {
		if err := c.Teardown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("client %d teardown: %w", i, err))
		}
		if err := c.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("client %d close: %w", i, err))
		}
	}

	if r.t.DB != nil {
		if err := forEachNode(ctx, "teardown", r.t.Nodes, r.t.DB.Teardown); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (r *run) record(res *Result) store.Run {
	rec := store.Run{
		ID:        res.RunID,
		Name:      res.Name,
		Nodes:     r.t.Nodes,
		StartedAt: res.StartedAt,
		Duration:  res.Duration,
		History:   res.History,
	}
	if res.Check != nil {
		rec.Valid = &res.Check.Valid
		rec.Details = res.Check.Details
	}
	return rec
}

// forEachNode runs fn against every node concurrently and aggregates
// failures into a *NodeErrors.
func forEachNode(ctx context.Context, stage string, nodes []string, fn func(context.Context, string) error) error {
	type outcome struct {
		node string
		err  error
	}
	results := make(chan outcome, len(nodes))
	for _, node := range nodes {
		go func(node string) {
			results <- outcome{node: node, err: fn(ctx, node)}
		}(node)
	}

	failed := make(map[string]error)
	for range nodes {
		out := <-results
		if out.err != nil {
			failed[out.node] = out.err
		}
	}
	if len(failed) > 0 {
		return &NodeErrors{Stage: stage, Nodes: failed}
	}
	return nil
}
