package db

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultPollInterval is how often the restart loop probes a node.
const DefaultPollInterval = time.Second

// DefaultReadyDeadline bounds how long the restart loop keeps trying
// before giving up with a ReadyTimeoutError.
const DefaultReadyDeadline = 300 * time.Second

// Restarter wraps a Supervisable with recovery behavior: a restart loop
// that polls until ready (restarting on crash), bookkeeping that tells
// nemesis-initiated kills apart from unexpected crashes, and a watchdog
// that restarts the latter.
//
// Restarter is safe for concurrent use: the nemesis goroutine and the
// watchdog may both ask for the same node at once, and exactly one
// restart loop runs per node; late callers join the in-flight wait.
type Restarter struct {
	db        Supervisable
	nodes     []string
	interval  time.Duration
	deadline  time.Duration
	log       *slog.Logger
	onRestart func(node string)

	mu     sync.Mutex
	down   map[string]bool     // nodes killed on purpose; watchdog ignores them
	waits  map[string]*readyWait
}

// readyWait is one in-flight restart loop; joiners block on done.
type readyWait struct {
	done chan struct{}
	err  error
}

// RestarterOption configures a Restarter.
type RestarterOption func(*Restarter)

// WithPollInterval overrides the probe interval.
func WithPollInterval(d time.Duration) RestarterOption {
	return func(r *Restarter) { r.interval = d }
}

// WithReadyDeadline overrides the restart loop deadline.
func WithReadyDeadline(d time.Duration) RestarterOption {
	return func(r *Restarter) { r.deadline = d }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) RestarterOption {
	return func(r *Restarter) { r.log = log }
}

// WithRestartHook registers a callback invoked after every start the
// Restarter issues, whether explicit, recovery, or watchdog.
func WithRestartHook(fn func(node string)) RestarterOption {
	return func(r *Restarter) { r.onRestart = fn }
}

// NewRestarter supervises db across the given nodes.
func NewRestarter(db Supervisable, nodes []string, opts ...RestarterOption) *Restarter {
	r := &Restarter{
		db:       db,
		nodes:    nodes,
		interval: DefaultPollInterval,
		deadline: DefaultReadyDeadline,
		log:      slog.Default(),
		down:     make(map[string]bool),
		waits:    make(map[string]*readyWait),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Setup forwards to the wrapped DB.
func (r *Restarter) Setup(ctx context.Context, node string) error {
	return r.db.Setup(ctx, node)
}

// Teardown forwards to the wrapped DB.
func (r *Restarter) Teardown(ctx context.Context, node string) error {
	return r.db.Teardown(ctx, node)
}

// Kill forcibly stops the node and marks it intentionally down so the
// watchdog leaves it alone until Start.
func (r *Restarter) Kill(ctx context.Context, node string) error {
	r.mu.Lock()
	r.down[node] = true
	r.mu.Unlock()

	if err := r.db.Kill(ctx, node); err != nil {
		return fmt.Errorf("kill %s: %w", node, err)
	}
	r.log.Debug("node killed", "node", node)
	return nil
}

// Start clears the intentionally-down mark, starts the process, and
// blocks until the node is ready (or the restart loop gives up).
func (r *Restarter) Start(ctx context.Context, node string) error {
	r.mu.Lock()
	delete(r.down, node)
	r.mu.Unlock()

	if err := r.start(ctx, node); err != nil {
		return &StartError{Node: node, Err: err}
	}
	return r.WaitReady(ctx, node)
}

// start issues the process start and fires the restart hook.
func (r *Restarter) start(ctx context.Context, node string) error {
	if err := r.db.Start(ctx, node); err != nil {
		return err
	}
	if r.onRestart != nil {
		r.onRestart(node)
	}
	return nil
}

// WaitReady blocks until the node reports ready, restarting it whenever
// a probe reports crashed. Polls at the configured interval and fails
// with *ReadyTimeoutError after the configured deadline, or with
// *StartError if a restart attempt itself fails.
//
// Reentrant-safe: concurrent callers for the same node share a single
// loop rather than triggering redundant restarts.
func (r *Restarter) WaitReady(ctx context.Context, node string) error {
	r.mu.Lock()
	if w, ok := r.waits[node]; ok {
		r.mu.Unlock()
		select {
		case <-w.done:
			return w.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	w := &readyWait{done: make(chan struct{})}
	r.waits[node] = w
	r.mu.Unlock()

	w.err = r.waitLoop(ctx, node)

	r.mu.Lock()
	delete(r.waits, node)
	r.mu.Unlock()
	close(w.done)
	return w.err
}

func (r *Restarter) waitLoop(ctx context.Context, node string) error {
	start := time.Now()
	last := StatusStarting

	for {
		if waited := time.Since(start); waited >= r.deadline {
			return &ReadyTimeoutError{Node: node, Waited: waited, Last: last}
		}

		status, err := r.db.Status(ctx, node)
		if err != nil {
			// Probe failures are transient by assumption; the deadline
			// bounds how long we keep believing that.
			r.log.Debug("status probe failed", "node", node, "error", err)
		} else {
			last = status
			switch status {
			case StatusReady:
				r.log.Debug("node ready", "node", node, "waited", time.Since(start))
				return nil
			case StatusCrashed:
				r.log.Info("node crashed during wait, restarting", "node", node)
				if err := r.start(ctx, node); err != nil {
					return &StartError{Node: node, Err: err}
				}
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.interval):
		}
	}
}

// Watchdog polls every node at the configured interval and restarts any
// that crashed unexpectedly, that is, not via Kill. Blocks until the
// context is cancelled; run it in its own goroutine.
func (r *Restarter) Watchdog(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.interval):
		}

		for _, node := range r.nodes {
			r.mu.Lock()
			skip := r.down[node]
			r.mu.Unlock()
			if skip {
				continue
			}

			status, err := r.db.Status(ctx, node)
			if err != nil || status != StatusCrashed {
				continue
			}

			r.log.Warn("unexpected crash detected, restarting", "node", node)
			if err := r.start(ctx, node); err != nil {
				r.log.Error("restart failed", "node", node, "error", err)
				continue
			}
			if err := r.WaitReady(ctx, node); err != nil {
				r.log.Error("node did not recover", "node", node, "error", err)
			}
		}
	}
}
