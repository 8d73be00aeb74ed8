package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/wrecker/internal/client"
	"github.com/roach88/wrecker/internal/gen"
	"github.com/roach88/wrecker/internal/history"
)

// scheduler is the single point of arbitration for the generator tree.
// Generators are not individually thread-safe; every Next call funnels
// through one mutex, and no lock is held while a process waits out a
// pending result.
type scheduler struct {
	mu    sync.Mutex
	gen   gen.Generator
	now   func() time.Duration
	procs []int
}

func (s *scheduler) next(process int) (history.Op, gen.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen.Next(gen.Context{Process: process, Now: s.now(), Procs: s.procs})
}

func (s *scheduler) elapsed() time.Duration {
	return s.now()
}

// execute runs the worker and nemesis goroutines to generator
// exhaustion (or context cancellation) and waits for them all.
func (r *run) execute(ctx context.Context) {
	if r.t.Watchdog != nil {
		wctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go r.t.Watchdog(wctx)
	}

	var wg sync.WaitGroup
	for i, c := range r.clients {
		wg.Add(1)
		go func(process int, c client.Client) {
			defer wg.Done()
			r.worker(ctx, process, c)
		}(i, c)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.nemesisLoop(ctx)
	}()
	wg.Wait()
}

// worker is the loop for one process slot: pull an invocation, record
// it, run it against the client, record the completion. One op in
// flight at a time, by construction.
func (r *run) worker(ctx context.Context, process int, c client.Client) {
	for {
		op, st := r.sched.next(process)
		switch st {
		case gen.StatusExhausted:
			r.log.Debug("worker done", "process", process)
			return
		case gen.StatusPending:
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.poll):
			}
		case gen.StatusOp:
			op.Time = r.sched.elapsed()
			inv := r.hlog.Append(op)
			r.t.Metrics.RecordOp(inv)

			res := c.Invoke(ctx, inv)
			r.complete(inv, res)
		}
	}
}

// nemesisLoop is the worker loop for the fault actor. A nemesis error
// does not abort the run: the fault may or may not have landed, which
// is exactly what an info completion means.
func (r *run) nemesisLoop(ctx context.Context) {
	for {
		op, st := r.sched.next(history.Nemesis)
		switch st {
		case gen.StatusExhausted:
			r.log.Debug("nemesis done")
			return
		case gen.StatusPending:
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.poll):
			}
		case gen.StatusOp:
			op.Time = r.sched.elapsed()
			inv := r.hlog.Append(op)
			r.t.Metrics.RecordOp(inv)
			r.log.Info("injecting fault", "f", inv.F)

			res, err := r.nem.Invoke(ctx, inv)
			if err != nil {
				r.log.Error("nemesis invocation failed", "f", inv.F, "error", err)
				res = inv.WithType(history.Info)
				res.Error = err.Error()
			}
			r.complete(inv, res)
		}
	}
}

// complete records a terminal op for inv, coercing anything that is not
// ok/fail/info: an implementation that returns a non-terminal type has
// told us nothing, and "nothing known" is info.
func (r *run) complete(inv, res history.Op) {
	res.Process = inv.Process
	res.F = inv.F
	if !res.Terminal() {
		r.log.Warn("non-terminal completion coerced to info",
			"process", inv.Process, "f", inv.F, "type", res.Type)
		if res.Error == "" {
			res.Error = fmt.Sprintf("non-terminal completion type %q", res.Type)
		}
		res.Type = history.Info
	}
	res.Time = r.sched.elapsed()
	out := r.hlog.Append(res)
	r.t.Metrics.RecordOp(out)
}
