package gen

import (
	"time"

	"github.com/roach88/wrecker/internal/history"
)

// Status is the outcome of one Next call.
type Status int

const (
	// StatusOp means an operation was produced for ctx.Process.
	StatusOp Status = iota
	// StatusPending means no operation yet; the process should poll again.
	StatusPending
	// StatusExhausted means the generator has no more work for this
	// process. Terminal for that process within the current scope.
	StatusExhausted
)

func (s Status) String() string {
	switch s {
	case StatusOp:
		return "op"
	case StatusPending:
		return "pending"
	case StatusExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Context carries the per-call scheduling state a generator may consult.
// The scheduler constructs a fresh Context for every Next call.
type Context struct {
	// Process is the logical process polling for work: a worker slot id,
	// or history.Nemesis.
	Process int

	// Now is monotonic elapsed time since the start of the run.
	Now time.Duration

	// Procs lists every process drawing from this generator, including
	// the nemesis. Phases uses it to size its barrier; routing
	// combinators narrow it for their subtree.
	Procs []int
}

// Generator produces the operation stream. See the package documentation
// for the Next protocol and the concurrency contract.
type Generator interface {
	Next(ctx Context) (history.Op, Status)
}

// Invoke builds an invocation op with process unassigned; generators
// stamp the polling process at materialization time.
func Invoke(f string, value any) history.Op {
	return history.Op{Type: history.Invoke, F: f, Value: value}
}

// stamp fills in the materialized op's process and, if unset, its type.
func stamp(op history.Op, ctx Context) history.Op {
	op.Process = ctx.Process
	if op.Type == "" {
		op.Type = history.Invoke
	}
	return op
}

// Ops draws the given operations strictly in order, one per call,
// regardless of which process asks. Exhausted when the list runs out.
type Ops struct {
	ops []history.Op
	i   int
}

// NewOps builds a strict-sequence generator.
func NewOps(ops ...history.Op) *Ops {
	return &Ops{ops: ops}
}

func (g *Ops) Next(ctx Context) (history.Op, Status) {
	if g.i >= len(g.ops) {
		return history.Op{}, StatusExhausted
	}
	op := g.ops[g.i]
	g.i++
	return stamp(op, ctx), StatusOp
}

// Cycle repeats the given operations forever. Bound it with TimeLimit or
// Limit; on its own it never exhausts.
type Cycle struct {
	ops []history.Op
	i   int
}

// NewCycle builds a repeating-sequence generator.
func NewCycle(ops ...history.Op) *Cycle {
	return &Cycle{ops: ops}
}

func (g *Cycle) Next(ctx Context) (history.Op, Status) {
	if len(g.ops) == 0 {
		return history.Op{}, StatusExhausted
	}
	op := g.ops[g.i]
	g.i = (g.i + 1) % len(g.ops)
	return stamp(op, ctx), StatusOp
}

// Fn adapts a function into a generator, for unbounded random workloads.
// Returning nil signals exhaustion. A Fn cannot express pending.
type Fn func(ctx Context) *history.Op

func (f Fn) Next(ctx Context) (history.Op, Status) {
	op := f(ctx)
	if op == nil {
		return history.Op{}, StatusExhausted
	}
	return stamp(*op, ctx), StatusOp
}

// Limit forwards at most n operations from the inner generator, then
// reports exhausted. Pending results do not count against the limit.
type Limit struct {
	n     int
	inner Generator
}

// NewLimit caps the inner generator at n operations.
func NewLimit(n int, inner Generator) *Limit {
	return &Limit{n: n, inner: inner}
}

func (g *Limit) Next(ctx Context) (history.Op, Status) {
	if g.n <= 0 {
		return history.Op{}, StatusExhausted
	}
	op, st := g.inner.Next(ctx)
	if st == StatusOp {
		g.n--
	}
	return op, st
}
