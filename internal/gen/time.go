package gen

import (
	"math/rand"
	"time"

	"github.com/roach88/wrecker/internal/history"
)

// TimeLimit forwards to the inner generator until d has elapsed since the
// generator's first consumption, then reports exhausted.
//
// The cutoff gates invocations only: because the protocol is pull-based,
// an operation already handed out runs to its terminal state; its
// completion may be observed after the deadline. Completions never pass
// through the generator, so nothing here tracks them; an info result
// frees its process exactly like ok or fail.
type TimeLimit struct {
	d       time.Duration
	inner   Generator
	started bool
	start   time.Duration
}

// NewTimeLimit bounds the inner generator to duration d of consumption.
func NewTimeLimit(d time.Duration, inner Generator) *TimeLimit {
	return &TimeLimit{d: d, inner: inner}
}

func (g *TimeLimit) Next(ctx Context) (history.Op, Status) {
	if !g.started {
		g.started = true
		g.start = ctx.Now
	}
	if ctx.Now-g.start >= g.d {
		return history.Op{}, StatusExhausted
	}
	return g.inner.Next(ctx)
}

// Stagger paces each process independently: after a process draws an
// operation, it is held pending for a jittered interval drawn uniformly
// from [0, 2*dt), for a long-run mean rate of one op per dt per process.
// Other processes are unaffected; no lock is held while a process waits.
type Stagger struct {
	dt    time.Duration
	inner Generator
	rng   *rand.Rand
	next  map[int]time.Duration
}

// NewStagger paces the inner generator at a mean interval dt per process.
func NewStagger(seed int64, dt time.Duration, inner Generator) *Stagger {
	return &Stagger{
		dt:    dt,
		inner: inner,
		rng:   rand.New(rand.NewSource(seed)),
		next:  make(map[int]time.Duration),
	}
}

func (g *Stagger) Next(ctx Context) (history.Op, Status) {
	if at, ok := g.next[ctx.Process]; ok && ctx.Now < at {
		return history.Op{}, StatusPending
	}
	op, st := g.inner.Next(ctx)
	if st == StatusOp {
		g.next[ctx.Process] = ctx.Now + g.jitter()
	}
	return op, st
}

func (g *Stagger) jitter() time.Duration {
	if g.dt <= 0 {
		return 0
	}
	return time.Duration(g.rng.Int63n(int64(2 * g.dt)))
}

// Sleep yields no operations for duration d after its first poll, then
// exhausts. Used for recovery windows between phases.
type Sleep struct {
	d       time.Duration
	started bool
	start   time.Duration
}

// NewSleep builds a sleeping generator.
func NewSleep(d time.Duration) *Sleep {
	return &Sleep{d: d}
}

func (g *Sleep) Next(ctx Context) (history.Op, Status) {
	if !g.started {
		g.started = true
		g.start = ctx.Now
	}
	if ctx.Now-g.start < g.d {
		return history.Op{}, StatusPending
	}
	return history.Op{}, StatusExhausted
}
