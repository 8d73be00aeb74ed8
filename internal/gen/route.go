package gen

import (
	"github.com/roach88/wrecker/internal/history"
)

// route sends the inner generator's output exclusively to the nemesis or
// exclusively to client processes. The other side sees exhausted, so the
// two streams schedule independently while running concurrently.
//
// The routed subtree's Context.Procs is narrowed to the routed processes,
// so a Phases nested inside OnNemesis barriers only on the nemesis.
type route struct {
	inner   Generator
	nemesis bool
}

// OnNemesis routes the inner generator's output to the nemesis process.
func OnNemesis(inner Generator) Generator {
	return &route{inner: inner, nemesis: true}
}

// OnClients routes the inner generator's output to client processes.
func OnClients(inner Generator) Generator {
	return &route{inner: inner, nemesis: false}
}

func (g *route) Next(ctx Context) (history.Op, Status) {
	isNemesis := ctx.Process == history.Nemesis
	if isNemesis != g.nemesis {
		return history.Op{}, StatusExhausted
	}

	narrowed := make([]int, 0, len(ctx.Procs))
	for _, p := range ctx.Procs {
		if (p == history.Nemesis) == g.nemesis {
			narrowed = append(narrowed, p)
		}
	}
	ctx.Procs = narrowed
	return g.inner.Next(ctx)
}

// Any draws from several sources concurrently: each call returns the
// first available operation, rotating the starting source for fairness.
// Pending if any source is pending for this process; exhausted only when
// every source is.
//
// Exhaustion is never cached: with routed sources, "exhausted" is a
// per-process answer (a client polling OnNemesis hears exhausted while
// the nemesis still has work), so Any re-asks every source on every call.
type Any struct {
	sources []Generator
	rr      int
}

// NewAny combines sources into one concurrent stream.
func NewAny(sources ...Generator) *Any {
	return &Any{sources: sources}
}

func (g *Any) Next(ctx Context) (history.Op, Status) {
	n := len(g.sources)
	sawPending := false
	for k := 0; k < n; k++ {
		i := (g.rr + k) % n
		op, st := g.sources[i].Next(ctx)
		switch st {
		case StatusOp:
			g.rr = (i + 1) % n
			return op, StatusOp
		case StatusPending:
			sawPending = true
		}
	}
	if sawPending {
		return history.Op{}, StatusPending
	}
	return history.Op{}, StatusExhausted
}

// Phases runs its sub-generators strictly in order, separated by a
// barrier: a process that exhausts the current phase waits (pending)
// until every process in ctx.Procs has exhausted it, and only then does
// the next phase open for everyone at once. This is how "run load and
// faults for five minutes, then heal, then wait, then one final read" is
// expressed deterministically despite concurrent workers.
//
// A process only polls for new work after its previous operation reached
// a terminal state, so arrival at the barrier implies the process has
// nothing in flight.
type Phases struct {
	phases  []Generator
	idx     int
	arrived map[int]bool
}

// NewPhases sequences the given generators with barrier synchronization.
func NewPhases(phases ...Generator) *Phases {
	return &Phases{phases: phases, arrived: make(map[int]bool)}
}

func (g *Phases) Next(ctx Context) (history.Op, Status) {
	for {
		if g.idx >= len(g.phases) {
			return history.Op{}, StatusExhausted
		}

		// A process already at the barrier holds until the phase turns.
		if g.arrived[ctx.Process] {
			return history.Op{}, StatusPending
		}

		op, st := g.phases[g.idx].Next(ctx)
		switch st {
		case StatusOp:
			return op, StatusOp
		case StatusPending:
			return history.Op{}, StatusPending
		case StatusExhausted:
			g.arrived[ctx.Process] = true
			if !g.allArrived(ctx.Procs) {
				return history.Op{}, StatusPending
			}
			// Last process in: open the next phase for everyone.
			g.idx++
			g.arrived = make(map[int]bool)
		}
	}
}

func (g *Phases) allArrived(procs []int) bool {
	for _, p := range procs {
		if !g.arrived[p] {
			return false
		}
	}
	return true
}

// Phase returns the current phase index. For tests and diagnostics.
func (g *Phases) Phase() int {
	return g.idx
}
