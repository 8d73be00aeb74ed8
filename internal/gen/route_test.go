package gen

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wrecker/internal/history"
)

func TestOnNemesis_RoutesExclusively(t *testing.T) {
	g := OnNemesis(NewCycle(Invoke("start", nil)))

	_, st := g.Next(ctxFor(0, 0))
	assert.Equal(t, StatusExhausted, st, "clients see exhausted")

	op, st := g.Next(ctxFor(history.Nemesis, 0))
	require.Equal(t, StatusOp, st)
	assert.Equal(t, history.Nemesis, op.Process)
}

func TestOnClients_RoutesExclusively(t *testing.T) {
	g := OnClients(NewCycle(Invoke("read", nil)))

	_, st := g.Next(ctxFor(history.Nemesis, 0))
	assert.Equal(t, StatusExhausted, st, "nemesis sees exhausted")

	op, st := g.Next(ctxFor(0, 0))
	require.Equal(t, StatusOp, st)
	assert.Equal(t, 0, op.Process)
}

// barrierProbe records the Procs each Next call observes.
type barrierProbe struct {
	procs [][]int
}

func (p *barrierProbe) Next(ctx Context) (history.Op, Status) {
	cp := make([]int, len(ctx.Procs))
	copy(cp, ctx.Procs)
	p.procs = append(p.procs, cp)
	return history.Op{}, StatusExhausted
}

func TestRoute_NarrowsProcs(t *testing.T) {
	probe := &barrierProbe{}
	g := OnNemesis(probe)

	g.Next(ctxFor(history.Nemesis, 0))
	require.Len(t, probe.procs, 1)
	assert.Equal(t, []int{history.Nemesis}, probe.procs[0],
		"nested barriers only wait for the routed processes")

	cprobe := &barrierProbe{}
	OnClients(cprobe).Next(ctxFor(1, 0))
	assert.Equal(t, []int{0, 1}, cprobe.procs[0])
}

func TestAny_CombinesIndependentStreams(t *testing.T) {
	g := NewAny(
		OnClients(NewLimit(2, NewCycle(Invoke("read", nil)))),
		OnNemesis(NewLimit(1, NewCycle(Invoke("start", nil)))),
	)

	// The nemesis polling first must not kill the client stream.
	op, st := g.Next(ctxFor(history.Nemesis, 0))
	require.Equal(t, StatusOp, st)
	assert.Equal(t, "start", op.F)

	op, st = g.Next(ctxFor(0, 0))
	require.Equal(t, StatusOp, st)
	assert.Equal(t, "read", op.F)

	_, st = g.Next(ctxFor(history.Nemesis, 0))
	assert.Equal(t, StatusExhausted, st, "nemesis stream drained independently")

	_, st = g.Next(ctxFor(1, 0))
	assert.Equal(t, StatusOp, st, "client stream still live")

	_, st = g.Next(ctxFor(1, 0))
	assert.Equal(t, StatusExhausted, st)
}

func TestAny_PendingWhenAnySourcePending(t *testing.T) {
	g := NewAny(NewSleep(time.Hour), NewOps())
	_, st := g.Next(ctxFor(0, 0))
	assert.Equal(t, StatusPending, st)
}

func TestPhases_BarrierHoldsUntilAllArrive(t *testing.T) {
	procs := []int{0, 1}
	g := NewPhases(
		NewOps(Invoke("a", nil)),
		NewOps(Invoke("b", nil)),
	)
	ctx := func(p int) Context { return Context{Process: p, Procs: procs} }

	// Process 0 draws the only op of phase 1.
	op, st := g.Next(ctx(0))
	require.Equal(t, StatusOp, st)
	assert.Equal(t, "a", op.F)

	// Process 0 exhausts phase 1 and waits at the barrier.
	_, st = g.Next(ctx(0))
	assert.Equal(t, StatusPending, st)
	assert.Equal(t, 0, g.Phase())

	// Still waiting: process 1 has not arrived.
	_, st = g.Next(ctx(0))
	assert.Equal(t, StatusPending, st)

	// Process 1 arrives; it is last, so the next phase opens for it
	// immediately.
	op, st = g.Next(ctx(1))
	require.Equal(t, StatusOp, st)
	assert.Equal(t, "b", op.F)
	assert.Equal(t, 1, g.Phase())

	// Process 0 now draws from phase 2 as well.
	_, st = g.Next(ctx(0))
	assert.Equal(t, StatusPending, st, "phase 2's op already taken; 0 waits at next barrier")
}

func TestPhases_ExhaustsAfterLastPhase(t *testing.T) {
	procs := []int{0}
	g := NewPhases(NewOps(Invoke("a", nil)))
	ctx := Context{Process: 0, Procs: procs}

	_, st := g.Next(ctx)
	require.Equal(t, StatusOp, st)
	_, st = g.Next(ctx)
	assert.Equal(t, StatusExhausted, st, "single process passes its own barrier immediately")
}

func TestPhases_SleepPhaseGatesEveryone(t *testing.T) {
	procs := []int{0, 1}
	g := NewPhases(
		NewSleep(time.Second),
		NewOps(Invoke("final", nil)),
	)
	mk := func(p int, now time.Duration) Context {
		return Context{Process: p, Now: now, Procs: procs}
	}

	_, st := g.Next(mk(0, 0))
	assert.Equal(t, StatusPending, st)
	_, st = g.Next(mk(1, 500*time.Millisecond))
	assert.Equal(t, StatusPending, st)

	// Sleep elapses: both processes exhaust it, last one through opens
	// the final phase.
	_, st = g.Next(mk(0, time.Second))
	assert.Equal(t, StatusPending, st, "first arrival waits for the second")
	op, st := g.Next(mk(1, time.Second))
	require.Equal(t, StatusOp, st)
	assert.Equal(t, "final", op.F)
}

func TestPhases_FullScheduleShape(t *testing.T) {
	// The canonical run shape: load+faults, heal, recover, final reads.
	procs := []int{0, 1, history.Nemesis}
	g := NewPhases(
		NewAny(
			OnClients(NewLimit(2, NewCycle(Invoke("read", nil)))),
			OnNemesis(NewOps(Invoke("kill:start", nil))),
		),
		OnNemesis(NewOps(Invoke("kill:stop", nil))),
		NewSleep(0),
		OnClients(NewOps(Invoke("read", nil), Invoke("read", nil))),
	)
	mk := func(p int, now time.Duration) Context {
		return Context{Process: p, Now: now, Procs: procs}
	}

	var seq []string
	poll := func(p int, now time.Duration) Status {
		op, st := g.Next(mk(p, now))
		if st == StatusOp {
			seq = append(seq, op.F)
		}
		return st
	}

	// Phase 1: clients draw two reads, nemesis draws the kill.
	require.Equal(t, StatusOp, poll(history.Nemesis, 0))
	require.Equal(t, StatusOp, poll(0, 0))
	require.Equal(t, StatusOp, poll(1, 0))
	// Everyone exhausts phase 1.
	require.Equal(t, StatusPending, poll(0, 1))
	require.Equal(t, StatusPending, poll(1, 1))
	// Nemesis is last in; phase 2 opens and it draws the heal.
	require.Equal(t, StatusOp, poll(history.Nemesis, 1))

	// Phase 2 ends when clients + nemesis all exhaust it.
	require.Equal(t, StatusPending, poll(history.Nemesis, 2))
	require.Equal(t, StatusPending, poll(0, 2))
	// Last arrival opens the zero-length sleep phase and immediately
	// queues at its barrier.
	require.Equal(t, StatusPending, poll(1, 2))
	require.Equal(t, StatusPending, poll(history.Nemesis, 3))

	// Phase 4: final client reads, once the last process clears the sleep.
	require.Equal(t, StatusOp, poll(0, 3))
	require.Equal(t, StatusOp, poll(1, 3))

	assert.Equal(t, []string{"kill:start", "read", "read", "kill:stop", "read", "read"}, seq)
}
