// Package gen is the operation-scheduling engine: a family of composable
// pull-based generators that produce the total operation stream consumed
// by the client workers and the nemesis.
//
// PROTOCOL:
//
// A Generator answers Next(ctx) with exactly one of:
//   - an operation for ctx.Process (StatusOp),
//   - "nothing yet, poll again" (StatusPending), or
//   - "no more work for this process" (StatusExhausted).
//
// Pending is how pacing (Stagger, Sleep) and barriers (Phases) suspend a
// process without blocking any other. Exhausted is a normal terminal
// signal, never an error. A generator asked on behalf of a process with
// no remaining work answers Exhausted for that process without affecting
// the others.
//
// CONCURRENCY:
//
// Generators are NOT individually thread-safe. The runner's scheduler is
// the single point of arbitration: it serializes every Next call behind
// one mutex and never holds that mutex while a process sleeps out a
// pending result. This keeps every combinator a plain struct with plain
// fields, and makes composed schedules deterministic under a fixed seed.
//
// COMPOSITION:
//
// Combinators wrap inner generators; composition is associative but
// order-sensitive where time is involved: TimeLimit(d, Stagger(dt, g))
// paces within a bounded window, while Stagger(dt, TimeLimit(d, g))
// paces the window itself. Phases sequences sub-generators with a
// barrier: every process in ctx.Procs must exhaust phase k before any
// process draws from phase k+1.
package gen
