// Package history defines the operation record and the append-only log
// every other part of the harness builds on.
//
// An Op is one client or nemesis action at one point in its lifecycle:
// an invocation, or exactly one terminal completion (ok, fail, or info).
// The runner enforces the single-outstanding-op-per-process discipline
// structurally, so a well-formed history strictly alternates
// invoke/terminal per process.
//
// The Log is the only mutable structure: a mutex-guarded append-only
// slice, contended by all worker and nemesis goroutines during a run.
// History() snapshots it into an immutable, time-ordered History once the
// runner declares the run complete. Checkers only ever see the snapshot,
// so there is no concurrent read/write window.
//
// Histories are ordered by observed completion/invocation time, not by
// invocation order: under concurrency, terminal events arrive out of
// invocation order, and consumers must not assume otherwise.
package history
