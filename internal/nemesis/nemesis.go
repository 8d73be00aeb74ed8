// Package nemesis implements the fault-injection actor: state machines
// that introduce and heal faults on the cluster in response to nemesis
// operations drawn from the generator.
//
// Every fault follows the same shape: quiescent → active → quiescent,
// driven by "start" and "stop" operations. Each state machine owns its
// state exclusively (which nodes are killed, which partition is active,
// which clocks are skewed) and mutates it only inside Invoke, so the
// single nemesis goroutine is the only writer.
//
// Faults are partly nondeterministic (random node selection), so every
// invocation returns an operation recording what actually happened; the
// resulting history is self-describing for later analysis.
package nemesis

import (
	"context"

	"github.com/roach88/wrecker/internal/history"
)

// Start and Stop are the leaf operation vocabulary. Composed nemeses
// prefix them with a fault discriminator, e.g. "partition:start".
const (
	Start = "start"
	Stop  = "stop"
)

// Nemesis is the fault actor capability. Setup prepares (and cleans)
// fault state before the run; Invoke applies one nemesis operation and
// returns an op describing the outcome; Teardown heals everything
// unconditionally after the run.
type Nemesis interface {
	Setup(ctx context.Context) error
	Invoke(ctx context.Context, op history.Op) (history.Op, error)
	Teardown(ctx context.Context) error
}

// Noop is the nemesis used when a test injects no faults. Every
// invocation completes as an info no-op.
type Noop struct{}

func (Noop) Setup(ctx context.Context) error { return nil }

func (Noop) Invoke(ctx context.Context, op history.Op) (history.Op, error) {
	return op.WithType(history.Info).WithValue("noop"), nil
}

func (Noop) Teardown(ctx context.Context) error { return nil }

// info marks a nemesis op complete with the given result value.
func info(op history.Op, value any) history.Op {
	return op.WithType(history.Info).WithValue(value)
}

// failed marks a nemesis op complete with an error attached.
func failed(op history.Op, err error) history.Op {
	out := op.WithType(history.Info)
	out.Error = err.Error()
	return out
}
