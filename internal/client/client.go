// Package client defines the capability the harness needs from a client
// of the system under test. Implementations own the wire protocol (SQL,
// RESP, gRPC); the harness only supplies invocations and consumes the
// returned terminal operations.
package client

import (
	"context"

	"github.com/roach88/wrecker/internal/history"
)

// Client is one logical connection to the system under test.
//
// Open returns a client bound to a node; the receiver acts as a factory
// so one configured prototype can fan out across worker slots. Invoke
// must return the op with Type set to ok, fail, or info:
//
//   - ok:   the operation definitely took effect
//   - fail: the operation definitely did not take effect
//   - info: the effect is unknown (timeout, connection reset)
//
// Invoke never returns an error: indeterminacy is a result, not an
// exception. The runner coerces any non-terminal return to info rather
// than trusting implementations to get this right.
type Client interface {
	Open(ctx context.Context, node string) (Client, error)
	Setup(ctx context.Context) error
	Invoke(ctx context.Context, op history.Op) history.Op
	Teardown(ctx context.Context) error
	Close(ctx context.Context) error
}
