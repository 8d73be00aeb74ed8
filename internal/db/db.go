// Package db defines the capability interfaces the harness needs from a
// system under test, and the Restarter supervisor that adds
// crash-and-recover behavior on top of them.
//
// The harness never knows how these capabilities are implemented (SSH,
// local process, container). It only calls them.
package db

import (
	"context"
	"fmt"
	"time"
)

// DB is the minimal per-node lifecycle of a system under test. Setup and
// Teardown are called for every node; Teardown runs unconditionally,
// even when Setup failed.
type DB interface {
	Setup(ctx context.Context, node string) error
	Teardown(ctx context.Context, node string) error
}

// Killable is implemented by systems whose process can be stopped and
// restarted independently of full setup/teardown. The kill nemesis and
// the Restarter require it.
type Killable interface {
	Start(ctx context.Context, node string) error
	Kill(ctx context.Context, node string) error
}

// Status is a node's process state as seen by a Prober.
type Status int

const (
	// StatusStarting means the process is up but not yet serving.
	StatusStarting Status = iota
	// StatusReady means the process is serving.
	StatusReady
	// StatusCrashed means the process is gone or wedged.
	StatusCrashed
)

func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusReady:
		return "ready"
	case StatusCrashed:
		return "crashed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Prober reports a node's current process status.
type Prober interface {
	Status(ctx context.Context, node string) (Status, error)
}

// Primaries is implemented by systems with designated leader nodes.
type Primaries interface {
	Primaries(ctx context.Context, nodes []string) ([]string, error)
}

// LogFiles is implemented by systems that expose on-node log paths for
// post-run collection.
type LogFiles interface {
	LogFiles(node string) []string
}

// Supervisable is the capability set the Restarter supervises.
type Supervisable interface {
	DB
	Killable
	Prober
}

// ReadyTimeoutError reports that a node never reached ready within the
// restart loop's deadline. Distinct from StartError: the process was
// being started, it just never came up.
type ReadyTimeoutError struct {
	Node   string
	Waited time.Duration
	Last   Status
}

func (e *ReadyTimeoutError) Error() string {
	return fmt.Sprintf("node %s not ready after %s (last status: %s)", e.Node, e.Waited, e.Last)
}

// StartError reports that the process would not start at all.
type StartError struct {
	Node string
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("node %s would not start: %v", e.Node, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}
