package history

import (
	"fmt"
	"time"
)

// Type is the lifecycle stage of an operation.
type Type string

const (
	// Invoke marks the start of an operation.
	Invoke Type = "invoke"
	// OK marks a completion that definitely took effect.
	OK Type = "ok"
	// Fail marks a completion that definitely did not take effect.
	Fail Type = "fail"
	// Info marks an indeterminate completion: the effect is unknown
	// (timeout, connection reset mid-request, nemesis action).
	Info Type = "info"
)

// Nemesis is the process id reserved for the fault-injection actor.
// Client worker slots use ids >= 0.
const Nemesis = -1

// Op is a single operation record.
//
// Value is operation-specific: a register value for reads/writes, a
// txn.Txn for transactions, fault targets for nemesis ops. Error carries
// a short diagnostic for fail/info completions.
type Op struct {
	// Index is the position in the log, assigned by Log.Append.
	Index int64 `json:"index"`

	// Process identifies the logical actor: a worker slot id, or Nemesis.
	Process int `json:"process"`

	// Type is invoke, ok, fail, or info.
	Type Type `json:"type"`

	// F names the operation kind: "read", "write", "cas", "txn", or a
	// nemesis f such as "partition:start".
	F string `json:"f"`

	// Value is the operation payload. Nil is meaningful (pending read).
	Value any `json:"value,omitempty"`

	// Error describes why a completion failed or is indeterminate.
	Error string `json:"error,omitempty"`

	// Time is monotonic elapsed time since the start of the run.
	Time time.Duration `json:"time"`
}

// Terminal reports whether the op is a completion (ok, fail, or info).
func (o Op) Terminal() bool {
	return o.Type == OK || o.Type == Fail || o.Type == Info
}

// WithType returns a copy of the op with the given type.
func (o Op) WithType(t Type) Op {
	o.Type = t
	return o
}

// WithValue returns a copy of the op with the given value.
func (o Op) WithValue(v any) Op {
	o.Value = v
	return o
}

// String renders a compact one-line form for logs and test failures.
func (o Op) String() string {
	if o.Error != "" {
		return fmt.Sprintf("{%d %s %s %v (%s) @%s}", o.Process, o.Type, o.F, o.Value, o.Error, o.Time)
	}
	return fmt.Sprintf("{%d %s %s %v @%s}", o.Process, o.Type, o.F, o.Value, o.Time)
}

// Invocation builds an invoke op for a process. The caller stamps Time
// via Log.Append.
func Invocation(process int, f string, value any) Op {
	return Op{Process: process, Type: Invoke, F: f, Value: value}
}
