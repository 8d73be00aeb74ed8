// Package txn models transaction micro-operations and provides the pure
// analysis functions checkers use to extract externally observable reads
// and writes from a transaction.
//
// A transaction is an ordered sequence of micro-ops applied in listed
// order. A read of key k not preceded by a write to k within the same
// transaction is an external read: its value came from outside the
// transaction. A key's last write is its external write: the only write
// an outside observer can ever see.
//
// All functions here are pure and idempotent; none allocates more than
// one pass over the input requires.
package txn

import (
	"fmt"

	"github.com/roach88/wrecker/internal/history"
)

// Micro-op function names.
const (
	// Read is a read micro-op. A nil value means the read is pending
	// (invoked but not yet filled in by the client).
	Read = "r"
	// Write is a write micro-op.
	Write = "w"
)

// Mop is one micro-operation within a transaction.
type Mop struct {
	F     string `json:"f"`
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// R builds a read micro-op. Pass nil for a pending read.
func R(key string, value any) Mop {
	return Mop{F: Read, Key: key, Value: value}
}

// W builds a write micro-op.
func W(key string, value any) Mop {
	return Mop{F: Write, Key: key, Value: value}
}

// String renders the mop in compact [f key value] form.
func (m Mop) String() string {
	return fmt.Sprintf("[%s %s %v]", m.F, m.Key, m.Value)
}

// Txn is an ordered sequence of micro-ops.
type Txn []Mop

// ExtReads returns, for every key whose first appearance in t is a read,
// the value of that first read. Keys first written inside t never appear:
// subsequent reads of those keys observe the transaction's own state.
//
// Runs in one pass over t.
func ExtReads(t Txn) map[string]any {
	reads := make(map[string]any)
	seen := make(map[string]bool, len(t))
	for _, mop := range t {
		if !seen[mop.Key] {
			seen[mop.Key] = true
			if mop.F == Read {
				reads[mop.Key] = mop.Value
			}
		}
	}
	return reads
}

// ExtWrites returns, for every key written at least once in t, the value
// of its final write: the only value visible outside the transaction.
// Reads never affect the result.
//
// Runs in one pass over t.
func ExtWrites(t Txn) map[string]any {
	writes := make(map[string]any)
	for _, mop := range t {
		if mop.F == Write {
			writes[mop.Key] = mop.Value
		}
	}
	return writes
}

// IntWriteMops returns, for every key written more than once in t, the
// write micro-ops that were overwritten within t before any external
// observer could see them: every write except the key's last. Keys with
// a single write are omitted entirely.
func IntWriteMops(t Txn) map[string][]Mop {
	all := make(map[string][]Mop)
	for _, mop := range t {
		if mop.F == Write {
			all[mop.Key] = append(all[mop.Key], mop)
		}
	}

	internal := make(map[string][]Mop)
	for key, writes := range all {
		if len(writes) > 1 {
			internal[key] = writes[:len(writes)-1]
		}
	}
	return internal
}

// ReduceMops folds f over every micro-op of every transactional operation
// in h: in history order, then in transaction order within each op.
// Non-transactional ops (values that are not a Txn) are skipped, so
// checkers can fold over mixed histories without pre-filtering.
func ReduceMops[A any](h history.History, init A, f func(acc A, op history.Op, mop Mop) A) A {
	acc := init
	for _, op := range h {
		t, ok := op.Value.(Txn)
		if !ok {
			continue
		}
		for _, mop := range t {
			acc = f(acc, op, mop)
		}
	}
	return acc
}
