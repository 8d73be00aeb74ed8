package history

import (
	"sort"
	"sync"
)

// Log is the append-only operation log for one run.
//
// Appends are serialized by a single mutex: every worker and the nemesis
// goroutine contend on it, but an append is a slice push, so the critical
// section is tiny. Reads happen only through History(), after the runner
// has stopped all writers.
type Log struct {
	mu   sync.Mutex
	ops  []Op
	next int64
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{ops: make([]Op, 0, 1024)}
}

// Append stamps the op with the next log index and records it.
// Returns the stamped op so callers can thread it through completions.
func (l *Log) Append(op Op) Op {
	l.mu.Lock()
	defer l.mu.Unlock()

	op.Index = l.next
	l.next++
	l.ops = append(l.ops, op)
	return op
}

// Len returns the number of recorded ops.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ops)
}

// History snapshots the log into an immutable History ordered by observed
// time (stable on log index for equal timestamps).
//
// Callers must not invoke Append concurrently with History; the runner
// only snapshots after all workers have exited.
func (l *Log) History() History {
	l.mu.Lock()
	ops := make([]Op, len(l.ops))
	copy(ops, l.ops)
	l.mu.Unlock()

	sort.SliceStable(ops, func(i, j int) bool {
		return ops[i].Time < ops[j].Time
	})
	return ops
}

// History is the complete, immutable, time-ordered log of a run.
type History []Op

// Filter returns the ops for which keep returns true, preserving order.
func (h History) Filter(keep func(Op) bool) History {
	out := make(History, 0, len(h))
	for _, op := range h {
		if keep(op) {
			out = append(out, op)
		}
	}
	return out
}

// ClientOps returns the history restricted to client processes.
func (h History) ClientOps() History {
	return h.Filter(func(op Op) bool { return op.Process != Nemesis })
}

// NemesisOps returns the history restricted to the nemesis process.
func (h History) NemesisOps() History {
	return h.Filter(func(op Op) bool { return op.Process == Nemesis })
}

// Oks returns only ok completions.
func (h History) Oks() History {
	return h.Filter(func(op Op) bool { return op.Type == OK })
}

// Invokes returns only invocations.
func (h History) Invokes() History {
	return h.Filter(func(op Op) bool { return op.Type == Invoke })
}
