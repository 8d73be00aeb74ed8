// Package checker defines the boundary between the harness and
// consistency analysis. The harness hands a completed history to a
// Checker; anything deeper than the built-in validity checks lives in
// external analyzers.
package checker

import (
	"context"
	"fmt"

	"github.com/roach88/wrecker/internal/history"
	"github.com/roach88/wrecker/internal/txn"
)

// TestInfo carries the run parameters a checker may want to know about.
type TestInfo struct {
	Name  string
	Nodes []string
}

// Result is a checker verdict. Details carries checker-specific
// evidence (counts, violating op indexes) and ends up in the run
// artifact next to the history.
type Result struct {
	Valid   bool           `json:"valid"`
	Details map[string]any `json:"details,omitempty"`
}

// Checker analyzes a completed history. Check returns an error only
// when the analysis itself could not run; a consistency violation is a
// Result with Valid false, not an error.
type Checker interface {
	Check(ctx context.Context, info TestInfo, h history.History) (Result, error)
}

// ProcessDiscipline verifies the structural invariant every other
// checker depends on: each process strictly alternates invocation and
// completion, starting with an invocation. A history that fails this
// check was corrupted by the harness itself and no consistency verdict
// over it means anything.
type ProcessDiscipline struct{}

// Check implements Checker.
func (ProcessDiscipline) Check(ctx context.Context, info TestInfo, h history.History) (Result, error) {
	outstanding := make(map[int]bool)
	var violations []string

	for _, op := range h {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		switch {
		case op.Type == history.Invoke:
			if outstanding[op.Process] {
				violations = append(violations, fmt.Sprintf(
					"op %d: process %d invoked with an operation outstanding", op.Index, op.Process))
			}
			outstanding[op.Process] = true
		case op.Terminal():
			if !outstanding[op.Process] {
				violations = append(violations, fmt.Sprintf(
					"op %d: process %d completed with nothing outstanding", op.Index, op.Process))
			}
			outstanding[op.Process] = false
		default:
			violations = append(violations, fmt.Sprintf(
				"op %d: unknown type %q", op.Index, op.Type))
		}
	}

	details := map[string]any{
		"ops":       len(h),
		"processes": len(outstanding),
	}
	if len(violations) > 0 {
		details["violations"] = violations
	}
	return Result{Valid: len(violations) == 0, Details: details}, nil
}

// KeyIndex maps each key to the op indexes that externally read or
// externally wrote it, in history order. Downstream checkers use it to
// find, for a given key, which transactions observed it and which
// could have changed it.
type KeyIndex struct {
	Reads  map[string][]int64
	Writes map[string][]int64
}

type keyIndexAcc struct {
	idx     *KeyIndex
	cur     int64
	seen    map[string]bool
	pending map[string]int64 // last write per key within the current txn
}

func (a *keyIndexAcc) flush() {
	for key, opIdx := range a.pending {
		a.idx.Writes[key] = append(a.idx.Writes[key], opIdx)
	}
	clear(a.pending)
	clear(a.seen)
}

// NewKeyIndex folds over the ok transactions of h. A key's external
// read is its first appearance in a txn when that appearance is a
// read; its external write is the last write the txn makes to it.
func NewKeyIndex(h history.History) *KeyIndex {
	acc := &keyIndexAcc{
		idx:     &KeyIndex{Reads: make(map[string][]int64), Writes: make(map[string][]int64)},
		cur:     -1,
		seen:    make(map[string]bool),
		pending: make(map[string]int64),
	}
	acc = txn.ReduceMops(h.Oks(), acc, func(a *keyIndexAcc, op history.Op, m txn.Mop) *keyIndexAcc {
		if op.Index != a.cur {
			a.flush()
			a.cur = op.Index
		}
		if !a.seen[m.Key] && m.F == txn.Read {
			a.idx.Reads[m.Key] = append(a.idx.Reads[m.Key], op.Index)
		}
		a.seen[m.Key] = true
		if m.F == txn.Write {
			a.pending[m.Key] = op.Index
		}
		return a
	})
	acc.flush()
	return acc.idx
}
