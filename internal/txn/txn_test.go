package txn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/wrecker/internal/history"
)

func TestExtReads(t *testing.T) {
	tests := []struct {
		name string
		txn  Txn
		want map[string]any
	}{
		{
			name: "empty transaction",
			txn:  Txn{},
			want: map[string]any{},
		},
		{
			name: "read after write to same key is internal",
			txn:  Txn{W("y", 1), R("x", 2), W("x", 3), R("x", 3)},
			want: map[string]any{"x": 2},
		},
		{
			name: "write shadows later read",
			txn:  Txn{W("x", 1), R("x", 1)},
			want: map[string]any{},
		},
		{
			name: "only reads",
			txn:  Txn{R("a", 1), R("b", 2), R("a", 9)},
			want: map[string]any{"a": 1, "b": 2},
		},
		{
			name: "pending read keeps nil value",
			txn:  Txn{R("x", nil)},
			want: map[string]any{"x": nil},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtReads(tt.txn))
			// Pure: same input, same output.
			assert.Equal(t, tt.want, ExtReads(tt.txn))
		})
	}
}

func TestExtWrites(t *testing.T) {
	tests := []struct {
		name string
		txn  Txn
		want map[string]any
	}{
		{
			name: "empty transaction",
			txn:  Txn{},
			want: map[string]any{},
		},
		{
			name: "final write per key wins",
			txn:  Txn{W("x", 1), R("y", 0), W("y", 1), W("y", 2)},
			want: map[string]any{"x": 1, "y": 2},
		},
		{
			name: "only reads yields empty",
			txn:  Txn{R("x", 1), R("y", 2)},
			want: map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtWrites(tt.txn))
		})
	}
}

func TestIntWriteMops(t *testing.T) {
	tests := []struct {
		name string
		txn  Txn
		want map[string][]Mop
	}{
		{
			name: "empty transaction",
			txn:  Txn{},
			want: map[string][]Mop{},
		},
		{
			name: "single write omitted",
			txn:  Txn{W("x", 1)},
			want: map[string][]Mop{},
		},
		{
			name: "all writes but the last",
			txn:  Txn{W("x", 1), W("x", 2), W("x", 3)},
			want: map[string][]Mop{"x": {W("x", 1), W("x", 2)}},
		},
		{
			name: "interleaved reads ignored",
			txn:  Txn{W("x", 1), R("x", 1), W("x", 2), W("y", 7)},
			want: map[string][]Mop{"x": {W("x", 1)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IntWriteMops(tt.txn))
		})
	}
}

func TestReduceMops(t *testing.T) {
	h := history.History{
		{Process: 0, Type: history.OK, F: "txn", Value: Txn{W("x", 1), R("y", 0)}, Time: time.Millisecond},
		{Process: 1, Type: history.OK, F: "read", Value: 42, Time: 2 * time.Millisecond},
		{Process: 1, Type: history.OK, F: "txn", Value: Txn{W("x", 2)}, Time: 3 * time.Millisecond},
	}

	type step struct {
		process int
		mop     Mop
	}
	got := ReduceMops(h, []step(nil), func(acc []step, op history.Op, mop Mop) []step {
		return append(acc, step{op.Process, mop})
	})

	// History order, then intra-transaction order; non-txn ops skipped.
	assert.Equal(t, []step{
		{0, W("x", 1)},
		{0, R("y", 0)},
		{1, W("x", 2)},
	}, got)
}

func TestReduceMops_BuildsPerKeyIndex(t *testing.T) {
	h := history.History{
		{Process: 0, Type: history.OK, F: "txn", Value: Txn{W("x", 1), W("y", 1)}},
		{Process: 1, Type: history.OK, F: "txn", Value: Txn{R("x", 1), W("x", 2)}},
	}

	writes := ReduceMops(h, map[string][]any{}, func(acc map[string][]any, _ history.Op, mop Mop) map[string][]any {
		if mop.F == Write {
			acc[mop.Key] = append(acc[mop.Key], mop.Value)
		}
		return acc
	})

	assert.Equal(t, map[string][]any{
		"x": {1, 2},
		"y": {1},
	}, writes)
}
