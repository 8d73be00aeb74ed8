package checker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wrecker/internal/history"
	"github.com/roach88/wrecker/internal/txn"
)

func op(index int64, process int, typ history.Type, value any) history.Op {
	return history.Op{Index: index, Process: process, Type: typ, F: "txn", Value: value}
}

func TestProcessDiscipline_CleanHistory(t *testing.T) {
	h := history.History{
		op(0, 0, history.Invoke, nil),
		op(1, 1, history.Invoke, nil),
		op(2, 0, history.OK, nil),
		op(3, 1, history.Info, nil), // info is terminal too
		op(4, 1, history.Invoke, nil),
		op(5, 1, history.Fail, nil),
	}

	res, err := ProcessDiscipline{}.Check(context.Background(), TestInfo{Name: "clean"}, h)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, 6, res.Details["ops"])
	assert.Equal(t, 2, res.Details["processes"])
	assert.NotContains(t, res.Details, "violations")
}

func TestProcessDiscipline_DoubleInvoke(t *testing.T) {
	h := history.History{
		op(0, 0, history.Invoke, nil),
		op(1, 0, history.Invoke, nil),
	}

	res, err := ProcessDiscipline{}.Check(context.Background(), TestInfo{}, h)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	violations := res.Details["violations"].([]string)
	require.Len(t, violations, 1)
	assert.Contains(t, violations[0], "op 1")
}

func TestProcessDiscipline_OrphanCompletion(t *testing.T) {
	h := history.History{
		op(0, 2, history.OK, nil),
	}

	res, err := ProcessDiscipline{}.Check(context.Background(), TestInfo{}, h)
	require.NoError(t, err)
	assert.False(t, res.Valid)
}

func TestProcessDiscipline_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ProcessDiscipline{}.Check(ctx, TestInfo{}, history.History{op(0, 0, history.Invoke, nil)})
	assert.Error(t, err)
}

func TestKeyIndex_ExternalReadsAndWrites(t *testing.T) {
	h := history.History{
		// [[r x nil] [w y 1] [r y 1]]: ext read of x, ext write of y.
		op(0, 0, history.OK, txn.Txn{txn.R("x", nil), txn.W("y", 1), txn.R("y", 1)}),
		// [[w x 1] [w x 2] [r x 2]]: only the final write of x is external,
		// and x's first appearance is a write, so no external read.
		op(1, 1, history.OK, txn.Txn{txn.W("x", 1), txn.W("x", 2), txn.R("x", 2)}),
		// [[r y 1] [w y 3]]: ext read and ext write of y.
		op(2, 0, history.OK, txn.Txn{txn.R("y", 1), txn.W("y", 3)}),
		// Failed and info ops never index.
		op(3, 1, history.Fail, txn.Txn{txn.W("x", 9)}),
		op(4, 1, history.Invoke, txn.Txn{txn.W("z", 9)}),
	}

	idx := NewKeyIndex(h)

	assert.Equal(t, []int64{0}, idx.Reads["x"])
	assert.Equal(t, []int64{2}, idx.Reads["y"])
	assert.Equal(t, []int64{1}, idx.Writes["x"])
	assert.Equal(t, []int64{0, 2}, idx.Writes["y"])
	assert.Empty(t, idx.Writes["z"])
}

func TestKeyIndex_EmptyHistory(t *testing.T) {
	idx := NewKeyIndex(nil)
	assert.Empty(t, idx.Reads)
	assert.Empty(t, idx.Writes)
}
