package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/wrecker/internal/client"
	"github.com/roach88/wrecker/internal/history"
	"github.com/roach88/wrecker/internal/txn"
)

// MemStore is a shared in-memory keyed register: the "system under test"
// behind MemClient. All clients opened from one prototype share it.
type MemStore struct {
	mu   sync.Mutex
	data map[string]int64
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string]int64)}
}

// Get returns the register value and whether it was ever written.
func (s *MemStore) Get(key string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

// Set writes the register.
func (s *MemStore) Set(key string, v int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = v
}

// MemClient is an in-process client over a MemStore. It understands the
// harness's register vocabulary:
//
//	read:  value ["k", nil]        → ok with ["k", v] (nil if unwritten)
//	write: value ["k", v]          → ok
//	cas:   value ["k", old, new]   → ok if swapped, fail otherwise
//	txn:   value txn.Txn           → ok with reads filled in, applied atomically
//
// The optional Outcome hook lets tests script fail/info completions: a
// non-nil return short-circuits the real execution.
type MemClient struct {
	// Outcome, when set, may override any invocation's result.
	Outcome func(op history.Op) *history.Op

	store *MemStore
	node  string
}

// NewMemClient builds a prototype client over a fresh store.
func NewMemClient() *MemClient {
	return &MemClient{store: NewMemStore()}
}

// Store exposes the backing store for test assertions.
func (c *MemClient) Store() *MemStore {
	return c.store
}

// Open implements client.Client.
func (c *MemClient) Open(ctx context.Context, node string) (client.Client, error) {
	return &MemClient{store: c.store, node: node, Outcome: c.Outcome}, nil
}

// Setup implements client.Client.
func (c *MemClient) Setup(ctx context.Context) error { return nil }

// Invoke implements client.Client.
func (c *MemClient) Invoke(ctx context.Context, op history.Op) history.Op {
	if c.Outcome != nil {
		if out := c.Outcome(op); out != nil {
			return *out
		}
	}

	switch op.F {
	case "read":
		key, _, err := kv2(op.Value)
		if err != nil {
			return failOp(op, err)
		}
		if v, ok := c.store.Get(key); ok {
			return op.WithType(history.OK).WithValue([]any{key, v})
		}
		return op.WithType(history.OK).WithValue([]any{key, nil})

	case "write":
		key, v, err := kv2(op.Value)
		if err != nil {
			return failOp(op, err)
		}
		c.store.Set(key, v)
		return op.WithType(history.OK)

	case "cas":
		key, old, newV, err := kv3(op.Value)
		if err != nil {
			return failOp(op, err)
		}
		c.store.mu.Lock()
		cur, ok := c.store.data[key]
		if ok && cur == old {
			c.store.data[key] = newV
			c.store.mu.Unlock()
			return op.WithType(history.OK)
		}
		c.store.mu.Unlock()
		return failOp(op, fmt.Errorf("cas of %s: expected %d", key, old))

	case "txn":
		t, ok := op.Value.(txn.Txn)
		if !ok {
			return failOp(op, fmt.Errorf("txn op carries %T", op.Value))
		}
		return op.WithType(history.OK).WithValue(c.applyTxn(t))

	default:
		return failOp(op, fmt.Errorf("unknown f %q", op.F))
	}
}

// Teardown implements client.Client.
func (c *MemClient) Teardown(ctx context.Context) error { return nil }

// Close implements client.Client.
func (c *MemClient) Close(ctx context.Context) error { return nil }

// applyTxn executes all micro-ops atomically, in listed order.
func (c *MemClient) applyTxn(t txn.Txn) txn.Txn {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	out := make(txn.Txn, len(t))
	for i, mop := range t {
		switch mop.F {
		case txn.Read:
			if v, ok := c.store.data[mop.Key]; ok {
				out[i] = txn.R(mop.Key, v)
			} else {
				out[i] = txn.R(mop.Key, nil)
			}
		case txn.Write:
			c.store.data[mop.Key] = toI64(mop.Value)
			out[i] = mop
		}
	}
	return out
}

func failOp(op history.Op, err error) history.Op {
	out := op.WithType(history.Fail)
	out.Error = err.Error()
	return out
}

func kv2(v any) (string, int64, error) {
	parts, ok := v.([]any)
	if !ok || len(parts) < 2 {
		return "", 0, fmt.Errorf("expected [key value], got %v", v)
	}
	key, ok := parts[0].(string)
	if !ok {
		return "", 0, fmt.Errorf("non-string key %v", parts[0])
	}
	if parts[1] == nil {
		return key, 0, nil
	}
	return key, toI64(parts[1]), nil
}

func kv3(v any) (string, int64, int64, error) {
	parts, ok := v.([]any)
	if !ok || len(parts) != 3 {
		return "", 0, 0, fmt.Errorf("expected [key old new], got %v", v)
	}
	key, ok := parts[0].(string)
	if !ok {
		return "", 0, 0, fmt.Errorf("non-string key %v", parts[0])
	}
	return key, toI64(parts[1]), toI64(parts[2]), nil
}

func toI64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}
