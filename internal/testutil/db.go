package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/roach88/wrecker/internal/db"
)

// FakeDB is a scriptable in-memory system under test implementing
// db.Supervisable. It records every lifecycle call and lets tests drive
// node status by hand or via a StatusFn hook.
//
// Thread-safety: all methods are safe for concurrent use.
type FakeDB struct {
	// StatusFn, when set, answers Status probes. Otherwise the statuses
	// map is consulted, defaulting to ready.
	StatusFn func(node string) (db.Status, error)

	// SetupErr injects per-node setup failures.
	SetupErr map[string]error

	// StartErr injects per-node start failures.
	StartErr map[string]error

	mu       sync.Mutex
	statuses map[string]db.Status
	calls    []string
	starts   map[string]*atomic.Int64
}

// NewFakeDB creates a FakeDB with every node ready.
func NewFakeDB() *FakeDB {
	return &FakeDB{
		statuses: make(map[string]db.Status),
		starts:   make(map[string]*atomic.Int64),
	}
}

func (f *FakeDB) record(call string, node string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call+" "+node)
}

// Setup implements db.DB.
func (f *FakeDB) Setup(ctx context.Context, node string) error {
	f.record("setup", node)
	if err := f.SetupErr[node]; err != nil {
		return err
	}
	return nil
}

// Teardown implements db.DB.
func (f *FakeDB) Teardown(ctx context.Context, node string) error {
	f.record("teardown", node)
	return nil
}

// Start implements db.Killable and flips the node to ready.
func (f *FakeDB) Start(ctx context.Context, node string) error {
	f.record("start", node)
	f.startCounter(node).Add(1)
	if err := f.StartErr[node]; err != nil {
		return err
	}
	f.SetStatus(node, db.StatusReady)
	return nil
}

// Kill implements db.Killable and flips the node to crashed.
func (f *FakeDB) Kill(ctx context.Context, node string) error {
	f.record("kill", node)
	f.SetStatus(node, db.StatusCrashed)
	return nil
}

// Status implements db.Prober.
func (f *FakeDB) Status(ctx context.Context, node string) (db.Status, error) {
	if f.StatusFn != nil {
		return f.StatusFn(node)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := f.statuses[node]; ok {
		return st, nil
	}
	return db.StatusReady, nil
}

// SetStatus sets the status the default probe reports for a node.
func (f *FakeDB) SetStatus(node string, st db.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[node] = st
}

// Calls returns the recorded lifecycle calls in order, as "verb node".
func (f *FakeDB) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns how many times the given call was recorded.
func (f *FakeDB) CallCount(verb, node string) int {
	want := fmt.Sprintf("%s %s", verb, node)
	n := 0
	for _, c := range f.Calls() {
		if c == want {
			n++
		}
	}
	return n
}

// StartCount returns how many times Start ran for a node.
func (f *FakeDB) StartCount(node string) int64 {
	return f.startCounter(node).Load()
}

func (f *FakeDB) startCounter(node string) *atomic.Int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.starts[node]
	if !ok {
		c = &atomic.Int64{}
		f.starts[node] = c
	}
	return c
}
