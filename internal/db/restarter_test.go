package db_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wrecker/internal/db"
	"github.com/roach88/wrecker/internal/testutil"
)

var nodes = []string{"n1", "n2", "n3"}

func fastRestarter(fdb *testutil.FakeDB, opts ...db.RestarterOption) *db.Restarter {
	base := []db.RestarterOption{
		db.WithPollInterval(time.Millisecond),
		db.WithReadyDeadline(250 * time.Millisecond),
	}
	return db.NewRestarter(fdb, nodes, append(base, opts...)...)
}

func TestRestarter_WaitReadyImmediate(t *testing.T) {
	fdb := testutil.NewFakeDB()
	r := fastRestarter(fdb)

	require.NoError(t, r.WaitReady(context.Background(), "n1"))
	assert.Equal(t, int64(0), fdb.StartCount("n1"), "ready node needs no restart")
}

func TestRestarter_RestartsOnCrash(t *testing.T) {
	fdb := testutil.NewFakeDB()
	var probes atomic.Int64
	fdb.StatusFn = func(node string) (db.Status, error) {
		// Crashed for the first probes, starting, then ready.
		switch probes.Add(1) {
		case 1:
			return db.StatusCrashed, nil
		case 2:
			return db.StatusStarting, nil
		default:
			return db.StatusReady, nil
		}
	}
	r := fastRestarter(fdb)

	require.NoError(t, r.WaitReady(context.Background(), "n1"))
	assert.Equal(t, int64(1), fdb.StartCount("n1"), "crash triggers exactly one restart")
}

func TestRestarter_ReadyTimeout(t *testing.T) {
	fdb := testutil.NewFakeDB()
	fdb.StatusFn = func(node string) (db.Status, error) {
		return db.StatusStarting, nil
	}
	r := fastRestarter(fdb, db.WithReadyDeadline(10*time.Millisecond))

	err := r.WaitReady(context.Background(), "n1")
	var timeout *db.ReadyTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "n1", timeout.Node)
	assert.Equal(t, db.StatusStarting, timeout.Last)
}

func TestRestarter_StartFailureIsTyped(t *testing.T) {
	fdb := testutil.NewFakeDB()
	fdb.StatusFn = func(node string) (db.Status, error) {
		return db.StatusCrashed, nil
	}
	fdb.StartErr = map[string]error{"n1": errors.New("binary missing")}
	r := fastRestarter(fdb)

	err := r.WaitReady(context.Background(), "n1")
	var start *db.StartError
	require.ErrorAs(t, err, &start)
	assert.Equal(t, "n1", start.Node)
}

func TestRestarter_ConcurrentWaitersShareOneLoop(t *testing.T) {
	fdb := testutil.NewFakeDB()
	var probes atomic.Int64
	fdb.StatusFn = func(node string) (db.Status, error) {
		if probes.Add(1) == 1 {
			return db.StatusCrashed, nil
		}
		// Hold in starting long enough for all waiters to pile up.
		if probes.Load() < 20 {
			return db.StatusStarting, nil
		}
		return db.StatusReady, nil
	}
	r := fastRestarter(fdb)

	const waiters = 8
	var wg sync.WaitGroup
	errs := make([]error, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = r.WaitReady(context.Background(), "n1")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "waiter %d", i)
	}
	assert.Equal(t, int64(1), fdb.StartCount("n1"),
		"concurrent waiters must not trigger redundant restarts")
}

func TestRestarter_KillMarksIntentional(t *testing.T) {
	fdb := testutil.NewFakeDB()
	r := fastRestarter(fdb)

	require.NoError(t, r.Kill(context.Background(), "n2"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	r.Watchdog(ctx)

	assert.Equal(t, int64(0), fdb.StartCount("n2"),
		"watchdog ignores nemesis-killed nodes")
}

func TestRestarter_WatchdogRestartsUnexpectedCrash(t *testing.T) {
	fdb := testutil.NewFakeDB()
	r := fastRestarter(fdb)

	// n3 crashes without a Kill: the watchdog must bring it back.
	fdb.SetStatus("n3", db.StatusCrashed)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	r.Watchdog(ctx)

	assert.GreaterOrEqual(t, fdb.StartCount("n3"), int64(1))
	st, err := fdb.Status(context.Background(), "n3")
	require.NoError(t, err)
	assert.Equal(t, db.StatusReady, st)
}

func TestRestarter_RestartHookFires(t *testing.T) {
	fdb := testutil.NewFakeDB()
	var restarted []string
	r := fastRestarter(fdb, db.WithRestartHook(func(node string) {
		restarted = append(restarted, node)
	}))

	require.NoError(t, r.Kill(context.Background(), "n1"))
	require.NoError(t, r.Start(context.Background(), "n1"))

	assert.Equal(t, []string{"n1"}, restarted)
}

func TestRestarter_StartClearsIntentionalAndWaits(t *testing.T) {
	fdb := testutil.NewFakeDB()
	r := fastRestarter(fdb)

	require.NoError(t, r.Kill(context.Background(), "n1"))
	require.NoError(t, r.Start(context.Background(), "n1"))

	st, err := fdb.Status(context.Background(), "n1")
	require.NoError(t, err)
	assert.Equal(t, db.StatusReady, st)
}
