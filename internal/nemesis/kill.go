package nemesis

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/roach88/wrecker/internal/db"
	"github.com/roach88/wrecker/internal/history"
)

// Targeter selects which nodes a fault hits on each start.
type Targeter func(rng *rand.Rand, nodes []string) []string

// TargetOne picks a single random node.
func TargetOne(rng *rand.Rand, nodes []string) []string {
	return []string{nodes[rng.Intn(len(nodes))]}
}

// TargetSubset picks a random non-empty subset.
func TargetSubset(rng *rand.Rand, nodes []string) []string {
	var out []string
	for _, n := range nodes {
		if rng.Intn(2) == 0 {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		out = TargetOne(rng, nodes)
	}
	return out
}

// TargetAll hits every node.
func TargetAll(_ *rand.Rand, nodes []string) []string {
	out := make([]string, len(nodes))
	copy(out, nodes)
	return out
}

// Kill forcibly terminates the system-under-test process on targeted
// nodes on start, and on stop restarts exactly the nodes it killed.
// Stop with nothing killed is a no-op.
type Kill struct {
	db     db.Killable
	nodes  []string
	pick   Targeter
	rng    *rand.Rand
	killed []string
}

// NewKill builds a kill/restart nemesis over the given nodes.
func NewKill(d db.Killable, nodes []string, pick Targeter, seed int64) *Kill {
	return &Kill{
		db:    d,
		nodes: nodes,
		pick:  pick,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

func (n *Kill) Setup(ctx context.Context) error { return nil }

func (n *Kill) Invoke(ctx context.Context, op history.Op) (history.Op, error) {
	switch op.F {
	case Start:
		targets := n.pick(n.rng, n.nodes)
		var killed []string
		for _, node := range targets {
			if n.isKilled(node) {
				continue
			}
			if err := n.db.Kill(ctx, node); err != nil {
				return failed(op, err), err
			}
			n.killed = append(n.killed, node)
			killed = append(killed, node)
		}
		return info(op, map[string]any{"killed": killed}), nil

	case Stop:
		if len(n.killed) == 0 {
			return info(op, "nothing-killed"), nil
		}
		restarted, err := n.restartAll(ctx)
		if err != nil {
			return failed(op, err), err
		}
		return info(op, map[string]any{"restarted": restarted}), nil

	default:
		err := fmt.Errorf("kill nemesis: unknown f %q", op.F)
		return failed(op, err), err
	}
}

// Teardown restarts anything still down so the cluster is whole for
// final teardown.
func (n *Kill) Teardown(ctx context.Context) error {
	_, err := n.restartAll(ctx)
	return err
}

func (n *Kill) restartAll(ctx context.Context) ([]string, error) {
	var errs []error
	restarted := make([]string, 0, len(n.killed))
	var still []string
	for _, node := range n.killed {
		if err := n.db.Start(ctx, node); err != nil {
			errs = append(errs, fmt.Errorf("restart %s: %w", node, err))
			still = append(still, node)
			continue
		}
		restarted = append(restarted, node)
	}
	// A node whose restart failed stays killed so Teardown retries it.
	n.killed = still
	return restarted, errors.Join(errs...)
}

func (n *Kill) isKilled(node string) bool {
	for _, k := range n.killed {
		if k == node {
			return true
		}
	}
	return false
}
