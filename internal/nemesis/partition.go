package nemesis

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/roach88/wrecker/internal/history"
)

// Partitioner manipulates network reachability between nodes. How it
// does so (iptables over SSH, container network rules) is an external
// collaborator's concern.
type Partitioner interface {
	// Isolate cuts the network so that only nodes within the same group
	// can reach each other.
	Isolate(ctx context.Context, groups [][]string) error
	// Heal removes all partitions.
	Heal(ctx context.Context) error
}

// Splitter chooses how to partition the cluster on each start.
type Splitter func(rng *rand.Rand, nodes []string) [][]string

// SplitHalves shuffles the nodes and cuts them into two random halves.
func SplitHalves(rng *rand.Rand, nodes []string) [][]string {
	shuffled := shuffle(rng, nodes)
	mid := len(shuffled) / 2
	return [][]string{shuffled[:mid], shuffled[mid:]}
}

// SplitSingle isolates one random node from the rest.
func SplitSingle(rng *rand.Rand, nodes []string) [][]string {
	shuffled := shuffle(rng, nodes)
	return [][]string{shuffled[:1], shuffled[1:]}
}

// SplitMinority isolates a random minority (just under half) from the
// majority, leaving the majority able to make quorum.
func SplitMinority(rng *rand.Rand, nodes []string) [][]string {
	shuffled := shuffle(rng, nodes)
	minority := (len(shuffled) - 1) / 2
	if minority < 1 {
		minority = 1
	}
	return [][]string{shuffled[:minority], shuffled[minority:]}
}

func shuffle(rng *rand.Rand, nodes []string) []string {
	out := make([]string, len(nodes))
	copy(out, nodes)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// Partition partitions the cluster on start and heals it on stop.
//
// Idempotence policy: start while a partition is active replaces it:
// the old partition is healed and a freshly drawn one applied, and the
// returned op records "replaced": true. Stop when healthy is a no-op.
type Partition struct {
	net    Partitioner
	nodes  []string
	split  Splitter
	rng    *rand.Rand
	active [][]string
}

// NewPartition builds a partition nemesis over the given nodes.
func NewPartition(net Partitioner, nodes []string, split Splitter, seed int64) *Partition {
	return &Partition{
		net:   net,
		nodes: nodes,
		split: split,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// Setup heals any leftover partition from a previous run.
func (n *Partition) Setup(ctx context.Context) error {
	if err := n.net.Heal(ctx); err != nil {
		return fmt.Errorf("partition setup heal: %w", err)
	}
	return nil
}

func (n *Partition) Invoke(ctx context.Context, op history.Op) (history.Op, error) {
	switch op.F {
	case Start:
		replaced := n.active != nil
		if replaced {
			if err := n.net.Heal(ctx); err != nil {
				return failed(op, err), err
			}
			n.active = nil
		}
		groups := n.split(n.rng, n.nodes)
		if err := n.net.Isolate(ctx, groups); err != nil {
			return failed(op, err), err
		}
		n.active = groups
		return info(op, map[string]any{"groups": groups, "replaced": replaced}), nil

	case Stop:
		if n.active == nil {
			return info(op, "already-healed"), nil
		}
		if err := n.net.Heal(ctx); err != nil {
			return failed(op, err), err
		}
		healed := n.active
		n.active = nil
		return info(op, map[string]any{"healed": healed}), nil

	default:
		err := fmt.Errorf("partition nemesis: unknown f %q", op.F)
		return failed(op, err), err
	}
}

// Teardown heals unconditionally.
func (n *Partition) Teardown(ctx context.Context) error {
	n.active = nil
	if err := n.net.Heal(ctx); err != nil {
		return fmt.Errorf("partition teardown heal: %w", err)
	}
	return nil
}
