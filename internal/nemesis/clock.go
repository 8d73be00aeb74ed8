package nemesis

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/roach88/wrecker/internal/history"
)

// Clocker adjusts node clocks. Implementations typically shell out to a
// small setuid helper that calls adjtime on the node.
type Clocker interface {
	// Bump offsets the node's clock by delta.
	Bump(ctx context.Context, node string, delta time.Duration) error
	// Reset removes any offset previously applied to the node.
	Reset(ctx context.Context, node string) error
}

// ClockSkew applies a bounded random clock offset to a random subset of
// nodes on start, and on stop reverses exactly the offsets it applied.
type ClockSkew struct {
	clk    Clocker
	nodes  []string
	max    time.Duration
	rng    *rand.Rand
	skewed map[string]time.Duration
}

// NewClockSkew builds a clock-skew nemesis. Offsets are drawn uniformly
// from [-max, +max], excluding zero.
func NewClockSkew(clk Clocker, nodes []string, max time.Duration, seed int64) *ClockSkew {
	return &ClockSkew{
		clk:    clk,
		nodes:  nodes,
		max:    max,
		rng:    rand.New(rand.NewSource(seed)),
		skewed: make(map[string]time.Duration),
	}
}

func (n *ClockSkew) Setup(ctx context.Context) error {
	// Start from true time everywhere.
	for _, node := range n.nodes {
		if err := n.clk.Reset(ctx, node); err != nil {
			return fmt.Errorf("clock setup reset %s: %w", node, err)
		}
	}
	return nil
}

func (n *ClockSkew) Invoke(ctx context.Context, op history.Op) (history.Op, error) {
	switch op.F {
	case Start:
		targets := TargetSubset(n.rng, n.nodes)
		offsets := make(map[string]string, len(targets))
		for _, node := range targets {
			if _, already := n.skewed[node]; already {
				continue
			}
			delta := nonzeroOffset(n.rng, n.max)
			if err := n.clk.Bump(ctx, node, delta); err != nil {
				return failed(op, err), err
			}
			n.skewed[node] = delta
			offsets[node] = delta.String()
		}
		return info(op, map[string]any{"offsets": offsets}), nil

	case Stop:
		if len(n.skewed) == 0 {
			return info(op, "no-skew"), nil
		}
		reset := make([]string, 0, len(n.skewed))
		for node := range n.skewed {
			if err := n.clk.Reset(ctx, node); err != nil {
				return failed(op, err), err
			}
			reset = append(reset, node)
		}
		n.skewed = make(map[string]time.Duration)
		return info(op, map[string]any{"reset": reset}), nil

	default:
		err := fmt.Errorf("clock nemesis: unknown f %q", op.F)
		return failed(op, err), err
	}
}

// Teardown resets every skewed node.
func (n *ClockSkew) Teardown(ctx context.Context) error {
	for node := range n.skewed {
		if err := n.clk.Reset(ctx, node); err != nil {
			return fmt.Errorf("clock teardown reset %s: %w", node, err)
		}
	}
	n.skewed = make(map[string]time.Duration)
	return nil
}

// nonzeroOffset draws a bounded offset, excluding zero.
func nonzeroOffset(rng *rand.Rand, max time.Duration) time.Duration {
	for {
		d := time.Duration(rng.Int63n(int64(2*max)+1)) - max
		if d != 0 {
			return d
		}
	}
}

// Strober flips a node's clock between true time and an offset at a
// fixed period. Implementations typically run a node-side helper that
// keeps strobing until Reset.
type Strober interface {
	// Strobe starts flipping the node's clock by delta every period.
	Strobe(ctx context.Context, node string, delta, period time.Duration) error
	// Reset stops strobing and restores true time.
	Reset(ctx context.Context, node string) error
}

// ClockStrobe rapidly flips node clocks between true time and a bounded
// offset, for systems that assume clocks are monotonic and linear.
// Start strobes a random subset of nodes; stop restores exactly those.
type ClockStrobe struct {
	clk     Strober
	nodes   []string
	max     time.Duration
	period  time.Duration
	rng     *rand.Rand
	strobed map[string]time.Duration
}

// NewClockStrobe builds a clock-strobe nemesis. Offsets are drawn
// uniformly from [-max, +max], excluding zero; period is how often a
// strobed clock flips.
func NewClockStrobe(clk Strober, nodes []string, max, period time.Duration, seed int64) *ClockStrobe {
	return &ClockStrobe{
		clk:     clk,
		nodes:   nodes,
		max:     max,
		period:  period,
		rng:     rand.New(rand.NewSource(seed)),
		strobed: make(map[string]time.Duration),
	}
}

func (n *ClockStrobe) Setup(ctx context.Context) error {
	for _, node := range n.nodes {
		if err := n.clk.Reset(ctx, node); err != nil {
			return fmt.Errorf("strobe setup reset %s: %w", node, err)
		}
	}
	return nil
}

func (n *ClockStrobe) Invoke(ctx context.Context, op history.Op) (history.Op, error) {
	switch op.F {
	case Start:
		targets := TargetSubset(n.rng, n.nodes)
		offsets := make(map[string]string, len(targets))
		for _, node := range targets {
			if _, already := n.strobed[node]; already {
				continue
			}
			delta := nonzeroOffset(n.rng, n.max)
			if err := n.clk.Strobe(ctx, node, delta, n.period); err != nil {
				return failed(op, err), err
			}
			n.strobed[node] = delta
			offsets[node] = delta.String()
		}
		return info(op, map[string]any{"strobing": offsets, "period": n.period.String()}), nil

	case Stop:
		if len(n.strobed) == 0 {
			return info(op, "no-strobe"), nil
		}
		reset := make([]string, 0, len(n.strobed))
		for node := range n.strobed {
			if err := n.clk.Reset(ctx, node); err != nil {
				return failed(op, err), err
			}
			reset = append(reset, node)
		}
		n.strobed = make(map[string]time.Duration)
		return info(op, map[string]any{"reset": reset}), nil

	default:
		err := fmt.Errorf("strobe nemesis: unknown f %q", op.F)
		return failed(op, err), err
	}
}

// Teardown resets every strobed node.
func (n *ClockStrobe) Teardown(ctx context.Context) error {
	for node := range n.strobed {
		if err := n.clk.Reset(ctx, node); err != nil {
			return fmt.Errorf("strobe teardown reset %s: %w", node, err)
		}
	}
	n.strobed = make(map[string]time.Duration)
	return nil
}
