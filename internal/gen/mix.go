package gen

import (
	"math/rand"

	"github.com/roach88/wrecker/internal/history"
)

// Weighted pairs a source generator with a selection weight.
type Weighted struct {
	G Generator
	W int
}

// Mix selects among several source generators at random on each call,
// uniformly or by weight, without starving any live source over a long
// run.
//
// Tie-break policy for unequal remaining work: a source that reports
// exhausted is removed permanently and its weight is redistributed by
// renormalization over the survivors. A source that reports pending is
// skipped for the current draw but stays eligible. The mix is exhausted
// only when every source is. Exhaustion is treated as global to the
// source, not per process, so routed generators (OnClients/OnNemesis)
// belong around a Mix, never inside one.
//
// Selection uses a seeded rand.Rand owned by the Mix: a fixed seed
// reproduces the schedule exactly.
type Mix struct {
	sources []Weighted
	rng     *rand.Rand
}

// NewMix builds a uniform mix over the given sources.
func NewMix(seed int64, sources ...Generator) *Mix {
	weighted := make([]Weighted, len(sources))
	for i, g := range sources {
		weighted[i] = Weighted{G: g, W: 1}
	}
	return NewWeightedMix(seed, weighted...)
}

// NewWeightedMix builds a weighted mix. Sources with non-positive weight
// are never selected and are dropped immediately.
func NewWeightedMix(seed int64, sources ...Weighted) *Mix {
	live := make([]Weighted, 0, len(sources))
	for _, s := range sources {
		if s.W > 0 {
			live = append(live, s)
		}
	}
	return &Mix{sources: live, rng: rand.New(rand.NewSource(seed))}
}

func (m *Mix) Next(ctx Context) (history.Op, Status) {
	// Draw without replacement until a source yields an op, removing
	// exhausted sources as they are discovered.
	tried := make(map[int]bool)
	sawPending := false

	for len(tried) < len(m.sources) {
		i := m.pick(tried)

		op, st := m.sources[i].G.Next(ctx)
		switch st {
		case StatusOp:
			return op, StatusOp
		case StatusPending:
			sawPending = true
			tried[i] = true
		case StatusExhausted:
			m.remove(i)
			// Indexes shifted; previously tried entries are all pending
			// sources, rebuild is cheaper than remapping for small mixes.
			tried = retried(tried, i)
		}
	}

	if len(m.sources) == 0 {
		return history.Op{}, StatusExhausted
	}
	if sawPending {
		return history.Op{}, StatusPending
	}
	return history.Op{}, StatusExhausted
}

// pick selects an untried source index by weight.
func (m *Mix) pick(tried map[int]bool) int {
	total := 0
	for i, s := range m.sources {
		if !tried[i] {
			total += s.W
		}
	}
	r := m.rng.Intn(total)
	for i, s := range m.sources {
		if tried[i] {
			continue
		}
		r -= s.W
		if r < 0 {
			return i
		}
	}
	// Unreachable while total > 0.
	return len(m.sources) - 1
}

func (m *Mix) remove(i int) {
	m.sources = append(m.sources[:i], m.sources[i+1:]...)
}

// retried shifts tried indexes above the removed slot down by one.
func retried(tried map[int]bool, removed int) map[int]bool {
	out := make(map[int]bool, len(tried))
	for i := range tried {
		if i < removed {
			out[i] = true
		} else if i > removed {
			out[i-1] = true
		}
	}
	return out
}

// Live returns the number of sources not yet exhausted. For tests.
func (m *Mix) Live() int {
	return len(m.sources)
}
