package plan

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/roach88/wrecker/internal/checker"
	"github.com/roach88/wrecker/internal/client"
	"github.com/roach88/wrecker/internal/db"
	"github.com/roach88/wrecker/internal/gen"
	"github.com/roach88/wrecker/internal/history"
	"github.com/roach88/wrecker/internal/metrics"
	"github.com/roach88/wrecker/internal/nemesis"
	"github.com/roach88/wrecker/internal/runner"
	"github.com/roach88/wrecker/internal/store"
)

// Env carries the external collaborators a plan cannot express: the
// wire-protocol client, the system-under-test lifecycle, and the fault
// primitives. Fields are required only when the plan uses them.
type Env struct {
	Client client.Client
	DB     db.Supervisable
	Net    nemesis.Partitioner
	Clock  nemesis.Clocker

	Store   *store.Store
	Metrics *metrics.Metrics
	Log     *slog.Logger
}

// Build assembles the runner test the plan describes: the phased
// generator tree, the composed nemesis, and the workload.
func (p *Plan) Build(env Env) (*runner.Test, error) {
	if env.Client == nil {
		return nil, fmt.Errorf("plan %s: env has no client", p.Name)
	}

	// Supervise the system under test: intentional kills routed through
	// the Restarter are left alone; anything else that crashes gets
	// restarted by the watchdog.
	var supervisor *db.Restarter
	if env.DB != nil {
		opts := []db.RestarterOption{
			db.WithRestartHook(env.Metrics.RecordRestart),
		}
		if env.Log != nil {
			opts = append(opts, db.WithLogger(env.Log))
		}
		supervisor = db.NewRestarter(env.DB, p.Nodes, opts...)
	}

	workload := p.workload()
	clientLoad := gen.OnClients(gen.NewStagger(p.Seed+1, p.Rate.Std(), workload))

	var (
		nem    nemesis.Nemesis
		phases []gen.Generator
	)
	if p.Nemesis == nil {
		phases = append(phases, gen.NewTimeLimit(p.TimeLimit.Std(), clientLoad))
	} else {
		composed, faultStream, heals, err := p.faults(env, supervisor)
		if err != nil {
			return nil, err
		}
		nem = composed
		phases = append(phases,
			gen.NewTimeLimit(p.TimeLimit.Std(), gen.NewAny(clientLoad, faultStream)),
			gen.OnNemesis(gen.NewOps(heals...)),
			gen.NewSleep(p.Nemesis.Recovery.Std()),
		)
	}
	if p.FinalReads {
		phases = append(phases, gen.OnClients(finalReads(p.Workload.Keys)))
	}

	test := &runner.Test{
		Name:        p.Name,
		Nodes:       p.Nodes,
		Concurrency: p.Concurrency,
		Client:      env.Client,
		Generator:   gen.NewPhases(phases...),
		Nemesis:     nem,
		Checker:     checker.ProcessDiscipline{},
		Store:       env.Store,
		Metrics:     env.Metrics,
		Log:         env.Log,
	}
	if supervisor != nil {
		test.DB = supervisor
		test.Watchdog = supervisor.Watchdog
	}
	return test, nil
}

// workload builds the weighted register mix. The shared rng is safe
// because the scheduler serializes all generator calls.
func (p *Plan) workload() gen.Generator {
	rng := rand.New(rand.NewSource(p.Seed))
	keys := p.Workload.Keys
	key := func() string { return keys[rng.Intn(len(keys))] }

	read := gen.Fn(func(gen.Context) *history.Op {
		op := gen.Invoke("read", []any{key(), nil})
		return &op
	})
	write := gen.Fn(func(gen.Context) *history.Op {
		op := gen.Invoke("write", []any{key(), rng.Intn(100)})
		return &op
	})
	cas := gen.Fn(func(gen.Context) *history.Op {
		op := gen.Invoke("cas", []any{key(), rng.Intn(100), rng.Intn(100)})
		return &op
	})

	return gen.NewWeightedMix(p.Seed+2,
		gen.Weighted{G: read, W: p.Workload.Reads},
		gen.Weighted{G: write, W: p.Workload.Writes},
		gen.Weighted{G: cas, W: p.Workload.Cas},
	)
}

// faults builds the composed nemesis, the staggered start/stop cycle
// that drives it, and the final heal sequence. Kill faults go through
// the supervisor so the watchdog can tell intentional kills from
// crashes.
func (p *Plan) faults(env Env, supervisor *db.Restarter) (nemesis.Nemesis, gen.Generator, []history.Op, error) {
	routes := make(map[string]nemesis.Nemesis, len(p.Nemesis.Faults))
	var cycle, heals []history.Op

	for i, fault := range p.Nemesis.Faults {
		seed := p.Seed + 10 + int64(i)
		var n nemesis.Nemesis
		switch fault {
		case "partition":
			if env.Net == nil {
				return nil, nil, nil, fmt.Errorf("plan %s: fault %q needs a partitioner", p.Name, fault)
			}
			n = nemesis.NewPartition(env.Net, p.Nodes, nemesis.SplitHalves, seed)
		case "partition-one":
			if env.Net == nil {
				return nil, nil, nil, fmt.Errorf("plan %s: fault %q needs a partitioner", p.Name, fault)
			}
			n = nemesis.NewPartition(env.Net, p.Nodes, nemesis.SplitSingle, seed)
		case "partition-minority":
			if env.Net == nil {
				return nil, nil, nil, fmt.Errorf("plan %s: fault %q needs a partitioner", p.Name, fault)
			}
			n = nemesis.NewPartition(env.Net, p.Nodes, nemesis.SplitMinority, seed)
		case "kill":
			if supervisor == nil {
				return nil, nil, nil, fmt.Errorf("plan %s: fault %q needs a db", p.Name, fault)
			}
			n = nemesis.NewKill(supervisor, p.Nodes, nemesis.TargetOne, seed)
		case "kill-all":
			if supervisor == nil {
				return nil, nil, nil, fmt.Errorf("plan %s: fault %q needs a db", p.Name, fault)
			}
			n = nemesis.NewKill(supervisor, p.Nodes, nemesis.TargetAll, seed)
		case "clock-skew":
			if env.Clock == nil {
				return nil, nil, nil, fmt.Errorf("plan %s: fault %q needs a clocker", p.Name, fault)
			}
			n = nemesis.NewClockSkew(env.Clock, p.Nodes, p.Nemesis.MaxOffset.Std(), seed)
		case "clock-strobe":
			strober, ok := env.Clock.(nemesis.Strober)
			if !ok {
				return nil, nil, nil, fmt.Errorf("plan %s: fault %q needs a strobing clocker", p.Name, fault)
			}
			n = nemesis.NewClockStrobe(strober, p.Nodes, p.Nemesis.MaxOffset.Std(), p.Nemesis.StrobePeriod.Std(), seed)
		default:
			return nil, nil, nil, fmt.Errorf("plan %s: unknown fault %q", p.Name, fault)
		}
		routes[fault] = n

		cycle = append(cycle,
			gen.Invoke(nemesis.F(fault, nemesis.Start), nil),
			gen.Invoke(nemesis.F(fault, nemesis.Stop), nil),
		)
		heals = append(heals, gen.Invoke(nemesis.F(fault, nemesis.Stop), nil))
	}

	composed, err := nemesis.NewCompose(routes)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("plan %s: %w", p.Name, err)
	}

	stream := gen.OnNemesis(gen.NewStagger(p.Seed+3, p.Nemesis.Interval.Std(), gen.NewCycle(cycle...)))
	return composed, stream, heals, nil
}

// finalReads hands each worker exactly one read, keyed by its slot, so
// the post-recovery state of the keyspace lands in the history.
func finalReads(keys []string) gen.Generator {
	done := make(map[int]bool)
	return gen.Fn(func(ctx gen.Context) *history.Op {
		if done[ctx.Process] {
			return nil
		}
		done[ctx.Process] = true
		op := gen.Invoke("read", []any{keys[ctx.Process%len(keys)], nil})
		return &op
	})
}
