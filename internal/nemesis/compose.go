package nemesis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/wrecker/internal/history"
)

// separator splits a composed f into discriminator and inner f.
const separator = ":"

// F builds the composed operation name for a routed fault, e.g.
// F("partition", Start) == "partition:start".
func F(route, f string) string {
	return route + separator + f
}

// Compose multiplexes several independent fault kinds behind one
// nemesis. Each operation's f carries a discriminator prefix
// ("partition:start") that selects the sub-nemesis; the sub-nemesis sees
// the inner f ("start").
//
// An unrecognized discriminator is a hard error, never silently ignored:
// a schedule that emits faults nobody implements is a broken test.
type Compose struct {
	routes map[string]Nemesis
	order  []string
}

// NewCompose validates and builds a composed nemesis. Route names must
// be non-empty, free of the separator, and mapped to non-nil nemeses.
func NewCompose(routes map[string]Nemesis) (*Compose, error) {
	if len(routes) == 0 {
		return nil, errors.New("compose: no routes")
	}
	order := make([]string, 0, len(routes))
	for name, sub := range routes {
		if name == "" {
			return nil, errors.New("compose: empty route name")
		}
		if strings.Contains(name, separator) {
			return nil, fmt.Errorf("compose: route %q contains %q", name, separator)
		}
		if sub == nil {
			return nil, fmt.Errorf("compose: route %q has nil nemesis", name)
		}
		order = append(order, name)
	}
	// Deterministic setup/teardown order.
	sort.Strings(order)
	return &Compose{routes: routes, order: order}, nil
}

// Routes returns the route names in deterministic order. The runner uses
// this to validate a plan's fault vocabulary at assembly time.
func (c *Compose) Routes() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Setup sets up every sub-nemesis; errors are collected, not short-
// circuited, so one broken fault doesn't leave the others unprepared.
func (c *Compose) Setup(ctx context.Context) error {
	var errs []error
	for _, name := range c.order {
		if err := c.routes[name].Setup(ctx); err != nil {
			errs = append(errs, fmt.Errorf("setup %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Compose) Invoke(ctx context.Context, op history.Op) (history.Op, error) {
	route, inner, ok := strings.Cut(op.F, separator)
	if !ok {
		err := fmt.Errorf("compose: op f %q has no route discriminator", op.F)
		return failed(op, err), err
	}
	sub, ok := c.routes[route]
	if !ok {
		err := fmt.Errorf("compose: no nemesis for route %q", route)
		return failed(op, err), err
	}

	routed := op
	routed.F = inner
	res, err := sub.Invoke(ctx, routed)
	// Restore the composed f so the history names the fault kind.
	res.F = op.F
	return res, err
}

// Teardown tears down every sub-nemesis unconditionally.
func (c *Compose) Teardown(ctx context.Context) error {
	var errs []error
	for _, name := range c.order {
		if err := c.routes[name].Teardown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("teardown %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
