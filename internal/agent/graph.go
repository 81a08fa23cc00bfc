package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/emiliopalmerini/amadeus/internal/domain"
)

// End is the terminal pseudo-node.
const End = "__end__"

// DefaultRecursionLimit caps the number of node executions in one Invoke.
const DefaultRecursionLimit = 25

var (
	ErrRecursionLimit = errors.New("recursion limit reached")
	ErrInvalidGraph   = errors.New("invalid graph")
)

// NodeFunc mutates the state for one step. It receives a private copy; the
// copy is committed only when the node returns nil.
type NodeFunc func(ctx context.Context, state *domain.AgentState) error

// RouteFunc picks a route key after a node with conditional edges.
type RouteFunc func(state *domain.AgentState) string

// StepHook observes the committed state after each node.
type StepHook func(node string, state *domain.AgentState)

type branch struct {
	route   RouteFunc
	targets map[string]string
}

// Graph is a directed state machine of named nodes. Each node has exactly
// one outgoing edge or one conditional branch.
type Graph struct {
	nodes    map[string]NodeFunc
	edges    map[string]string
	branches map[string]branch
	entry    string
	limit    int
	errs     []error
	compiled bool
}

func NewGraph() *Graph {
	return &Graph{
		nodes:    map[string]NodeFunc{},
		edges:    map[string]string{},
		branches: map[string]branch{},
		limit:    DefaultRecursionLimit,
	}
}

func (g *Graph) AddNode(name string, fn NodeFunc) *Graph {
	switch {
	case name == "" || name == End:
		g.errs = append(g.errs, fmt.Errorf("reserved node name %q", name))
	case fn == nil:
		g.errs = append(g.errs, fmt.Errorf("node %q has no function", name))
	default:
		if _, dup := g.nodes[name]; dup {
			g.errs = append(g.errs, fmt.Errorf("duplicate node %q", name))
		}
		g.nodes[name] = fn
	}
	return g
}

func (g *Graph) AddEdge(from, to string) *Graph {
	if _, dup := g.edges[from]; dup {
		g.errs = append(g.errs, fmt.Errorf("node %q already has an edge", from))
	}
	g.edges[from] = to
	return g
}

// AddConditionalEdges routes from a node through route; the returned key is
// looked up in targets.
func (g *Graph) AddConditionalEdges(from string, route RouteFunc, targets map[string]string) *Graph {
	if route == nil || len(targets) == 0 {
		g.errs = append(g.errs, fmt.Errorf("conditional edges from %q need a route and targets", from))
	}
	if _, dup := g.branches[from]; dup {
		g.errs = append(g.errs, fmt.Errorf("node %q already has conditional edges", from))
	}
	copied := make(map[string]string, len(targets))
	for k, v := range targets {
		copied[k] = v
	}
	g.branches[from] = branch{route: route, targets: copied}
	return g
}

func (g *Graph) SetEntryPoint(name string) *Graph {
	g.entry = name
	return g
}

// SetRecursionLimit overrides DefaultRecursionLimit. Non-positive values are
// ignored.
func (g *Graph) SetRecursionLimit(n int) *Graph {
	if n > 0 {
		g.limit = n
	}
	return g
}

func (g *Graph) RecursionLimit() int { return g.limit }

func (g *Graph) exists(name string) bool {
	if name == End {
		return true
	}
	_, ok := g.nodes[name]
	return ok
}

// Compile validates the graph. Invoke refuses to run an uncompiled graph.
func (g *Graph) Compile() error {
	errs := append([]error(nil), g.errs...)

	if g.entry == "" {
		errs = append(errs, errors.New("entry point not set"))
	} else if g.entry == End || !g.exists(g.entry) {
		errs = append(errs, fmt.Errorf("entry point %q is not a node", g.entry))
	}

	for from, to := range g.edges {
		if !g.exists(from) || from == End {
			errs = append(errs, fmt.Errorf("edge from unknown node %q", from))
		}
		if !g.exists(to) {
			errs = append(errs, fmt.Errorf("edge %q -> unknown node %q", from, to))
		}
	}
	for from, b := range g.branches {
		if !g.exists(from) || from == End {
			errs = append(errs, fmt.Errorf("conditional edges from unknown node %q", from))
		}
		for key, to := range b.targets {
			if !g.exists(to) {
				errs = append(errs, fmt.Errorf("route %q from %q -> unknown node %q", key, from, to))
			}
		}
	}

	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		_, hasEdge := g.edges[name]
		_, hasBranch := g.branches[name]
		switch {
		case hasEdge && hasBranch:
			errs = append(errs, fmt.Errorf("node %q has both an edge and conditional edges", name))
		case !hasEdge && !hasBranch:
			errs = append(errs, fmt.Errorf("node %q has no outgoing edge", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidGraph, errors.Join(errs...))
	}
	g.compiled = true
	return nil
}

func (g *Graph) next(node string, state *domain.AgentState) (string, error) {
	if to, ok := g.edges[node]; ok {
		return to, nil
	}
	b := g.branches[node]
	key := b.route(state)
	to, ok := b.targets[key]
	if !ok {
		return "", fmt.Errorf("node %q routed to unmapped key %q", node, key)
	}
	return to, nil
}

// Invoke runs the graph from the entry point until End. On failure the last
// committed state is returned with the error.
func (g *Graph) Invoke(ctx context.Context, state *domain.AgentState, hook StepHook) (*domain.AgentState, error) {
	if !g.compiled {
		return state, fmt.Errorf("%w: graph not compiled", ErrInvalidGraph)
	}

	current := g.entry
	for steps := 0; current != End; steps++ {
		if steps >= g.limit {
			return state, fmt.Errorf("%w: %d steps without reaching the end (last node %q)", ErrRecursionLimit, g.limit, current)
		}
		if err := ctx.Err(); err != nil {
			return state, err
		}

		work := state.Clone()
		work.CurrentStep = current
		if err := g.nodes[current](ctx, work); err != nil {
			return state, fmt.Errorf("node %s: %w", current, err)
		}
		state = work
		if hook != nil {
			hook(current, state)
		}

		next, err := g.next(current, state)
		if err != nil {
			return state, err
		}
		current = next
	}
	return state, nil
}
