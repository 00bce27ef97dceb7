package graph

import (
	"fmt"

	"github.com/petasbytes/go-chatgraph/internal/checkpoint"
)

// StateGraph is a builder for a directed graph over state type S.
type StateGraph[S any] struct {
	id    string
	nodes map[string]*Node[S]
	edges []*Edge[S]
	errs  []error
}

func New[S any](id string) *StateGraph[S] {
	return &StateGraph[S]{
		id:    id,
		nodes: make(map[string]*Node[S]),
	}
}

// AddNode registers a node. Reserved or duplicate ids surface as Compile errors.
func (g *StateGraph[S]) AddNode(id string, fn NodeFunc[S]) *StateGraph[S] {
	switch {
	case id == "" || id == Start || id == End:
		g.errs = append(g.errs, fmt.Errorf("graph %q: invalid node id %q", g.id, id))
	case fn == nil:
		g.errs = append(g.errs, fmt.Errorf("graph %q: node %q has no function", g.id, id))
	case g.nodes[id] != nil:
		g.errs = append(g.errs, fmt.Errorf("graph %q: duplicate node %q", g.id, id))
	default:
		g.nodes[id] = &Node[S]{ID: id, Fn: fn}
	}
	return g
}

func (g *StateGraph[S]) AddEdge(from, to string) *StateGraph[S] {
	g.edges = append(g.edges, &Edge[S]{From: from, To: to})
	return g
}

func (g *StateGraph[S]) AddConditionalEdge(from string, condition EdgeCondition[S]) *StateGraph[S] {
	g.edges = append(g.edges, &Edge[S]{From: from, Condition: condition})
	return g
}

func (g *StateGraph[S]) SetEntryPoint(nodeID string) *StateGraph[S] {
	return g.AddEdge(Start, nodeID)
}

func (g *StateGraph[S]) SetFinishPoint(nodeID string) *StateGraph[S] {
	return g.AddEdge(nodeID, End)
}

// Compile validates the graph and returns an immutable, runnable graph.
func (g *StateGraph[S]) Compile(opts ...Option) (*Compiled[S], error) {
	if len(g.errs) > 0 {
		return nil, g.errs[0]
	}

	adj := make(map[string]*Edge[S], len(g.edges))
	for _, e := range g.edges {
		if e.From != Start && g.nodes[e.From] == nil {
			return nil, fmt.Errorf("graph %q: edge source %q not found", g.id, e.From)
		}
		if e.Condition == nil {
			if e.To == "" || e.To == Start {
				return nil, fmt.Errorf("graph %q: edge from %q has invalid target %q", g.id, e.From, e.To)
			}
			if e.To != End && g.nodes[e.To] == nil {
				return nil, fmt.Errorf("graph %q: edge target %q not found", g.id, e.To)
			}
		}
		if adj[e.From] != nil {
			return nil, fmt.Errorf("graph %q: node %q has more than one outgoing edge", g.id, e.From)
		}
		adj[e.From] = e
	}

	startEdge := adj[Start]
	if startEdge == nil || startEdge.Condition != nil || startEdge.To == End {
		return nil, fmt.Errorf("graph %q: no entry point set", g.id)
	}

	o := options{recursionLimit: DefaultRecursionLimit}
	for _, opt := range opts {
		opt(&o)
	}

	nodes := make(map[string]*Node[S], len(g.nodes))
	for id, n := range g.nodes {
		nodes[id] = n
	}
	return &Compiled[S]{
		id:    g.id,
		nodes: nodes,
		adj:   adj,
		entry: startEdge.To,
		opts:  o,
	}, nil
}

type options struct {
	saver          checkpoint.Saver
	recursionLimit int
	observer       func(Event)
}

type Option func(*options)

// WithCheckpointer saves a checkpoint after each node; without one the graph is stateless.
func WithCheckpointer(s checkpoint.Saver) Option {
	return func(o *options) { o.saver = s }
}

func WithRecursionLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.recursionLimit = n
		}
	}
}

func WithObserver(fn func(Event)) Option {
	return func(o *options) { o.observer = fn }
}
