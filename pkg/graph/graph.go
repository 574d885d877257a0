package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/dispatch/pkg/domain"
)

// NodeID identifies a node of the workflow graph.
type NodeID string

// NodeFunc is the work a node performs on the turn.
type NodeFunc func(ctx context.Context, turn *domain.Turn) error

// Guard is a named predicate over the turn.
// The name shows up in logs, in Mermaid output and in overlap reports.
type Guard struct {
	Name string
	When func(*domain.Turn) bool
}

// Edge is a directed transition. A nil Guard makes it the default edge.
type Edge struct {
	From  NodeID
	To    NodeID
	Guard *Guard
}

// Node is a registered unit of work with its declared field contract.
type Node struct {
	ID       NodeID
	Run      NodeFunc
	Reads    domain.FieldSet
	Writes   domain.FieldSet
	Terminal bool
}

// ErrInvalidGraph is wrapped by every validation failure.
var ErrInvalidGraph = errors.New("invalid graph")

// Graph is an immutable registry of nodes and edges.
type Graph struct {
	entry NodeID
	order []NodeID
	nodes map[NodeID]*Node
	edges map[NodeID][]Edge
}

// Entry returns the fixed starting node.
func (g *Graph) Entry() NodeID { return g.entry }

// Node returns a registered node.
func (g *Graph) Node(id NodeID) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns nodes in registration order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Edges returns the outgoing edges of a node in priority order.
func (g *Graph) Edges(from NodeID) []Edge {
	return append([]Edge(nil), g.edges[from]...)
}

// Next returns the target of the first edge whose guard holds or is absent.
// Registration order is the priority order.
func (g *Graph) Next(from NodeID, turn *domain.Turn) (NodeID, bool) {
	for _, e := range g.edges[from] {
		if e.Guard == nil || e.Guard.When(turn) {
			return e.To, true
		}
	}
	return "", false
}

// Overlaps returns the names of every conditional guard of from that holds for turn.
// More than one name means the guards are not mutually exclusive.
func (g *Graph) Overlaps(from NodeID, turn *domain.Turn) []string {
	var hits []string
	for _, e := range g.edges[from] {
		if e.Guard != nil && e.Guard.When(turn) {
			hits = append(hits, e.Guard.Name)
		}
	}
	return hits
}

// CheckExclusive asserts that at most one conditional guard of from holds
// for each sample turn.
func (g *Graph) CheckExclusive(from NodeID, samples ...*domain.Turn) error {
	for i, turn := range samples {
		if hits := g.Overlaps(from, turn); len(hits) > 1 {
			return fmt.Errorf("%w: node '%s' sample %d matches guards %v", ErrInvalidGraph, from, i, hits)
		}
	}
	return nil
}

// Validate checks the structural rules of the graph.
func (g *Graph) Validate() error {
	if _, ok := g.nodes[g.entry]; !ok {
		return fmt.Errorf("%w: entry node '%s' is not registered", ErrInvalidGraph, g.entry)
	}

	for _, id := range g.order {
		node := g.nodes[id]
		if node.Run == nil {
			return fmt.Errorf("%w: node '%s' has no function", ErrInvalidGraph, id)
		}
		edges := g.edges[id]
		if node.Terminal && len(edges) > 0 {
			return fmt.Errorf("%w: terminal node '%s' has outgoing edges", ErrInvalidGraph, id)
		}

		names := make(map[string]bool)
		for i, e := range edges {
			if _, ok := g.nodes[e.To]; !ok {
				return fmt.Errorf("%w: edge %s -> %s targets an unknown node", ErrInvalidGraph, id, e.To)
			}
			if e.Guard == nil {
				if i != len(edges)-1 {
					return fmt.Errorf("%w: default edge of '%s' must be registered last", ErrInvalidGraph, id)
				}
				continue
			}
			if e.Guard.When == nil {
				return fmt.Errorf("%w: guard '%s' of '%s' has no predicate", ErrInvalidGraph, e.Guard.Name, id)
			}
			if names[e.Guard.Name] {
				return fmt.Errorf("%w: guard '%s' registered twice on '%s'", ErrInvalidGraph, e.Guard.Name, id)
			}
			names[e.Guard.Name] = true
		}
	}
	return nil
}
