package graph

import (
	"fmt"

	"github.com/aretw0/dispatch/pkg/domain"
)

// Builder manages the graph construction.
type Builder struct {
	entry NodeID
	order []NodeID
	nodes map[NodeID]*NodeBuilder
}

// NewBuilder creates a new graph builder starting at entry.
func NewBuilder(entry NodeID) *Builder {
	return &Builder{
		entry: entry,
		nodes: make(map[NodeID]*NodeBuilder),
	}
}

// Add creates a new node in the graph.
// If the node already exists, it returns the existing builder.
func (b *Builder) Add(id NodeID) *NodeBuilder {
	if nb, ok := b.nodes[id]; ok {
		return nb
	}
	nb := &NodeBuilder{
		node:    Node{ID: id},
		builder: b,
	}
	b.nodes[id] = nb
	b.order = append(b.order, id)
	return nb
}

// Build compiles and validates the graph.
func (b *Builder) Build() (*Graph, error) {
	g := &Graph{
		entry: b.entry,
		order: append([]NodeID(nil), b.order...),
		nodes: make(map[NodeID]*Node, len(b.nodes)),
		edges: make(map[NodeID][]Edge, len(b.nodes)),
	}
	for _, id := range b.order {
		nb := b.nodes[id]
		node := nb.node
		g.nodes[id] = &node
		g.edges[id] = append([]Edge(nil), nb.edges...)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// MustBuild is Build for static graphs; it panics on a configuration defect.
func (b *Builder) MustBuild() *Graph {
	g, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("graph: %v", err))
	}
	return g
}

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	node    Node
	edges   []Edge
	builder *Builder
}

// Do sets the node function.
func (n *NodeBuilder) Do(fn NodeFunc) *NodeBuilder {
	n.node.Run = fn
	return n
}

// Reads declares the fields the node consumes.
func (n *NodeBuilder) Reads(fields ...domain.Field) *NodeBuilder {
	n.node.Reads = domain.Fields(fields...)
	return n
}

// Writes declares the fields the node owns; only these may be cleared by it.
func (n *NodeBuilder) Writes(fields ...domain.Field) *NodeBuilder {
	n.node.Writes = domain.Fields(fields...)
	return n
}

// Branch adds a guarded transition. Guards are evaluated in the order added.
func (n *NodeBuilder) Branch(name string, when func(*domain.Turn) bool, target NodeID) *NodeBuilder {
	n.edges = append(n.edges, Edge{
		From:  n.node.ID,
		To:    target,
		Guard: &Guard{Name: name, When: when},
	})
	return n
}

// Go adds the unconditional (default) transition to the target node.
func (n *NodeBuilder) Go(target NodeID) *NodeBuilder {
	n.edges = append(n.edges, Edge{From: n.node.ID, To: target})
	return n
}

// Terminal marks the node as a sink; the runtime stops after running it.
func (n *NodeBuilder) Terminal() *NodeBuilder {
	n.node.Terminal = true
	return n
}
