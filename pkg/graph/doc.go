/*
Package graph is the declarative workflow model: an enum of node identifiers, the
node functions with their declared field contract, and guarded edges.

Edges of a node are evaluated in registration order and the first guard that holds
wins; an unguarded edge is the default and must come last. The order is an explicit
priority (an error edge is registered before a success edge) so reordering edges
changes behavior and is covered by tests. Conditional guards of one node are
expected to be mutually exclusive; CheckExclusive and Graph.Overlaps assert it.

	b := graph.NewBuilder("intake")
	b.Add("intake").Do(intake).Branch("failed", failed, "report").Go("classify")
	b.Add("classify").Do(classify).Go("report")
	b.Add("report").Do(report).Terminal()
	g, err := b.Build()
*/
package graph
