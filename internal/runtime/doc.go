// Package runtime walks a workflow graph for a single turn.
//
// The walk is bounded by an iteration ceiling, recovers node errors and panics,
// and routes every engine failure into the fallback node exactly once.
// Nodes declare the fields they own; clearing any other field fails the turn.
package runtime
