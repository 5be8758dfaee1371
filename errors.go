package taskgraph

import "github.com/pkg/errors"

var (
	// ErrTopologyContract is returned when the ring topology given to a node is inconsistent with the graph
	// edges: a receive-from peer that is not a ring all-reduce node, a send-to peer wired as a plain data
	// consumer, or mismatched neighbor lists.
	ErrTopologyContract = errors.New("topology contract violation")

	// ErrInvariant is returned when a consistency check of the compiled graph fails.
	ErrInvariant = errors.New("invariant violation")

	// ErrNotReady is returned when a node is built before its inputs are locked, or when compilation can't
	// make progress because no remaining node becomes ready.
	ErrNotReady = errors.New("task node not ready for build")
)
