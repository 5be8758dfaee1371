// Package taskgraph builds the static execution graph of a distributed tensor computation: task nodes
// placed on devices, the registers (described buffers) they produce and consume, and the edges binding them.
//
// The central piece is the RingAllReduceTaskNode, one participant of a multi-device ring all-reduce. Its
// lifecycle (produce, consume, build, propagate time shapes, share memory) is driven by TaskGraph.Compile.
//
// Among its features:
//
//   - Register wiring between nodes, including the per-link send/receive buffers of ring all-reduces.
//   - Memory placement negotiation, with accelerator peer-to-peer access (see package placement).
//   - Blob shape inference for every register (see package shapeinference).
//   - Aliasing of reduction registers onto a shared arena (see package memsharing).
//   - Human-readable dumps of the compiled graph, see TaskGraph.Write.
//
// Compilation happens once, ahead of execution. All errors are returned to the caller, who is expected to
// abort: they signal a malformed topology or an unsupported hardware configuration.
package taskgraph

import "github.com/gomlx/taskgraph/internal/utils"

// NormalizeIdentifier converts the name of a graph, node or operator to a valid one: only letters, digits,
// and underscores are allowed.
//
// Invalid characters are replaced with underscores.
// If the name starts with a digit, it is prefixed with an underscore.
func NormalizeIdentifier(name string) string {
	return utils.NormalizeIdentifier(name)
}
