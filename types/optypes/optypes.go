// Package optypes defines OpType and lists the logical operations a task node can wrap.
package optypes

import (
	"github.com/gomlx/taskgraph/internal/utils"
)

// OpType is an enum of the logical operations known to the task graph.
type OpType int

//go:generate go tool enumer -type=OpType optypes.go

const (
	Invalid OpType = iota

	// Input produces a tensor from outside the graph (a variable or a data feed). It has no inputs.
	Input

	// Identity forwards its input unchanged.
	Identity

	// ReduceConcat concatenates (flattened) the tensors of a reduction group into one contiguous blob.
	ReduceConcat

	// ReduceSplit splits the contiguous blob produced by a reduction back into the original tensors.
	ReduceSplit

	// RingAllReduce is one participant of a multi-device ring all-reduce.
	RingAllReduce

	// Last should always be kept the last, it is used as a counter/marker.
	Last
)

var (
	// nameMappings maps OpType to the name used in dumps, when the default "snake case" doesn't work.
	nameMappings = map[OpType]string{
		RingAllReduce: "cuda_ring_all_reduce",
	}
)

// Name returns the snake-case name of the operation, as used in graph dumps.
func (op OpType) Name() string {
	name, ok := nameMappings[op]
	if !ok {
		name = utils.ToSnakeCase(op.String())
	}
	return name
}
