// Package tasktypes defines TaskType, the kind tag carried by every task node.
//
// Task nodes are told apart by their TaskType value, e.g., a ring all-reduce node checks that its
// receive-from peers are also of type RingAllReduce before binding their registers.
package tasktypes

import (
	"github.com/gomlx/taskgraph/internal/utils"
)

// TaskType enumerates the kinds of task nodes.
type TaskType int

//go:generate go tool enumer -type=TaskType tasktypes.go

const (
	Invalid TaskType = iota

	// NormalForward is a generic compute node: one sole operator, one "out" register and at most one "in".
	NormalForward

	// ReduceConcat assembles the tensors of a reduction group into one contiguous blob.
	ReduceConcat

	// ReduceSplit splits the reduced blob back into per-tensor registers.
	ReduceSplit

	// RingAllReduce is one participant of a ring all-reduce, exchanging slices with its ring neighbours.
	RingAllReduce
)

// Name returns the snake-case name of the task type.
func (t TaskType) Name() string {
	return utils.ToSnakeCase(t.String())
}

// IsReduce returns whether the task type is a stage of a reduction group, and hence can take part
// of the reduction's memory sharing.
func (t TaskType) IsReduce() bool {
	return t == ReduceConcat || t == ReduceSplit || t == RingAllReduce
}
