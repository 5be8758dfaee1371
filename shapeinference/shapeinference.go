// Package shapeinference calculates the blob shapes produced by the operators of a task graph and validates
// their inputs.
//
// Each operator type gets its own shape inference function. They are pure functions and are used by
// taskgraph.ExecNode.InferBlobDescs to fill the blob descriptions of the produced registers.
package shapeinference

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/taskgraph/types/shapes"
	"github.com/pkg/errors"
)

// Identity returns the operand shape, after validating it.
func Identity(operand shapes.Shape) (output shapes.Shape, err error) {
	if err = operand.Validate(); err != nil {
		return shapes.Invalid(), errors.WithMessage(err, "Identity")
	}
	return operand.Clone(), nil
}

// ReduceConcat returns the shape of the contiguous blob holding all the (flattened) inputs of a reduction group.
//
// All inputs must have the same dtype. The output is rank-1 with the total number of elements.
func ReduceConcat(inputs []shapes.Shape) (output shapes.Shape, err error) {
	if len(inputs) == 0 {
		return shapes.Invalid(), errors.Errorf("ReduceConcat requires at least one input shape")
	}
	dtype := inputs[0].DType
	total := 0
	for i, input := range inputs {
		if err = input.Validate(); err != nil {
			return shapes.Invalid(), errors.WithMessagef(err, "input #%d of ReduceConcat", i)
		}
		if input.DType != dtype {
			return shapes.Invalid(), errors.Errorf("mismatched DTypes for ReduceConcat: input #0 has %s, input #%d has %s",
				dtype, i, input.DType)
		}
		total += input.Size()
	}
	return shapes.Make(dtype, total), nil
}

// ReduceSplit validates that the contiguous blob of a reduction group can be split back into the given shapes,
// and returns them.
func ReduceSplit(operand shapes.Shape, outputShapes []shapes.Shape) (outputs []shapes.Shape, err error) {
	if err = operand.Validate(); err != nil {
		return nil, errors.WithMessage(err, "operand of ReduceSplit")
	}
	if len(outputShapes) == 0 {
		return nil, errors.Errorf("ReduceSplit requires at least one output shape")
	}
	total := 0
	outputs = make([]shapes.Shape, len(outputShapes))
	for i, output := range outputShapes {
		if err = output.Validate(); err != nil {
			return nil, errors.WithMessagef(err, "output #%d of ReduceSplit", i)
		}
		if output.DType != operand.DType {
			return nil, errors.Errorf("mismatched DTypes for ReduceSplit: operand has %s, output #%d has %s",
				operand.DType, i, output.DType)
		}
		total += output.Size()
		outputs[i] = output.Clone()
	}
	if total != operand.Size() {
		return nil, errors.Errorf("ReduceSplit outputs have %d elements in total, but operand %s has %d",
			total, operand, operand.Size())
	}
	return outputs, nil
}

// RingAllReduce returns the shapes produced by one participant of a ring all-reduce over the operand.
//
// The reduced output has the same shape as the operand. The operand is split evenly across the numLinks
// rings, and each ring's part in numRanks*sliceFactor slices: each send buffer holds one slice, a rank-1
// blob of the operand's dtype. Sizes are rounded up, the last slice may be partially used.
func RingAllReduce(operand shapes.Shape, numLinks, sliceFactor, numRanks int) (output shapes.Shape, send []shapes.Shape, err error) {
	if err = operand.Validate(); err != nil {
		return shapes.Invalid(), nil, errors.WithMessage(err, "operand of RingAllReduce")
	}
	if operand.DType == dtypes.Bool {
		return shapes.Invalid(), nil, errors.Errorf("RingAllReduce doesn't support booleans, got %s", operand)
	}
	if numLinks < 1 {
		return shapes.Invalid(), nil, errors.Errorf("RingAllReduce requires numLinks >= 1, got %d", numLinks)
	}
	if sliceFactor < 1 {
		return shapes.Invalid(), nil, errors.Errorf("RingAllReduce requires sliceFactor >= 1, got %d", sliceFactor)
	}
	if numRanks < 1 {
		return shapes.Invalid(), nil, errors.Errorf("RingAllReduce requires numRanks >= 1, got %d", numRanks)
	}
	linkElems := ceilDiv(operand.Size(), numLinks)
	sliceElems := ceilDiv(linkElems, numRanks*sliceFactor)
	send = make([]shapes.Shape, numLinks)
	for i := range send {
		send[i] = shapes.Make(operand.DType, sliceElems)
	}
	return operand.Clone(), send, nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
