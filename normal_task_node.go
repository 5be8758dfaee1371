package taskgraph

import (
	"slices"

	"github.com/gomlx/taskgraph/placement"
	"github.com/gomlx/taskgraph/types"
	"github.com/gomlx/taskgraph/types/optypes"
	"github.com/pkg/errors"
)

// NormalTaskNode runs any operator other than the ring all-reduce: inputs, identities, and the
// concat/split stages around a reduction.
//
// It produces a single "out" register, bound to all its out data edges, and consumes the registers of
// its in data edges as "in".
type NormalTaskNode struct {
	taskNodeBase
}

var _ TaskNode = (*NormalTaskNode)(nil)

// numInputsRange returns the accepted number of in data edges for the operator type, max < 0 meaning unbounded.
func numInputsRange(opType optypes.OpType) (minInputs, maxInputs int) {
	switch opType {
	case optypes.Input:
		return 0, 0
	case optypes.ReduceConcat:
		return 1, -1
	default:
		return 1, 1
	}
}

// ProduceAllRegistersAndBindEdges produces the "out" register and binds it to every out data edge.
func (n *NormalTaskNode) ProduceAllRegistersAndBindEdges(_ *placement.Negotiator) error {
	out, err := n.produceRegister(n, "out", 1, 1)
	if err != nil {
		return err
	}
	for _, edge := range n.outEdges {
		if edge.kind != types.DataEdge {
			return errors.Wrapf(ErrTopologyContract, "%s out edge %s: only ring all-reduce nodes have ring links", n, edge)
		}
		if err = edge.AddRegister("out", out); err != nil {
			return err
		}
	}
	return nil
}

// ConsumeAllRegisters consumes the sole register of every in data edge as "in".
func (n *NormalTaskNode) ConsumeAllRegisters() error {
	for _, edge := range n.inEdges {
		if edge.kind != types.DataEdge {
			return errors.Wrapf(ErrTopologyContract, "%s in edge %s: only ring all-reduce nodes have ring links", n, edge)
		}
	}
	edges := n.inDataEdges()
	minInputs, maxInputs := numInputsRange(n.op.Type())
	if len(edges) < minInputs || (maxInputs >= 0 && len(edges) > maxInputs) {
		return errors.Errorf("%s with operator %s has %d in data edges", n, n.op, len(edges))
	}
	for _, edge := range edges {
		r, err := edge.GetSoleRegister()
		if err != nil {
			return err
		}
		n.consumeRegister(n, "in", r)
	}
	return nil
}

// IsReadyForBuild returns whether all consumed registers are locked.
func (n *NormalTaskNode) IsReadyForBuild() bool {
	for _, r := range n.consumed["in"] {
		if !r.IsLocked() {
			return false
		}
	}
	return true
}

// BuildExecGraphAndRegisters creates the execution node of the operator and infers the blobs of "out".
//
// Inputs are bound as "in", or as "in_0", "in_1", ... for the reduce concat.
func (n *NormalTaskNode) BuildExecGraphAndRegisters(parallelCtx ParallelContext) error {
	if !n.IsReadyForBuild() {
		return errors.Wrapf(ErrNotReady, "%s", n)
	}
	node := n.execGraph.NewNode(n.op)
	ins := n.consumed["in"]
	for i, r := range ins {
		bn := "in"
		if n.op.Type() == optypes.ReduceConcat {
			bn = inputBn(i)
		}
		if err := node.BindBnWithRegister(bn, r); err != nil {
			return err
		}
	}
	out := n.produced["out"]
	if n.op.Type() == optypes.ReduceSplit {
		conf := n.op.Conf().(ReduceSplitConf)
		for i := range conf.Shapes {
			if err := out.AddLBI(n.op.OutputLBI(outputBn(i))); err != nil {
				return err
			}
		}
	} else if err := out.AddLBI(n.op.OutputLBI("out")); err != nil {
		return err
	}
	if err := node.BindBnWithRegister("out", out); err != nil {
		return err
	}
	if err := node.InferBlobDescs(parallelCtx); err != nil {
		return err
	}
	n.built = true
	return nil
}

// InferProducedDataRegisterTimeShape sets the time shape of "out": the one of the inputs, which must agree,
// or the configured one for input operators.
func (n *NormalTaskNode) InferProducedDataRegisterTimeShape() error {
	out := n.produced["out"]
	if n.op.Type() == optypes.Input {
		return out.SetTimeShape(n.op.Conf().(InputConf).TimeShape)
	}
	ins := n.consumed["in"]
	if len(ins) == 0 {
		return errors.Errorf("%s has no input to take the time shape from", n)
	}
	timeShape := ins[0].TimeShape()
	for _, r := range ins[1:] {
		if !slices.Equal(r.TimeShape(), timeShape) {
			return errors.Wrapf(ErrInvariant, "%s inputs have different time shapes: %s has %v, %s has %v",
				n, ins[0], timeShape, r, r.TimeShape())
		}
	}
	return out.SetTimeShape(timeShape)
}
