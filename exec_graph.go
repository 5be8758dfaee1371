package taskgraph

import (
	"fmt"
	"io"
	"slices"

	"github.com/gomlx/taskgraph/shapeinference"
	"github.com/gomlx/taskgraph/types/optypes"
	"github.com/gomlx/taskgraph/types/shapes"
	"github.com/pkg/errors"
)

// ExecGraph is the execution subgraph of a task node: the operators it runs, each bound to registers.
type ExecGraph struct {
	nodes []*ExecNode
}

// NewNode adds an execution node running op.
func (g *ExecGraph) NewNode(op *Operator) *ExecNode {
	node := &ExecNode{op: op, bnInOp2Register: make(map[string]*Register)}
	g.nodes = append(g.nodes, node)
	return node
}

// Nodes returns the execution nodes, in creation order.
func (g *ExecGraph) Nodes() []*ExecNode { return slices.Clone(g.nodes) }

// SoleNode returns the only execution node of the graph.
func (g *ExecGraph) SoleNode() (*ExecNode, error) {
	if len(g.nodes) != 1 {
		return nil, errors.Errorf("exec graph has %d nodes, expected exactly one", len(g.nodes))
	}
	return g.nodes[0], nil
}

// Write the execution nodes, one per line.
func (g *ExecGraph) Write(writer io.Writer, indentation string) error {
	for _, node := range g.nodes {
		if err := node.Write(writer, indentation); err != nil {
			return err
		}
	}
	return nil
}

// ExecNode runs one operator, with each of its blob names (bn) bound to a register.
type ExecNode struct {
	op *Operator

	bnInOp2Register map[string]*Register
	bns             []string
}

// Op returns the operator run by the node.
func (node *ExecNode) Op() *Operator { return node.op }

// BindBnWithRegister binds the blob name bn of the operator to the register.
func (node *ExecNode) BindBnWithRegister(bn string, r *Register) error {
	if r == nil {
		return errors.Errorf("%s: can't bind %q to a nil register", node.op, bn)
	}
	if existing, found := node.bnInOp2Register[bn]; found {
		return errors.Errorf("%s: %q already bound to %s", node.op, bn, existing)
	}
	node.bnInOp2Register[bn] = r
	node.bns = append(node.bns, bn)
	return nil
}

// Register returns the register bound to bn, or nil.
func (node *ExecNode) Register(bn string) *Register { return node.bnInOp2Register[bn] }

// Bns returns the bound blob names, in binding order.
func (node *ExecNode) Bns() []string { return slices.Clone(node.bns) }

func inputBn(i int) string  { return fmt.Sprintf("in_%d", i) }
func outputBn(i int) string { return fmt.Sprintf("out_%d", i) }

func (node *ExecNode) boundRegister(bn string) (*Register, error) {
	r := node.bnInOp2Register[bn]
	if r == nil {
		return nil, errors.Errorf("%s: %q is not bound", node.op, bn)
	}
	return r, nil
}

func (node *ExecNode) inputShape(bn string) (shapes.Shape, error) {
	r, err := node.boundRegister(bn)
	if err != nil {
		return shapes.Invalid(), err
	}
	return r.SoleBlobDesc()
}

// InferBlobDescs sets the blob descriptions of the output registers from the ones of the inputs,
// according to the operator type.
func (node *ExecNode) InferBlobDescs(parallelCtx ParallelContext) error {
	out, err := node.boundRegister("out")
	if err != nil {
		return err
	}
	op := node.op
	switch op.Type() {
	case optypes.Input:
		return out.SetBlobDesc(op.OutputLBI("out"), op.Conf().(InputConf).Shape)

	case optypes.Identity:
		in, err := node.inputShape("in")
		if err != nil {
			return err
		}
		shape, err := shapeinference.Identity(in)
		if err != nil {
			return err
		}
		return out.SetBlobDesc(op.OutputLBI("out"), shape)

	case optypes.ReduceConcat:
		var inputs []shapes.Shape
		for i := 0; node.bnInOp2Register[inputBn(i)] != nil; i++ {
			in, err := node.inputShape(inputBn(i))
			if err != nil {
				return err
			}
			inputs = append(inputs, in)
		}
		shape, err := shapeinference.ReduceConcat(inputs)
		if err != nil {
			return err
		}
		return out.SetBlobDesc(op.OutputLBI("out"), shape)

	case optypes.ReduceSplit:
		in, err := node.inputShape("in")
		if err != nil {
			return err
		}
		outputs, err := shapeinference.ReduceSplit(in, op.Conf().(ReduceSplitConf).Shapes)
		if err != nil {
			return err
		}
		for i, shape := range outputs {
			if err = out.SetBlobDesc(op.OutputLBI(outputBn(i)), shape); err != nil {
				return err
			}
		}
		return nil

	case optypes.RingAllReduce:
		return node.inferRingAllReduce(parallelCtx)

	default:
		return errors.Errorf("no shape inference for operator %s", op)
	}
}

func (node *ExecNode) inferRingAllReduce(parallelCtx ParallelContext) error {
	conf := node.op.Conf().(RingAllReduceConf)
	in, err := node.inputShape("in")
	if err != nil {
		return err
	}
	numRanks := conf.NumRanks
	if numRanks == 0 {
		numRanks = parallelCtx.ParallelNum
	}
	outShape, sendShapes, err := shapeinference.RingAllReduce(in, conf.NumLinks, conf.SliceFactor, numRanks)
	if err != nil {
		return err
	}
	out, err := node.boundRegister("out")
	if err != nil {
		return err
	}
	if err = out.SetBlobDesc(conf.LBI, outShape); err != nil {
		return err
	}
	for link, shape := range sendShapes {
		if _, err = node.boundRegister(recvName(link)); err != nil {
			return err
		}
		send, err := node.boundRegister(sendName(link))
		if err != nil {
			return err
		}
		if err = send.SetBlobDesc(conf.LBI, shape); err != nil {
			return err
		}
	}
	return nil
}

// Write the node as "op(bn=register, ...)".
func (node *ExecNode) Write(writer io.Writer, indentation string) error {
	var err error
	w := func(format string, args ...any) {
		if err != nil {
			// No op if an error was encountered earlier
			return
		}
		_, err = fmt.Fprintf(writer, format, args...)
	}
	w("%sexec %s(", indentation, node.op)
	for i, bn := range node.bns {
		if i > 0 {
			w(", ")
		}
		w("%s=%s", bn, node.bnInOp2Register[bn])
	}
	w(")\n")
	return err
}
