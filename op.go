package taskgraph

import (
	"slices"

	"github.com/gomlx/taskgraph/types/optypes"
	"github.com/gomlx/taskgraph/types/shapes"
	"github.com/pkg/errors"
)

// Operator is the logical operation wrapped by a task node.
type Operator struct {
	name   string
	opType optypes.OpType
	conf   any
}

// InputConf configures an optypes.Input operator.
type InputConf struct {
	Shape shapes.Shape

	// TimeShape of the produced register. Defaults to [1].
	TimeShape []int64
}

// ReduceSplitConf configures an optypes.ReduceSplit operator: the shapes the reduced blob is split back into.
type ReduceSplitConf struct {
	Shapes []shapes.Shape
}

// RingAllReduceConf configures an optypes.RingAllReduce operator.
type RingAllReduceConf struct {
	// LBI is the logical tensor identity of the reduced blob, tagged on the "out" and "send_i" registers.
	LBI LogicalBlobID

	// NumLinks is the number of ring links (L), each with its own send/receive register pair.
	NumLinks int

	// SliceFactor is the number of slices each rank's segment is cut into, per link.
	SliceFactor int

	// NumRanks is the number of participants of the ring. If 0, the parallel num of the node is used.
	NumRanks int
}

// Validate the ring all-reduce configuration.
func (c RingAllReduceConf) Validate() error {
	if c.NumLinks < 1 {
		return errors.Errorf("ring all-reduce requires at least one link, got %d", c.NumLinks)
	}
	if c.SliceFactor < 1 {
		return errors.Errorf("ring all-reduce requires slice factor >= 1, got %d", c.SliceFactor)
	}
	if c.NumRanks < 0 {
		return errors.Errorf("ring all-reduce requires num ranks >= 0, got %d", c.NumRanks)
	}
	if c.LBI.OpName == "" || c.LBI.BlobName == "" {
		return errors.Errorf("ring all-reduce requires a logical blob id, got %q", c.LBI)
	}
	return nil
}

// NewInputOp creates an operator that feeds a blob of the given shape into the graph.
func NewInputOp(name string, shape shapes.Shape, timeShape ...int64) (*Operator, error) {
	if err := shape.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "input operator %q", name)
	}
	if len(timeShape) == 0 {
		timeShape = []int64{1}
	}
	return newOperator(name, optypes.Input, InputConf{Shape: shape.Clone(), TimeShape: slices.Clone(timeShape)})
}

// NewInputOpFromValue creates an input operator whose shape is taken from a Go value, e.g. [][]float32.
func NewInputOpFromValue(name string, value any, timeShape ...int64) (*Operator, error) {
	shape, err := shapes.FromAnyValue(value)
	if err != nil {
		return nil, errors.WithMessagef(err, "input operator %q", name)
	}
	return NewInputOp(name, shape, timeShape...)
}

// NewIdentityOp creates an operator that forwards its input unchanged.
func NewIdentityOp(name string) (*Operator, error) {
	return newOperator(name, optypes.Identity, nil)
}

// NewReduceConcatOp creates an operator that concatenates the flattened inputs of a reduction group.
func NewReduceConcatOp(name string) (*Operator, error) {
	return newOperator(name, optypes.ReduceConcat, nil)
}

// NewReduceSplitOp creates an operator that splits a reduced blob back into the given shapes.
func NewReduceSplitOp(name string, outputShapes ...shapes.Shape) (*Operator, error) {
	if len(outputShapes) == 0 {
		return nil, errors.Errorf("reduce split operator %q requires at least one output shape", name)
	}
	cloned := make([]shapes.Shape, len(outputShapes))
	for i, shape := range outputShapes {
		cloned[i] = shape.Clone()
	}
	return newOperator(name, optypes.ReduceSplit, ReduceSplitConf{Shapes: cloned})
}

// NewRingAllReduceOp creates the operator of one ring all-reduce participant.
func NewRingAllReduceOp(name string, conf RingAllReduceConf) (*Operator, error) {
	if err := conf.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "operator %q", name)
	}
	return newOperator(name, optypes.RingAllReduce, conf)
}

func newOperator(name string, opType optypes.OpType, conf any) (*Operator, error) {
	if name == "" || name != NormalizeIdentifier(name) {
		return nil, errors.Errorf("operator name %q is not a valid identifier, suggestion %q", name, NormalizeIdentifier(name))
	}
	return &Operator{name: name, opType: opType, conf: conf}, nil
}

// Name of the operator.
func (op *Operator) Name() string { return op.name }

// Type of the operator.
func (op *Operator) Type() optypes.OpType { return op.opType }

// Conf returns the operator configuration: InputConf, ReduceSplitConf, RingAllReduceConf or nil.
func (op *Operator) Conf() any { return op.conf }

// OutputLBI returns the logical blob id of the output blob name bn of the operator.
func (op *Operator) OutputLBI(bn string) LogicalBlobID {
	return LogicalBlobID{OpName: op.name, BlobName: bn}
}

// String implements fmt.Stringer.
func (op *Operator) String() string {
	return op.opType.Name() + "@" + op.name
}
