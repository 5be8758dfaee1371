package taskgraph

import (
	"fmt"
	"io"
	"slices"

	"github.com/gomlx/taskgraph/memsharing"
	"github.com/gomlx/taskgraph/placement"
	"github.com/gomlx/taskgraph/types"
	"github.com/gomlx/taskgraph/types/tasktypes"
	"github.com/pkg/errors"
)

// TaskNode is a vertex of the task graph: one operator placed on one device.
//
// The lifecycle methods are called by TaskGraph.Compile, in this order: ProduceAllRegistersAndBindEdges,
// ConsumeAllRegisters and PinConsumedRegisterMemCase for all nodes, then for each node once it
// IsReadyForBuild: BuildExecGraphAndRegisters, InferProducedDataRegisterTimeShape and LockProducedRegisters.
//
// TaskNode is implemented by NormalTaskNode and RingAllReduceTaskNode.
type TaskNode interface {
	placement.Endpoint
	fmt.Stringer

	ID() int
	Name() string

	// TaskType is the kind tag of the node, checked by value to identify ring all-reduce peers.
	TaskType() tasktypes.TaskType

	Op() *Operator
	ParallelContext() ParallelContext

	// GetProducedRegister returns the register produced under role name, or nil.
	GetProducedRegister(name string) *Register

	ProduceAllRegistersAndBindEdges(negotiator *placement.Negotiator) error
	ConsumeAllRegisters() error
	PinConsumedRegisterMemCase() error
	IsReadyForBuild() bool
	BuildExecGraphAndRegisters(parallelCtx ParallelContext) error
	InferProducedDataRegisterTimeShape() error
	LockProducedRegisters() error

	base() *taskNodeBase
}

// ParallelContext is the position of a node among the parallel instances of its operator.
type ParallelContext struct {
	ParallelID  int
	ParallelNum int
}

// NodePlacement is where a task node runs.
type NodePlacement struct {
	MachineID  int
	DeviceType types.DeviceType

	// DeviceID is the physical device id within the machine.
	DeviceID int

	ParallelID  int
	ParallelNum int
}

// Validate the placement.
func (p NodePlacement) Validate() error {
	if p.DeviceType == types.DeviceInvalid {
		return errors.New("invalid device type")
	}
	if p.MachineID < 0 || p.DeviceID < 0 {
		return errors.Errorf("invalid machine/device ids %d/%d", p.MachineID, p.DeviceID)
	}
	if p.ParallelNum < 1 || p.ParallelID < 0 || p.ParallelID >= p.ParallelNum {
		return errors.Errorf("invalid parallel id %d for parallel num %d", p.ParallelID, p.ParallelNum)
	}
	return nil
}

// taskNodeBase holds the state and bookkeeping shared by all task node types.
type taskNodeBase struct {
	graph     *TaskGraph
	id        int
	name      string
	taskType  tasktypes.TaskType
	op        *Operator
	placement NodePlacement

	produced      map[string]*Register
	producedOrder []string
	consumed      map[string][]*Register
	consumedOrder []string

	inEdges, outEdges []*TaskEdge

	execGraph *ExecGraph
	built     bool

	// reduceGroupID is the reduction group the node belongs to, or -1.
	reduceGroupID int
	rankCtx       memsharing.RankCtx
}

func (n *taskNodeBase) init(graph *TaskGraph, id int, name string, taskType tasktypes.TaskType, op *Operator, nodePlacement NodePlacement) {
	n.graph = graph
	n.id = id
	n.name = name
	n.taskType = taskType
	n.op = op
	n.placement = nodePlacement
	n.produced = make(map[string]*Register)
	n.consumed = make(map[string][]*Register)
	n.execGraph = &ExecGraph{}
	n.reduceGroupID = -1
}

func (n *taskNodeBase) base() *taskNodeBase { return n }

// ID of the node, unique in the graph.
func (n *taskNodeBase) ID() int { return n.id }

// Name of the node.
func (n *taskNodeBase) Name() string { return n.name }

// TaskType is the kind tag of the node.
func (n *taskNodeBase) TaskType() tasktypes.TaskType { return n.taskType }

// Op returns the operator wrapped by the node.
func (n *taskNodeBase) Op() *Operator { return n.op }

// MachineID returns the machine the node runs on.
func (n *taskNodeBase) MachineID() int { return n.placement.MachineID }

// DeviceType returns the type of device the node runs on.
func (n *taskNodeBase) DeviceType() types.DeviceType { return n.placement.DeviceType }

// DeviceID returns the physical device id, within its machine, the node runs on.
func (n *taskNodeBase) DeviceID() int { return n.placement.DeviceID }

// ParallelID returns the index of the node among the parallel instances of its operator.
func (n *taskNodeBase) ParallelID() int { return n.placement.ParallelID }

// ParallelNum returns the number of parallel instances of the node's operator.
func (n *taskNodeBase) ParallelNum() int { return n.placement.ParallelNum }

// ParallelContext returns the parallel id and num of the node.
func (n *taskNodeBase) ParallelContext() ParallelContext {
	return ParallelContext{ParallelID: n.placement.ParallelID, ParallelNum: n.placement.ParallelNum}
}

// InEdges returns the edges arriving at the node.
func (n *taskNodeBase) InEdges() []*TaskEdge { return slices.Clone(n.inEdges) }

// OutEdges returns the edges leaving the node.
func (n *taskNodeBase) OutEdges() []*TaskEdge { return slices.Clone(n.outEdges) }

// ExecGraph returns the execution subgraph of the node, empty until the node is built.
func (n *taskNodeBase) ExecGraph() *ExecGraph { return n.execGraph }

// IsBuilt returns whether BuildExecGraphAndRegisters already ran for the node.
func (n *taskNodeBase) IsBuilt() bool { return n.built }

// SetRankCtx places the node in the reduction group groupID, at the given rank context.
func (n *taskNodeBase) SetRankCtx(groupID int, rankCtx memsharing.RankCtx) {
	n.reduceGroupID = groupID
	n.rankCtx = rankCtx
}

// GetRankCtx returns the rank context of the node within its reduction group.
func (n *taskNodeBase) GetRankCtx() memsharing.RankCtx { return n.rankCtx }

// ReduceGroupID returns the reduction group of the node, or -1 if it doesn't belong to any.
func (n *taskNodeBase) ReduceGroupID() int { return n.reduceGroupID }

// GetProducedRegister returns the register produced under role name, or nil.
func (n *taskNodeBase) GetProducedRegister(name string) *Register {
	return n.produced[name]
}

// ProducedRegisterNames returns the role names of the produced registers, in production order.
func (n *taskNodeBase) ProducedRegisterNames() []string {
	return slices.Clone(n.producedOrder)
}

// ConsumedRegisters returns the registers consumed under role name.
func (n *taskNodeBase) ConsumedRegisters(name string) []*Register {
	return slices.Clone(n.consumed[name])
}

// ConsumedRegisterNames returns the role names of the consumed registers, in consumption order.
func (n *taskNodeBase) ConsumedRegisterNames() []string {
	return slices.Clone(n.consumedOrder)
}

// GetSoleConsumedRegister returns the only register consumed under role name.
func (n *taskNodeBase) GetSoleConsumedRegister(name string) (*Register, error) {
	registers := n.consumed[name]
	if len(registers) != 1 {
		return nil, errors.Errorf("task node %s consumes %d registers as %q, expected exactly one", n.name, len(registers), name)
	}
	return registers[0], nil
}

// SoleInDataEdge returns the only data edge arriving at the node.
func (n *taskNodeBase) SoleInDataEdge() (*TaskEdge, error) {
	edges := n.inDataEdges()
	if len(edges) != 1 {
		return nil, errors.Errorf("task node %s has %d in data edges, expected exactly one", n.name, len(edges))
	}
	return edges[0], nil
}

func (n *taskNodeBase) inDataEdges() []*TaskEdge {
	var edges []*TaskEdge
	for _, edge := range n.inEdges {
		if edge.kind == types.DataEdge {
			edges = append(edges, edge)
		}
	}
	return edges
}

// produceRegister creates a register owned by the node. Its memory defaults to the node's device memory,
// or pageable host memory for CPU nodes.
func (n *taskNodeBase) produceRegister(self TaskNode, name string, minRegisterNum, maxRegisterNum int) (*Register, error) {
	if _, found := n.produced[name]; found {
		return nil, errors.Errorf("task node %s already produces a register %q", n.name, name)
	}
	memCase := types.HostPageableMem()
	if n.placement.DeviceType == types.DeviceGPU {
		memCase = types.DeviceMem(n.placement.DeviceID)
	}
	r := newRegister(n.graph.newRegisterID(), name, self, minRegisterNum, maxRegisterNum, memCase)
	n.produced[name] = r
	n.producedOrder = append(n.producedOrder, name)
	return r, nil
}

func (n *taskNodeBase) consumeRegister(self TaskNode, name string, r *Register) {
	if _, found := n.consumed[name]; !found {
		n.consumedOrder = append(n.consumedOrder, name)
	}
	n.consumed[name] = append(n.consumed[name], r)
	r.addConsumer(self)
}

// forEachConsumedRegister iterates over consumed registers in consumption order.
func (n *taskNodeBase) forEachConsumedRegister(fn func(name string, r *Register) error) error {
	for _, name := range n.consumedOrder {
		for _, r := range n.consumed[name] {
			if err := fn(name, r); err != nil {
				return err
			}
		}
	}
	return nil
}

// PinConsumedRegisterMemCase pins the host-resident registers consumed by an accelerator node to its device.
func (n *taskNodeBase) PinConsumedRegisterMemCase() error {
	if n.placement.DeviceType != types.DeviceGPU {
		return nil
	}
	return n.pinConsumedRegisters()
}

func (n *taskNodeBase) pinConsumedRegisters() error {
	return n.forEachConsumedRegister(func(_ string, r *Register) error {
		memCase, err := r.mutMemCase()
		if err != nil {
			return err
		}
		placement.PinConsumedMemCase(memCase, n.placement.DeviceID)
		return nil
	})
}

// LockProducedRegisters locks every register produced by the node.
func (n *taskNodeBase) LockProducedRegisters() error {
	for _, name := range n.producedOrder {
		if err := n.produced[name].Lock(); err != nil {
			return err
		}
	}
	return nil
}

// String implements fmt.Stringer.
func (n *taskNodeBase) String() string {
	return fmt.Sprintf("%s#%d(%s)", n.name, n.id, n.taskType.Name())
}

// Write the node with its registers and execution subgraph.
func (n *taskNodeBase) Write(writer io.Writer, indentation string) error {
	var err error
	w := func(format string, args ...any) {
		if err != nil {
			// No op if an error was encountered earlier
			return
		}
		_, err = fmt.Fprintf(writer, format, args...)
	}
	we := func(e elementWriter, indentation string) {
		if err != nil {
			// No op if an error was encountered earlier
			return
		}
		err = e.Write(writer, indentation)
	}

	nextIndentation := indentation + IndentationStep
	w("%snode %s", indentation, n)
	if n.op != nil {
		w(" op=%s", n.op)
	}
	w(" @machine:%d/%s:%d parallel=%d/%d", n.placement.MachineID, n.placement.DeviceType,
		n.placement.DeviceID, n.placement.ParallelID, n.placement.ParallelNum)
	if n.reduceGroupID >= 0 {
		w(" reduce_group=%d %s", n.reduceGroupID, n.rankCtx)
	}
	w(" {\n")
	for _, name := range n.producedOrder {
		w("%sproduced %s: ", nextIndentation, name)
		we(n.produced[name], "")
		w("\n")
	}
	for _, name := range n.consumedOrder {
		for _, r := range n.consumed[name] {
			w("%sconsumed %s: %s\n", nextIndentation, name, r)
		}
	}
	we(n.execGraph, nextIndentation)
	w("%s}\n", indentation)
	return err
}
