package taskgraph

import (
	"bytes"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/gomlx/taskgraph/config"
	"github.com/gomlx/taskgraph/hardware"
	"github.com/gomlx/taskgraph/memsharing"
	"github.com/gomlx/taskgraph/placement"
	"github.com/gomlx/taskgraph/types"
	"github.com/gomlx/taskgraph/types/optypes"
	"github.com/gomlx/taskgraph/types/tasktypes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// TaskGraph holds the task nodes of a computation and the edges between them.
// See details in New.
type TaskGraph struct {
	name  string
	nodes []TaskNode
	edges []*TaskEdge

	nextRegisterID  int
	nextMemSharedID int
	compiled        bool
}

// New creates a new TaskGraph in construction.
//
// Create the nodes with NewNormalNode and NewRingAllReduceNode, connect them with Connect, give each ring
// node its peers with RingAllReduceTaskNode.SetRecvSendNodes (see internal/ringplan), and finally call
// Compile, which produces, wires and builds the registers of every node.
func New(name string) *TaskGraph {
	return &TaskGraph{name: name}
}

const IndentationStep = "  "

// elementWriter represents elements of the dump that know how to write themselves.
type elementWriter interface {
	Write(w io.Writer, indentation string) error
}

// Name of the graph.
func (g *TaskGraph) Name() string { return g.name }

// Nodes returns the nodes of the graph, in creation order.
func (g *TaskGraph) Nodes() []TaskNode { return slices.Clone(g.nodes) }

// Edges returns the edges of the graph, in creation order.
func (g *TaskGraph) Edges() []*TaskEdge { return slices.Clone(g.edges) }

func (g *TaskGraph) newRegisterID() int {
	id := g.nextRegisterID
	g.nextRegisterID++
	return id
}

func (g *TaskGraph) newMemSharedID() int {
	id := g.nextMemSharedID
	g.nextMemSharedID++
	return id
}

func (g *TaskGraph) checkNewNode(name string, op *Operator, nodePlacement NodePlacement) error {
	if g.compiled {
		return errors.Errorf("graph %q already compiled, can't add node %q", g.name, name)
	}
	if name == "" || name != NormalizeIdentifier(name) {
		return errors.Errorf("task node name %q is not a valid identifier, suggestion %q", name, NormalizeIdentifier(name))
	}
	for _, node := range g.nodes {
		if node.Name() == name {
			return errors.Errorf("duplicate task node name %q", name)
		}
	}
	if op == nil {
		return errors.Errorf("task node %q has no operator", name)
	}
	if err := nodePlacement.Validate(); err != nil {
		return errors.WithMessagef(err, "task node %q", name)
	}
	return nil
}

// NewNormalNode adds a node running op, of the given task type (anything but tasktypes.RingAllReduce).
func (g *TaskGraph) NewNormalNode(name string, taskType tasktypes.TaskType, op *Operator, nodePlacement NodePlacement) (*NormalTaskNode, error) {
	if err := g.checkNewNode(name, op, nodePlacement); err != nil {
		return nil, err
	}
	if taskType == tasktypes.RingAllReduce || taskType == tasktypes.Invalid {
		return nil, errors.Errorf("task node %q: invalid task type %s for a normal node", name, taskType)
	}
	if op.Type() == optypes.RingAllReduce {
		return nil, errors.Errorf("task node %q: operator %s requires a ring all-reduce node", name, op)
	}
	node := &NormalTaskNode{}
	node.init(g, len(g.nodes), name, taskType, op, nodePlacement)
	g.nodes = append(g.nodes, node)
	return node, nil
}

// NewRingAllReduceNode adds a ring all-reduce participant. The op must be a ring all-reduce operator.
func (g *TaskGraph) NewRingAllReduceNode(name string, op *Operator, nodePlacement NodePlacement) (*RingAllReduceTaskNode, error) {
	if err := g.checkNewNode(name, op, nodePlacement); err != nil {
		return nil, err
	}
	conf, ok := op.Conf().(RingAllReduceConf)
	if op.Type() != optypes.RingAllReduce || !ok {
		return nil, errors.Errorf("task node %q: operator %s is not a ring all-reduce", name, op)
	}
	node := &RingAllReduceTaskNode{conf: conf}
	node.init(g, len(g.nodes), name, tasktypes.RingAllReduce, op, nodePlacement)
	g.nodes = append(g.nodes, node)
	return node, nil
}

// Connect adds an edge from src to dst.
func (g *TaskGraph) Connect(src, dst TaskNode, kind types.EdgeKind) (*TaskEdge, error) {
	if g.compiled {
		return nil, errors.Errorf("graph %q already compiled, can't connect %s to %s", g.name, src, dst)
	}
	if src == nil || dst == nil {
		return nil, errors.New("can't connect nil task nodes")
	}
	if src == dst {
		return nil, errors.Errorf("can't connect %s to itself", src)
	}
	for _, node := range []TaskNode{src, dst} {
		if node.base().graph != g {
			return nil, errors.Errorf("task node %s doesn't belong to graph %q", node, g.name)
		}
	}
	for _, edge := range src.base().outEdges {
		if edge.dst == dst && edge.kind == kind {
			return edge, nil
		}
	}
	edge := &TaskEdge{src: src, dst: dst, kind: kind, registers: make(map[string]*Register)}
	src.base().outEdges = append(src.base().outEdges, edge)
	dst.base().inEdges = append(dst.base().inEdges, edge)
	g.edges = append(g.edges, edge)
	return edge, nil
}

// CompileOptions configures TaskGraph.Compile.
type CompileOptions struct {
	// Config is the job configuration. If nil, config.Default() is used.
	Config *config.JobConfig

	// Device is used to negotiate accelerator peer access. It is only required if peer access is enabled.
	Device hardware.DeviceContext

	// MemSharing overrides the shared arenas of every ring all-reduce node. If nil, one
	// memsharing.ReduceMemSharingCtx is created per ring all-reduce node, each with its own id.
	MemSharing memsharing.Authority
}

// Compile produces, wires and builds the registers of every node of the graph:
//
//  1. ProduceAllRegistersAndBindEdges for all nodes.
//  2. ConsumeAllRegisters and then PinConsumedRegisterMemCase for all nodes.
//  3. Repeatedly, every node that IsReadyForBuild is built, gets its time shapes and has its registers locked.
//     It fails with ErrNotReady if some nodes never become ready.
//  4. If enabled in the configuration, ring all-reduce nodes alias their registers onto shared arenas, one per
//     participant of each reduction group.
//
// Any error stops the compilation, and the graph should be discarded.
func (g *TaskGraph) Compile(opts CompileOptions) error {
	if g.compiled {
		return errors.Errorf("graph %q already compiled", g.name)
	}
	g.compiled = true
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	negotiator := placement.New(cfg.RingAllReduceEnableP2P, opts.Device)
	klog.V(1).Infof("compiling task graph %q: %d nodes, %d edges", g.name, len(g.nodes), len(g.edges))

	for _, node := range g.nodes {
		if err := node.ProduceAllRegistersAndBindEdges(negotiator); err != nil {
			return errors.WithMessagef(err, "producing registers of %s", node)
		}
	}
	for _, node := range g.nodes {
		if err := node.ConsumeAllRegisters(); err != nil {
			return errors.WithMessagef(err, "consuming registers of %s", node)
		}
	}
	for _, node := range g.nodes {
		if err := node.PinConsumedRegisterMemCase(); err != nil {
			return errors.WithMessagef(err, "pinning registers consumed by %s", node)
		}
	}
	if err := g.buildAll(); err != nil {
		return err
	}
	if cfg.EnableReduceMemSharing {
		if err := g.enableMemSharing(cfg, opts.MemSharing); err != nil {
			return err
		}
	}
	klog.V(1).Infof("task graph %q compiled: %d registers", g.name, g.nextRegisterID)
	return nil
}

func (g *TaskGraph) buildAll() error {
	pending := slices.Clone(g.nodes)
	for sweep := 0; len(pending) > 0; sweep++ {
		var remaining []TaskNode
		for _, node := range pending {
			if !node.IsReadyForBuild() {
				remaining = append(remaining, node)
				continue
			}
			if err := node.BuildExecGraphAndRegisters(node.ParallelContext()); err != nil {
				return errors.WithMessagef(err, "building %s", node)
			}
			if err := node.InferProducedDataRegisterTimeShape(); err != nil {
				return errors.WithMessagef(err, "inferring time shapes of %s", node)
			}
			if err := node.LockProducedRegisters(); err != nil {
				return errors.WithMessagef(err, "locking registers of %s", node)
			}
		}
		if len(remaining) == len(pending) {
			names := make([]string, len(remaining))
			for i, node := range remaining {
				names[i] = node.String()
			}
			return errors.Wrapf(ErrNotReady, "no progress after sweep %d, nodes never ready: %s", sweep, strings.Join(names, ", "))
		}
		klog.V(2).Infof("task graph %q sweep %d: built %d nodes", g.name, sweep, len(pending)-len(remaining))
		pending = remaining
	}
	return nil
}

// enableMemSharing aliases the registers of the ring all-reduce nodes of each reduction group onto shared
// arenas. Each participant gets its own arena, on its own device, with a unique id in the graph. If no arena size
// is configured, the arenas of a group are sized after the largest register to share in the group.
func (g *TaskGraph) enableMemSharing(cfg *config.JobConfig, authority memsharing.Authority) error {
	groups := make(map[int][]*RingAllReduceTaskNode)
	var groupIDs []int
	for _, node := range g.nodes {
		ring, ok := node.(*RingAllReduceTaskNode)
		if !ok || ring.reduceGroupID < 0 {
			continue
		}
		if _, found := groups[ring.reduceGroupID]; !found {
			groupIDs = append(groupIDs, ring.reduceGroupID)
		}
		groups[ring.reduceGroupID] = append(groups[ring.reduceGroupID], ring)
	}
	slices.Sort(groupIDs)
	for _, groupID := range groupIDs {
		memSize := cfg.ReduceMemSize
		if memSize == 0 {
			for _, ring := range groups[groupID] {
				memSize = max(memSize, ring.produced["out"].ByteSize())
				if in, err := ring.GetSoleConsumedRegister("in"); err == nil {
					memSize = max(memSize, in.ByteSize())
				}
			}
		}
		for _, ring := range groups[groupID] {
			nodeAuthority := authority
			if nodeAuthority == nil {
				nodeAuthority = memsharing.NewReduceMemSharingCtx(memSize, g.newMemSharedID())
			}
			if err := ring.EnableMemSharingInReduce(nodeAuthority); err != nil {
				return errors.WithMessagef(err, "sharing memory of %s in reduce group %d", ring, groupID)
			}
		}
		klog.V(1).Infof("task graph %q: reduce group %d shares memory on %d ring nodes", g.name, groupID, len(groups[groupID]))
	}
	return nil
}

// Write the task graph (a readable text) to the given writer.
//
// It will write incomplete (not compiled) graphs without an error to help debugging.
func (g *TaskGraph) Write(writer io.Writer) error {
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

	w("task_graph @%s {\n", NormalizeIdentifier(g.name))
	for _, node := range g.nodes {
		we(node.base(), IndentationStep)
	}
	for _, edge := range g.edges {
		w("%sedge %s", IndentationStep, edge)
		if len(edge.roles) > 0 {
			registers := make([]string, len(edge.roles))
			for i, role := range edge.roles {
				registers[i] = fmt.Sprintf("%s=%s", role, edge.registers[role])
			}
			w(" [%s]", strings.Join(registers, ", "))
		}
		w("\n")
	}
	w("}\n")
	return err
}

// Dump returns the text of a compiled graph. See TaskGraph.Write to dump graphs not yet compiled.
func (g *TaskGraph) Dump() ([]byte, error) {
	if !g.compiled {
		return nil, errors.Errorf("graph %q is not compiled", g.name)
	}
	var buf bytes.Buffer
	if err := g.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
