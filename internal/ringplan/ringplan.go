// Package ringplan lays out ring all-reduces over a device mesh and gives each participant its ring
// neighbours.
//
// It plays the role of the topology planner for tests and the ringplan command: even links run forward
// along the ring, odd links run backward, so with two or more links both directions of every connection
// are used.
package ringplan

import (
	"fmt"
	"slices"

	"github.com/gomlx/taskgraph"
	"github.com/gomlx/taskgraph/memsharing"
	"github.com/gomlx/taskgraph/types"
	"github.com/gomlx/taskgraph/types/mesh"
	"github.com/gomlx/taskgraph/types/shapes"
	"github.com/gomlx/taskgraph/types/tasktypes"
	"github.com/pkg/errors"
)

// LinkRing sets the receive-from and send-to peers of the nodes of one ring, given in ring order, connects
// them with ring link edges, and places them at rank context Scatter(len(nodes)) of reduction group groupID.
func LinkRing(g *taskgraph.TaskGraph, groupID int, nodes []*taskgraph.RingAllReduceTaskNode) error {
	numRanks := len(nodes)
	if numRanks == 0 {
		return errors.New("a ring needs at least one node")
	}
	rankCtx := memsharing.RootRankCtx().CtxWithScatter(numRanks)
	for rank, node := range nodes {
		numLinks := node.Conf().NumLinks
		if numLinks != nodes[0].Conf().NumLinks {
			return errors.Errorf("ring nodes %s and %s have different number of links", nodes[0], node)
		}
		next, prev := nodes[(rank+1)%numRanks], nodes[(rank+numRanks-1)%numRanks]
		recvFrom := make([]taskgraph.TaskNode, numLinks)
		sendTo := make([]taskgraph.TaskNode, numLinks)
		for link := range numLinks {
			if link%2 == 0 {
				recvFrom[link], sendTo[link] = prev, next
			} else {
				recvFrom[link], sendTo[link] = next, prev
			}
			if sendTo[link] == node {
				continue
			}
			if _, err := g.Connect(node, sendTo[link], types.RingLinkEdge); err != nil {
				return err
			}
		}
		node.SetRecvSendNodes(recvFrom, sendTo)
		node.SetRankCtx(groupID, rankCtx)
	}
	return nil
}

// Options of the all-reduce graph built by BuildAllReduceGraph.
type Options struct {
	// Name of the graph.
	Name string

	// Mesh of the participants. Coordinates on mesh.MachineAxis give the machine id, and on mesh.DeviceAxis the
	// device id. Missing axes mean 0.
	Mesh *mesh.DeviceMesh

	// ReduceAxes are the mesh axes reduced together. If empty, all axes are reduced.
	ReduceAxes []string

	// Tensors to reduce on each participant. With more than one, they are concatenated before the ring and
	// split back after it.
	Tensors []shapes.Shape

	NumLinks, SliceFactor int

	// DeviceType of all participants. Defaults to types.DeviceGPU.
	DeviceType types.DeviceType
}

// Ring is one reduction group, in ring order.
type Ring struct {
	GroupID int
	Nodes   []*taskgraph.RingAllReduceTaskNode
}

// BuildAllReduceGraph creates a task graph reducing the given tensors across the mesh: on each participant
// input nodes feed (through a reduce concat if there are several tensors) a ring all-reduce node, whose output
// goes to an identity (or a reduce split) node.
func BuildAllReduceGraph(opts Options) (*taskgraph.TaskGraph, []Ring, error) {
	if opts.Mesh == nil {
		return nil, nil, errors.New("a device mesh is required")
	}
	if len(opts.Tensors) == 0 {
		return nil, nil, errors.New("at least one tensor to reduce is required")
	}
	if opts.DeviceType == types.DeviceInvalid {
		opts.DeviceType = types.DeviceGPU
	}
	reduceAxes := opts.ReduceAxes
	if len(reduceAxes) == 0 {
		reduceAxes = opts.Mesh.AxesNames()
	}
	groups, err := opts.Mesh.ReduceGroups(reduceAxes)
	if err != nil {
		return nil, nil, err
	}

	g := taskgraph.New(opts.Name)
	numDevices := opts.Mesh.NumDevices()
	rings := make([]Ring, len(groups))
	for groupID, group := range groups {
		// Ring order follows the parallel ids of the participants.
		group = slices.Clone(group)
		slices.SortFunc(group, func(a, b int) int { return opts.Mesh.ParallelID(a) - opts.Mesh.ParallelID(b) })
		rings[groupID].GroupID = groupID
		for rank, flatIdx := range group {
			where, err := nodePlacement(opts.Mesh, flatIdx, opts.DeviceType)
			if err != nil {
				return nil, nil, err
			}
			where.ParallelID, where.ParallelNum = opts.Mesh.ParallelID(flatIdx), numDevices
			source, err := addSource(g, opts.Tensors, flatIdx, where)
			if err != nil {
				return nil, nil, err
			}

			ringOp, err := taskgraph.NewRingAllReduceOp(fmt.Sprintf("all_reduce_%d", groupID), taskgraph.RingAllReduceConf{
				LBI:         taskgraph.LogicalBlobID{OpName: fmt.Sprintf("all_reduce_%d", groupID), BlobName: "out"},
				NumLinks:    opts.NumLinks,
				SliceFactor: opts.SliceFactor,
			})
			if err != nil {
				return nil, nil, err
			}
			where.ParallelID, where.ParallelNum = rank, len(group)
			ring, err := g.NewRingAllReduceNode(fmt.Sprintf("ring_%d_%d", groupID, rank), ringOp, where)
			if err != nil {
				return nil, nil, err
			}
			if _, err = g.Connect(source, ring, types.DataEdge); err != nil {
				return nil, nil, err
			}
			rings[groupID].Nodes = append(rings[groupID].Nodes, ring)

			where.ParallelID, where.ParallelNum = opts.Mesh.ParallelID(flatIdx), numDevices
			if err = addSink(g, opts.Tensors, flatIdx, where, ring); err != nil {
				return nil, nil, err
			}
		}
		if err = LinkRing(g, groupID, rings[groupID].Nodes); err != nil {
			return nil, nil, err
		}
	}
	return g, rings, nil
}

func nodePlacement(m *mesh.DeviceMesh, flatIdx int, deviceType types.DeviceType) (taskgraph.NodePlacement, error) {
	coords, err := m.Coordinates(flatIdx)
	if err != nil {
		return taskgraph.NodePlacement{}, err
	}
	where := taskgraph.NodePlacement{DeviceType: deviceType}
	for axis, name := range m.AxesNames() {
		switch name {
		case mesh.MachineAxis:
			where.MachineID = coords[axis]
		case mesh.DeviceAxis:
			where.DeviceID = coords[axis]
		}
	}
	return where, nil
}

// addSource creates the input nodes of one participant, and the reduce concat joining them if more than one.
func addSource(g *taskgraph.TaskGraph, tensors []shapes.Shape, flatIdx int, where taskgraph.NodePlacement) (taskgraph.TaskNode, error) {
	var inputs []taskgraph.TaskNode
	for i, shape := range tensors {
		op, err := taskgraph.NewInputOp(fmt.Sprintf("tensor_%d", i), shape)
		if err != nil {
			return nil, err
		}
		input, err := g.NewNormalNode(fmt.Sprintf("input_%d_%d", flatIdx, i), tasktypes.NormalForward, op, where)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, input)
	}
	if len(inputs) == 1 {
		return inputs[0], nil
	}
	op, err := taskgraph.NewReduceConcatOp("reduce_concat")
	if err != nil {
		return nil, err
	}
	concat, err := g.NewNormalNode(fmt.Sprintf("concat_%d", flatIdx), tasktypes.ReduceConcat, op, where)
	if err != nil {
		return nil, err
	}
	for _, input := range inputs {
		if _, err = g.Connect(input, concat, types.DataEdge); err != nil {
			return nil, err
		}
	}
	return concat, nil
}

// addSink creates the consumer of the reduced blob of one participant.
func addSink(g *taskgraph.TaskGraph, tensors []shapes.Shape, flatIdx int, where taskgraph.NodePlacement, ring taskgraph.TaskNode) error {
	var (
		op       *taskgraph.Operator
		taskType = tasktypes.NormalForward
		err      error
	)
	if len(tensors) == 1 {
		op, err = taskgraph.NewIdentityOp("reduced")
	} else {
		op, err = taskgraph.NewReduceSplitOp("reduce_split", tensors...)
		taskType = tasktypes.ReduceSplit
	}
	if err != nil {
		return err
	}
	sink, err := g.NewNormalNode(fmt.Sprintf("output_%d", flatIdx), taskType, op, where)
	if err != nil {
		return err
	}
	_, err = g.Connect(ring, sink, types.DataEdge)
	return err
}
