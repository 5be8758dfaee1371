package taskgraph

import (
	"fmt"
	"slices"

	"github.com/gomlx/taskgraph/memsharing"
	"github.com/gomlx/taskgraph/placement"
	"github.com/gomlx/taskgraph/types"
	"github.com/gomlx/taskgraph/types/tasktypes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// RingAllReduceTaskNode is one participant of a multi-device ring all-reduce.
//
// For L ring links it produces "out" (the reduced blob, for generic consumers) and "send_0".."send_{L-1}",
// and consumes "in" (the blob to reduce) and "recv_0".."recv_{L-1}", where recv_i is the send_i register of
// the i-th receive-from peer. The peers of each link are given by the ring planner with SetRecvSendNodes
// before compilation.
type RingAllReduceTaskNode struct {
	taskNodeBase

	conf     RingAllReduceConf
	recvFrom []TaskNode
	sendTo   []TaskNode
}

var _ TaskNode = (*RingAllReduceTaskNode)(nil)

func sendName(link int) string { return fmt.Sprintf("send_%d", link) }
func recvName(link int) string { return fmt.Sprintf("recv_%d", link) }

// Conf returns the ring all-reduce configuration of the node's operator.
func (n *RingAllReduceTaskNode) Conf() RingAllReduceConf { return n.conf }

// SetRecvSendNodes sets, per ring link, the peer the node receives from and the peer it sends to.
func (n *RingAllReduceTaskNode) SetRecvSendNodes(recvFrom, sendTo []TaskNode) {
	n.recvFrom = slices.Clone(recvFrom)
	n.sendTo = slices.Clone(sendTo)
}

// RecvFrom returns the receive-from peer of each link.
func (n *RingAllReduceTaskNode) RecvFrom() []TaskNode { return slices.Clone(n.recvFrom) }

// SendTo returns the send-to peer of each link.
func (n *RingAllReduceTaskNode) SendTo() []TaskNode { return slices.Clone(n.sendTo) }

func (n *RingAllReduceTaskNode) checkTopology() error {
	if len(n.recvFrom) != n.conf.NumLinks || len(n.sendTo) != n.conf.NumLinks {
		return errors.Wrapf(ErrTopologyContract, "%s has %d links but %d receive-from and %d send-to peers",
			n, n.conf.NumLinks, len(n.recvFrom), len(n.sendTo))
	}
	for link := range n.conf.NumLinks {
		if n.recvFrom[link] == nil || n.sendTo[link] == nil {
			return errors.Wrapf(ErrTopologyContract, "%s has no peer for link %d", n, link)
		}
	}
	return nil
}

// IsReadyForBuild returns whether the consumed "in" register is locked.
func (n *RingAllReduceTaskNode) IsReadyForBuild() bool {
	in, err := n.GetSoleConsumedRegister("in")
	return err == nil && in.IsLocked()
}

// ProduceAllRegistersAndBindEdges produces "out" (single slot) and per link "send_i", with 2*sliceFactor slots
// placed by the negotiator against the link's send-to peer. "out" is bound to every out data edge.
//
// A data edge to a send-to peer is a topology contract violation. Ring link edges are bound by their consumer.
func (n *RingAllReduceTaskNode) ProduceAllRegistersAndBindEdges(negotiator *placement.Negotiator) error {
	if err := n.checkTopology(); err != nil {
		return err
	}
	out, err := n.produceRegister(n, "out", 1, 1)
	if err != nil {
		return err
	}
	numSlots := n.conf.SliceFactor * 2
	for link, peer := range n.sendTo {
		send, err := n.produceRegister(n, sendName(link), numSlots, numSlots)
		if err != nil {
			return err
		}
		memCase, err := negotiator.SendMemCase(n, peer)
		if err != nil {
			return errors.WithMessagef(err, "%s placing %s for peer %s", n, sendName(link), peer)
		}
		if err = send.SetMemCase(memCase); err != nil {
			return err
		}
	}

	for _, edge := range n.outEdges {
		isSendToPeer := slices.Contains(n.sendTo, edge.dst)
		switch {
		case edge.kind == types.DataEdge && !isSendToPeer:
			if err = edge.AddRegister("out", out); err != nil {
				return err
			}
		case edge.kind == types.DataEdge:
			return errors.Wrapf(ErrTopologyContract, "%s out edge %s targets a send-to peer as a plain out consumer", n, edge)
		case !isSendToPeer:
			return errors.Wrapf(ErrTopologyContract, "%s ring link edge %s doesn't target a send-to peer", n, edge)
		}
	}
	return nil
}

// ConsumeAllRegisters consumes, per link i, the "send_i" register of the receive-from peer as "recv_i",
// and the sole register of the sole in data edge as "in".
//
// A receive-from peer that is not a ring all-reduce node is a topology contract violation.
func (n *RingAllReduceTaskNode) ConsumeAllRegisters() error {
	if err := n.checkTopology(); err != nil {
		return err
	}
	for link, peer := range n.recvFrom {
		if peer.TaskType() != tasktypes.RingAllReduce {
			return errors.Wrapf(ErrTopologyContract, "%s receive-from peer %s of link %d is not a ring all-reduce node",
				n, peer, link)
		}
		send := peer.GetProducedRegister(sendName(link))
		if send == nil {
			return errors.Wrapf(ErrTopologyContract, "%s receive-from peer %s doesn't produce %s", n, peer, sendName(link))
		}
		n.consumeRegister(n, recvName(link), send)
		for _, edge := range n.inEdges {
			if edge.kind == types.RingLinkEdge && edge.src == peer {
				if err := edge.AddRegister(sendName(link), send); err != nil {
					return err
				}
			}
		}
	}

	edge, err := n.SoleInDataEdge()
	if err != nil {
		return err
	}
	in, err := edge.GetSoleRegister()
	if err != nil {
		return err
	}
	n.consumeRegister(n, "in", in)
	return nil
}

// PinConsumedRegisterMemCase pins every host-resident consumed register to the node's device.
func (n *RingAllReduceTaskNode) PinConsumedRegisterMemCase() error {
	return n.pinConsumedRegisters()
}

// BuildExecGraphAndRegisters creates the execution node of the all-reduce, binds "in", "out" and every
// "recv_i"/"send_i", tags the produced registers with the reduced LBI, and infers their blobs.
func (n *RingAllReduceTaskNode) BuildExecGraphAndRegisters(parallelCtx ParallelContext) error {
	if !n.IsReadyForBuild() {
		return errors.Wrapf(ErrNotReady, "%s: \"in\" register is not locked", n)
	}
	node := n.execGraph.NewNode(n.op)
	in, err := n.GetSoleConsumedRegister("in")
	if err != nil {
		return err
	}
	if err = node.BindBnWithRegister("in", in); err != nil {
		return err
	}
	out := n.produced["out"]
	if err = out.AddLBI(n.conf.LBI); err != nil {
		return err
	}
	if err = node.BindBnWithRegister("out", out); err != nil {
		return err
	}
	for link := range n.sendTo {
		recv, err := n.GetSoleConsumedRegister(recvName(link))
		if err != nil {
			return err
		}
		if err = node.BindBnWithRegister(recvName(link), recv); err != nil {
			return err
		}
		send := n.produced[sendName(link)]
		if err = send.AddLBI(n.conf.LBI); err != nil {
			return err
		}
		if err = node.BindBnWithRegister(sendName(link), send); err != nil {
			return err
		}
	}
	if err = node.InferBlobDescs(parallelCtx); err != nil {
		return errors.WithMessagef(err, "%s", n)
	}
	n.built = true
	return nil
}

// InferProducedDataRegisterTimeShape copies the time shape of "in" to "out" and every "send_i".
func (n *RingAllReduceTaskNode) InferProducedDataRegisterTimeShape() error {
	in, err := n.GetSoleConsumedRegister("in")
	if err != nil {
		return err
	}
	timeShape := in.TimeShape()
	if err = n.produced["out"].SetTimeShape(timeShape); err != nil {
		return err
	}
	for link := range n.sendTo {
		if err = n.produced[sendName(link)].SetTimeShape(timeShape); err != nil {
			return err
		}
	}
	return nil
}

// EnableMemSharingInReduce aliases "out" onto the node's shared arena, and "in" too unless it comes from a
// reduce concat or lives in a different memory than "out".
//
// The node must be at offset 0 of the arena for the gathered rank context, otherwise ErrInvariant is returned.
func (n *RingAllReduceTaskNode) EnableMemSharingInReduce(authority memsharing.Authority) error {
	offset, err := authority.Offset4RankCtxParallelID(n.rankCtx.CtxWithGather(), n.ParallelID())
	if err != nil {
		return errors.WithMessagef(err, "%s", n)
	}
	if offset != 0 {
		return errors.Wrapf(ErrInvariant, "%s expected at offset 0 of the shared arena, got offset %d", n, offset)
	}
	if err = authority.EnableMemSharing4Register(n.produced["out"], offset); err != nil {
		return err
	}
	edge, err := n.SoleInDataEdge()
	if err != nil {
		return err
	}
	if edge.src.TaskType() == tasktypes.ReduceConcat {
		klog.V(2).Infof("%s: \"in\" comes from reduce concat %s, not shared", n, edge.src)
		return nil
	}
	in, err := n.GetSoleConsumedRegister("in")
	if err != nil {
		return err
	}
	out := n.produced["out"]
	if in.MemCase() != out.MemCase() {
		klog.V(2).Infof("%s: \"in\" is in %s and \"out\" in %s, not shared", n, in.MemCase(), out.MemCase())
		return nil
	}
	return authority.EnableMemSharing4Register(in, offset)
}
