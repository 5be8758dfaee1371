// Package types defines the enums and small value types shared by the task graph packages:
// device types, memory placement and edge kinds.
package types

import "fmt"

// DeviceType is the kind of device a task node executes on.
type DeviceType int

//go:generate go tool enumer -type=DeviceType -trimprefix=Device -output=gen_devicetype_enumer.go -transform=snake types.go

const (
	DeviceInvalid DeviceType = iota
	DeviceCPU

	// DeviceGPU is an accelerator (CUDA) device, identified by its physical device id in its machine.
	DeviceGPU
)

// MemoryKind enumerates where a register's memory lives.
type MemoryKind int

//go:generate go tool enumer -type=MemoryKind -trimprefix=Mem -output=gen_memorykind_enumer.go -transform=snake types.go

const (
	// MemHostPageable is plain host memory. It's the zero value of MemoryKind.
	MemHostPageable MemoryKind = iota

	// MemHostPinned is host memory pinned (page-locked) for fast transfers to and from one accelerator.
	MemHostPinned

	// MemDevice is the memory of one accelerator.
	MemDevice
)

// MemoryCase describes the placement of a register's memory.
//
// For MemHostPinned DeviceID is the accelerator the pinned memory is registered with, for MemDevice
// it is the accelerator holding the memory. It is ignored for MemHostPageable.
type MemoryCase struct {
	Kind     MemoryKind
	DeviceID int
}

// HostPageableMem returns the placement on plain host memory.
func HostPageableMem() MemoryCase {
	return MemoryCase{Kind: MemHostPageable}
}

// HostPinnedMem returns the placement on host memory pinned for the accelerator deviceID.
func HostPinnedMem(deviceID int) MemoryCase {
	return MemoryCase{Kind: MemHostPinned, DeviceID: deviceID}
}

// DeviceMem returns the placement directly on the memory of the accelerator deviceID.
func DeviceMem(deviceID int) MemoryCase {
	return MemoryCase{Kind: MemDevice, DeviceID: deviceID}
}

// IsHost returns whether the memory lives on the host, pinned or not.
func (m MemoryCase) IsHost() bool {
	return m.Kind == MemHostPageable || m.Kind == MemHostPinned
}

// String implements fmt.Stringer.
func (m MemoryCase) String() string {
	if m.Kind == MemHostPageable {
		return m.Kind.String()
	}
	return fmt.Sprintf("%s(gpu:%d)", m.Kind, m.DeviceID)
}

// EdgeKind tags the edges between task nodes.
type EdgeKind int

//go:generate go tool enumer -type=EdgeKind -output=gen_edgekind_enumer.go -transform=snake types.go

const (
	// DataEdge carries the register of its source node to a generic consumer.
	DataEdge EdgeKind = iota

	// RingLinkEdge connects two ring all-reduce nodes along one ring link. Its registers are
	// bound by the consumer when it wires its per-link receive registers.
	RingLinkEdge
)
