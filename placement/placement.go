// Package placement decides where the registers exchanged between ring neighbours live.
//
// The safe default is host memory pinned for the producing accelerator, which every device can reach
// through host-staged copies. When peer access is enabled in the job configuration and the hardware
// supports it, a send register is placed directly on the memory of the receiving accelerator instead.
package placement

import (
	"github.com/gomlx/taskgraph/hardware"
	"github.com/gomlx/taskgraph/types"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ErrPeerAccess is wrapped by every peer-access negotiation failure. These are fatal for the compilation.
var ErrPeerAccess = errors.New("peer access negotiation failed")

// Endpoint is the view of a task node needed to negotiate placement.
type Endpoint interface {
	DeviceType() types.DeviceType
	MachineID() int

	// DeviceID is the physical accelerator id within the endpoint's machine.
	DeviceID() int
}

// Negotiator decides the placement of per-link send registers.
type Negotiator struct {
	// EnablePeerAccess allows upgrading send registers to the peer's device memory.
	EnablePeerAccess bool

	// Device is queried for (and mutated to enable) peer access. It is only used if EnablePeerAccess is set.
	Device hardware.DeviceContext
}

// New creates a Negotiator.
func New(enablePeerAccess bool, device hardware.DeviceContext) *Negotiator {
	return &Negotiator{EnablePeerAccess: enablePeerAccess, Device: device}
}

// SendMemCase returns the placement of the register self sends to peer.
//
// The register is placed on peer's device memory iff peer access is enabled, both endpoints are
// accelerators on machine 0, and the device context reports self's device can access peer's. In that case
// the peer access is enabled on self's device: an already enabled access is fine, any other failure is
// returned wrapped with ErrPeerAccess. Otherwise the register is host memory pinned for self's device.
func (n *Negotiator) SendMemCase(self, peer Endpoint) (types.MemoryCase, error) {
	fallback := types.HostPinnedMem(self.DeviceID())
	if !n.EnablePeerAccess || self.DeviceType() != types.DeviceGPU || peer.DeviceType() != types.DeviceGPU {
		return fallback, nil
	}
	// Peer access is restricted to machine 0.
	if self.MachineID() != 0 || peer.MachineID() != 0 {
		return fallback, nil
	}
	if n.Device == nil {
		return fallback, errors.Wrap(ErrPeerAccess, "peer access enabled but no device context was given")
	}
	selfDevice, peerDevice := self.DeviceID(), peer.DeviceID()
	canAccess, err := n.Device.CanAccessPeer(selfDevice, peerDevice)
	if err != nil {
		return fallback, errors.Wrapf(ErrPeerAccess, "querying peer access from gpu:%d to gpu:%d: %v",
			selfDevice, peerDevice, err)
	}
	if !canAccess {
		klog.V(2).Infof("gpu:%d cannot access gpu:%d, send register stays in pinned host memory",
			selfDevice, peerDevice)
		return fallback, nil
	}
	err = n.Device.EnablePeerAccess(selfDevice, peerDevice)
	if errors.Is(err, hardware.ErrPeerAccessAlreadyEnabled) {
		klog.V(2).Infof("peer access from gpu:%d to gpu:%d already enabled", selfDevice, peerDevice)
	} else if err != nil {
		return fallback, errors.Wrapf(ErrPeerAccess, "enabling peer access from gpu:%d to gpu:%d: %v",
			selfDevice, peerDevice, err)
	}
	klog.V(1).Infof("send register from gpu:%d placed on the memory of gpu:%d", selfDevice, peerDevice)
	return types.DeviceMem(peerDevice), nil
}

// PinConsumedMemCase pins host-resident memory to deviceID, so asynchronous copies run in the right
// device context. Device memory is left untouched.
func PinConsumedMemCase(memCase *types.MemoryCase, deviceID int) {
	if memCase.IsHost() {
		*memCase = types.HostPinnedMem(deviceID)
	}
}
