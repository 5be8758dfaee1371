package placement

import (
	"testing"

	"github.com/gomlx/taskgraph/hardware"
	"github.com/gomlx/taskgraph/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type endpoint struct {
	deviceType types.DeviceType
	machine    int
	device     int
}

func (e endpoint) DeviceType() types.DeviceType { return e.deviceType }
func (e endpoint) MachineID() int               { return e.machine }
func (e endpoint) DeviceID() int                { return e.device }

func gpu(machine, device int) endpoint {
	return endpoint{types.DeviceGPU, machine, device}
}

func TestSendMemCase(t *testing.T) {
	tests := []struct {
		name    string
		enable  bool
		connect bool
		self    endpoint
		peer    endpoint
		want    types.MemoryCase
	}{
		{"disabled", false, true, gpu(0, 0), gpu(0, 1), types.HostPinnedMem(0)},
		{"enabled", true, true, gpu(0, 0), gpu(0, 1), types.DeviceMem(1)},
		{"no capability", true, false, gpu(0, 0), gpu(0, 1), types.HostPinnedMem(0)},
		{"peer on cpu", true, true, gpu(0, 1), endpoint{types.DeviceCPU, 0, 0}, types.HostPinnedMem(1)},
		{"self on other machine", true, true, gpu(1, 0), gpu(0, 1), types.HostPinnedMem(0)},
		{"peer on other machine", true, true, gpu(0, 0), gpu(1, 1), types.HostPinnedMem(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := New(tt.enable, hardware.NewSimulated(2, tt.connect))
			got, err := n.SendMemCase(tt.self, tt.peer)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSendMemCase_PeerAccessState(t *testing.T) {
	device := hardware.NewSimulated(2, true)
	n := New(true, device)

	// A second negotiation for the same pair tolerates the already enabled access.
	for range 2 {
		got, err := n.SendMemCase(gpu(0, 0), gpu(0, 1))
		require.NoError(t, err)
		assert.Equal(t, types.DeviceMem(1), got)
	}
	assert.True(t, device.IsPeerAccessEnabled(0, 1))

	device.FailEnableWith(errors.New("too many peers"))
	_, err := n.SendMemCase(gpu(0, 1), gpu(0, 0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPeerAccess))
	assert.Contains(t, err.Error(), "too many peers")

	// Disabled negotiation never touches the device context.
	got, err := New(false, nil).SendMemCase(gpu(0, 1), gpu(0, 0))
	require.NoError(t, err)
	assert.Equal(t, types.HostPinnedMem(1), got)

	_, err = New(true, nil).SendMemCase(gpu(0, 1), gpu(0, 0))
	assert.True(t, errors.Is(err, ErrPeerAccess))

	_, err = New(true, hardware.NewSimulated(1, true)).SendMemCase(gpu(0, 0), gpu(0, 3))
	assert.True(t, errors.Is(err, ErrPeerAccess))
}

func TestPinConsumedMemCase(t *testing.T) {
	memCase := types.HostPageableMem()
	PinConsumedMemCase(&memCase, 3)
	assert.Equal(t, types.HostPinnedMem(3), memCase)

	memCase = types.HostPinnedMem(0)
	PinConsumedMemCase(&memCase, 2)
	assert.Equal(t, types.HostPinnedMem(2), memCase)

	memCase = types.DeviceMem(1)
	PinConsumedMemCase(&memCase, 2)
	assert.Equal(t, types.DeviceMem(1), memCase)
}
