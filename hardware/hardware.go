// Package hardware abstracts the accelerator capability queries needed at graph-compile time.
//
// The only capability used is peer access: whether one accelerator can read and write the memory of
// another one directly, without staging through host memory, and enabling that access.
package hardware

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrPeerAccessAlreadyEnabled is returned by DeviceContext.EnablePeerAccess when the access from device to
// peer was enabled before. Callers negotiating placement treat it as success.
var ErrPeerAccessAlreadyEnabled = errors.New("peer access already enabled")

// DeviceContext is a handle to the accelerators of the local machine.
//
// Peer access state is process-wide: enabling it is not idempotent, a second call for the same pair
// returns ErrPeerAccessAlreadyEnabled.
type DeviceContext interface {
	// CanAccessPeer returns whether device can directly access the memory of peer.
	CanAccessPeer(device, peer int) (bool, error)

	// EnablePeerAccess enables the access of device (taken as the current device) to the memory of peer.
	EnablePeerAccess(device, peer int) error
}

type devicePair struct {
	device, peer int
}

// Simulated is an in-memory DeviceContext, with a configurable peer-access matrix.
//
// It is safe for concurrent use.
type Simulated struct {
	mu         sync.Mutex
	numDevices int
	canAccess  map[devicePair]bool
	enabled    map[devicePair]bool

	// enableErr, if set, is returned by every EnablePeerAccess call.
	enableErr error
}

var _ DeviceContext = (*Simulated)(nil)

// NewSimulated creates a simulated machine with numDevices accelerators. If fullyConnected, every pair of
// distinct devices can access each other, otherwise no pair can until connected with Connect.
func NewSimulated(numDevices int, fullyConnected bool) *Simulated {
	s := &Simulated{
		numDevices: numDevices,
		canAccess:  make(map[devicePair]bool),
		enabled:    make(map[devicePair]bool),
	}
	if fullyConnected {
		for device := 0; device < numDevices; device++ {
			for peer := 0; peer < numDevices; peer++ {
				if device != peer {
					s.canAccess[devicePair{device, peer}] = true
				}
			}
		}
	}
	return s
}

// Connect marks the devices a and b as able to access each other. It returns itself, so calls can be chained.
func (s *Simulated) Connect(a, b int) *Simulated {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canAccess[devicePair{a, b}] = true
	s.canAccess[devicePair{b, a}] = true
	return s
}

// FailEnableWith makes every following EnablePeerAccess return err. It returns itself, so calls can be chained.
func (s *Simulated) FailEnableWith(err error) *Simulated {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enableErr = err
	return s
}

func (s *Simulated) checkDevice(device int) error {
	if device < 0 || device >= s.numDevices {
		return errors.Errorf("invalid device %d, simulated machine has %d devices", device, s.numDevices)
	}
	return nil
}

// CanAccessPeer implements DeviceContext.
func (s *Simulated) CanAccessPeer(device, peer int) (bool, error) {
	if err := s.checkDevice(device); err != nil {
		return false, err
	}
	if err := s.checkDevice(peer); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canAccess[devicePair{device, peer}], nil
}

// EnablePeerAccess implements DeviceContext.
func (s *Simulated) EnablePeerAccess(device, peer int) error {
	if err := s.checkDevice(device); err != nil {
		return err
	}
	if err := s.checkDevice(peer); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enableErr != nil {
		return s.enableErr
	}
	pair := devicePair{device, peer}
	if !s.canAccess[pair] {
		return errors.Errorf("device %d cannot access the memory of device %d", device, peer)
	}
	if s.enabled[pair] {
		return ErrPeerAccessAlreadyEnabled
	}
	s.enabled[pair] = true
	return nil
}

// IsPeerAccessEnabled returns whether EnablePeerAccess succeeded before for the pair.
func (s *Simulated) IsPeerAccessEnabled(device, peer int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled[devicePair{device, peer}]
}
