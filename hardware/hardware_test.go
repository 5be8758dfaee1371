package hardware

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulated(t *testing.T) {
	t.Run("FullyConnected", func(t *testing.T) {
		s := NewSimulated(2, true)
		ok, err := s.CanAccessPeer(0, 1)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = s.CanAccessPeer(1, 1)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.EnablePeerAccess(0, 1))
		assert.True(t, s.IsPeerAccessEnabled(0, 1))
		assert.False(t, s.IsPeerAccessEnabled(1, 0))
		err = s.EnablePeerAccess(0, 1)
		assert.True(t, errors.Is(err, ErrPeerAccessAlreadyEnabled))
	})

	t.Run("Connect", func(t *testing.T) {
		s := NewSimulated(4, false)
		ok, err := s.CanAccessPeer(2, 3)
		require.NoError(t, err)
		assert.False(t, ok)
		require.Error(t, s.EnablePeerAccess(2, 3))

		s.Connect(2, 3)
		ok, err = s.CanAccessPeer(3, 2)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Errors", func(t *testing.T) {
		s := NewSimulated(2, true)
		_, err := s.CanAccessPeer(0, 2)
		require.Error(t, err)
		require.Error(t, s.EnablePeerAccess(-1, 0))

		injected := errors.New("peer access unsupported")
		s.FailEnableWith(injected)
		err = s.EnablePeerAccess(0, 1)
		assert.Equal(t, injected, err)
	})
}
