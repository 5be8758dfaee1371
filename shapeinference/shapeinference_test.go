package shapeinference

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/taskgraph/types/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Aliases
var (
	Bool = dtypes.Bool
	F16  = dtypes.Float16
	F32  = dtypes.Float32
	I32  = dtypes.Int32

	S = shapes.Make
)

func TestIdentity(t *testing.T) {
	output, err := Identity(S(F32, 4, 3))
	require.NoError(t, err)
	assert.True(t, output.Equal(S(F32, 4, 3)))

	_, err = Identity(shapes.Invalid())
	require.Error(t, err)
	_, err = Identity(S(F32, 4, 0))
	require.Error(t, err)
}

func TestReduceConcat(t *testing.T) {
	output, err := ReduceConcat([]shapes.Shape{S(F32, 4, 3), S(F32, 5), S(F32)})
	require.NoError(t, err)
	assert.True(t, output.Equal(S(F32, 18)), "got %s", output)

	_, err = ReduceConcat(nil)
	require.Error(t, err)
	_, err = ReduceConcat([]shapes.Shape{S(F32, 2), S(I32, 2)})
	require.Error(t, err)
}

func TestReduceSplit(t *testing.T) {
	outputs, err := ReduceSplit(S(F32, 18), []shapes.Shape{S(F32, 4, 3), S(F32, 6)})
	require.NoError(t, err)
	require.Len(t, outputs, 2)
	assert.True(t, outputs[0].Equal(S(F32, 4, 3)))

	_, err = ReduceSplit(S(F32, 18), []shapes.Shape{S(F32, 4, 3)})
	require.Error(t, err)
	_, err = ReduceSplit(S(F32, 18), []shapes.Shape{S(I32, 18)})
	require.Error(t, err)
	_, err = ReduceSplit(S(F32, 18), nil)
	require.Error(t, err)
}

func TestRingAllReduce(t *testing.T) {
	testCases := []struct {
		name                            string
		operand                         shapes.Shape
		numLinks, sliceFactor, numRanks int
		wantSend                        shapes.Shape
	}{
		{"single link", S(F32, 64), 1, 1, 4, S(F32, 16)},
		{"two links sliced", S(F32, 8, 16), 2, 4, 2, S(F32, 8)},
		{"rounded up", S(F16, 10), 3, 1, 2, S(F16, 2)},
		{"scalar", S(I32), 2, 2, 4, S(I32, 1)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			output, send, err := RingAllReduce(tc.operand, tc.numLinks, tc.sliceFactor, tc.numRanks)
			require.NoError(t, err)
			assert.True(t, output.Equal(tc.operand))
			require.Len(t, send, tc.numLinks)
			for i, s := range send {
				assert.True(t, s.Equal(tc.wantSend), "send_%d: got %s, wanted %s", i, s, tc.wantSend)
			}
		})
	}

	t.Run("invalid", func(t *testing.T) {
		_, _, err := RingAllReduce(shapes.Invalid(), 1, 1, 1)
		require.Error(t, err)
		_, _, err = RingAllReduce(S(Bool, 4), 1, 1, 1)
		require.Error(t, err)
		_, _, err = RingAllReduce(S(F32, 4), 0, 1, 1)
		require.Error(t, err)
		_, _, err = RingAllReduce(S(F32, 4), 1, 0, 1)
		require.Error(t, err)
		_, _, err = RingAllReduce(S(F32, 4), 1, 1, 0)
		require.Error(t, err)
	})
}
