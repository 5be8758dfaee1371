package shapes

import (
	"fmt"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestShape(t *testing.T) {
	invalidShape := Invalid()
	assert.False(t, invalidShape.Ok())
	assert.Error(t, invalidShape.Validate())

	shape0 := Make(dtypes.Float64)
	require.True(t, shape0.Ok())
	assert.True(t, shape0.IsScalar())
	assert.Equal(t, 0, shape0.Rank())
	assert.Equal(t, 1, shape0.Size())
	assert.Equal(t, uintptr(8), shape0.Memory())
	assert.Equal(t, "(Float64)", shape0.String())

	shape1 := Make(dtypes.Float32, 4, 3, 2)
	require.NoError(t, shape1.Validate())
	assert.False(t, shape1.IsScalar())
	assert.Equal(t, 3, shape1.Rank())
	assert.Equal(t, 4*3*2, shape1.Size())
	assert.Equal(t, uintptr(4*4*3*2), shape1.Memory())
	assert.Equal(t, "(Float32)[4 3 2]", shape1.String())

	err := Make(dtypes.Float32, 4, 0).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension 0 <= 0 for axis 1")
	// Errors carry the stack where they were created.
	assert.Contains(t, fmt.Sprintf("%+v", err), "shapes.Shape.Validate")
}

func TestShape_CloneAndEqual(t *testing.T) {
	shape := Make(dtypes.Int64, 2, 5)
	clone := shape.Clone()
	require.True(t, shape.Equal(clone))
	clone.Dimensions[0] = 7
	assert.False(t, shape.Equal(clone))
	assert.Equal(t, 2, shape.Dimensions[0])
	assert.False(t, shape.Equal(Make(dtypes.Int32, 2, 5)))
}

func TestFromAnyValue(t *testing.T) {
	shape, err := FromAnyValue([][]float64{{0, 0}})
	require.NoError(t, err)
	assert.True(t, shape.Equal(Make(dtypes.Float64, 1, 2)))

	half := [][]float16.Float16{
		{float16.Fromfloat32(1), float16.Fromfloat32(2), float16.Fromfloat32(3)},
		{float16.Fromfloat32(4), float16.Fromfloat32(5), float16.Fromfloat32(6)},
	}
	shape, err = FromAnyValue(half)
	require.NoError(t, err)
	assert.True(t, shape.Equal(Make(dtypes.Float16, 2, 3)))
	assert.Equal(t, uintptr(2*2*3), shape.Memory())

	_, err = FromAnyValue([][]int32{{1, 2}, {3}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "irregular shapes")

	_, err = FromAnyValue([]int32{})
	require.Error(t, err)

	_, err = FromAnyValue(nil)
	require.Error(t, err)
}
