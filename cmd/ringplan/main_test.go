package main

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/taskgraph"
	"github.com/gomlx/taskgraph/config"
	"github.com/gomlx/taskgraph/hardware"
	"github.com/gomlx/taskgraph/internal/ringplan"
	"github.com/gomlx/taskgraph/types/mesh"
	"github.com/gomlx/taskgraph/types/shapes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTensors(t *testing.T) {
	tensors, err := parseTensors("1024, 16x32,", dtypes.Float16)
	require.NoError(t, err)
	require.Len(t, tensors, 2)
	assert.True(t, tensors[0].Equal(shapes.Make(dtypes.Float16, 1024)))
	assert.True(t, tensors[1].Equal(shapes.Make(dtypes.Float16, 16, 32)))

	for _, list := range []string{"", " , ", "16xa", "0", "4x-1"} {
		_, err = parseTensors(list, dtypes.Float32)
		assert.Error(t, err, "tensors %q", list)
	}
}

func TestParseMemSize(t *testing.T) {
	memSize, err := parseMemSize("64KiB")
	require.NoError(t, err)
	assert.Equal(t, int64(64*1024), memSize)

	_, err = parseMemSize("lots")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid -reduce_mem_size")
}

func TestRingTable(t *testing.T) {
	deviceMesh := must.M1(mesh.NewClusterMesh("cluster", 1, 2))
	g, rings, err := ringplan.BuildAllReduceGraph(ringplan.Options{
		Name:        "table",
		Mesh:        deviceMesh,
		Tensors:     []shapes.Shape{shapes.Make(dtypes.Float32, 64)},
		NumLinks:    1,
		SliceFactor: 1,
	})
	require.NoError(t, err)
	require.NoError(t, g.Compile(taskgraph.CompileOptions{
		Config: config.Default(),
		Device: hardware.NewSimulated(2, true),
	}))
	require.Len(t, rings, 1)
	report := ringTable(rings[0])
	for _, want := range []string{"ring_0_0", "ring_0_1", "send_0", "recv_0", "Shared"} {
		assert.Contains(t, report, want)
	}
}
