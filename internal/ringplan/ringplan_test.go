package ringplan

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/taskgraph"
	"github.com/gomlx/taskgraph/config"
	"github.com/gomlx/taskgraph/hardware"
	"github.com/gomlx/taskgraph/types"
	"github.com/gomlx/taskgraph/types/mesh"
	"github.com/gomlx/taskgraph/types/shapes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAllReduceGraph(t *testing.T) {
	m := must.M1(mesh.NewClusterMesh("cluster", 2, 4))
	g, rings, err := BuildAllReduceGraph(Options{
		Name:        "all_reduce",
		Mesh:        m,
		ReduceAxes:  []string{mesh.DeviceAxis},
		Tensors:     []shapes.Shape{shapes.Make(dtypes.Float32, 64)},
		NumLinks:    2,
		SliceFactor: 2,
	})
	require.NoError(t, err)
	require.Len(t, rings, 2, "one ring per machine")

	for groupID, ring := range rings {
		assert.Equal(t, groupID, ring.GroupID)
		require.Len(t, ring.Nodes, 4)
		for rank, node := range ring.Nodes {
			assert.Equal(t, groupID, node.MachineID())
			assert.Equal(t, rank, node.DeviceID())
			assert.Equal(t, taskgraph.ParallelContext{ParallelID: rank, ParallelNum: 4}, node.ParallelContext())
			assert.Equal(t, groupID, node.ReduceGroupID())
			assert.Equal(t, "RankCtx(4)", node.GetRankCtx().String())

			next, prev := ring.Nodes[(rank+1)%4], ring.Nodes[(rank+3)%4]
			assert.Equal(t, []taskgraph.TaskNode{prev, next}, node.RecvFrom())
			assert.Equal(t, []taskgraph.TaskNode{next, prev}, node.SendTo())
		}
	}

	cfg := config.Default()
	cfg.RingAllReduceEnableP2P = true
	require.NoError(t, g.Compile(taskgraph.CompileOptions{Config: cfg, Device: hardware.NewSimulated(4, true)}))
	for _, ring := range rings {
		for rank, node := range ring.Nodes {
			send := node.GetProducedRegister("send_0")
			assert.True(t, must.M1(send.SoleBlobDesc()).Equal(shapes.Make(dtypes.Float32, 4)))
			if node.MachineID() == 0 {
				assert.Equal(t, types.DeviceMem((rank+1)%4), send.MemCase())
			} else {
				assert.Equal(t, types.MemHostPinned, send.MemCase().Kind)
			}
		}
	}
}

func TestBuildAllReduceGraph_ConcatAndSplit(t *testing.T) {
	m := must.M1(mesh.NewDeviceMesh("gpus", []int{3}, []string{mesh.DeviceAxis}))
	require.NoError(t, m.SetParallelIDs(2, 0, 1))
	g, rings, err := BuildAllReduceGraph(Options{
		Name:        "grads",
		Mesh:        m,
		Tensors:     []shapes.Shape{shapes.Make(dtypes.Float32, 3, 4), shapes.Make(dtypes.Float32, 5)},
		NumLinks:    1,
		SliceFactor: 1,
	})
	require.NoError(t, err)
	require.Len(t, rings, 1)
	// Ring order follows the parallel ids: devices 1, 2 and 0.
	var devices []int
	for _, node := range rings[0].Nodes {
		devices = append(devices, node.DeviceID())
	}
	assert.Equal(t, []int{1, 2, 0}, devices)

	require.NoError(t, g.Compile(taskgraph.CompileOptions{}))
	for rank, node := range rings[0].Nodes {
		in := must.M1(node.GetSoleConsumedRegister("in"))
		assert.True(t, must.M1(in.SoleBlobDesc()).Equal(shapes.Make(dtypes.Float32, 17)))
		assert.Equal(t, -1, in.MemSharedID(), "reduce concat output is not shared")
		assert.Equal(t, rank, node.GetProducedRegister("out").MemSharedID())
	}
}

func TestBuildAllReduceGraph_ArenaPerDevice(t *testing.T) {
	m := must.M1(mesh.NewClusterMesh("cluster", 2, 2))
	g, rings, err := BuildAllReduceGraph(Options{
		Name:        "arenas",
		Mesh:        m,
		Tensors:     []shapes.Shape{shapes.Make(dtypes.Float32, 32)},
		NumLinks:    1,
		SliceFactor: 1,
	})
	require.NoError(t, err)
	require.Len(t, rings, 1)
	require.NoError(t, g.Compile(taskgraph.CompileOptions{}))

	type deviceKey struct{ machine, device int }
	arenas := make(map[int]deviceKey)
	for _, node := range rings[0].Nodes {
		out := node.GetProducedRegister("out")
		in := must.M1(node.GetSoleConsumedRegister("in"))
		assert.Equal(t, types.DeviceMem(node.DeviceID()), out.MemCase())
		require.GreaterOrEqual(t, out.MemSharedID(), 0)
		assert.Equal(t, out.MemSharedID(), in.MemSharedID())
		assert.Equal(t, int64(0), out.MemSharedOffset())
		where := deviceKey{node.MachineID(), node.DeviceID()}
		if other, found := arenas[out.MemSharedID()]; found {
			t.Errorf("arena #%d shared by %v and %v", out.MemSharedID(), other, where)
		}
		arenas[out.MemSharedID()] = where
	}
	assert.Len(t, arenas, 4)
}

func TestBuildAllReduceGraph_Errors(t *testing.T) {
	m := must.M1(mesh.NewClusterMesh("cluster", 1, 2))
	_, _, err := BuildAllReduceGraph(Options{Name: "x", Tensors: []shapes.Shape{shapes.Make(dtypes.Float32, 2)}})
	require.Error(t, err)
	_, _, err = BuildAllReduceGraph(Options{Name: "x", Mesh: m})
	require.Error(t, err)
	_, _, err = BuildAllReduceGraph(Options{Name: "x", Mesh: m, ReduceAxes: []string{"rack"},
		Tensors: []shapes.Shape{shapes.Make(dtypes.Float32, 2)}, NumLinks: 1, SliceFactor: 1})
	require.Error(t, err)
	_, _, err = BuildAllReduceGraph(Options{Name: "x", Mesh: m,
		Tensors: []shapes.Shape{shapes.Make(dtypes.Float32, 2)}, NumLinks: 0, SliceFactor: 1})
	require.Error(t, err)
	require.Error(t, LinkRing(taskgraph.New("empty"), 0, nil))
}
