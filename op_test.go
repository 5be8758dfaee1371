package taskgraph

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/taskgraph/types"
	"github.com/gomlx/taskgraph/types/optypes"
	"github.com/gomlx/taskgraph/types/shapes"
	"github.com/gomlx/taskgraph/types/tasktypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestOperators(t *testing.T) {
	op, err := NewInputOpFromValue("x", [][]float16.Float16{{float16.Fromfloat32(1)}, {float16.Fromfloat32(2)}})
	require.NoError(t, err)
	assert.Equal(t, optypes.Input, op.Type())
	conf := op.Conf().(InputConf)
	assert.True(t, conf.Shape.Equal(shapes.Make(dtypes.Float16, 2, 1)))
	assert.Equal(t, []int64{1}, conf.TimeShape)
	assert.Equal(t, LogicalBlobID{OpName: "x", BlobName: "out"}, op.OutputLBI("out"))
	assert.Equal(t, "input@x", op.String())

	_, err = NewInputOpFromValue("x", nil)
	require.Error(t, err)
	_, err = NewInputOp("x", shapes.Make(dtypes.Float32, 0))
	require.Error(t, err)
	_, err = NewIdentityOp("not valid")
	require.Error(t, err)
	_, err = NewReduceSplitOp("split")
	require.Error(t, err)

	valid := RingAllReduceConf{LBI: LogicalBlobID{OpName: "g", BlobName: "out"}, NumLinks: 2, SliceFactor: 1}
	require.NoError(t, valid.Validate())
	for _, invalid := range []RingAllReduceConf{
		{LBI: valid.LBI, NumLinks: 0, SliceFactor: 1},
		{LBI: valid.LBI, NumLinks: 1, SliceFactor: 0},
		{LBI: valid.LBI, NumLinks: 1, SliceFactor: 1, NumRanks: -1},
		{NumLinks: 1, SliceFactor: 1},
	} {
		_, err = NewRingAllReduceOp("ring", invalid)
		require.Error(t, err, "conf %+v", invalid)
	}
	ringOp := must.M1(NewRingAllReduceOp("ring", valid))
	assert.Equal(t, "cuda_ring_all_reduce@ring", ringOp.String())

	g := New(t.Name())
	where := NodePlacement{DeviceType: types.DeviceGPU, ParallelNum: 1}
	_, err = g.NewNormalNode("n", tasktypes.NormalForward, ringOp, where)
	require.Error(t, err, "ring all-reduce operator in a normal node")
	_, err = g.NewNormalNode("n", tasktypes.RingAllReduce, op, where)
	require.Error(t, err, "ring all-reduce task type in a normal node")
	_, err = g.NewRingAllReduceNode("n", op, where)
	require.Error(t, err, "input operator in a ring all-reduce node")
	_, err = g.NewRingAllReduceNode("n", ringOp, NodePlacement{DeviceType: types.DeviceGPU, ParallelID: 1, ParallelNum: 1})
	require.Error(t, err, "parallel id out of range")
	must.M1(g.NewRingAllReduceNode("n", ringOp, where))
	_, err = g.NewNormalNode("n", tasktypes.NormalForward, op, where)
	require.Error(t, err, "duplicate node name")
}

func TestNormalTaskNode_ReduceSplit(t *testing.T) {
	g := New(t.Name())
	where := NodePlacement{DeviceType: types.DeviceCPU, ParallelNum: 1}
	input := must.M1(g.NewNormalNode("input", tasktypes.NormalForward,
		must.M1(NewInputOp("x", shapes.Make(dtypes.Float32, 10), 2)), where))
	split := must.M1(g.NewNormalNode("split", tasktypes.ReduceSplit,
		must.M1(NewReduceSplitOp("split", shapes.Make(dtypes.Float32, 2, 3), shapes.Make(dtypes.Float32, 4))), where))
	must.M1(g.Connect(input, split, types.DataEdge))
	require.NoError(t, g.Compile(CompileOptions{}))

	out := split.GetProducedRegister("out")
	assert.Equal(t, []LogicalBlobID{{"split", "out_0"}, {"split", "out_1"}}, out.LBIs())
	assert.True(t, must.M1(out.BlobDesc(LogicalBlobID{"split", "out_0"})).Equal(shapes.Make(dtypes.Float32, 2, 3)))
	assert.Equal(t, []int64{2}, out.TimeShape())
	assert.Equal(t, int64(40), out.ByteSize())
	assert.Equal(t, types.HostPageableMem(), out.MemCase(), "CPU nodes don't pin")
	assert.True(t, out.IsLocked())

	t.Run("size mismatch", func(t *testing.T) {
		g := New(t.Name())
		input := must.M1(g.NewNormalNode("input", tasktypes.NormalForward,
			must.M1(NewInputOp("x", shapes.Make(dtypes.Float32, 9))), where))
		split := must.M1(g.NewNormalNode("split", tasktypes.ReduceSplit,
			must.M1(NewReduceSplitOp("split", shapes.Make(dtypes.Float32, 2, 3), shapes.Make(dtypes.Float32, 4))), where))
		must.M1(g.Connect(input, split, types.DataEdge))
		require.Error(t, g.Compile(CompileOptions{}))
	})
}

func TestNormalTaskNode_InputCount(t *testing.T) {
	g := New(t.Name())
	where := NodePlacement{DeviceType: types.DeviceGPU, ParallelNum: 1}
	a := must.M1(g.NewNormalNode("a", tasktypes.NormalForward, must.M1(NewInputOp("a", shapes.Make(dtypes.Float32, 2))), where))
	b := must.M1(g.NewNormalNode("b", tasktypes.NormalForward, must.M1(NewInputOp("b", shapes.Make(dtypes.Float32, 2))), where))
	identity := must.M1(g.NewNormalNode("identity", tasktypes.NormalForward, must.M1(NewIdentityOp("identity")), where))
	must.M1(g.Connect(a, identity, types.DataEdge))
	must.M1(g.Connect(b, identity, types.DataEdge))
	err := g.Compile(CompileOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has 2 in data edges")
}
