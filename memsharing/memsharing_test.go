package memsharing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegister struct {
	size        int64
	memSharedID int
	offset      int64
}

func (r *fakeRegister) String() string  { return "fake" }
func (r *fakeRegister) ByteSize() int64 { return r.size }
func (r *fakeRegister) EnableMemSharing(memSharedID int, offset int64) error {
	r.memSharedID, r.offset = memSharedID, offset
	return nil
}

func TestRankCtx(t *testing.T) {
	root := RootRankCtx()
	assert.Equal(t, 0, root.Depth())
	assert.Equal(t, 1, root.TotalSegmentCount())
	assert.Equal(t, 1, root.RankNum())
	assert.Equal(t, root, root.CtxWithGather())
	assert.Equal(t, "RankCtx(root)", root.String())

	ctx := root.CtxWithScatter(2).CtxWithScatter(4)
	assert.Equal(t, 2, ctx.Depth())
	assert.Equal(t, 8, ctx.TotalSegmentCount())
	assert.Equal(t, 4, ctx.RankNum())
	assert.Equal(t, "RankCtx(2x4)", ctx.String())
	assert.Equal(t, root.CtxWithScatter(2), ctx.CtxWithGather())
	assert.Equal(t, 1, root.CtxWithScatter(2).Depth(), "CtxWithScatter must not change the receiver")

	rank, err := ctx.Rank4ParallelID(6)
	require.NoError(t, err)
	assert.Equal(t, 2, rank)
	_, err = ctx.Rank4ParallelID(8)
	require.Error(t, err)
	_, err = root.CtxWithScatter(0).Rank4ParallelID(0)
	require.Error(t, err)
}

func TestReduceMemSharingCtx_Offsets(t *testing.T) {
	arena := NewReduceMemSharingCtx(1024, 7)
	assert.Equal(t, int64(1024), arena.MemSize())
	assert.Equal(t, 7, arena.MemSharedID())

	for parallelID := range 4 {
		offset, err := arena.Offset4RankCtxParallelID(RootRankCtx(), parallelID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), offset, "root context is always at offset 0")
	}

	ctx := RootRankCtx().CtxWithScatter(4)
	for parallelID, want := range []int64{0, 256, 512, 768} {
		offset, err := arena.Offset4RankCtxParallelID(ctx, parallelID)
		require.NoError(t, err)
		assert.Equal(t, want, offset)
	}

	nested := RootRankCtx().CtxWithScatter(2).CtxWithScatter(2)
	for parallelID, want := range []int64{0, 256, 512, 768} {
		offset, err := arena.Offset4RankCtxParallelID(nested, parallelID)
		require.NoError(t, err)
		assert.Equal(t, want, offset)
	}

	_, err := NewReduceMemSharingCtx(1000, 0).Offset4RankCtxParallelID(RootRankCtx().CtxWithScatter(3), 1)
	require.Error(t, err)
	_, err = arena.Offset4RankCtxParallelID(ctx, 4)
	require.Error(t, err)
}

func TestReduceMemSharingCtx_Enable(t *testing.T) {
	arena := NewReduceMemSharingCtx(1024, 3)
	r := &fakeRegister{size: 256}
	require.NoError(t, arena.EnableMemSharing4Register(r, 768))
	assert.Equal(t, 3, r.memSharedID)
	assert.Equal(t, int64(768), r.offset)

	err := arena.EnableMemSharing4Register(&fakeRegister{size: 512}, 768)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "doesn't fit")
	require.Error(t, arena.EnableMemSharing4Register(&fakeRegister{size: 1}, -1))
}
