// Package memsharing hands out offsets of the shared arenas of a reduction group, one per participant device,
// and aliases registers onto them.
//
// All stages of a reduction (concat, scatter, all-reduce, gather, split) work on segments of one arena,
// so their registers can share memory instead of each allocating its own.
package memsharing

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Register is a register that can be aliased onto a shared arena.
type Register interface {
	fmt.Stringer

	// ByteSize is the memory required by the register.
	ByteSize() int64

	// EnableMemSharing aliases the register onto the arena memSharedID at offset.
	EnableMemSharing(memSharedID int, offset int64) error
}

// Authority is the memory-sharing authority of one reduction group.
type Authority interface {
	// Offset4RankCtxParallelID returns the arena offset of the participant parallelID at the given context.
	Offset4RankCtxParallelID(ctx RankCtx, parallelID int) (int64, error)

	// EnableMemSharing4Register aliases the register onto the arena at offset.
	EnableMemSharing4Register(r Register, offset int64) error
}

// ReduceMemSharingCtx is the shared arena of one participant of a reduction group, on its device.
type ReduceMemSharingCtx struct {
	memSize     int64
	memSharedID int
}

var _ Authority = (*ReduceMemSharingCtx)(nil)

// NewReduceMemSharingCtx creates the arena of a reduction group participant, of memSize bytes and identified by memSharedID.
func NewReduceMemSharingCtx(memSize int64, memSharedID int) *ReduceMemSharingCtx {
	return &ReduceMemSharingCtx{memSize: memSize, memSharedID: memSharedID}
}

// MemSize returns the size of the arena in bytes.
func (c *ReduceMemSharingCtx) MemSize() int64 {
	return c.memSize
}

// MemSharedID returns the id of the arena.
func (c *ReduceMemSharingCtx) MemSharedID() int {
	return c.memSharedID
}

// SegmentSize4RankCtx returns the size of one segment of the arena at the given context.
func (c *ReduceMemSharingCtx) SegmentSize4RankCtx(ctx RankCtx) (int64, error) {
	if err := ctx.validate(); err != nil {
		return 0, err
	}
	total := int64(ctx.TotalSegmentCount())
	if c.memSize%total != 0 {
		return 0, errors.Errorf("arena of %d bytes cannot be split in %d segments for %s", c.memSize, total, ctx)
	}
	return c.memSize / total, nil
}

// Offset4RankCtxParallelID implements Authority.
//
// The offset is the start of the participant's segment: the sum over the scatter levels of the
// participant's rank at that level times the segment size at that level. It is 0 for the root context.
func (c *ReduceMemSharingCtx) Offset4RankCtxParallelID(ctx RankCtx, parallelID int) (int64, error) {
	if ctx.Depth() == 0 {
		return 0, nil
	}
	if _, err := ctx.Rank4ParallelID(parallelID); err != nil {
		return 0, err
	}
	var offset int64
	levelCtx := RootRankCtx()
	for level, count := range ctx.segmentCounts {
		levelCtx = levelCtx.CtxWithScatter(count)
		segmentSize, err := c.SegmentSize4RankCtx(levelCtx)
		if err != nil {
			return 0, err
		}
		offset += int64(ctx.rankAtLevel(parallelID, level)) * segmentSize
	}
	return offset, nil
}

// EnableMemSharing4Register implements Authority.
func (c *ReduceMemSharingCtx) EnableMemSharing4Register(r Register, offset int64) error {
	size := r.ByteSize()
	if offset < 0 || offset+size > c.memSize {
		return errors.Errorf("register %s (%s) at offset %d doesn't fit in the shared arena #%d of %s",
			r, humanize.Bytes(uint64(size)), offset, c.memSharedID, humanize.Bytes(uint64(c.memSize)))
	}
	if err := r.EnableMemSharing(c.memSharedID, offset); err != nil {
		return err
	}
	klog.V(2).Infof("register %s aliased onto arena #%d at offset %d", r, c.memSharedID, offset)
	return nil
}
