package memsharing

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pkg/errors"
)

// RankCtx locates a participant inside the nested reduce-scatter levels of a reduction group.
//
// Each scatter level splits the current segment of the shared arena into as many segments as
// participants at that level, outermost level first. The zero value is the root context: a single
// segment spanning the whole arena.
type RankCtx struct {
	segmentCounts []int
}

// RootRankCtx returns the context of the whole reduction group.
func RootRankCtx() RankCtx {
	return RankCtx{}
}

// CtxWithScatter returns the context one scatter level deeper, splitting the current segment in numRanks.
func (c RankCtx) CtxWithScatter(numRanks int) RankCtx {
	counts := make([]int, len(c.segmentCounts), len(c.segmentCounts)+1)
	copy(counts, c.segmentCounts)
	return RankCtx{segmentCounts: append(counts, numRanks)}
}

// CtxWithGather returns the context one level up, after the innermost scatter is gathered back.
// Gathering the root context returns the root context.
func (c RankCtx) CtxWithGather() RankCtx {
	if len(c.segmentCounts) == 0 {
		return c
	}
	return RankCtx{segmentCounts: slices.Clone(c.segmentCounts[:len(c.segmentCounts)-1])}
}

// Depth returns the number of scatter levels.
func (c RankCtx) Depth() int {
	return len(c.segmentCounts)
}

// TotalSegmentCount returns in how many segments the arena is split at this context.
func (c RankCtx) TotalSegmentCount() int {
	total := 1
	for _, count := range c.segmentCounts {
		total *= count
	}
	return total
}

// RankNum returns the number of participants at the innermost level, 1 for the root context.
func (c RankCtx) RankNum() int {
	if len(c.segmentCounts) == 0 {
		return 1
	}
	return c.segmentCounts[len(c.segmentCounts)-1]
}

// Rank4ParallelID returns the rank of the participant parallelID at the innermost level.
//
// Participants adjacent in parallel id are grouped at the innermost level.
func (c RankCtx) Rank4ParallelID(parallelID int) (int, error) {
	if err := c.validate(); err != nil {
		return 0, err
	}
	if parallelID < 0 || parallelID >= c.TotalSegmentCount() {
		return 0, errors.Errorf("parallel id %d out of range for %s", parallelID, c)
	}
	return parallelID % c.RankNum(), nil
}

// rankAtLevel returns the rank of parallelID at the scatter level (0 is the outermost).
func (c RankCtx) rankAtLevel(parallelID, level int) int {
	stride := 1
	for _, count := range c.segmentCounts[level+1:] {
		stride *= count
	}
	return (parallelID / stride) % c.segmentCounts[level]
}

func (c RankCtx) validate() error {
	for level, count := range c.segmentCounts {
		if count < 1 {
			return errors.Errorf("invalid rank context %s: level %d has %d ranks", c, level, count)
		}
	}
	return nil
}

// String implements fmt.Stringer.
func (c RankCtx) String() string {
	if len(c.segmentCounts) == 0 {
		return "RankCtx(root)"
	}
	parts := make([]string, len(c.segmentCounts))
	for i, count := range c.segmentCounts {
		parts[i] = fmt.Sprintf("%d", count)
	}
	return fmt.Sprintf("RankCtx(%s)", strings.Join(parts, "x"))
}
