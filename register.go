package taskgraph

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/taskgraph/types"
	"github.com/gomlx/taskgraph/types/shapes"
	"github.com/pkg/errors"
)

// Register describes a buffer produced by one task node and read by its consumers.
//
// It holds a number of slots (MinRegisterNum to MaxRegisterNum, so it can be multi-buffered), each slot
// storing one blob per logical tensor (LBI) it carries. It is mutable until locked, which happens once its
// producer is built: from then on its blobs, time shape and memory case are final.
type Register struct {
	id       int
	name     string
	producer TaskNode

	consumers []TaskNode

	minRegisterNum, maxRegisterNum int

	memCase types.MemoryCase

	lbis      []LogicalBlobID
	blobDescs map[LogicalBlobID]shapes.Shape

	// timeShape is how many times the register is produced per outer iteration.
	timeShape []int64

	locked bool

	// memSharedID is the id of the shared arena this register is aliased onto, or -1.
	memSharedID     int
	memSharedOffset int64
}

func newRegister(id int, name string, producer TaskNode, minRegisterNum, maxRegisterNum int, memCase types.MemoryCase) *Register {
	return &Register{
		id:             id,
		name:           name,
		producer:       producer,
		minRegisterNum: minRegisterNum,
		maxRegisterNum: maxRegisterNum,
		memCase:        memCase,
		blobDescs:      make(map[LogicalBlobID]shapes.Shape),
		memSharedID:    -1,
	}
}

// ID of the register, unique in the graph.
func (r *Register) ID() int { return r.id }

// Name is the role name given by the producer (e.g. "out" or "send_0").
func (r *Register) Name() string { return r.name }

// Producer returns the task node that produces the register.
func (r *Register) Producer() TaskNode { return r.producer }

// Consumers returns the task nodes consuming the register.
func (r *Register) Consumers() []TaskNode { return slices.Clone(r.consumers) }

func (r *Register) addConsumer(node TaskNode) {
	if !slices.Contains(r.consumers, node) {
		r.consumers = append(r.consumers, node)
	}
}

// MinRegisterNum is the minimum number of slots of the register.
func (r *Register) MinRegisterNum() int { return r.minRegisterNum }

// MaxRegisterNum is the maximum number of slots of the register.
func (r *Register) MaxRegisterNum() int { return r.maxRegisterNum }

// MemCase returns where the register memory is placed.
func (r *Register) MemCase() types.MemoryCase { return r.memCase }

// SetMemCase changes where the register memory is placed. It fails if the register is locked.
func (r *Register) SetMemCase(memCase types.MemoryCase) error {
	if r.locked {
		return errors.Errorf("can't change memory case of locked register %s", r)
	}
	r.memCase = memCase
	return nil
}

// mutMemCase is used by placement rules that edit the memory case in place.
func (r *Register) mutMemCase() (*types.MemoryCase, error) {
	if r.locked {
		return nil, errors.Errorf("can't change memory case of locked register %s", r)
	}
	return &r.memCase, nil
}

// AddLBI adds a logical tensor to the register. Adding an LBI twice is a no-op.
func (r *Register) AddLBI(lbi LogicalBlobID) error {
	if r.locked {
		return errors.Errorf("can't add %s to locked register %s", lbi, r)
	}
	if slices.Contains(r.lbis, lbi) {
		return nil
	}
	r.lbis = append(r.lbis, lbi)
	return nil
}

// LBIs returns the logical tensors of the register, in the order they were added.
func (r *Register) LBIs() []LogicalBlobID { return slices.Clone(r.lbis) }

// HasLBI returns whether the register carries the logical tensor.
func (r *Register) HasLBI(lbi LogicalBlobID) bool { return slices.Contains(r.lbis, lbi) }

// SetBlobDesc sets the shape of the blob of lbi. The lbi must have been added before with AddLBI.
func (r *Register) SetBlobDesc(lbi LogicalBlobID, shape shapes.Shape) error {
	if r.locked {
		return errors.Errorf("can't set blob of %s in locked register %s", lbi, r)
	}
	if !r.HasLBI(lbi) {
		return errors.Errorf("register %s doesn't carry %s", r, lbi)
	}
	r.blobDescs[lbi] = shape.Clone()
	return nil
}

// BlobDesc returns the shape of the blob of lbi.
func (r *Register) BlobDesc(lbi LogicalBlobID) (shapes.Shape, error) {
	shape, found := r.blobDescs[lbi]
	if !found {
		return shapes.Invalid(), errors.Errorf("register %s has no blob description for %s", r, lbi)
	}
	return shape, nil
}

// SoleBlobDesc returns the shape of the only blob of the register.
func (r *Register) SoleBlobDesc() (shapes.Shape, error) {
	if len(r.lbis) != 1 {
		return shapes.Invalid(), errors.Errorf("register %s has %d blobs, expected exactly one", r, len(r.lbis))
	}
	return r.BlobDesc(r.lbis[0])
}

// TimeShape returns how many times the register is produced per outer iteration.
func (r *Register) TimeShape() []int64 { return slices.Clone(r.timeShape) }

// SetTimeShape sets the time shape. It fails if the register is locked, unless the time shape is unchanged.
func (r *Register) SetTimeShape(timeShape []int64) error {
	if r.locked && !slices.Equal(r.timeShape, timeShape) {
		return errors.Errorf("can't change time shape of locked register %s", r)
	}
	r.timeShape = slices.Clone(timeShape)
	return nil
}

// Lock finalizes the register: every logical tensor must have its blob description.
func (r *Register) Lock() error {
	for _, lbi := range r.lbis {
		if _, found := r.blobDescs[lbi]; !found {
			return errors.Errorf("can't lock register %s: no blob description for %s", r, lbi)
		}
	}
	r.locked = true
	return nil
}

// IsLocked returns whether the register is finalized.
func (r *Register) IsLocked() bool { return r.locked }

// ByteSize is the memory used by all the slots of the register.
func (r *Register) ByteSize() int64 {
	var slotSize int64
	for _, lbi := range r.lbis {
		slotSize += int64(r.blobDescs[lbi].Memory())
	}
	return slotSize * int64(r.maxRegisterNum)
}

// EnableMemSharing aliases the register onto the shared arena memSharedID at offset.
//
// It is allowed on locked registers. Aliasing a register twice onto different places is an error.
func (r *Register) EnableMemSharing(memSharedID int, offset int64) error {
	if r.memSharedID >= 0 && (r.memSharedID != memSharedID || r.memSharedOffset != offset) {
		return errors.Wrapf(ErrInvariant, "register %s already shares arena #%d at offset %d, can't move it to arena #%d at offset %d",
			r, r.memSharedID, r.memSharedOffset, memSharedID, offset)
	}
	r.memSharedID = memSharedID
	r.memSharedOffset = offset
	return nil
}

// MemSharedID returns the id of the shared arena the register is aliased onto, or -1 if not shared.
func (r *Register) MemSharedID() int { return r.memSharedID }

// MemSharedOffset returns the offset in the shared arena. Only meaningful if MemSharedID() >= 0.
func (r *Register) MemSharedOffset() int64 { return r.memSharedOffset }

// String implements fmt.Stringer.
func (r *Register) String() string {
	producer := "?"
	if r.producer != nil {
		producer = r.producer.Name()
	}
	return fmt.Sprintf("regst#%d(%s:%s)", r.id, producer, r.name)
}

// Write a one-line description of the register.
func (r *Register) Write(writer io.Writer, indentation string) error {
	var err error
	w := func(format string, args ...any) {
		if err != nil {
			// No op if an error was encountered earlier
			return
		}
		_, err = fmt.Fprintf(writer, format, args...)
	}

	w("%s%s (%d,%d) %s", indentation, r, r.minRegisterNum, r.maxRegisterNum, r.memCase)
	blobs := make([]string, len(r.lbis))
	for i, lbi := range r.lbis {
		if shape, found := r.blobDescs[lbi]; found {
			blobs[i] = fmt.Sprintf("%s:%s", lbi, shape)
		} else {
			blobs[i] = lbi.String() + ":?"
		}
	}
	w(" lbis=[%s]", strings.Join(blobs, ", "))
	if r.timeShape != nil {
		w(" time_shape=%v", r.timeShape)
	}
	w(" size=%s", humanize.IBytes(uint64(r.ByteSize())))
	if r.memSharedID >= 0 {
		w(" mem_shared=#%d+%d", r.memSharedID, r.memSharedOffset)
	}
	if r.locked {
		w(" locked")
	}
	return err
}
