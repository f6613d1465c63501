package arena

import "github.com/rvkernel/rvk/internal/addr"

// Frame is a physical page number (spec.md §3 "Frame"). Address and order
// are packed using the teacher's convention (kernel/mem/pmm.Frame): the low
// bits are the page number, and callers track order separately rather than
// stealing high bits, since arena blocks of varying order live in entirely
// different free lists rather than needing an inline order tag.
type Frame uint64

// InvalidFrame is returned by allocators on failure.
const InvalidFrame = Frame(^uint64(0))

// IsValid reports whether f is a real frame.
func (f Frame) IsValid() bool { return f != InvalidFrame }

// Address returns the physical address of this frame.
func (f Frame) Address(pageShift uint) addr.PhysAddr {
	return addr.PhysAddr(uint64(f) << pageShift)
}

// FrameFromAddress returns the frame number containing addr.
func FrameFromAddress(a addr.PhysAddr, pageShift uint) Frame {
	return Frame(uint64(a) >> pageShift)
}

// State is the bookkeeping state of one physical page (spec.md §3 "Frame").
type State uint8

const (
	// StateFree means the frame sits on a free list.
	StateFree State = iota
	// StateWired means the frame is permanently mapped and never reclaimed.
	StateWired
	// StatePagedOwned means the frame backs exactly one paged VMO.
	StatePagedOwned
	// StatePagedShared means the frame backs a paged VMO with refcount > 1.
	StatePagedShared
)

// info is the per-frame bookkeeping record. NewArena keeps one per frame in
// an ordinary Go slice (Arena.frames); the records are not stored inside the
// arena's own physical range.
type info struct {
	state   State
	order   uint8 // order of the free-list block this frame currently heads, if any
	refcnt  int32
	nextIdx int32 // intrusive free-list link: index of next frame in this pool, -1 if tail
	prevIdx int32
}

const noLink = -1
