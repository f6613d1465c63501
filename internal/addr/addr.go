// Package addr defines the kernel's physical and virtual address newtypes
// and the half-open range arithmetic used throughout the memory subsystems.
//
// PhysAddr and VirtAddr are distinct word-sized types so that the compiler
// rejects accidental mixing of the two address spaces; the only sanctioned
// conversion between them goes through a physmap window (see package
// physmap), never through a bare cast.
package addr

import "github.com/rvkernel/rvk/internal/kfmt"

// PhysAddr is an address in the machine's physical address space.
type PhysAddr uintptr

// VirtAddr is an address in a hardware address space's virtual range.
type VirtAddr uintptr

// Add returns a+n.
func (a PhysAddr) Add(n uintptr) PhysAddr { return a + PhysAddr(n) }

// Sub returns a-n.
func (a PhysAddr) Sub(n uintptr) PhysAddr { return a - PhysAddr(n) }

// SubAddr returns a-b as a signed offset.
func (a PhysAddr) SubAddr(b PhysAddr) int64 { return int64(a) - int64(b) }

// AlignUp rounds a up to the next multiple of align (align must be a power
// of two).
func (a PhysAddr) AlignUp(align uintptr) PhysAddr {
	return PhysAddr((uintptr(a) + align - 1) &^ (align - 1))
}

// AlignDown rounds a down to the previous multiple of align.
func (a PhysAddr) AlignDown(align uintptr) PhysAddr {
	return PhysAddr(uintptr(a) &^ (align - 1))
}

// IsAligned reports whether a is a multiple of align.
func (a PhysAddr) IsAligned(align uintptr) bool {
	return uintptr(a)&(align-1) == 0
}

// String implements fmt.Stringer for use in kfmt/%v and host-side logs.
func (a PhysAddr) String() string { return kfmt.Sprintf("0x%x", uint64(a)) }

// Add returns a+n.
func (a VirtAddr) Add(n uintptr) VirtAddr { return a + VirtAddr(n) }

// Sub returns a-n.
func (a VirtAddr) Sub(n uintptr) VirtAddr { return a - VirtAddr(n) }

// SubAddr returns a-b as a signed offset.
func (a VirtAddr) SubAddr(b VirtAddr) int64 { return int64(a) - int64(b) }

// AlignUp rounds a up to the next multiple of align.
func (a VirtAddr) AlignUp(align uintptr) VirtAddr {
	return VirtAddr((uintptr(a) + align - 1) &^ (align - 1))
}

// AlignDown rounds a down to the previous multiple of align.
func (a VirtAddr) AlignDown(align uintptr) VirtAddr {
	return VirtAddr(uintptr(a) &^ (align - 1))
}

// IsAligned reports whether a is a multiple of align.
func (a VirtAddr) IsAligned(align uintptr) bool {
	return uintptr(a)&(align-1) == 0
}

// String implements fmt.Stringer.
func (a VirtAddr) String() string { return kfmt.Sprintf("0x%x", uint64(a)) }

// Range is a half-open interval [Start, End) over an ordered address type.
type Range[T PhysAddr | VirtAddr] struct {
	Start T
	End   T
}

// Size returns End-Start in bytes.
func (r Range[T]) Size() uintptr {
	return uintptr(r.End) - uintptr(r.Start)
}

// AlignIn shrinks r to the given alignment: Start rounds up, End rounds
// down. The result may be empty (Start >= End) if r was smaller than align.
func (r Range[T]) AlignIn(align uintptr) Range[T] {
	start := (uintptr(r.Start) + align - 1) &^ (align - 1)
	end := uintptr(r.End) &^ (align - 1)
	if end < start {
		end = start
	}
	return Range[T]{Start: T(start), End: T(end)}
}

// AlignOut grows r to the given alignment: Start rounds down, End rounds up.
func (r Range[T]) AlignOut(align uintptr) Range[T] {
	start := uintptr(r.Start) &^ (align - 1)
	end := (uintptr(r.End) + align - 1) &^ (align - 1)
	return Range[T]{Start: T(start), End: T(end)}
}

// Overlaps reports whether r and other share at least one address.
func (r Range[T]) Overlaps(other Range[T]) bool {
	return uintptr(r.Start) < uintptr(other.End) && uintptr(other.Start) < uintptr(r.End)
}

// Contains reports whether v lies within r.
func (r Range[T]) Contains(v T) bool {
	return uintptr(v) >= uintptr(r.Start) && uintptr(v) < uintptr(r.End)
}

// ContainsRange reports whether other is fully contained within r.
func (r Range[T]) ContainsRange(other Range[T]) bool {
	return uintptr(other.Start) >= uintptr(r.Start) && uintptr(other.End) <= uintptr(r.End)
}

// Empty reports whether the range contains no addresses.
func (r Range[T]) Empty() bool {
	return uintptr(r.End) <= uintptr(r.Start)
}

// PhysRange is a half-open range of physical addresses.
type PhysRange = Range[PhysAddr]

// VirtRange is a half-open range of virtual addresses.
type VirtRange = Range[VirtAddr]
