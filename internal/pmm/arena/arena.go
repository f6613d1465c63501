// Package arena implements the buddy-style physical frame allocator that
// the kernel promotes to once the bootstrap allocator (package bootmem) has
// finished its one-shot work (spec.md §4.C). Each contiguous physical
// region handed down from bootstrap becomes one Arena with MaxOrder free
// lists; an Allocator holds a set of independent Arenas behind a single
// mutex, plus one bounded, unsynchronized cpuCache per hart (see cache.go)
// that single-page, page-aligned Allocate/Deallocate calls hit first.
package arena

import (
	"math/bits"
	"sync"

	"github.com/rvkernel/rvk/internal/addr"
	"github.com/rvkernel/rvk/internal/kerror"
)

// MaxOrder is the number of buddy orders (0..MaxOrder-1), per spec.md §4.C.
const MaxOrder = 11

var (
	// ErrExhausted is returned when no block of the requested order is free.
	ErrExhausted = kerror.New("pmm/arena", "out of memory")
	// ErrBadLayout is returned for a degenerate or over-aligned request.
	ErrBadLayout = kerror.New("pmm/arena", "invalid layout")
	// ErrMisalignedAddress is returned by Deallocate for an address that is
	// not aligned to its claimed order.
	ErrMisalignedAddress = kerror.New("pmm/arena", "misaligned block address")
)

// Layout mirrors bootmem.Layout: a size and an alignment, both in bytes.
type Layout struct {
	Size  uintptr
	Align uintptr
}

// Arena is a single contiguous physical range managed by one buddy
// allocator, plus its frame-info slice (spec.md §3 "Arena"). The slice is
// allocated on the Go heap, not carved out of the arena's physical range.
type Arena struct {
	base      Frame // first frame number belonging to this arena
	numFrames uint32
	pageShift uint

	frames []info // one entry per frame, indexed relative to base

	freeHead  [MaxOrder]int32 // index (relative to base) of the head of each free list, or noLink
	freeCount [MaxOrder]uint32

	usedFrames uint32

	maxAlignmentHint uintptr
}

// NewArena partitions phys into a valid buddy structure by repeatedly
// carving off the largest power-of-two block that fits both the remaining
// size and the alignment of the current cursor (spec.md §4.C), then seeds
// every carved block onto its free list. pageShift is log2(pageSize).
func NewArena(phys addr.PhysRange, pageShift uint) *Arena {
	pageSize := uintptr(1) << pageShift
	r := phys.AlignOut(pageSize)
	numFrames := uint32(r.Size() >> pageShift)

	a := &Arena{
		base:             FrameFromAddress(r.Start, pageShift),
		numFrames:        numFrames,
		pageShift:        pageShift,
		frames:           make([]info, numFrames),
		maxAlignmentHint: pageSize << (MaxOrder - 1),
	}
	for i := range a.freeHead {
		a.freeHead[i] = noLink
	}
	for i := range a.frames {
		a.frames[i].nextIdx = noLink
		a.frames[i].prevIdx = noLink
	}

	cursor := uint32(0)
	for cursor < numFrames {
		remaining := numFrames - cursor
		order := order(remaining)
		// Shrink order to the alignment of the current cursor: a block of
		// order k must start at a frame number that's a multiple of 1<<k.
		for order > 0 && cursor&((1<<order)-1) != 0 {
			order--
		}
		a.pushFree(cursor, uint8(order))
		cursor += 1 << order
	}

	return a
}

// order returns the largest k such that 1<<k <= n.
func order(n uint32) uint8 {
	if n == 0 {
		return 0
	}
	o := bits.Len32(n) - 1
	if o >= MaxOrder {
		o = MaxOrder - 1
	}
	return uint8(o)
}

func (a *Arena) pushFree(relIdx uint32, ord uint8) {
	a.frames[relIdx].state = StateFree
	a.frames[relIdx].order = ord
	a.frames[relIdx].prevIdx = noLink
	a.frames[relIdx].nextIdx = a.freeHead[ord]
	if a.freeHead[ord] != noLink {
		a.frames[a.freeHead[ord]].prevIdx = int32(relIdx)
	}
	a.freeHead[ord] = int32(relIdx)
	a.freeCount[ord]++
}

func (a *Arena) popFree(ord uint8) (uint32, bool) {
	head := a.freeHead[ord]
	if head == noLink {
		return 0, false
	}
	a.unlink(uint32(head), ord)
	return uint32(head), true
}

func (a *Arena) unlink(relIdx uint32, ord uint8) {
	f := &a.frames[relIdx]
	if f.prevIdx != noLink {
		a.frames[f.prevIdx].nextIdx = f.nextIdx
	} else {
		a.freeHead[ord] = f.nextIdx
	}
	if f.nextIdx != noLink {
		a.frames[f.nextIdx].prevIdx = f.prevIdx
	}
	f.prevIdx, f.nextIdx = noLink, noLink
	a.freeCount[ord]--
}

// contains reports whether frame f belongs to this arena.
func (a *Arena) contains(f Frame) bool {
	return f >= a.base && uint32(f-a.base) < a.numFrames
}

// minOrderFor returns the buddy order needed to satisfy l.
func minOrderFor(l Layout, pageSize uintptr) (uint8, *kerror.Error) {
	if l.Size == 0 || l.Align == 0 || l.Align&(l.Align-1) != 0 {
		return 0, ErrBadLayout
	}
	size := l.Size
	if l.Align > size {
		size = l.Align
	}
	size = nextPow2(size)
	if size < pageSize {
		size = pageSize
	}
	o := order(uint32(size / pageSize))
	// order() rounds down to a power of two <= n; since size is already a
	// power of two multiple of pageSize this is exact, but guard against
	// rounding errors from a non power-of-two size/pageSize ratio.
	if pageSize<<o < size {
		o++
	}
	if o >= MaxOrder {
		return 0, ErrBadLayout
	}
	return o, nil
}

func nextPow2(n uintptr) uintptr {
	if n == 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

// allocate pops and splits a block of at least order minOrder, returning the
// relative index of a fresh, minOrder-sized block. Splitting pushes every
// buddy produced along the way onto its own free list (spec.md §4.C step 3).
func (a *Arena) allocate(minOrder uint8) (uint32, bool) {
	o := minOrder
	for ; o < MaxOrder; o++ {
		if a.freeCount[o] > 0 {
			break
		}
	}
	if o >= MaxOrder {
		return 0, false
	}

	relIdx, _ := a.popFree(o)
	for o > minOrder {
		o--
		buddyIdx := relIdx + (1 << o)
		a.pushFree(buddyIdx, o)
	}

	a.frames[relIdx].state = StateWired
	a.frames[relIdx].order = minOrder
	a.frames[relIdx].refcnt = 0
	a.usedFrames += 1 << minOrder
	return relIdx, true
}

// free pushes relIdx back onto its free list at ord and coalesces with its
// buddy (address XOR block size) while the buddy is itself free and of the
// same order, per spec.md §4.C.
func (a *Arena) free(relIdx uint32, ord uint8) {
	a.usedFrames -= 1 << ord

	for ord < MaxOrder-1 {
		buddyIdx := relIdx ^ (1 << ord)
		if buddyIdx >= a.numFrames {
			break
		}
		buddy := &a.frames[buddyIdx]
		if buddy.state != StateFree || buddy.order != ord {
			break
		}
		a.unlink(buddyIdx, ord)
		if buddyIdx < relIdx {
			relIdx = buddyIdx
		}
		ord++
	}
	a.pushFree(relIdx, ord)
}

// TotalFrames returns the arena's total frame count.
func (a *Arena) TotalFrames() uint32 { return a.numFrames }

// UsedFrames returns the number of frames currently allocated.
func (a *Arena) UsedFrames() uint32 { return a.usedFrames }

// FreeFrames returns the number of frames currently free, recomputed from
// the free lists (used for the allocator-conservation invariant, spec.md §8.1).
func (a *Arena) FreeFrames() uint32 {
	var free uint32
	for o := 0; o < MaxOrder; o++ {
		free += a.freeCount[o] << uint(o)
	}
	return free
}

// Allocator owns a set of independent Arenas, one per contiguous physical
// region inherited from the bootstrap allocator, behind a single mutex
// (spec.md §4.C, §5: "the arena is protected by a single mutex").
type Allocator struct {
	mu        sync.Mutex
	arenas    []*Arena
	pageShift uint
	caches    [MaxHarts]cpuCache
}

// NewAllocator builds an Allocator over the given free physical ranges,
// each becoming one Arena.
func NewAllocator(pageShift uint, free []addr.PhysRange) *Allocator {
	al := &Allocator{pageShift: pageShift}
	for _, r := range free {
		if r.Empty() {
			continue
		}
		al.arenas = append(al.arenas, NewArena(r, pageShift))
	}
	return al
}

// PageSize returns 1<<pageShift.
func (al *Allocator) PageSize() uintptr { return uintptr(1) << al.pageShift }

// Allocate reserves size/align bytes of physically contiguous, frame-aligned
// memory, rounding size up to the nearest representable block per spec.md
// §4.C step 1-4. hart identifies the calling CPU for the single-page cache
// fast path (spec.md §4.C, §5 invariant iii); pass NoHart when the caller
// cannot guarantee exclusive access to that hart's cache slot.
func (al *Allocator) Allocate(hart int, l Layout) (Frame, *kerror.Error) {
	minOrder, err := minOrderFor(l, al.PageSize())
	if err != nil {
		return InvalidFrame, err
	}

	if minOrder == 0 && validHart(hart) {
		if f, ok := al.caches[hart].pop(); ok {
			return f, nil
		}
	}

	al.mu.Lock()
	defer al.mu.Unlock()

	for _, ar := range al.arenas {
		if relIdx, ok := ar.allocate(minOrder); ok {
			return ar.base + Frame(relIdx), nil
		}
	}
	return InvalidFrame, ErrExhausted
}

// Deallocate returns a block previously returned by Allocate, using the
// same Layout and hart that produced it, and coalesces it with its buddy
// unless it is absorbed into hart's single-page cache instead.
func (al *Allocator) Deallocate(hart int, f Frame, l Layout) {
	ord, err := minOrderFor(l, al.PageSize())
	if err != nil {
		panic(err)
	}

	if ord == 0 && validHart(hart) {
		if al.caches[hart].push(f) {
			return
		}
	}

	al.mu.Lock()
	defer al.mu.Unlock()

	for _, ar := range al.arenas {
		if ar.contains(f) {
			relIdx := uint32(f - ar.base)
			if relIdx&((1<<ord)-1) != 0 {
				panic(ErrMisalignedAddress)
			}
			ar.free(relIdx, ord)
			return
		}
	}
	panic("pmm/arena: Deallocate on frame not owned by any arena")
}

// FlushCache returns every frame currently parked in hart's single-page
// cache to its owning arena, coalescing as normal. Useful when a hart goes
// offline, and when computing aggregate free/used stats that should not
// count frames sitting in a hart cache as still in flight.
func (al *Allocator) FlushCache(hart int) {
	if !validHart(hart) {
		return
	}

	al.mu.Lock()
	defer al.mu.Unlock()

	c := &al.caches[hart]
	for {
		f, ok := c.pop()
		if !ok {
			return
		}
		for _, ar := range al.arenas {
			if ar.contains(f) {
				ar.free(uint32(f-ar.base), 0)
				break
			}
		}
	}
}

// Stats reports aggregate free/used/total page counts across every arena,
// mirroring the teacher's BitmapAllocator.printStats.
type Stats struct {
	Total, Used, Free uint32
}

// Stats computes the current aggregate allocator stats.
func (al *Allocator) Stats() Stats {
	al.mu.Lock()
	defer al.mu.Unlock()

	var s Stats
	for _, ar := range al.arenas {
		s.Total += ar.TotalFrames()
		s.Used += ar.UsedFrames()
		s.Free += ar.FreeFrames()
	}
	return s
}

// Arenas exposes the underlying arenas for introspection and testing.
func (al *Allocator) Arenas() []*Arena { return al.arenas }
