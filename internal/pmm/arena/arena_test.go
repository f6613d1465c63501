package arena

import (
	"testing"

	"github.com/rvkernel/rvk/internal/addr"
)

const pageSize = 0x1000
const pageShift = 12

// testHart is an arbitrary valid hart id; the tests below use a single
// hart throughout, so the per-hart cache behaves as a simple LIFO layer
// in front of the arena.
const testHart = 0

func pageLayout() Layout { return Layout{Size: pageSize, Align: pageSize} }

// TestBootstrapToArenaHandoff covers the tail of scenario S1: the leftover
// single-page region becomes an arena with total_frames==1 and one free
// block on order 0.
func TestBootstrapToArenaHandoff(t *testing.T) {
	a := NewArena(addr.PhysRange{Start: 0, End: pageSize}, pageShift)
	if a.TotalFrames() != 1 {
		t.Fatalf("TotalFrames() = %d, want 1", a.TotalFrames())
	}
	if a.freeCount[0] != 1 {
		t.Fatalf("freeCount[0] = %d, want 1", a.freeCount[0])
	}
	for o := 1; o < MaxOrder; o++ {
		if a.freeCount[o] != 0 {
			t.Fatalf("freeCount[%d] = %d, want 0", o, a.freeCount[o])
		}
	}
}

// TestAllocatorConservation checks invariant 1 from spec.md §8: at all
// times used_frames + sum(len(free_lists[i]) * (1<<i)) == total, once any
// frames parked in the hart cache are flushed back to the arena.
func TestAllocatorConservation(t *testing.T) {
	al := NewAllocator(pageShift, []addr.PhysRange{{Start: 0, End: 64 * pageSize}})
	ar := al.Arenas()[0]

	checkConservation := func() {
		t.Helper()
		if got := ar.UsedFrames() + ar.FreeFrames(); got != ar.TotalFrames() {
			t.Fatalf("used(%d)+free(%d) = %d, want total %d", ar.UsedFrames(), ar.FreeFrames(), got, ar.TotalFrames())
		}
	}

	checkConservation()

	var frames []Frame
	for i := 0; i < 10; i++ {
		f, err := al.Allocate(testHart, pageLayout())
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		frames = append(frames, f)
		checkConservation()
	}

	for _, f := range frames {
		al.Deallocate(testHart, f, pageLayout())
		checkConservation()
	}

	al.FlushCache(testHart)
	if got := ar.FreeFrames(); got != 64 {
		t.Fatalf("FreeFrames() after draining = %d, want 64", got)
	}
}

// TestBuddyDiscipline checks invariant 2: every block on free_lists[k] is
// aligned to PageSize<<k.
func TestBuddyDiscipline(t *testing.T) {
	al := NewAllocator(pageShift, []addr.PhysRange{{Start: 0, End: 256 * pageSize}})
	ar := al.Arenas()[0]

	// Allocate and free a handful of blocks of varying orders to produce a
	// mixed free-list state, then verify alignment of every surviving head.
	var held []struct {
		f Frame
		l Layout
	}
	sizes := []uintptr{pageSize, 2 * pageSize, 4 * pageSize, pageSize, 8 * pageSize}
	for _, sz := range sizes {
		l := Layout{Size: sz, Align: sz}
		f, err := al.Allocate(testHart, l)
		if err != nil {
			t.Fatalf("Allocate(%d): %v", sz, err)
		}
		held = append(held, struct {
			f Frame
			l Layout
		}{f, l})
	}
	// Free every other allocation to create buddies at various orders.
	al.Deallocate(testHart, held[1].f, held[1].l)
	al.Deallocate(testHart, held[3].f, held[3].l)
	// held[3] was a single page (order 0): it landed in the hart cache,
	// not the arena free list, until flushed.
	al.FlushCache(testHart)

	for o := 0; o < MaxOrder; o++ {
		idx := ar.freeHead[o]
		for idx != noLink {
			blockAddr := uint32(idx) << 0
			if blockAddr&((1<<uint(o))-1) != 0 {
				t.Fatalf("block at relative frame %d on free_lists[%d] is not aligned to 1<<%d frames", idx, o, o)
			}
			idx = ar.frames[idx].nextIdx
		}
	}
}

// TestAllocateDeallocateIdempotent checks invariant 3: allocate then
// deallocate with the same layout restores an allocation-equivalent state.
func TestAllocateDeallocateIdempotent(t *testing.T) {
	al := NewAllocator(pageShift, []addr.PhysRange{{Start: 0, End: 32 * pageSize}})
	before := al.Stats()

	f, err := al.Allocate(testHart, pageLayout())
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	al.Deallocate(testHart, f, pageLayout())
	al.FlushCache(testHart)

	after := al.Stats()
	if before != after {
		t.Fatalf("stats before %+v != after %+v", before, after)
	}

	// Re-allocating must succeed and return the same frame, since it's the
	// only free block of its order again.
	f2, err := al.Allocate(testHart, pageLayout())
	if err != nil {
		t.Fatalf("re-Allocate: %v", err)
	}
	if f2 != f {
		t.Fatalf("re-Allocate returned %d, want %d (same frame after idempotent round trip)", f2, f)
	}
}

func TestAllocateExhaustion(t *testing.T) {
	al := NewAllocator(pageShift, []addr.PhysRange{{Start: 0, End: 2 * pageSize}})
	if _, err := al.Allocate(testHart, pageLayout()); err != nil {
		t.Fatalf("first alloc: %v", err)
	}
	if _, err := al.Allocate(testHart, pageLayout()); err != nil {
		t.Fatalf("second alloc: %v", err)
	}
	if _, err := al.Allocate(testHart, pageLayout()); err != ErrExhausted {
		t.Fatalf("third alloc = %v, want ErrExhausted", err)
	}
}

func TestBadLayoutRejected(t *testing.T) {
	al := NewAllocator(pageShift, []addr.PhysRange{{Start: 0, End: pageSize}})
	if _, err := al.Allocate(testHart, Layout{Size: pageSize, Align: 3}); err != ErrBadLayout {
		t.Fatalf("expected ErrBadLayout, got %v", err)
	}
}

// TestPerHartCacheServesWithoutTouchingArena checks that a single-page,
// page-aligned Allocate/Deallocate round trip on one hart is served by
// that hart's cache rather than the arena free list (spec.md §4.C): the
// arena's own free/used counters must not move across the round trip,
// since the frame never left the cache.
func TestPerHartCacheServesWithoutTouchingArena(t *testing.T) {
	al := NewAllocator(pageShift, []addr.PhysRange{{Start: 0, End: 4 * pageSize}})
	ar := al.Arenas()[0]

	f, err := al.Allocate(testHart, pageLayout())
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	al.Deallocate(testHart, f, pageLayout())

	usedAfterDealloc := ar.UsedFrames()
	freeAfterDealloc := ar.FreeFrames()

	f2, err := al.Allocate(testHart, pageLayout())
	if err != nil {
		t.Fatalf("re-Allocate: %v", err)
	}
	if f2 != f {
		t.Fatalf("cache re-Allocate returned %d, want %d", f2, f)
	}
	if ar.UsedFrames() != usedAfterDealloc || ar.FreeFrames() != freeAfterDealloc {
		t.Fatalf("arena counters moved across a cached round trip: used %d->%d, free %d->%d",
			usedAfterDealloc, ar.UsedFrames(), freeAfterDealloc, ar.FreeFrames())
	}
}

// TestNoHartBypassesCache checks that arena.NoHart always takes the
// arena-locked path, never the per-hart cache, so concurrent callers with
// no hart identity of their own (internal/goruntime) stay race-free.
func TestNoHartBypassesCache(t *testing.T) {
	al := NewAllocator(pageShift, []addr.PhysRange{{Start: 0, End: 4 * pageSize}})
	ar := al.Arenas()[0]

	f, err := al.Allocate(NoHart, pageLayout())
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	al.Deallocate(NoHart, f, pageLayout())

	if got := ar.FreeFrames(); got != 4 {
		t.Fatalf("FreeFrames() = %d, want 4 (NoHart deallocate must return straight to the arena)", got)
	}
}

// TestCacheBoundedAt256 checks that once a hart's cache is full, further
// single-page deallocates fall through to the arena instead of growing the
// cache unbounded (spec.md §4.C: "bounded at 256 page frames").
func TestCacheBoundedAt256(t *testing.T) {
	al := NewAllocator(pageShift, []addr.PhysRange{{Start: 0, End: 300 * pageSize}})
	ar := al.Arenas()[0]

	var frames []Frame
	for i := 0; i < 260; i++ {
		f, err := al.Allocate(testHart, pageLayout())
		if err != nil {
			t.Fatalf("Allocate %d: %v", i, err)
		}
		frames = append(frames, f)
	}
	for _, f := range frames {
		al.Deallocate(testHart, f, pageLayout())
	}

	// At most maxCacheFrames frames can sit in the cache; the rest must
	// have gone back to the arena and be visible in FreeFrames().
	if got := ar.FreeFrames(); got < 4 {
		t.Fatalf("FreeFrames() = %d, want at least %d returned to the arena past the cache bound", got, 260-maxCacheFrames)
	}
}
