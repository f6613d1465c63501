package addr

import "testing"

func TestAlignUpDown(t *testing.T) {
	a := PhysAddr(0x1001)
	if got := a.AlignUp(0x1000); got != 0x2000 {
		t.Errorf("AlignUp = %#x, want 0x2000", uint64(got))
	}
	if got := a.AlignDown(0x1000); got != 0x1000 {
		t.Errorf("AlignDown = %#x, want 0x1000", uint64(got))
	}
	if PhysAddr(0x2000).IsAligned(0x1000) != true {
		t.Errorf("expected 0x2000 aligned to 0x1000")
	}
}

func TestRangeAlignInOut(t *testing.T) {
	r := PhysRange{Start: 0x1800, End: 0x3800}
	in := r.AlignIn(0x1000)
	if in.Start != 0x2000 || in.End != 0x3000 {
		t.Errorf("AlignIn = %#x-%#x, want 0x2000-0x3000", uint64(in.Start), uint64(in.End))
	}
	out := r.AlignOut(0x1000)
	if out.Start != 0x1000 || out.End != 0x4000 {
		t.Errorf("AlignOut = %#x-%#x, want 0x1000-0x4000", uint64(out.Start), uint64(out.End))
	}
}

func TestRangeAlignInEmptyWhenSmallerThanAlign(t *testing.T) {
	r := PhysRange{Start: 0x1010, End: 0x1020}
	in := r.AlignIn(0x1000)
	if !in.Empty() {
		t.Errorf("expected empty range, got %#x-%#x", uint64(in.Start), uint64(in.End))
	}
}

func TestOverlapsAndContains(t *testing.T) {
	a := PhysRange{Start: 0x1000, End: 0x2000}
	b := PhysRange{Start: 0x1800, End: 0x2800}
	c := PhysRange{Start: 0x2000, End: 0x3000}

	if !a.Overlaps(b) {
		t.Errorf("expected overlap")
	}
	if a.Overlaps(c) {
		t.Errorf("half-open ranges touching at the boundary must not overlap")
	}
	if !a.Contains(0x1500) {
		t.Errorf("expected 0x1500 to be contained")
	}
	if a.Contains(0x2000) {
		t.Errorf("end address must not be contained (half-open)")
	}
	if !a.ContainsRange(PhysRange{Start: 0x1000, End: 0x1800}) {
		t.Errorf("expected sub-range to be contained")
	}
}
