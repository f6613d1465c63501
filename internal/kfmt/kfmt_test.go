package kfmt

import "testing"

type bufSink struct{ out string }

func (b *bufSink) WriteString(s string) { b.out += s }

func TestPrintfVerbs(t *testing.T) {
	cases := []struct {
		format string
		args   []interface{}
		want   string
	}{
		{"hello", nil, "hello"},
		{"%d", []interface{}{42}, "42"},
		{"%d", []interface{}{-7}, "-7"},
		{"%x", []interface{}{uint64(0xbeef)}, "beef"},
		{"%16x", []interface{}{uint64(0x1)}, "0000000000000001"},
		{"%X", []interface{}{uint64(0xbeef)}, "BEEF"},
		{"%s", []interface{}{"kernel"}, "kernel"},
		{"%t", []interface{}{true}, "true"},
		{"%%", nil, "%"},
		{"[0x%x - 0x%x)", []interface{}{uint64(0), uint64(0x1000)}, "[0x0 - 0x1000)"},
	}

	for _, c := range cases {
		s := &bufSink{}
		SetSink(s)
		Printf(c.format, c.args...)
		if s.out != c.want {
			t.Errorf("Printf(%q, %v) = %q, want %q", c.format, c.args, s.out, c.want)
		}
	}
	SetSink(nil)
}

func TestRingBuffer(t *testing.T) {
	EnableRing(8)
	SetSink(nil)
	Printf("abcdefgh")
	if got := Recent(); got != "abcdefgh" {
		t.Fatalf("Recent() = %q, want %q", got, "abcdefgh")
	}
	Printf("XY")
	if got := Recent(); got != "cdefghXY" {
		t.Fatalf("Recent() after overflow = %q, want %q", got, "cdefghXY")
	}
}

func TestSprintf(t *testing.T) {
	if got := Sprintf("frame=%d addr=0x%x", 3, uint64(0x2000)); got != "frame=3 addr=0x2000" {
		t.Fatalf("Sprintf = %q", got)
	}
}
