package unwind

// MaxBacktraceFrames bounds Backtrace's capture depth. The original is
// generic over a const MAX_FRAMES; Go has no value-generic array sizes, so
// this package picks one fixed capacity instead of a Backtrace[N] type
// family — callers needing a different depth get a slice-based capture via
// CaptureSlice.
const MaxBacktraceFrames = 32

// Backtrace captures up to MaxBacktraceFrames instruction pointers cheaply,
// deferring any symbol lookup to String/the report path (spec.md §4.H
// "Backtrace<MAX_FRAMES> captures up to MAX_FRAMES instruction pointers
// cheaply (no symbolization). Symbolization is deferred to Display").
type Backtrace struct {
	pcs [MaxBacktraceFrames]uint64
	n   int
}

// Capture walks it, recording each frame's PC until either the stack ends
// or the capacity is reached.
func Capture(it *FrameIter) (Backtrace, error) {
	var bt Backtrace
	for bt.n < len(bt.pcs) {
		frame, err := it.Next()
		if err != nil {
			return bt, err
		}
		if frame == nil {
			break
		}
		bt.pcs[bt.n] = frame.PC()
		bt.n++
	}
	return bt, nil
}

// PCs returns the captured instruction pointers, innermost frame (the seed
// PC) first.
func (b *Backtrace) PCs() []uint64 { return b.pcs[:b.n] }

// Len reports how many frames were captured.
func (b *Backtrace) Len() int { return b.n }

// String renders the backtrace, symbolizing each PC through ctx if ctx is
// non-nil, or as bare hex addresses otherwise (spec.md's "lazily loads a
// SymbolizeContext" — loading happens once by the caller, not per frame).
func (b *Backtrace) String(ctx *SymbolizeContext) string {
	var out []byte
	for i := 0; i < b.n; i++ {
		pc := b.pcs[i]
		out = append(out, []byte("  #")...)
		out = appendDecimal(out, i)
		out = append(out, ' ')
		if ctx != nil {
			out = append(out, ctx.Symbolize(pc)...)
		} else {
			out = append(out, formatHex(pc)...)
		}
		out = append(out, '\n')
	}
	return string(out)
}

func appendDecimal(buf []byte, v int) []byte {
	if v == 0 {
		return append(buf, '0')
	}
	var digits [20]byte
	n := 0
	for v > 0 {
		digits[n] = byte('0' + v%10)
		v /= 10
		n++
	}
	for i := n - 1; i >= 0; i-- {
		buf = append(buf, digits[i])
	}
	return buf
}

func formatHex(v uint64) string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 2+16)
	buf[0], buf[1] = '0', 'x'
	for i := 0; i < 16; i++ {
		shift := uint(60 - i*4)
		buf[2+i] = hexDigits[(v>>shift)&0xf]
	}
	return string(buf)
}
