// Package kfmt implements a small, reflection-free subset of fmt.Printf for use in
// contexts where the Go heap may not exist yet (bootstrap allocator, trap
// handlers) or where allocating could itself trigger the fault being
// reported. It ports the style of the teacher's kernel/kfmt/early package:
// a small verb set, a ring buffer of recent output for crash reports, and a
// pluggable Sink instead of a concrete console driver.
//
// Concrete consoles (UART, framebuffer text, VGA) are external
// collaborators per the specification and are not implemented here; callers
// install a Sink that writes bytes wherever the embedder's console driver
// lives.
package kfmt

import "sync"

// Sink receives formatted output. A real kernel installs a Sink backed by
// its UART or framebuffer console driver; tests typically use a
// bytes.Buffer-backed Sink.
type Sink interface {
	WriteString(s string)
}

var (
	mu         sync.Mutex
	sink       Sink
	ring       ringBuffer
	ringActive bool
)

// SetSink installs the active output sink. Passing nil disables output
// (formatted text is still appended to the crash ring buffer).
func SetSink(s Sink) {
	mu.Lock()
	sink = s
	mu.Unlock()
}

// EnableRing enables buffering of the last capacity bytes of output so that
// Recent can be used to render a crash report even if the sink itself is no
// longer reachable (e.g. after a double fault).
func EnableRing(capacity int) {
	mu.Lock()
	ring.reset(capacity)
	ringActive = true
	mu.Unlock()
}

// Recent returns the most recently emitted output still held in the ring
// buffer, oldest first.
func Recent() string {
	mu.Lock()
	defer mu.Unlock()
	return ring.String()
}

// Printf formats according to a format specifier and writes the result to
// the active sink. Supported verbs: %d (int64/uint64), %x/%X (hex,
// optionally zero-padded via a width, e.g. %16x), %s, %c, %t, %p, %%.
// Unlike fmt.Printf, Printf uses no reflection: the format string is walked
// byte by byte and each argument is rendered into a fixed 512-byte stack
// buffer. The rendered bytes are then copied into a new string for the sink
// and the ring buffer, which allocates.
func Printf(format string, args ...interface{}) {
	var buf [512]byte
	n := render(buf[:0], format, args)
	out := string(buf[:n])

	mu.Lock()
	if sink != nil {
		sink.WriteString(out)
	}
	if ringActive {
		ring.writeString(out)
	}
	mu.Unlock()
}

// WriteString writes s directly to the active sink and ring buffer,
// bypassing Printf's format-string parsing and fixed-size render buffer —
// for callers that already hold a complete, possibly large byte buffer to
// emit (for instance the WASI fd_write host import) rather than a format
// string and arguments.
func WriteString(s string) {
	mu.Lock()
	if sink != nil {
		sink.WriteString(s)
	}
	if ringActive {
		ring.writeString(s)
	}
	mu.Unlock()
}

// Sprintf behaves like Printf but returns the formatted string instead of
// writing it to the sink. It still avoids fmt's reflection-based machinery.
func Sprintf(format string, args ...interface{}) string {
	var buf [512]byte
	n := render(buf[:0], format, args)
	return string(buf[:n])
}

func render(buf []byte, format string, args []interface{}) int {
	argIdx := 0
	nextArg := func() interface{} {
		if argIdx >= len(args) {
			return nil
		}
		a := args[argIdx]
		argIdx++
		return a
	}

	i := 0
	for i < len(format) {
		c := format[i]
		if c != '%' {
			buf = append(buf, c)
			i++
			continue
		}
		i++
		if i >= len(format) {
			buf = append(buf, '%')
			break
		}

		// optional zero-padded width, e.g. %16x
		width := 0
		for i < len(format) && format[i] >= '0' && format[i] <= '9' {
			width = width*10 + int(format[i]-'0')
			i++
		}
		if i >= len(format) {
			break
		}

		verb := format[i]
		i++
		switch verb {
		case '%':
			buf = append(buf, '%')
		case 'd':
			buf = appendInt(buf, nextArg(), 10, false, width)
		case 'x':
			buf = appendInt(buf, nextArg(), 16, false, width)
		case 'X':
			buf = appendInt(buf, nextArg(), 16, true, width)
		case 's':
			buf = append(buf, toString(nextArg())...)
		case 'c':
			buf = appendRune(buf, nextArg())
		case 't':
			if b, _ := nextArg().(bool); b {
				buf = append(buf, "true"...)
			} else {
				buf = append(buf, "false"...)
			}
		case 'p':
			buf = appendInt(buf, nextArg(), 16, false, 0)
		case 'v':
			buf = append(buf, toString(nextArg())...)
		default:
			buf = append(buf, '%', verb)
		}
	}
	return len(buf)
}

func toUint64(v interface{}) (uint64, bool, bool) {
	switch n := v.(type) {
	case int:
		return uint64(abs64(int64(n))), n < 0, true
	case int8:
		return uint64(abs64(int64(n))), n < 0, true
	case int16:
		return uint64(abs64(int64(n))), n < 0, true
	case int32:
		return uint64(abs64(int64(n))), n < 0, true
	case int64:
		return uint64(abs64(n)), n < 0, true
	case uint:
		return uint64(n), false, true
	case uint8:
		return uint64(n), false, true
	case uint16:
		return uint64(n), false, true
	case uint32:
		return uint64(n), false, true
	case uint64:
		return n, false, true
	case uintptr:
		return uint64(n), false, true
	}
	return 0, false, false
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

func appendInt(buf []byte, v interface{}, base int, upper bool, width int) []byte {
	u, neg, ok := toUint64(v)
	if !ok {
		return append(buf, "<bad>"...)
	}

	var digits [64]byte
	n := 0
	if u == 0 {
		digits[0] = '0'
		n = 1
	}
	alphabet := "0123456789abcdef"
	if upper {
		alphabet = "0123456789ABCDEF"
	}
	for u > 0 {
		digits[n] = alphabet[u%uint64(base)]
		u /= uint64(base)
		n++
	}
	for n < width {
		digits[n] = '0'
		n++
	}
	if neg {
		buf = append(buf, '-')
	}
	for j := n - 1; j >= 0; j-- {
		buf = append(buf, digits[j])
	}
	return buf
}

func appendRune(buf []byte, v interface{}) []byte {
	switch r := v.(type) {
	case rune:
		return append(buf, string(r)...)
	case byte:
		return append(buf, r)
	}
	return append(buf, '?')
}

func toString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case error:
		return s.Error()
	case nil:
		return "<nil>"
	}
	if u, _, ok := toUint64(v); ok {
		var buf [20]byte
		n := appendInt(buf[:0], u, 10, false, 0)
		return string(n)
	}
	return "<?>"
}

// ringBuffer is a fixed-capacity circular byte buffer used to retain recent
// kfmt output for crash reports, mirroring the teacher's kfmt.ringbuf.
type ringBuffer struct {
	data  []byte
	start int
	len   int
}

func (r *ringBuffer) reset(capacity int) {
	r.data = make([]byte, capacity)
	r.start = 0
	r.len = 0
}

func (r *ringBuffer) writeString(s string) {
	if len(r.data) == 0 {
		return
	}
	for i := 0; i < len(s); i++ {
		pos := (r.start + r.len) % len(r.data)
		r.data[pos] = s[i]
		if r.len < len(r.data) {
			r.len++
		} else {
			r.start = (r.start + 1) % len(r.data)
		}
	}
}

func (r *ringBuffer) String() string {
	if r.len == 0 {
		return ""
	}
	out := make([]byte, r.len)
	for i := 0; i < r.len; i++ {
		out[i] = r.data[(r.start+i)%len(r.data)]
	}
	return string(out)
}
