package runtime

import "github.com/rvkernel/rvk/internal/wasm/translate"

const wasmPageSize = 64 * 1024

// Memory is one instance's linear memory. The original reserves Max pages
// of address space up front, maps the first Min pages and adds a guard
// region; Go has no direct equivalent of reserving address space without
// committing it, so this package backs the memory with a Go byte slice
// sized to the current length and grows it in place on memory.grow. No
// address space is reserved beyond that length and there is no guard
// region; CheckBounds does the bounds checking.
type Memory struct {
	desc translate.MemoryDesc
	data []byte
}

// NewMemory allocates a Memory with its initial (Min-pages) size already
// committed.
func NewMemory(desc translate.MemoryDesc) *Memory {
	return &Memory{desc: desc, data: make([]byte, desc.Limits.Min*wasmPageSize)}
}

// Size reports the memory's current size in Wasm pages.
func (m *Memory) Size() uint64 { return uint64(len(m.data)) / wasmPageSize }

// Grow implements the memory.grow builtin's core logic: attempts to add
// delta pages, returning the previous size on success or false if the
// growth would exceed the declared maximum.
func (m *Memory) Grow(delta uint64) (previous uint64, ok bool) {
	previous = m.Size()
	newSize := previous + delta
	if m.desc.Limits.HasMax && newSize > m.desc.Limits.Max {
		return previous, false
	}
	const maxAddressablePages = (1 << 32) / wasmPageSize
	if !m.desc.Is64 && newSize > maxAddressablePages {
		return previous, false
	}
	m.data = append(m.data, make([]byte, delta*wasmPageSize)...)
	return previous, true
}

// Bytes returns the memory's backing storage; callers must bounds-check
// before slicing into it (the interpreter does so on every load/store).
func (m *Memory) Bytes() []byte { return m.data }

// CheckBounds reports whether [offset, offset+length) lies entirely
// within the memory's current size, without panicking on overflow.
func (m *Memory) CheckBounds(offset, length uint64) bool {
	end := offset + length
	if end < offset { // overflow
		return false
	}
	return end <= uint64(len(m.data))
}
