package unwind

import "unsafe"

// readWordAt dereferences 8 bytes at a raw address computed from CFI data
// (a CFA-relative stack slot). This is the unwinder's one unsafe read: it
// has to trust the DWARF info the same way original_source's Frame::unwind
// does ("Safety: we have to trust the DWARF info here"). Tests never call
// this directly — they swap the package-level readWord var for a fake
// backed by an ordinary Go map, since dereferencing a
// hand-constructed test address here would simply crash the test process.
func readWordAt(addr uint64) uint64 {
	return *(*uint64)(unsafe.Pointer(uintptr(addr)))
}
