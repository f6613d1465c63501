package runtime

import (
	"encoding/binary"

	"github.com/rvkernel/rvk/internal/kfmt"
)

// wasiErrno mirrors the handful of wasi_snapshot_preview1 error codes this
// package's small host surface can actually produce.
type wasiErrno uint32

const (
	wasiErrnoSuccess wasiErrno = 0
	wasiErrnoBadf    wasiErrno = 8
)

// WASIImports returns the wasi_snapshot_preview1 functions a guest module
// compiled against a libc targeting WASI expects to import, implemented
// against the three host file descriptors a kernel-hosted guest actually
// has: stdin/stdout/stderr, routed to the kernel console (SPEC_FULL.md §J).
// There is no file table: fd_seek always returns Badf and fd_close always
// succeeds.
func WASIImports() map[string]HostFunc {
	return map[string]HostFunc{
		"fd_write": wasiFdWrite,
		"fd_read":  wasiFdRead,
		"fd_close": wasiFdClose,
		"fd_seek":  wasiFdSeek,
	}
}

// ciovec is a single (ptr, len) buffer descriptor as wasi lays them out
// in guest memory: two little-endian u32s.
func readCiovec(mem []byte, addr uint32) (ptr, length uint32) {
	return binary.LittleEndian.Uint32(mem[addr:]), binary.LittleEndian.Uint32(mem[addr+4:])
}

// wasiFdWrite writes each iovec's bytes to the kernel tracing stream
// (internal/kfmt's installed Sink) for fd 1 and 2, per spec.md §6
// "stdout/stderr write to the kernel tracing stream." It never touches a
// real host stdout/stderr: this runtime has no such thing once embedded
// in a kernel, so routing through kfmt is the only sink that exists both
// on the host smoke-test path (cmd/rvk-mkboot wasm-run) and in a real
// kernel boot, wherever kfmt.SetSink installs the console driver.
func wasiFdWrite(inst *Instance, args []Val) ([]Val, error) {
	fd := args[0].I32()
	iovsPtr := uint32(args[1].I32())
	iovsLen := uint32(args[2].I32())
	nwrittenPtr := uint32(args[3].I32())

	mem := inst.Memories[0].Bytes()

	if fd != 1 && fd != 2 {
		return []Val{I32Val(int32(wasiErrnoBadf))}, nil
	}

	var total uint32
	for i := uint32(0); i < iovsLen; i++ {
		ptr, length := readCiovec(mem, iovsPtr+i*8)
		kfmt.WriteString(string(mem[ptr : ptr+length]))
		total += length
	}
	binary.LittleEndian.PutUint32(mem[nwrittenPtr:], total)
	return []Val{I32Val(int32(wasiErrnoSuccess))}, nil
}

// wasiFdRead always reports EOF on fd 0 and never blocks, per spec.md §6
// "stdin always EOF": a kernel-hosted guest has no real console input
// device wired up to this host surface, so it must not read (and
// potentially block on) the build host's actual stdin.
func wasiFdRead(inst *Instance, args []Val) ([]Val, error) {
	fd := args[0].I32()
	nreadPtr := uint32(args[3].I32())

	if fd != 0 {
		return []Val{I32Val(int32(wasiErrnoBadf))}, nil
	}

	mem := inst.Memories[0].Bytes()
	binary.LittleEndian.PutUint32(mem[nreadPtr:], 0)
	return []Val{I32Val(int32(wasiErrnoSuccess))}, nil
}

func wasiFdClose(inst *Instance, args []Val) ([]Val, error) {
	return []Val{I32Val(int32(wasiErrnoSuccess))}, nil
}

func wasiFdSeek(inst *Instance, args []Val) ([]Val, error) {
	return []Val{I32Val(int32(wasiErrnoBadf))}, nil
}
