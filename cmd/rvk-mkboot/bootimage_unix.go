//go:build unix

package main

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mmapFile maps path read-only for inspection, matching how a real
// image-assembly step would stage the kernel ELF and FDT blob without
// copying them into the Go heap first. Host-only: never compiled into
// the kernel binary.
func mmapFile(path string) (data []byte, unmap func() error, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	size := info.Size()
	if size == 0 {
		return nil, func() error { return nil }, nil
	}

	data, err = unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, fmt.Errorf("rvk-mkboot: mmap %s: %w", path, err)
	}
	return data, func() error { return unix.Munmap(data) }, nil
}
