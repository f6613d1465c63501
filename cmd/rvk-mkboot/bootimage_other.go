//go:build !unix

package main

import "os"

// mmapFile falls back to a plain read on non-unix hosts; golang.org/x/sys/unix
// has no mmap on this platform.
func mmapFile(path string) (data []byte, unmap func() error, err error) {
	data, err = os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return data, func() error { return nil }, nil
}
