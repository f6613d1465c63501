//go:build !riscv64

package trap

// InstallVector is a no-op on hosts that cannot execute an stvec write
// (host test binaries, cmd/rvk-mkboot). Real trap delivery only exists on
// the riscv64 kernel build; CatchTraps/ResumeTrap/BeginTrap are plain Go
// and are exercised directly by this package's tests on any host.
func InstallVector() {}
