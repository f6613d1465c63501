package bootconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "rvk.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestFromFileAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
name = "rvk"
version = "0.1.0"
memory-mode = "riscv64-sv39"
target = "riscv64gc-unknown-none-elf"

[kernel]
linker-script = "kernel.ld"

[bootloader]
linker-script = "loader.ld"
`)

	cfg, err := FromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "rvk", cfg.Name)
	assert.Equal(t, MemoryModeSv39, cfg.MemoryMode)
	assert.Equal(t, defaultKernelStackSizePages, cfg.Kernel.StackSizePages)
	assert.Equal(t, defaultTrapStackSizePages, cfg.Kernel.TrapStackSizePages)
	assert.Equal(t, defaultHeapSizePages, cfg.Kernel.HeapSizePages)
	assert.Equal(t, defaultLoaderStackSizePages, cfg.Loader.StackSizePages)
	assert.Equal(t, LogLevelInfo, cfg.Kernel.LogLevel)
	require.NotNil(t, cfg.Target.Triple)
	assert.Equal(t, "riscv64gc", cfg.Target.Triple.Arch)
	assert.Equal(t, filepath.Join(dir, "kernel.ld"), cfg.Kernel.LinkerScript)
	assert.Equal(t, filepath.Join(dir, "loader.ld"), cfg.Loader.LinkerScript)
	assert.NotZero(t, cfg.BuildHash)
}

func TestFromFileOverridesAndLogLevels(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
name = "rvk"
version = "0.1.0"
memory-mode = "riscv64-sv48"
target = "riscv64gc-unknown-none-elf"

[kernel]
stack-size-pages = 64
trap-stack-size-pages = 32
heap-size-pages = 16384
log-level = "debug"
uart-baud-rate = 115200
linker-script = "kernel.ld"

[bootloader]
stack-size-pages = 8
log-level = "trace"
linker-script = "loader.ld"
`)

	cfg, err := FromFile(path)
	require.NoError(t, err)

	assert.Equal(t, MemoryModeSv48, cfg.MemoryMode)
	assert.Equal(t, 64, cfg.Kernel.StackSizePages)
	assert.Equal(t, 32, cfg.Kernel.TrapStackSizePages)
	assert.Equal(t, 16384, cfg.Kernel.HeapSizePages)
	assert.Equal(t, LogLevelDebug, cfg.Kernel.LogLevel)
	assert.EqualValues(t, 115200, cfg.Kernel.UARTBaudRate)
	assert.Equal(t, 8, cfg.Loader.StackSizePages)
	assert.Equal(t, LogLevelTrace, cfg.Loader.LogLevel)
}

func TestFromFileRejectsUnknownKey(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
name = "rvk"
version = "0.1.0"
memory-mode = "riscv64-sv39"
target = "riscv64gc-unknown-none-elf"
bogus-top-level-key = true

[kernel]
linker-script = "kernel.ld"

[bootloader]
linker-script = "loader.ld"
`)

	_, err := FromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown key")
}

func TestFromFileRejectsUnknownNestedKey(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
name = "rvk"
version = "0.1.0"
memory-mode = "riscv64-sv39"
target = "riscv64gc-unknown-none-elf"

[kernel]
linker-script = "kernel.ld"
bogus-nested-key = 1

[bootloader]
linker-script = "loader.ld"
`)

	_, err := FromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown key")
}

func TestFromFileRejectsBadMemoryMode(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
name = "rvk"
version = "0.1.0"
memory-mode = "riscv64-sv40"
target = "riscv64gc-unknown-none-elf"

[kernel]
linker-script = "kernel.ld"

[bootloader]
linker-script = "loader.ld"
`)

	_, err := FromFile(path)
	require.Error(t, err)
}

func TestParseTargetFallsBackToPath(t *testing.T) {
	target, err := parseTarget("custom/target.json")
	require.NoError(t, err)
	assert.Nil(t, target.Triple)
	assert.Equal(t, "custom/target.json", target.Path)
}

func TestFromFileMissingPath(t *testing.T) {
	_, err := FromFile(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	assert.Error(t, err)
}
