// Package bootconfig loads the build-time TOML configuration (spec.md
// §6 "Configuration file (build-time TOML)"). Grounded on
// original_source/build/config/src/lib.rs's Config/RawConfig split: a
// strict, deny-unknown-fields raw decode is massaged into the defaulted,
// path-resolved Config callers actually use.
package bootconfig

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// LogLevel is the kernel's configured verbosity.
type LogLevel int

const (
	LogLevelInfo LogLevel = iota // the zero value is the default, matching #[default] on the original's enum
	LogLevelError
	LogLevelWarn
	LogLevelDebug
	LogLevelTrace
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelError:
		return "error"
	case LogLevelWarn:
		return "warn"
	case LogLevelInfo:
		return "info"
	case LogLevelDebug:
		return "debug"
	case LogLevelTrace:
		return "trace"
	default:
		return fmt.Sprintf("loglevel(%d)", int(l))
	}
}

func parseLogLevel(s string) (LogLevel, error) {
	switch s {
	case "", "info":
		return LogLevelInfo, nil
	case "error":
		return LogLevelError, nil
	case "warn":
		return LogLevelWarn, nil
	case "debug":
		return LogLevelDebug, nil
	case "trace":
		return LogLevelTrace, nil
	default:
		return 0, fmt.Errorf("bootconfig: unrecognized kernel.log-level %q", s)
	}
}

// MemoryMode selects the RISC-V paging scheme the build targets.
type MemoryMode int

const (
	MemoryModeSv39 MemoryMode = iota
	MemoryModeSv48
	MemoryModeSv57
)

func (m MemoryMode) String() string {
	switch m {
	case MemoryModeSv39:
		return "riscv64-sv39"
	case MemoryModeSv48:
		return "riscv64-sv48"
	case MemoryModeSv57:
		return "riscv64-sv57"
	default:
		return fmt.Sprintf("memorymode(%d)", int(m))
	}
}

func parseMemoryMode(s string) (MemoryMode, error) {
	switch s {
	case "riscv64-sv39":
		return MemoryModeSv39, nil
	case "riscv64-sv48":
		return MemoryModeSv48, nil
	case "riscv64-sv57":
		return MemoryModeSv57, nil
	default:
		return 0, fmt.Errorf("bootconfig: unrecognized memory-mode %q", s)
	}
}

// Target is either a known 4-component triple or an opaque path to a
// custom target spec, matching the original's Target::Triple/Target::Path.
type Target struct {
	Triple *TargetTriple
	Path   string
}

func (t Target) String() string {
	if t.Triple != nil {
		return t.Triple.String()
	}
	return t.Path
}

// TargetTriple is a parsed arch-vendor-os-env target triple. The only
// supported triple is riscv64gc-unknown-none-elf, the same restriction
// TargetTriple::from_str enforces.
type TargetTriple struct {
	Arch, Vendor, OS, Env string
}

func (t TargetTriple) String() string {
	return strings.Join([]string{t.Arch, t.Vendor, t.OS, t.Env}, "-")
}

func parseTarget(s string) (Target, error) {
	parts := strings.SplitN(s, "-", 4)
	if len(parts) == 4 && parts[0] == "riscv64gc" && parts[1] == "unknown" && parts[2] == "none" && parts[3] == "elf" {
		return Target{Triple: &TargetTriple{Arch: parts[0], Vendor: parts[1], OS: parts[2], Env: parts[3]}}, nil
	}
	return Target{Path: s}, nil
}

// KernelConfig mirrors the original's KernelConfig.
type KernelConfig struct {
	StackSizePages     int
	TrapStackSizePages int
	HeapSizePages      int
	LogLevel           LogLevel
	UARTBaudRate       uint32
	Target             *Target
	LinkerScript       string
}

// LoaderConfig mirrors the original's LoaderConfig (the bootloader,
// spelled "loader" the way spec.md's table does under "bootloader.*").
type LoaderConfig struct {
	StackSizePages int
	LogLevel       LogLevel
	Target         *Target
	LinkerScript   string
}

// Config is the resolved, defaulted build configuration.
type Config struct {
	Name       string
	Version    string
	Kernel     KernelConfig
	Loader     LoaderConfig
	MemoryMode MemoryMode
	Target     Target

	// BuildHash is a hash of the configuration file bytes, matching the
	// original's buildhash field (computed with Rust's DefaultHasher
	// there; FNV-1a here, since neither value is exposed outside this
	// build — only used to detect whether a previous build's config
	// changed).
	BuildHash uint64
	// ConfigPath is the absolute path to the configuration file used.
	ConfigPath string
}

// rawConfig is the as-parsed TOML shape, deny-unknown-fields, with
// unresolved relative paths and without defaults applied — matching the
// original's RawConfig.
type rawConfig struct {
	Name       string          `toml:"name"`
	Version    string          `toml:"version"`
	Kernel     rawKernelConfig `toml:"kernel"`
	Bootloader rawLoaderConfig `toml:"bootloader"`
	MemoryMode string          `toml:"memory-mode"`
	Target     string          `toml:"target"`
}

type rawKernelConfig struct {
	StackSizePages     int      `toml:"stack-size-pages"`
	TrapStackSizePages int      `toml:"trap-stack-size-pages"`
	HeapSizePages      int      `toml:"heap-size-pages"`
	Features           []string `toml:"features"`
	LogLevel           string   `toml:"log-level"`
	UARTBaudRate       uint32   `toml:"uart-baud-rate"`
	Target             string   `toml:"target"`
	LinkerScript       string   `toml:"linker-script"`
}

type rawLoaderConfig struct {
	StackSizePages int      `toml:"stack-size-pages"`
	Features       []string `toml:"features"`
	LogLevel       string   `toml:"log-level"`
	Target         string   `toml:"target"`
	LinkerScript   string   `toml:"linker-script"`
}

const (
	defaultLoaderStackSizePages = 4
	defaultKernelStackSizePages = 32
	defaultTrapStackSizePages   = 16
	defaultHeapSizePages        = 8192
)

// FromFile loads and resolves the configuration at path, rejecting
// unknown keys (spec.md §6 "Unknown keys: reject.") and resolving
// linker-script paths relative to the config file's directory.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bootconfig: reading %s: %w", path, err)
	}

	var raw rawConfig
	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, fmt.Errorf("bootconfig: parsing %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("bootconfig: %s: unknown key %q", path, undecoded[0].String())
	}

	if raw.Kernel.StackSizePages == 0 {
		raw.Kernel.StackSizePages = defaultKernelStackSizePages
	}
	if raw.Kernel.TrapStackSizePages == 0 {
		raw.Kernel.TrapStackSizePages = defaultTrapStackSizePages
	}
	if raw.Kernel.HeapSizePages == 0 {
		raw.Kernel.HeapSizePages = defaultHeapSizePages
	}
	if raw.Bootloader.StackSizePages == 0 {
		raw.Bootloader.StackSizePages = defaultLoaderStackSizePages
	}

	memMode, err := parseMemoryMode(raw.MemoryMode)
	if err != nil {
		return nil, err
	}
	target, err := parseTarget(raw.Target)
	if err != nil {
		return nil, err
	}
	kernelLevel, err := parseLogLevel(raw.Kernel.LogLevel)
	if err != nil {
		return nil, err
	}
	loaderLevel, err := parseLogLevel(raw.Bootloader.LogLevel)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	kernelLinker, err := resolveRelative(dir, raw.Kernel.LinkerScript)
	if err != nil {
		return nil, err
	}
	loaderLinker, err := resolveRelative(dir, raw.Bootloader.LinkerScript)
	if err != nil {
		return nil, err
	}

	kernelTarget, err := optionalTarget(raw.Kernel.Target)
	if err != nil {
		return nil, err
	}
	loaderTarget, err := optionalTarget(raw.Bootloader.Target)
	if err != nil {
		return nil, err
	}

	absConfigPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("bootconfig: resolving %s: %w", path, err)
	}

	h := fnv.New64a()
	h.Write(data)

	return &Config{
		Name:       raw.Name,
		Version:    raw.Version,
		MemoryMode: memMode,
		Target:     target,
		BuildHash:  h.Sum64(),
		ConfigPath: absConfigPath,
		Kernel: KernelConfig{
			StackSizePages:     raw.Kernel.StackSizePages,
			TrapStackSizePages: raw.Kernel.TrapStackSizePages,
			HeapSizePages:      raw.Kernel.HeapSizePages,
			LogLevel:           kernelLevel,
			UARTBaudRate:       raw.Kernel.UARTBaudRate,
			Target:             kernelTarget,
			LinkerScript:       kernelLinker,
		},
		Loader: LoaderConfig{
			StackSizePages: raw.Bootloader.StackSizePages,
			LogLevel:       loaderLevel,
			Target:         loaderTarget,
			LinkerScript:   loaderLinker,
		},
	}, nil
}

func optionalTarget(s string) (*Target, error) {
	if s == "" {
		return nil, nil
	}
	t, err := parseTarget(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func resolveRelative(dir, rel string) (string, error) {
	if rel == "" {
		return "", nil
	}
	joined := filepath.Join(dir, rel)
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("bootconfig: resolving linker script %s: %w", rel, err)
	}
	return abs, nil
}
