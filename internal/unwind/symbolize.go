package unwind

import (
	"bytes"
	"debug/dwarf"
	"debug/elf"
	"fmt"
)

// SymbolizeContext resolves instruction pointers to function names and,
// where line info is present, source locations. It is loaded lazily and
// once from the kernel's own embedded ELF image (original_source's
// BacktraceInfo.symbolize_context: "this is *very* heavy to compute
// though, so we only construct it lazily").
//
// original_source builds this on xmas_elf + gimli; neither has a pack
// counterpart, so this is built directly on the standard library's
// debug/elf and debug/dwarf, which cover the same ELF symbol table and
// DWARF line-number program a bare-metal kernel image carries.
type SymbolizeContext struct {
	kernelVirtBase uint64
	symbols        []elf.Symbol
	dwarfData      *dwarf.Data
}

// NewSymbolizeContext parses elfImage (the kernel's own ELF image, mapped
// read-only from BootInfo.KernelPhys through the physmap window) and
// builds a context for resolving addresses expressed relative to
// kernelVirtBase, the kernel's load address (ELF debug info uses
// zero-based link-time addresses; the running kernel sits in the higher
// half, so every PC must be rebased before lookup).
func NewSymbolizeContext(elfImage []byte, kernelVirtBase uint64) (*SymbolizeContext, error) {
	f, err := elf.NewFile(bytes.NewReader(elfImage))
	if err != nil {
		return nil, fmt.Errorf("unwind: parse kernel elf: %w", err)
	}
	defer f.Close()

	syms, err := f.Symbols()
	if err != nil {
		// A stripped image has no symtab; fall back to addresses only.
		syms = nil
	}

	ctx := &SymbolizeContext{
		kernelVirtBase: kernelVirtBase,
		symbols:        syms,
	}

	if data, err := f.DWARF(); err == nil {
		ctx.dwarfData = data
	}

	return ctx, nil
}

// Symbolize resolves pc (an absolute, higher-half virtual address, as
// captured by Backtrace) to a human-readable "name at file:line" string,
// or a bare hex address if nothing in the image covers it.
func (c *SymbolizeContext) Symbolize(pc uint64) string {
	if c == nil || pc < c.kernelVirtBase {
		return formatHex(pc)
	}
	linked := pc - c.kernelVirtBase

	name := c.functionName(linked)
	loc := c.sourceLocation(linked)

	switch {
	case name != "" && loc != "":
		return name + " at " + loc
	case name != "":
		return name
	default:
		return formatHex(pc)
	}
}

func (c *SymbolizeContext) functionName(linked uint64) string {
	var best *elf.Symbol
	for i := range c.symbols {
		s := &c.symbols[i]
		if elf.ST_TYPE(s.Info) != elf.STT_FUNC {
			continue
		}
		if linked < s.Value || linked >= s.Value+s.Size {
			continue
		}
		if best == nil || s.Value > best.Value {
			best = s
		}
	}
	if best == nil {
		return ""
	}
	return best.Name
}

func (c *SymbolizeContext) sourceLocation(linked uint64) string {
	if c.dwarfData == nil {
		return ""
	}
	reader := c.dwarfData.Reader()
	for {
		entry, err := reader.Next()
		if err != nil || entry == nil {
			break
		}
		if entry.Tag != dwarf.TagCompileUnit {
			continue
		}
		lr, err := c.dwarfData.LineReader(entry)
		if err != nil || lr == nil {
			continue
		}
		var line dwarf.LineEntry
		var lastFile string
		var lastLine int
		found := false
		for {
			if err := lr.Next(&line); err != nil {
				break
			}
			if line.Address > linked {
				break
			}
			if line.Address <= linked {
				if line.File != nil {
					lastFile = line.File.Name
				}
				lastLine = line.Line
				found = true
			}
		}
		if found {
			return fmt.Sprintf("%s:%d", lastFile, lastLine)
		}
	}
	return ""
}
