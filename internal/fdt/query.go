package fdt

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// MemoryRange is one physical memory region, decoded from a "reg"
// property using the root's #address-cells/#size-cells.
type MemoryRange struct {
	Address uint64
	Size    uint64
}

// decodeRegs splits a "reg" property into (address, size) pairs per
// the given cell counts, each cell a 32-bit big-endian word.
func decodeRegs(reg []byte, addressCells, sizeCells uint32) ([]MemoryRange, error) {
	cellBytes := int(addressCells+sizeCells) * 4
	if cellBytes == 0 {
		return nil, fmt.Errorf("fdt: zero-width reg cells")
	}
	if len(reg)%cellBytes != 0 {
		return nil, fmt.Errorf("fdt: reg property length %d not a multiple of cell width %d", len(reg), cellBytes)
	}

	var out []MemoryRange
	for off := 0; off < len(reg); off += cellBytes {
		addr := readCells(reg[off:], int(addressCells))
		size := readCells(reg[off+int(addressCells)*4:], int(sizeCells))
		out = append(out, MemoryRange{Address: addr, Size: size})
	}
	return out, nil
}

func readCells(b []byte, cells int) uint64 {
	var v uint64
	for i := 0; i < cells; i++ {
		v = v<<32 | uint64(binary.BigEndian.Uint32(b[i*4:i*4+4]))
	}
	return v
}

// Memory returns the ranges described by every /memory@* node's "reg"
// property (spec.md §6 "/memory@*/reg").
func (t *Tree) Memory() ([]MemoryRange, error) {
	var out []MemoryRange
	for _, n := range t.Root.ChildrenWithPrefix("memory") {
		reg, ok := n.Property("reg")
		if !ok {
			continue
		}
		ranges, err := decodeRegs(reg, t.RootAddressCells, t.RootSizeCells)
		if err != nil {
			return nil, fmt.Errorf("fdt: memory node %q: %w", n.Name, err)
		}
		out = append(out, ranges...)
	}
	return out, nil
}

// CPU describes one /cpus/cpu@* node (spec.md §6 "/cpus/cpu@*/reg +
// riscv,isa-extensions + timebase-frequency").
type CPU struct {
	HartID            uint64
	ISAExtensions     []string
	TimebaseFrequency uint64
}

// CPUs returns every hart described under /cpus. timebase-frequency is
// looked up on the cpu node first, falling back to /cpus itself, the
// way the devicetree spec allows a shared value to live on the parent.
func (t *Tree) CPUs() ([]CPU, error) {
	cpus := t.Root.Child("cpus")
	if cpus == nil {
		return nil, nil
	}

	addressCells := t.RootAddressCells
	if v, ok := propU32(cpus, "#address-cells"); ok {
		addressCells = v
	}
	sharedTimebase, hasSharedTimebase := propU32(cpus, "timebase-frequency")

	var out []CPU
	for _, n := range cpus.ChildrenWithPrefix("cpu") {
		reg, ok := n.Property("reg")
		if !ok {
			return nil, fmt.Errorf("fdt: cpu node %q missing reg", n.Name)
		}
		hartID := readCells(reg, int(addressCells))

		var ext []string
		if raw, ok := n.Property("riscv,isa-extensions"); ok {
			ext = splitStringList(raw)
		}

		timebase := uint64(sharedTimebase)
		if v, ok := propU32(n, "timebase-frequency"); ok {
			timebase = uint64(v)
		} else if !hasSharedTimebase {
			timebase = 0
		}

		out = append(out, CPU{HartID: hartID, ISAExtensions: ext, TimebaseFrequency: timebase})
	}
	return out, nil
}

// splitStringList decodes a devicetree "stringlist" property: a run of
// NUL-terminated strings packed back to back.
func splitStringList(raw []byte) []string {
	var out []string
	for _, s := range strings.Split(strings.TrimRight(string(raw), "\x00"), "\x00") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// SerialDevice describes one /soc/serial@* node (spec.md §6
// "/soc/serial@*/{reg,clock-frequency,interrupts}").
type SerialDevice struct {
	Name            string
	Regs            []MemoryRange
	ClockFrequency  uint32
	HasClockFreq    bool
	Interrupts      []uint32
}

// SerialDevices returns every serial device described under /soc.
func (t *Tree) SerialDevices() ([]SerialDevice, error) {
	soc := t.Root.Child("soc")
	if soc == nil {
		return nil, nil
	}

	addressCells := t.RootAddressCells
	sizeCells := t.RootSizeCells
	if v, ok := propU32(soc, "#address-cells"); ok {
		addressCells = v
	}
	if v, ok := propU32(soc, "#size-cells"); ok {
		sizeCells = v
	}

	var out []SerialDevice
	for _, n := range soc.ChildrenWithPrefix("serial") {
		dev := SerialDevice{Name: n.Name}

		if reg, ok := n.Property("reg"); ok {
			regs, err := decodeRegs(reg, addressCells, sizeCells)
			if err != nil {
				return nil, fmt.Errorf("fdt: serial node %q: %w", n.Name, err)
			}
			dev.Regs = regs
		}
		if v, ok := propU32(n, "clock-frequency"); ok {
			dev.ClockFrequency = v
			dev.HasClockFreq = true
		}
		if raw, ok := n.Property("interrupts"); ok {
			for off := 0; off+4 <= len(raw); off += 4 {
				dev.Interrupts = append(dev.Interrupts, binary.BigEndian.Uint32(raw[off:off+4]))
			}
		}

		out = append(out, dev)
	}
	return out, nil
}
