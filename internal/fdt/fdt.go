// Package fdt reads a Flattened Device Tree blob (spec.md §6 "Device
// tree"), exposing the handful of nodes the kernel actually consumes:
// memory regions, CPU descriptions, and serial devices. Grounded on
// original_source/libs/dtb-parser/src/lib.rs and
// original_source/libs/fdt/src/parser.rs's token stream.
package fdt

import (
	"encoding/binary"
	"fmt"
)

const (
	magic       = 0xD00DFEED
	wantVersion = 17

	tokenBeginNode = 0x00000001
	tokenEndNode   = 0x00000002
	tokenProp      = 0x00000003
	tokenNop       = 0x00000004
	tokenEnd       = 0x00000009
)

// Node is one flattened-device-tree node: its unit name, its raw
// properties (big-endian payloads, left undecoded until a caller asks
// for a specific interpretation), and its children in document order.
type Node struct {
	Name       string
	Properties map[string][]byte
	Children   []*Node
}

// Property returns the raw bytes of a property, or false if absent.
func (n *Node) Property(name string) ([]byte, bool) {
	v, ok := n.Properties[name]
	return v, ok
}

// Child returns the direct child with the given unit name, or nil.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ChildrenWithPrefix returns direct children whose unit name starts
// with prefix followed by '@', matching glob patterns like
// "cpu@*"/"serial@*" used throughout spec.md §6.
func (n *Node) ChildrenWithPrefix(prefix string) []*Node {
	var out []*Node
	want := prefix + "@"
	for _, c := range n.Children {
		if len(c.Name) > len(want) && c.Name[:len(want)] == want {
			out = append(out, c)
		}
	}
	return out
}

func propU32(n *Node, name string) (uint32, bool) {
	v, ok := n.Property(name)
	if !ok || len(v) < 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(v), true
}

// Tree is a parsed device tree with its root node and the cell sizes
// active at the root (used to decode /memory and /reserved-memory
// "reg" properties, which are always addressed in root cells).
type Tree struct {
	Version         uint32
	LastCompVersion uint32
	BootCPUIDPhys   uint32
	Root            *Node

	RootAddressCells uint32
	RootSizeCells    uint32
}

// header mirrors dtb-parser's Header: ten big-endian u32 fields at the
// start of the blob.
type header struct {
	totalSize       uint32
	offDtStruct     uint32
	offDtStrings    uint32
	offMemRsvmap    uint32
	version         uint32
	lastCompVersion uint32
	bootCPUIDPhys   uint32
	sizeDtStrings   uint32
	sizeDtStruct    uint32
}

// Parse decodes a raw device tree blob.
func Parse(data []byte) (*Tree, error) {
	if len(data) < 40 {
		return nil, fmt.Errorf("fdt: blob too short for header (%d bytes)", len(data))
	}
	if got := binary.BigEndian.Uint32(data[0:4]); got != magic {
		return nil, fmt.Errorf("fdt: bad magic %#08x", got)
	}

	h := header{
		totalSize:       binary.BigEndian.Uint32(data[4:8]),
		offDtStruct:     binary.BigEndian.Uint32(data[8:12]),
		offDtStrings:    binary.BigEndian.Uint32(data[12:16]),
		offMemRsvmap:    binary.BigEndian.Uint32(data[16:20]),
		version:         binary.BigEndian.Uint32(data[20:24]),
		lastCompVersion: binary.BigEndian.Uint32(data[24:28]),
		bootCPUIDPhys:   binary.BigEndian.Uint32(data[28:32]),
		sizeDtStrings:   binary.BigEndian.Uint32(data[32:36]),
		sizeDtStruct:    binary.BigEndian.Uint32(data[36:40]),
	}
	if h.version != wantVersion {
		return nil, fmt.Errorf("fdt: unsupported version %d (want %d)", h.version, wantVersion)
	}
	if uint64(h.totalSize) > uint64(len(data)) {
		return nil, fmt.Errorf("fdt: totalsize %d exceeds buffer length %d", h.totalSize, len(data))
	}

	structEnd := h.offDtStruct + h.sizeDtStruct
	stringsEnd := h.offDtStrings + h.sizeDtStrings
	if structEnd > h.totalSize || stringsEnd > h.totalSize {
		return nil, fmt.Errorf("fdt: struct/strings block out of bounds")
	}

	structBlock := data[h.offDtStruct:structEnd]
	stringsBlock := data[h.offDtStrings:stringsEnd]

	p := &parser{struct_: structBlock, strings: stringsBlock}
	root, err := p.parseNode()
	if err != nil {
		return nil, err
	}

	tree := &Tree{
		Version:         h.version,
		LastCompVersion: h.lastCompVersion,
		BootCPUIDPhys:   h.bootCPUIDPhys,
		Root:            root,
		RootAddressCells: 2,
		RootSizeCells:    1,
	}
	if v, ok := propU32(root, "#address-cells"); ok {
		tree.RootAddressCells = v
	}
	if v, ok := propU32(root, "#size-cells"); ok {
		tree.RootSizeCells = v
	}
	return tree, nil
}

type parser struct {
	struct_ []byte
	strings []byte
	off     int
}

func (p *parser) u32() (uint32, error) {
	if p.off+4 > len(p.struct_) {
		return 0, fmt.Errorf("fdt: unexpected end of struct block")
	}
	v := binary.BigEndian.Uint32(p.struct_[p.off : p.off+4])
	p.off += 4
	return v, nil
}

func (p *parser) advanceToken() (uint32, error) {
	for {
		tok, err := p.u32()
		if err != nil {
			return 0, err
		}
		switch tok {
		case tokenNop:
			continue
		case tokenBeginNode, tokenEndNode, tokenProp, tokenEnd:
			return tok, nil
		default:
			return 0, fmt.Errorf("fdt: invalid token %#x at offset %d", tok, p.off-4)
		}
	}
}

// cstr reads a NUL-terminated string starting at p.off and advances
// past it, 4-byte aligned, matching advance_cstr's rounding.
func (p *parser) cstr() (string, error) {
	end := p.off
	for {
		if end >= len(p.struct_) {
			return "", fmt.Errorf("fdt: unterminated string in struct block")
		}
		if p.struct_[end] == 0 {
			break
		}
		end++
	}
	s := string(p.struct_[p.off:end])
	length := end - p.off + 1
	p.off += (length + 3) &^ 3
	return s, nil
}

func (p *parser) stringAt(offset uint32) (string, error) {
	if int(offset) >= len(p.strings) {
		return "", fmt.Errorf("fdt: string offset %d out of bounds", offset)
	}
	end := int(offset)
	for end < len(p.strings) && p.strings[end] != 0 {
		end++
	}
	return string(p.strings[offset:end]), nil
}

// parseNode parses one BEGIN_NODE..END_NODE span, recursing into
// children, mirroring fdt::parser::Parser's token-driven walk.
func (p *parser) parseNode() (*Node, error) {
	tok, err := p.advanceToken()
	if err != nil {
		return nil, err
	}
	if tok != tokenBeginNode {
		return nil, fmt.Errorf("fdt: expected BEGIN_NODE, got token %#x", tok)
	}

	name, err := p.cstr()
	if err != nil {
		return nil, err
	}

	node := &Node{Name: name, Properties: map[string][]byte{}}

	for {
		save := p.off
		tok, err := p.advanceToken()
		if err != nil {
			return nil, err
		}
		switch tok {
		case tokenProp:
			length, err := p.u32()
			if err != nil {
				return nil, err
			}
			nameOff, err := p.u32()
			if err != nil {
				return nil, err
			}
			if p.off+int(length) > len(p.struct_) {
				return nil, fmt.Errorf("fdt: property data out of bounds")
			}
			propName, err := p.stringAt(nameOff)
			if err != nil {
				return nil, err
			}
			value := p.struct_[p.off : p.off+int(length)]
			p.off += (int(length) + 3) &^ 3
			node.Properties[propName] = value
		case tokenBeginNode:
			p.off = save
			child, err := p.parseNode()
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, child)
		case tokenEndNode:
			return node, nil
		case tokenEnd:
			return nil, fmt.Errorf("fdt: unexpected FDT_END inside node %q", name)
		}
	}
}

// ReserveEntry is one /memreserve/ entry from the memory reservation
// block, preceding the struct block in the blob.
type ReserveEntry struct {
	Address uint64
	Size    uint64
}

// ReservedMemory decodes the blob's memory-reservation block
// ("/reserved-memory" per spec.md §6), terminating at the first
// all-zero entry.
func ReservedMemory(data []byte) ([]ReserveEntry, error) {
	if len(data) < 20 {
		return nil, fmt.Errorf("fdt: blob too short for header")
	}
	off := binary.BigEndian.Uint32(data[16:20])
	var entries []ReserveEntry
	for pos := int(off); ; pos += 16 {
		if pos+16 > len(data) {
			return nil, fmt.Errorf("fdt: reserve map runs past end of buffer")
		}
		addr := binary.BigEndian.Uint64(data[pos : pos+8])
		size := binary.BigEndian.Uint64(data[pos+8 : pos+16])
		if addr == 0 && size == 0 {
			break
		}
		entries = append(entries, ReserveEntry{Address: addr, Size: size})
	}
	return entries, nil
}
