package vmm

import (
	"github.com/rvkernel/rvk/internal/addr"
	"github.com/rvkernel/rvk/internal/kerror"
	"github.com/rvkernel/rvk/internal/mmu"
)

type opKind int

const (
	opMap opKind = iota
	opUnmap
	opSetAttrs
)

type pendingOp struct {
	kind  opKind
	virt  addr.VirtRange
	phys  addr.PhysAddr // only meaningful for opMap
	attrs mmu.Attrs     // meaningful for opMap and opSetAttrs
}

// Batch accumulates map/unmap/set-attributes operations against one
// HardwareAddressSpace and commits them together (spec.md §4.E "Batch").
// Adjacent operations of the same kind and attributes are merged into one
// wider range as they're appended, so a page-fault handler mapping many
// contiguous pages in a loop produces a single hardware call instead of one
// per page.
type Batch struct {
	has *mmu.HardwareAddressSpace
	ops []pendingOp
}

// NewBatch starts an empty batch against has.
func NewBatch(has *mmu.HardwareAddressSpace) *Batch {
	return &Batch{has: has}
}

// Append queues a single-page map operation, merging with the previous
// queued op when it is an adjacent map with identical attributes and a
// contiguous physical run.
func (b *Batch) Append(virt addr.VirtRange, phys addr.PhysAddr, attrs mmu.Attrs) {
	if n := len(b.ops); n > 0 {
		last := &b.ops[n-1]
		if last.kind == opMap && last.attrs == attrs && last.virt.End == virt.Start &&
			last.phys.Add(last.virt.Size()) == phys {
			last.virt.End = virt.End
			return
		}
	}
	b.ops = append(b.ops, pendingOp{kind: opMap, virt: virt, phys: phys, attrs: attrs})
}

// AppendUnmap queues an unmap operation, merging with an adjacent queued
// unmap.
func (b *Batch) AppendUnmap(virt addr.VirtRange) {
	if n := len(b.ops); n > 0 {
		last := &b.ops[n-1]
		if last.kind == opUnmap && last.virt.End == virt.Start {
			last.virt.End = virt.End
			return
		}
	}
	b.ops = append(b.ops, pendingOp{kind: opUnmap, virt: virt})
}

// AppendSetAttributes queues a set-attributes operation, merging with an
// adjacent queued set-attributes op carrying the same new attributes.
func (b *Batch) AppendSetAttributes(virt addr.VirtRange, attrs mmu.Attrs) {
	if n := len(b.ops); n > 0 {
		last := &b.ops[n-1]
		if last.kind == opSetAttrs && last.attrs == attrs && last.virt.End == virt.Start {
			last.virt.End = virt.End
			return
		}
	}
	b.ops = append(b.ops, pendingOp{kind: opSetAttrs, virt: virt, attrs: attrs})
}

// Len reports how many (already-merged) operations are queued.
func (b *Batch) Len() int { return len(b.ops) }

// FlushChanges commits every queued operation to the hardware address
// space and flushes the TLB once for the whole batch (spec.md §4.E
// "flush_changes commits them to the hardware address space and flushes
// the TLB once").
func (b *Batch) FlushChanges() *kerror.Error {
	if len(b.ops) == 0 {
		return nil
	}

	flushes := make([]*mmu.Flush, 0, len(b.ops))
	for _, op := range b.ops {
		var f *mmu.Flush
		var err *kerror.Error
		switch op.kind {
		case opMap:
			f, err = b.has.MapContiguous(op.virt, op.phys, op.attrs)
		case opUnmap:
			f, err = b.has.Unmap(op.virt)
		case opSetAttrs:
			f, err = b.has.SetAttributes(op.virt, op.attrs)
		}
		if err != nil {
			for _, pending := range flushes {
				pending.Ignore()
			}
			return err
		}
		flushes = append(flushes, f)
	}

	for _, f := range flushes {
		f.Flush()
	}
	b.ops = b.ops[:0]
	return nil
}
