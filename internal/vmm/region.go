package vmm

import (
	"github.com/rvkernel/rvk/internal/addr"
	"github.com/rvkernel/rvk/internal/mmu"
)

// Region is a node in the interval tree keyed by virtual start (spec.md §3
// "AddressSpaceRegion"). The tree's own augmented bookkeeping
// (minStart/maxEnd/maxGap) lives in the private node type in tree.go;
// Region only carries the caller-visible fields.
type Region struct {
	Range     addr.VirtRange
	Perms     mmu.Attrs
	Name      string
	VMO       VMO
	VMOOffset uintptr
}
