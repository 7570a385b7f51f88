// Package pmm defines the physical frame handle shared by the page frame
// allocator (kernel/mem/pmm/allocator) and every caller that pins frames
// through it (the b-tree's node allocator, the block cache's data slots).
package pmm

import (
	"math"

	"storagecore/kernel/mem"
)

// Frame describes a physical memory page-frame index: an opaque, stable
// handle whose physical address is derivable from it.
type Frame uint64

// InvalidFrame is returned by allocators when they fail to reserve a frame.
const InvalidFrame = Frame(math.MaxUint64)

// IsValid returns true if this is not the sentinel InvalidFrame.
func (f Frame) IsValid() bool {
	return f != InvalidFrame
}

// Address returns the physical address of the memory pointed to by this
// frame.
func (f Frame) Address() uintptr {
	return uintptr(f << mem.PageShift)
}
