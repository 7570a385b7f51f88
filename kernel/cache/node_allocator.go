package cache

import (
	"storagecore/kernel/mem/pmm"
	"storagecore/kernel/mem/pmm/allocator"
)

// nodeAllocator adapts the physical page frame allocator to the b-tree's
// Allocator interface, drawing exclusively from a reservation sized at
// cache construction time via btree.WorstCaseNodeCount. This breaks the
// cycle between the cache, the allocator, and the index: once the
// reservation is in place, the index's node allocations can fail only if
// the caller mis-sized the reservation, never because of unrelated
// pressure elsewhere in the kernel pool.
//
// Frames handed to b-tree nodes are fungible: the b-tree's Allocator
// contract has no notion of node identity, so Release need not return the
// same frame a given Acquire produced, only some frame this adapter
// previously acquired. A LIFO pool of held frames is enough to keep the
// count exactly balanced against the tree's outstanding nodes.
type nodeAllocator struct {
	pageAlloc     *allocator.Allocator
	reservationID int
	held          []pmm.Frame
}

func newNodeAllocator(pageAlloc *allocator.Allocator, reservationID int) *nodeAllocator {
	return &nodeAllocator{pageAlloc: pageAlloc, reservationID: reservationID}
}

func (a *nodeAllocator) Acquire() bool {
	frame, err := a.pageAlloc.Acquire(true, a.reservationID)
	if err != nil {
		return false
	}
	a.held = append(a.held, frame)
	return true
}

func (a *nodeAllocator) Release() {
	n := len(a.held)
	if n == 0 {
		return
	}
	frame := a.held[n-1]
	a.held = a.held[:n-1]
	a.pageAlloc.Release(frame, a.reservationID)
}
