// Package cache implements the block cache manager: page-sized,
// reference-counted, write-back caching of block-device content keyed by
// (device, aligned_block_id).
package cache

import (
	"unsafe"

	"storagecore/kernel/blockdev"
	"storagecore/kernel/btree"
	"storagecore/kernel/errors"
	"storagecore/kernel/kfmt"
	"storagecore/kernel/mem/pmm"
	"storagecore/kernel/mem/pmm/allocator"
)

// frameBuffer returns the byte view of a slot's data frame. A booted kernel
// identity-maps the kernel pool, so the view sits directly over the frame's
// physical address; tests substitute a host-allocated buffer.
var frameBuffer = func(frame pmm.Frame, size uint32) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(frame.Address())), int(size))
}

// cacheIndexElementSize approximates the footprint of one index entry — a
// (device id, aligned block id) key plus a pointer to its slot — for the
// b-tree sizing math. It does not need to be exact, only an upper bound.
const cacheIndexElementSize = 4 + 8 + 4

type cacheKey struct {
	deviceID       uint32
	alignedBlockID uint64
}

func compareCacheKey(a, b cacheKey) int {
	if a.deviceID != b.deviceID {
		if a.deviceID < b.deviceID {
			return -1
		}
		return 1
	}
	switch {
	case a.alignedBlockID < b.alignedBlockID:
		return -1
	case a.alignedBlockID > b.alignedBlockID:
		return 1
	default:
		return 0
	}
}

// slot is a CachedBlock: a page frame's worth of a device's content, plus
// the bookkeeping the cache needs to place it on its lists and in its
// index.
type slot struct {
	device         blockdev.BlockDevice
	alignedBlockID uint64
	registered     bool

	hasFrame bool
	frame    pmm.Frame
	data     []byte

	usage uint32
	dirty bool

	avail     listLink
	inUse     listLink
	dirtyList listLink
}

// Clock abstracts a monotonic tick source so Flush's duration can be
// measured without depending on a specific timer. Tests supply a fake;
// production wiring supplies whatever tick source the platform exposes.
type Clock interface {
	Now() uint64
}

type noopClock struct{}

func (noopClock) Now() uint64 { return 0 }

// Cache is the block cache manager.
type Cache struct {
	frameSize uint32
	pageAlloc *allocator.Allocator
	nodeAlloc *nodeAllocator
	clock     Clock

	index *btree.Tree[cacheKey, *slot]
	slots []*slot

	available *slotList
	inUse     *slotList
	dirtyList *slotList

	lastFlushDuration uint64
}

// New builds a cache with maxSlots page-frame-sized slots and the given
// frame size (the b-tree index's node size). It reserves, up front, enough
// kernel frames to guarantee the index can always grow to cover maxSlots
// entries, breaking the cache/allocator/b-tree dependency cycle.
func New(frameSize uint32, maxSlots int, pageAlloc *allocator.Allocator, clock Clock) (*Cache, *errors.Error) {
	if clock == nil {
		clock = noopClock{}
	}

	nodeCount := btree.WorstCaseNodeCount(int(frameSize), cacheIndexElementSize, maxSlots)
	reservationID, err := pageAlloc.ReserveKernel(uint32(nodeCount))
	if err != nil {
		return nil, err
	}

	nodeAlloc := newNodeAllocator(pageAlloc, reservationID)
	index, err := btree.New[cacheKey, *slot](int(frameSize), cacheIndexElementSize, nodeAlloc, compareCacheKey)
	if err != nil {
		return nil, err
	}

	c := &Cache{
		frameSize: frameSize,
		pageAlloc: pageAlloc,
		nodeAlloc: nodeAlloc,
		clock:     clock,
		index:     index,
		available: newSlotList(func(s *slot) *listLink { return &s.avail }),
		inUse:     newSlotList(func(s *slot) *listLink { return &s.inUse }),
		dirtyList: newSlotList(func(s *slot) *listLink { return &s.dirtyList }),
	}

	c.slots = make([]*slot, maxSlots)
	for i := range c.slots {
		s := &slot{}
		c.slots[i] = s
		c.available.pushBack(s)
	}

	return c, nil
}

func isPowerOfTwo(n uint32) bool { return n != 0 && n&(n-1) == 0 }

// blocksPerFrame computes and validates the coarsening factor between a
// device's blocks and this cache's frames. A device whose block size does
// not evenly divide the frame size into a power of two is a configuration
// error the kernel cannot run with, hence the abort.
func (c *Cache) blocksPerFrame(device blockdev.BlockDevice) uint32 {
	bpf := c.frameSize / device.BlockSize()
	if !isPowerOfTwo(bpf) {
		kfmt.Panic(&errors.Error{Module: "cache", Message: "blocks_per_frame must be a power of two"})
	}
	return bpf
}

func (c *Cache) align(device blockdev.BlockDevice, blockID uint64) (aligned uint64, offset uint32) {
	bpf := uint64(c.blocksPerFrame(device))
	aligned = blockID &^ (bpf - 1)
	offset = uint32(blockID-aligned) * device.BlockSize()
	return aligned, offset
}

func (c *Cache) detachFromCurrentList(s *slot) {
	if s.usage == 0 {
		c.available.remove(s)
	} else {
		c.inUse.remove(s)
	}
}

// Reserve returns the cached frame covering firstBlock and the byte offset
// of firstBlock within it. A miss whose request covers the whole frame is
// not read from the device — the caller intends to overwrite the region; a
// miss covering only part of the frame still reads the full frame, so the
// other blocks in it hold the device's content.
func (c *Cache) Reserve(device blockdev.BlockDevice, firstBlock uint64, count uint32) ([]byte, uint32, *errors.Error) {
	return c.reserve(device, firstBlock, count, false)
}

// ReadAndReserve is like Reserve but guarantees the returned bytes reflect
// the device's current content.
func (c *Cache) ReadAndReserve(device blockdev.BlockDevice, firstBlock uint64, count uint32) ([]byte, uint32, *errors.Error) {
	return c.reserve(device, firstBlock, count, true)
}

func (c *Cache) reserve(device blockdev.BlockDevice, firstBlock uint64, count uint32, wantRead bool) ([]byte, uint32, *errors.Error) {
	bpf := c.blocksPerFrame(device)
	aligned, offset := c.align(device, firstBlock)

	// The requested range must lie on the device and fit inside the single
	// frame that covers it; a reservation never spans two cache slots.
	if count == 0 ||
		uint64(count) > uint64(bpf)-(firstBlock-aligned) ||
		firstBlock+uint64(count) > device.BlockCount() {
		kfmt.Panic(&errors.Error{Module: "cache", Message: "block range out of bounds"})
	}

	key := cacheKey{deviceID: device.ID(), alignedBlockID: aligned}

	if s, err := c.index.Search(key); err == nil {
		c.detachFromCurrentList(s)
		s.usage++
		c.inUse.pushBack(s)
		return s.data, offset, nil
	}

	needsFullFrame := wantRead || count < bpf

	victim := c.available.popFront()
	if victim == nil {
		return nil, 0, &errors.Error{Module: "cache", Message: "no available slot to evict"}
	}

	if victim.registered {
		c.index.Remove(cacheKey{deviceID: victim.device.ID(), alignedBlockID: victim.alignedBlockID})
		victim.registered = false
	}

	if victim.dirty {
		victimBPF := c.blocksPerFrame(victim.device)
		if err := victim.device.WriteBlocks(victim.alignedBlockID, victimBPF, victim.data); err != nil {
			kfmt.Panic(err)
		}
		victim.dirty = false
		c.dirtyList.remove(victim)
	}

	if !victim.hasFrame {
		// First use of this slot: pin a kernel frame for its data. The
		// frame stays attached for the lifetime of the cache; only its
		// contents are ever evicted.
		frame, err := c.pageAlloc.Acquire(true, allocator.NoReservation)
		if err != nil {
			c.available.pushFront(victim)
			return nil, 0, errors.NotEnoughMemory
		}
		victim.frame = frame
		victim.hasFrame = true
		victim.data = frameBuffer(frame, c.frameSize)
	}

	if needsFullFrame {
		if err := device.ReadBlocks(aligned, bpf, victim.data); err != nil {
			kfmt.Panic(err)
		}
	}

	victim.device = device
	victim.alignedBlockID = aligned

	if err := c.index.Insert(key, victim); err != nil {
		c.available.pushFront(victim)
		return nil, 0, errors.NotEnoughMemory
	}

	victim.registered = true
	victim.usage = 1
	victim.dirty = false
	c.inUse.pushBack(victim)

	return victim.data, offset, nil
}

// Release gives back a reservation taken out by Reserve/ReadAndReserve.
// modified, if true, marks the slot dirty; it is never cleared by Release
// alone.
func (c *Cache) Release(device blockdev.BlockDevice, blockID uint64, modified bool) *errors.Error {
	aligned, _ := c.align(device, blockID)
	key := cacheKey{deviceID: device.ID(), alignedBlockID: aligned}

	s, err := c.index.Search(key)
	if err != nil {
		return errors.NotFound
	}

	s.usage--
	if modified && !s.dirty {
		s.dirty = true
		c.dirtyList.pushBack(s)
	}

	if s.usage == 0 {
		c.inUse.remove(s)
		c.available.pushBack(s)
	}

	return nil
}

// Flush writes every dirty slot back to its device and clears the dirty
// flag, aborting the kernel on the first write failure.
func (c *Cache) Flush() {
	start := c.clock.Now()
	for {
		s := c.dirtyList.popFront()
		if s == nil {
			break
		}
		bpf := c.blocksPerFrame(s.device)
		if err := s.device.WriteBlocks(s.alignedBlockID, bpf, s.data); err != nil {
			kfmt.Panic(err)
		}
		s.dirty = false
	}
	c.lastFlushDuration = c.clock.Now() - start
}

// Clear empties the index. It requires every slot to currently be
// available (usage == 0); data frames remain attached.
func (c *Cache) Clear() *errors.Error {
	if !c.inUse.empty() {
		return &errors.Error{Module: "cache", Message: "cannot clear cache while slots are in use"}
	}
	c.index.Clear()
	for _, s := range c.slots {
		s.registered = false
	}
	return nil
}

// DebugReport summarizes the cache's current state. Its format is not part
// of any external contract.
type DebugReport struct {
	IndexSize         int
	IndexNodeCount    int
	AvailableCount    int
	InUseCount        int
	DirtyCount        int
	LastFlushDuration uint64
}

func (c *Cache) DebugReport() DebugReport {
	return DebugReport{
		IndexSize:         c.index.Len(),
		IndexNodeCount:    c.index.NodeCount(),
		AvailableCount:    c.available.count,
		InUseCount:        c.inUse.count,
		DirtyCount:        c.dirtyList.count,
		LastFlushDuration: c.lastFlushDuration,
	}
}

// PrintDebugReport logs the cache's current state.
func (c *Cache) PrintDebugReport() {
	r := c.DebugReport()
	kfmt.Printf("\nBlock cache report:\n")
	kfmt.Printf("  index entries: %d (%d nodes)\n", r.IndexSize, r.IndexNodeCount)
	kfmt.Printf("  available slots: %d\n", r.AvailableCount)
	kfmt.Printf("  in-use slots: %d\n", r.InUseCount)
	kfmt.Printf("  dirty slots: %d\n", r.DirtyCount)
	kfmt.Printf("  last flush took: %d ticks\n", r.LastFlushDuration)
}
