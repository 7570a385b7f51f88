package cache

import (
	"testing"

	"storagecore/kernel/blockdev"
	"storagecore/kernel/errors"
	"storagecore/kernel/mem/pmm"
	"storagecore/kernel/mem/pmm/allocator"
)

const testFrameSize = 4096
const testBlockSize = 512

type call struct {
	first uint64
	count uint32
}

type fakeDevice struct {
	id               uint32
	blockSize        uint32
	maxBlocksPerRead uint32
	backing          []byte
	reads            []call
	writes           []call
}

func newFakeDevice(id uint32, blockCount uint64) *fakeDevice {
	return &fakeDevice{
		id:               id,
		blockSize:        testBlockSize,
		maxBlocksPerRead: testFrameSize / testBlockSize,
		backing:          make([]byte, blockCount*testBlockSize),
	}
}

func (d *fakeDevice) ID() uint32               { return d.id }
func (d *fakeDevice) BlockSize() uint32        { return d.blockSize }
func (d *fakeDevice) BlockCount() uint64       { return uint64(len(d.backing)) / uint64(d.blockSize) }
func (d *fakeDevice) MaxBlocksPerRead() uint32 { return d.maxBlocksPerRead }

func (d *fakeDevice) ReadBlocks(first uint64, count uint32, buf []byte) *errors.Error {
	d.reads = append(d.reads, call{first, count})
	off := first * uint64(d.blockSize)
	n := uint64(count) * uint64(d.blockSize)
	copy(buf, d.backing[off:off+n])
	return nil
}

func (d *fakeDevice) WriteBlocks(first uint64, count uint32, buf []byte) *errors.Error {
	d.writes = append(d.writes, call{first, count})
	off := first * uint64(d.blockSize)
	n := uint64(count) * uint64(d.blockSize)
	copy(d.backing[off:off+n], buf)
	return nil
}

func newTestCache(t *testing.T, maxSlots int) *Cache {
	t.Helper()

	origFrameBuffer := frameBuffer
	frameBuffer = func(_ pmm.Frame, size uint32) []byte { return make([]byte, size) }
	t.Cleanup(func() { frameBuffer = origFrameBuffer })

	pageAlloc := allocator.New(64, 0)
	c, err := New(testFrameSize, maxSlots, pageAlloc, nil)
	if err != nil {
		t.Fatalf("unexpected error constructing cache: %v", err)
	}
	return c
}

func TestReadThroughFetchesFullFrame(t *testing.T) {
	dev := newFakeDevice(1, 4096)
	for i := range dev.backing {
		dev.backing[i] = byte(i)
	}

	c := newTestCache(t, 16)

	data, offset, err := c.ReadAndReserve(dev, 0, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if offset != 0 {
		t.Fatalf("expected offset 0 for block 0, got %d", offset)
	}
	if len(dev.reads) != 1 || dev.reads[0] != (call{0, 8}) {
		t.Fatalf("expected exactly one read_blocks(first=0, count=8), got %v", dev.reads)
	}
	for i := 0; i < 512; i++ {
		if data[i] != byte(i) {
			t.Fatalf("byte %d mismatch: got %d want %d", i, data[i], byte(i))
		}
	}

	report := c.DebugReport()
	if report.IndexNodeCount == 0 {
		t.Fatal("expected the index to hold at least one node after a miss")
	}

	if err := c.Release(dev, 0, false); err != nil {
		t.Fatalf("unexpected error releasing: %v", err)
	}

	// A second request against the same frame must hit, not re-read.
	if _, _, err := c.Reserve(dev, 4, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dev.reads) != 1 {
		t.Fatalf("expected no additional read_blocks call on a cache hit, got %d total", len(dev.reads))
	}
}

func TestPartitionReadThroughTranslatesToAbsoluteSectors(t *testing.T) {
	disk := newFakeDevice(0, 8192)
	for i := range disk.backing {
		disk.backing[i] = byte(i)
	}
	part := blockdev.NewPartition(4, disk, blockdev.MBREntry{
		PartitionType: blockdev.RecognizedPartitionType,
		FirstLBA:      2048,
		SectorCount:   2048,
	})

	c := newTestCache(t, 16)

	// 512 bytes at partition offset 0: one full-frame fetch against the
	// disk, starting at the partition's first absolute sector.
	data, offset, err := c.ReadAndReserve(part, 0, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if offset != 0 {
		t.Fatalf("expected offset 0, got %d", offset)
	}
	if len(disk.reads) != 1 || disk.reads[0] != (call{2048, 8}) {
		t.Fatalf("expected exactly one read_blocks(first=2048, count=8) on the disk, got %v", disk.reads)
	}
	for i := 0; i < 512; i++ {
		if want := disk.backing[2048*512+i]; data[i] != want {
			t.Fatalf("byte %d mismatch: got %d want %d", i, data[i], want)
		}
	}

	if got := c.DebugReport().IndexSize; got != 1 {
		t.Fatalf("expected the index to hold exactly one entry, got %d", got)
	}
}

func TestEvictionWritesBackDirtyLRUVictim(t *testing.T) {
	dev := newFakeDevice(1, 4096)
	c := newTestCache(t, 4)

	// Fill the cache to capacity with distinct keys, releasing each dirty.
	for i := 0; i < 4; i++ {
		data, _, err := c.Reserve(dev, uint64(i*8), 8)
		if err != nil {
			t.Fatalf("unexpected error reserving slot %d: %v", i, err)
		}
		data[0] = byte(i + 1)
		if err := c.Release(dev, uint64(i*8), true); err != nil {
			t.Fatalf("unexpected error releasing slot %d: %v", i, err)
		}
	}

	before := c.DebugReport()
	if before.DirtyCount != 4 {
		t.Fatalf("expected 4 dirty slots before eviction, got %d", before.DirtyCount)
	}

	// Request a fifth, distinct key: the LRU victim (key 0) must be
	// written back before its slot is reused.
	if _, _, err := c.ReadAndReserve(dev, 32, 8); err != nil {
		t.Fatalf("unexpected error forcing eviction: %v", err)
	}

	if len(dev.writes) != 1 || dev.writes[0] != (call{0, 8}) {
		t.Fatalf("expected exactly one write_blocks(first=0, count=8) for the LRU victim, got %v", dev.writes)
	}
	foundRead := false
	for _, r := range dev.reads {
		if r == (call{32, 8}) {
			foundRead = true
		}
	}
	if !foundRead {
		t.Fatalf("expected a read_blocks(first=32, count=8) for the new key, got %v", dev.reads)
	}

	after := c.DebugReport()
	if after.DirtyCount != before.DirtyCount-1 {
		t.Fatalf("expected dirty count to decrease by one, before=%d after=%d", before.DirtyCount, after.DirtyCount)
	}
}

func TestReReservationPreservesIdentity(t *testing.T) {
	dev := newFakeDevice(1, 4096)
	c := newTestCache(t, 16)

	data, _, err := c.Reserve(dev, 0, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data[0] = 0x42
	if err := c.Release(dev, 0, true); err != nil {
		t.Fatalf("unexpected error releasing: %v", err)
	}

	// No intervening eviction: the slot is on the available list, not yet
	// reused.
	data2, _, err := c.Reserve(dev, 0, 8)
	if err != nil {
		t.Fatalf("unexpected error re-reserving: %v", err)
	}
	if data2[0] != 0x42 {
		t.Fatalf("expected the sentinel byte to survive re-reservation, got %#x", data2[0])
	}
	if &data[0] != &data2[0] {
		t.Fatal("expected the same backing array across re-reservation without an intervening eviction")
	}
}

func TestAvailableAndInUseListsPartitionAllSlots(t *testing.T) {
	dev := newFakeDevice(1, 4096)
	c := newTestCache(t, 8)

	var reserved []uint64
	for i := 0; i < 5; i++ {
		if _, _, err := c.Reserve(dev, uint64(i*8), 8); err != nil {
			t.Fatalf("unexpected error reserving %d: %v", i, err)
		}
		reserved = append(reserved, uint64(i*8))
	}

	report := c.DebugReport()
	if report.AvailableCount+report.InUseCount != 8 {
		t.Fatalf("expected available+in-use to cover all 8 slots, got %d+%d", report.AvailableCount, report.InUseCount)
	}
	if report.InUseCount != 5 {
		t.Fatalf("expected 5 in-use slots, got %d", report.InUseCount)
	}

	for _, id := range reserved {
		if err := c.Release(dev, id, false); err != nil {
			t.Fatalf("unexpected error releasing %d: %v", id, err)
		}
	}

	report = c.DebugReport()
	if report.InUseCount != 0 {
		t.Fatalf("expected 0 in-use slots after releasing everything, got %d", report.InUseCount)
	}
	if report.AvailableCount != 8 {
		t.Fatalf("expected 8 available slots after releasing everything, got %d", report.AvailableCount)
	}
}

func TestClearRequiresNoSlotsInUse(t *testing.T) {
	dev := newFakeDevice(1, 4096)
	c := newTestCache(t, 4)

	if _, _, err := c.Reserve(dev, 0, 8); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := c.Clear(); err == nil {
		t.Fatal("expected Clear to fail while a slot is in use")
	}

	if err := c.Release(dev, 0, false); err != nil {
		t.Fatalf("unexpected error releasing: %v", err)
	}

	if err := c.Clear(); err != nil {
		t.Fatalf("unexpected error clearing an idle cache: %v", err)
	}
	if got := c.DebugReport().IndexNodeCount; got != 0 {
		t.Fatalf("expected an empty index after Clear, got %d nodes", got)
	}
}
