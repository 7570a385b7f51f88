// Package blockdev defines the block-device capability the cache talks to,
// and the MBR-derived partition view of it that the ATA driver exposes.
package blockdev

import "storagecore/kernel/errors"

// BlockDevice is a fixed-block-size, randomly addressable byte store. All
// I/O is synchronous: ReadBlocks/WriteBlocks block the calling thread until
// the transfer completes or fails. Implementations (the ATA driver,
// partitions layered over it) report a device fault or a bad block range
// as a returned *errors.Error and do not retry; the block cache treats any
// such error as fatal and aborts the kernel.
type BlockDevice interface {
	// ID is a stable identity used as half of the cache's lookup key. It is
	// a small integer, not a heap string: device identity in this kernel
	// is assigned at enumeration time (channel*2 + slave, or a partition
	// index) and never needs to grow.
	ID() uint32

	// BlockSize is a power of two not exceeding the page frame size.
	BlockSize() uint32

	// BlockCount is the device's total addressable block count.
	BlockCount() uint64

	// MaxBlocksPerRead bounds a single ReadBlocks/WriteBlocks call; callers
	// wiring a new device must keep it at least frame_size/BlockSize so the
	// cache can always fetch one full frame in a single call.
	MaxBlocksPerRead() uint32

	// ReadBlocks fills buf (count*BlockSize bytes) starting at block first.
	ReadBlocks(first uint64, count uint32, buf []byte) *errors.Error

	// WriteBlocks writes buf (count*BlockSize bytes) starting at block
	// first.
	WriteBlocks(first uint64, count uint32, buf []byte) *errors.Error
}
