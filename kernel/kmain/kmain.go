// Package kmain brings up the storage and caching core: it partitions
// physical memory into the page frame allocator's two pools, software-resets
// and probes both IDE channels, and builds a block cache over the kernel
// frame pool.
package kmain

import (
	"storagecore/kernel/ata"
	"storagecore/kernel/blockdev"
	"storagecore/kernel/cache"
	"storagecore/kernel/errors"
	"storagecore/kernel/kfmt"
	"storagecore/kernel/mem"
	"storagecore/kernel/mem/pmm/allocator"
)

// Standard ISA fixed port assignments for the primary and secondary IDE
// channels.
const (
	primaryCommandBase, primaryControlBase     = 0x1F0, 0x3F6
	secondaryCommandBase, secondaryControlBase = 0x170, 0x376
)

// Devices holds every ATA device Init found operational, across both IDE
// channels.
var Devices []*ata.ATADevice

// Cache is the block cache built over the partitions Init found, once Init
// has returned successfully.
var Cache *cache.Cache

// Init performs the storage core's bring-up sequence. kernelFrames and
// userFrames size the page frame allocator's two pools; cacheSlots sizes
// the block cache's frame table. A channel that times out during reset is
// simply skipped; a failure to construct the cache itself is returned to
// the caller.
func Init(kernelFrames, userFrames uint32, cacheSlots int) *errors.Error {
	pageAlloc := allocator.New(kernelFrames, userFrames)

	channels := [2]struct {
		commandBase, controlBase uint16
		baseID                   uint32
	}{
		{primaryCommandBase, primaryControlBase, 0},
		{secondaryCommandBase, secondaryControlBase, 2},
	}

	for _, c := range channels {
		channel := ata.NewIDEChannel(c.commandBase, c.controlBase, nil, nil)
		if !channel.Reset() {
			kfmt.Printf("kmain: IDE channel at port %d did not respond to reset\n", c.commandBase)
			continue
		}

		for i, slave := range [2]bool{false, true} {
			dev := ata.NewATADevice(channel, c.baseID+uint32(i), slave)
			dev.Initialize()
			if !dev.Operational() {
				continue
			}
			kfmt.Printf("kmain: found %s device \"%s\"\n", dev.DeviceType().String(), dev.Identify().Model)
			Devices = append(Devices, dev)
		}
	}

	c, err := cache.New(uint32(mem.PageSize), cacheSlots, pageAlloc, nil)
	if err != nil {
		return err
	}
	Cache = c

	return nil
}

// Partitions returns every recognized partition across every operational
// device Init found, each ready to hand to Cache.Reserve/ReadAndReserve.
func Partitions() []*blockdev.Partition {
	var out []*blockdev.Partition
	for _, d := range Devices {
		out = append(out, d.Partitions()...)
	}
	return out
}
