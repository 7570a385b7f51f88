package ata

import (
	"storagecore/kernel/blockdev"
	"storagecore/kernel/errors"
)

// maxBlocksPerPIORead is the largest sector count one readSectors/
// writeSectors call can carry: the sector-count register is one byte, and 0
// there means 256, not 0.
const maxBlocksPerPIORead = 256

// ATADevice is one drive select line (master or slave) on an IDEChannel. It
// implements blockdev.BlockDevice directly over the whole disk's LBA range,
// and additionally exposes the partitions an MBR on sector 0 describes.
type ATADevice struct {
	channel *IDEChannel
	slave   bool
	id      uint32

	operational bool
	deviceType  DeviceType
	identify    IdentifyResult
	addressable bool

	partitions []*blockdev.Partition
}

// NewATADevice builds the device handle for one drive select line. id must
// be unique across every ATA device in the system; kmain numbers them
// channel*2 + 0/1, but callers are free to number channels and drives
// however the platform wiring needs.
func NewATADevice(channel *IDEChannel, id uint32, slave bool) *ATADevice {
	return &ATADevice{channel: channel, slave: slave, id: id, deviceType: DeviceUnknown}
}

// Initialize probes this drive select line: device-select, signature read,
// and (for PATA/SATA, non-removable) IDENTIFY. It then reads sector 0 and
// enumerates any recognized partitions. Callers normally invoke this once,
// after IDEChannel.Reset on the owning channel.
func (d *ATADevice) Initialize() {
	deviceType, result, operational := d.channel.probe(d.slave)
	d.deviceType = deviceType
	d.identify = result
	d.operational = operational
	if !operational {
		return
	}

	// A device whose 48-bit feature set is enabled and actually extends
	// its addressable range beyond 28 bits cannot be driven by this PIO
	// implementation; it is left operational for IDENTIFY purposes but
	// unbound from any block device.
	d.addressable = !result.Supports48Bit || result.MaxLBA48 == uint64(result.MaxLBA28)
	if !d.addressable {
		return
	}

	d.enumeratePartitions()
}

func (d *ATADevice) enumeratePartitions() {
	sector := make([]byte, 512)
	if err := d.ReadBlocks(0, 1, sector); err != nil {
		return
	}

	entries, err := blockdev.ParseMBR(sector)
	if err != nil {
		return
	}

	for i, entry := range entries {
		if !entry.Valid() || !entry.Recognized() {
			continue
		}
		if entry.LastLBA() > lba28Mask {
			// Requires LBA48 addressing this driver does not support;
			// left unbound, matching the whole-disk rule above.
			continue
		}
		// Whole disks take ids 0..3 (two channels, master/slave); partition
		// ids start above that range so a partition can never collide with
		// any disk in the cache's (device_id, block_id) key space.
		partitionID := (d.id+1)*4 + uint32(i)
		d.partitions = append(d.partitions, blockdev.NewPartition(partitionID, d, entry))
	}
}

// Operational reports whether Initialize found a usable PATA/SATA drive.
func (d *ATADevice) Operational() bool { return d.operational }

// DeviceType reports what Initialize classified this drive select line as.
func (d *ATADevice) DeviceType() DeviceType { return d.deviceType }

// Identify returns the parsed IDENTIFY response, valid only when
// Operational is true.
func (d *ATADevice) Identify() IdentifyResult { return d.identify }

// Partitions returns the recognized partitions found on this device's MBR,
// each already bound to this device.
func (d *ATADevice) Partitions() []*blockdev.Partition { return d.partitions }

// ID implements blockdev.BlockDevice.
func (d *ATADevice) ID() uint32 { return d.id }

// BlockSize implements blockdev.BlockDevice.
func (d *ATADevice) BlockSize() uint32 { return bytesPerSector }

// BlockCount implements blockdev.BlockDevice, reporting the 28-bit LBA
// range this driver can address on the device.
func (d *ATADevice) BlockCount() uint64 { return uint64(d.identify.MaxLBA28) }

// MaxBlocksPerRead implements blockdev.BlockDevice.
func (d *ATADevice) MaxBlocksPerRead() uint32 { return maxBlocksPerPIORead }

func sectorCountRegisterValue(count uint32) uint8 {
	if count == maxBlocksPerPIORead {
		return 0
	}
	return uint8(count)
}

// ReadBlocks implements blockdev.BlockDevice.
func (d *ATADevice) ReadBlocks(first uint64, count uint32, buf []byte) *errors.Error {
	if count == 0 || count > maxBlocksPerPIORead {
		return &errors.Error{Module: "ata", Message: "read block count out of range"}
	}
	return d.channel.readSectors(d.slave, uint32(first), sectorCountRegisterValue(count), buf)
}

// WriteBlocks implements blockdev.BlockDevice.
func (d *ATADevice) WriteBlocks(first uint64, count uint32, buf []byte) *errors.Error {
	if count == 0 || count > maxBlocksPerPIORead {
		return &errors.Error{Module: "ata", Message: "write block count out of range"}
	}
	return d.channel.writeSectors(d.slave, uint32(first), sectorCountRegisterValue(count), buf)
}

// Reset performs a software reset of the owning IDE channel, per the ATA
// reset sequence. It affects both drive select lines on the channel.
func (ch *IDEChannel) Reset() bool {
	return ch.softwareReset()
}
