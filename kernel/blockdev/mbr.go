package blockdev

import (
	"encoding/binary"

	"storagecore/kernel/errors"
)

// mbrSignature is the little-endian 0xAA55 that must occupy the last two
// bytes of a valid MBR sector.
const mbrSignature = 0xAA55

// RecognizedPartitionType is the only partition type this core admits
// (0x83, a native Linux-style data partition). Anything else is skipped
// during enumeration even if the entry is otherwise well-formed.
const RecognizedPartitionType = 0x83

const (
	partitionTableOffset = 446
	partitionEntrySize   = 16
	signatureOffset      = 510
)

// MBREntry is one of the four fixed partition-table slots in sector 0.
type MBREntry struct {
	DriveAttributes byte
	PartitionType   byte
	FirstLBA        uint32
	SectorCount     uint32
}

// Valid reports whether the low seven bits of DriveAttributes are zero, the
// MBR's definition of "this slot is in use."
func (e MBREntry) Valid() bool {
	return e.DriveAttributes&0x7F == 0
}

// Recognized reports whether this entry's partition type is one the core
// knows how to mount.
func (e MBREntry) Recognized() bool {
	return e.PartitionType == RecognizedPartitionType
}

// LastLBA returns the final absolute sector this entry covers.
func (e MBREntry) LastLBA() uint64 {
	if e.SectorCount == 0 {
		return uint64(e.FirstLBA)
	}
	return uint64(e.FirstLBA) + uint64(e.SectorCount) - 1
}

// ParseMBR reads the four partition entries out of a 512-byte sector 0,
// rejecting it if the trailing signature does not match 0xAA55. Bootstrap
// code (bytes 0..446) is ignored, as are the CHS fields of each entry.
func ParseMBR(sector []byte) ([4]MBREntry, *errors.Error) {
	var entries [4]MBREntry

	if len(sector) < 512 {
		return entries, &errors.Error{Module: "blockdev", Message: "MBR sector shorter than 512 bytes"}
	}

	if sig := binary.LittleEndian.Uint16(sector[signatureOffset : signatureOffset+2]); sig != mbrSignature {
		return entries, &errors.Error{Module: "blockdev", Message: "invalid MBR signature"}
	}

	for i := range entries {
		base := partitionTableOffset + i*partitionEntrySize
		entries[i] = MBREntry{
			DriveAttributes: sector[base],
			PartitionType:   sector[base+4],
			FirstLBA:        binary.LittleEndian.Uint32(sector[base+8 : base+12]),
			SectorCount:     binary.LittleEndian.Uint32(sector[base+12 : base+16]),
		}
	}

	return entries, nil
}
