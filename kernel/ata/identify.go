package ata

import (
	"encoding/binary"
	"time"
)

const identifyModelBytes = 40

// IdentifyResult holds the fields this driver cares about out of the
// 512-byte IDENTIFY DEVICE response; everything else in that sector is
// ignored.
type IdentifyResult struct {
	RemovableMedia bool
	Model          string
	MaxLBA28       uint32
	MaxLBA48       uint64
	Supports48Bit  bool
}

// canUse48Bit reports whether the device both supports and has enabled the
// 48-bit address feature set (words 83 and 86, bit 10 of each).
func canUse48Bit(commandSetsSupported, commandSetsEnabled uint16) bool {
	const bit = 1 << 10
	return commandSetsSupported&bit != 0 && commandSetsEnabled&bit != 0
}

// parseIdentify decodes a raw 512-byte IDENTIFY DEVICE response.
func parseIdentify(buf []byte) IdentifyResult {
	flags := binary.LittleEndian.Uint16(buf[0:2])

	modelRaw := buf[27*2 : 27*2+identifyModelBytes]
	var model [identifyModelBytes]byte
	for i := 0; i+1 < identifyModelBytes; i += 2 {
		model[i] = modelRaw[i+1]
		model[i+1] = modelRaw[i]
	}

	maxLBA28 := binary.LittleEndian.Uint32(buf[60*2 : 60*2+4])
	commandSetsSupported1 := binary.LittleEndian.Uint16(buf[83*2 : 83*2+2])
	commandSetsEnabled1 := binary.LittleEndian.Uint16(buf[86*2 : 86*2+2])
	maxLBA48 := binary.LittleEndian.Uint64(buf[100*2 : 100*2+8])

	return IdentifyResult{
		RemovableMedia: flags&(1<<7) != 0,
		Model:          rightTrim(string(model[:])),
		MaxLBA28:       maxLBA28,
		MaxLBA48:       maxLBA48,
		Supports48Bit:  canUse48Bit(commandSetsSupported1, commandSetsEnabled1),
	}
}

func rightTrim(s string) string {
	end := len(s)
	for end > 0 && s[end-1] == ' ' {
		end--
	}
	return s[:end]
}

// probe runs the device-select, signature read, and (for PATA/SATA)
// IDENTIFY sequence for one drive select line on this channel. Anything
// that does not answer, is PATAPI/SATAPI, or reports removable media is
// left non-operational.
func (ch *IDEChannel) probe(slave bool) (DeviceType, IdentifyResult, bool) {
	ch.ports.OutByte(ch.commandBase+regDevice, selectByte(slave, 0xA0, 0))
	ch.wait400ns()

	sectorCount := ch.ports.InByte(ch.commandBase + regSectorCount)
	lbaLow := ch.ports.InByte(ch.commandBase + regLBALow)
	lbaMid := ch.ports.InByte(ch.commandBase + regLBAMid)
	lbaHigh := ch.ports.InByte(ch.commandBase + regLBAHigh)
	device := ch.ports.InByte(ch.commandBase + regDevice)

	ch.ports.OutByte(ch.commandBase+regCommand, cmdIdentify)
	ch.wait400ns()

	if ch.ports.InByte(ch.commandBase+regStatus) == 0 {
		return DeviceUnknown, IdentifyResult{}, false
	}
	if ch.waitWhileBusy(500*time.Millisecond) != waitSuccess {
		return DeviceUnknown, IdentifyResult{}, false
	}

	deviceType := classifySignature(sectorCount, lbaLow, lbaMid, lbaHigh, device)
	if deviceType != DevicePATA && deviceType != DeviceSATA {
		return deviceType, IdentifyResult{}, false
	}

	buf := make([]byte, 512)
	for i := 0; i < 256; i++ {
		word := ch.ports.InWord(ch.commandBase)
		binary.LittleEndian.PutUint16(buf[i*2:], word)
	}

	result := parseIdentify(buf)
	if result.RemovableMedia {
		return deviceType, IdentifyResult{}, false
	}
	return deviceType, result, true
}
