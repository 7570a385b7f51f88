// Package ata drives ATA/IDE hard disks in PIO mode: channel reset,
// IDENTIFY, and sector read/write, on top of the raw port I/O primitives in
// kernel/ioport. It exposes each recognized partition as a
// kernel/blockdev.BlockDevice.
package ata

import "storagecore/kernel/ioport"

// PortIO is the register-level interface an IDEChannel talks to. Production
// wiring uses hardwarePorts, which forwards straight to kernel/ioport's
// asm-backed Inb/Outb/Inw/Outw; tests supply an in-memory fake so the wait
// loops and transfer framing can be exercised without real hardware.
type PortIO interface {
	InByte(port uint16) uint8
	OutByte(port uint16, value uint8)
	InWord(port uint16) uint16
	OutWord(port uint16, value uint16)
}

type hardwarePorts struct{}

func (hardwarePorts) InByte(port uint16) uint8          { return ioport.Inb(port) }
func (hardwarePorts) OutByte(port uint16, value uint8)  { ioport.Outb(port, value) }
func (hardwarePorts) InWord(port uint16) uint16         { return ioport.Inw(port) }
func (hardwarePorts) OutWord(port uint16, value uint16) { ioport.Outw(port, value) }
