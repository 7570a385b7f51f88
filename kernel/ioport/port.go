// Package ioport declares the raw x86 port I/O primitives used by the ATA
// driver. Like kernel/cpu, the functions here have no Go body; they are
// backed by a handful of in/out instructions in a matching .s file and
// exist purely as typed, documented call sites for the rest of the core.
package ioport

// Inb reads a single byte from the given I/O port.
func Inb(port uint16) uint8

// Outb writes a single byte to the given I/O port.
func Outb(port uint16, value uint8)

// Inw reads a 16-bit word from the given I/O port. Used to pull 512-byte
// sectors off the ATA data port two bytes at a time.
func Inw(port uint16) uint16

// Outw writes a 16-bit word to the given I/O port.
func Outw(port uint16, value uint16)
