// Package cpu declares the privileged CPU primitives the storage core's
// bring-up and fatal-error paths rely on. Like kernel/ioport, the functions
// here have no Go body; they are implemented in cpu_amd64.s.
package cpu

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// Halt stops instruction execution until the next interrupt arrives. With
// interrupts disabled first, it stops the CPU for good; kfmt.Panic uses it
// as the terminal state after reporting an unrecoverable error.
func Halt()
