package kfmt

import (
	"storagecore/kernel/cpu"
	"storagecore/kernel/errors"
)

var (
	// haltFn is invoked after a fatal error has been reported. It is a
	// variable (rather than a direct call to haltCPU) so tests can observe
	// a panic without actually stopping the process.
	haltFn = haltCPU

	errRuntimePanic = &errors.Error{Module: "rt", Message: "unknown cause"}
)

// haltCPU stops the CPU permanently: interrupts off, then halt. The loop
// guards against an NMI waking the core back up.
func haltCPU() {
	cpu.DisableInterrupts()
	for {
		cpu.Halt()
	}
}

// Panic reports the supplied error (if not nil) to the output sink and then
// halts. Every I/O fault the block cache sees (a failed read, or a failed
// write-back during eviction or flush) is fatal and is reported this way —
// there is no file-system-level recovery from it.
func Panic(e interface{}) {
	var err *errors.Error

	switch t := e.(type) {
	case *errors.Error:
		err = t
	case string:
		errRuntimePanic.Message = t
		err = errRuntimePanic
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	Printf("\n-----------------------------------\n")
	if err != nil {
		Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	Printf("*** kernel panic: system halted ***")
	Printf("\n-----------------------------------\n")

	haltFn()
}

// SetHaltFn overrides the function invoked once Panic has finished reporting
// the error. Production code never needs to call this; it exists so tests
// can exercise fatal paths (e.g. a simulated ATA timeout) without stopping
// the test binary.
func SetHaltFn(fn func()) {
	haltFn = fn
}
