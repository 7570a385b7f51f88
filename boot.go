package main

import (
	"storagecore/kernel/errors"
	"storagecore/kernel/kfmt"
	"storagecore/kernel/kmain"
)

var errKmainReturned = &errors.Error{Module: "boot", Message: "kmain.Init returned"}

// Default pool and cache sizes for a standalone boot image. A kernel
// embedding this core as a subsystem would size these from its own memory
// map instead of these fixed constants.
const (
	defaultKernelFrames = 4096
	defaultUserFrames   = 16384
	defaultCacheSlots   = 512
)

// main is the trampoline the rt0 initialization code calls into after
// setting up the GDT and a minimal stack. It is intentionally a standalone
// function (not inlined into kmain.Init) so the compiler cannot treat the
// storage core's bring-up as dead code just because nothing outside this
// binary calls it.
func main() {
	if err := kmain.Init(defaultKernelFrames, defaultUserFrames, defaultCacheSlots); err != nil {
		kfmt.Panic(err)
	}

	kfmt.Panic(errKmainReturned)
}
