// Package sync provides the synchronization primitives used by this core.
//
// The kernel this core belongs to is single-CPU and cooperatively
// scheduled: only a hardware interrupt can preempt the running task, and
// the core's own operations (b-tree, cache) are confined to non-interrupt
// contexts by convention rather than by locking. Spinlock exists for the
// one piece of state that genuinely is shared across independent call
// paths — the page frame allocator's pools and reservation table.
package sync

import "sync/atomic"

// yieldFn is substituted by tests to avoid busy-looping forever while
// exercising contention.
var yieldFn = func() {}

// Spinlock implements a lock where a task trying to acquire it busy-waits
// until the lock becomes available. Re-acquiring a lock already held by the
// current task deadlocks.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired.
func (l *Spinlock) Acquire() {
	for !atomic.CompareAndSwapUint32(&l.state, 0, 1) {
		yieldFn()
	}
}

// TryToAcquire attempts to acquire the lock without blocking. It returns true
// if the lock was free and is now held by the caller.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.CompareAndSwapUint32(&l.state, 0, 1)
}

// Release relinquishes a held lock. Calling Release while the lock is free
// has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}
