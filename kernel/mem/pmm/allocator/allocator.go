// Package allocator implements the page frame allocator.
//
// Physical memory is split into two pools — kernel-space and user-space —
// and frames are handed out one at a time. A reservation mechanism lets a
// caller pre-claim a slice of the kernel pool's availability so that later
// allocations against that reservation cannot be starved by unrelated
// pressure on the pool. This exists to break a dependency cycle: the block
// cache's b-tree index allocates its nodes through this allocator, and
// those allocations must not deadlock just because the cache itself has
// grown and consumed most of the kernel pool.
package allocator

import (
	"storagecore/kernel/errors"
	"storagecore/kernel/mem/pmm"
	"storagecore/kernel/sync"
)

// NoReservation is passed as a reservationID to Acquire/Release when the
// caller is not operating against a kernel-pool reservation.
const NoReservation = -1

// maxReservations bounds the number of independent reservations the
// allocator tracks at once. Every subsystem that needs a standing frame
// budget — today, just the block cache's b-tree index — takes one entry for
// its entire lifetime, so this ceiling is generous.
const maxReservations = 64

type reservation struct {
	available uint32
	total     uint32
}

// Allocator hands out physical page frames from a kernel-space pool and a
// user-space pool. The free lists and the reservation table are shared
// process-wide state; every mutation below runs under the same spinlock so
// an interrupt handler poking the allocator mid-update cannot observe a
// half-moved frame or a torn reservation count.
type Allocator struct {
	mutex sync.Spinlock

	kernelFrameCount uint32

	kernelFree []pmm.Frame
	userFree   []pmm.Frame

	reservedCount uint32
	reservations  []reservation
}

// New partitions kernelFrameCount + userFrameCount physical frames into the
// two pools. Frames [0, kernelFrameCount) belong to the kernel pool and
// [kernelFrameCount, kernelFrameCount+userFrameCount) belong to the user
// pool — kernel space sits below the boundary, user space above it.
func New(kernelFrameCount, userFrameCount uint32) *Allocator {
	a := &Allocator{
		kernelFrameCount: kernelFrameCount,
		kernelFree:       make([]pmm.Frame, 0, kernelFrameCount),
		userFree:         make([]pmm.Frame, 0, userFrameCount),
	}

	for f := uint32(0); f < kernelFrameCount; f++ {
		a.kernelFree = append(a.kernelFree, pmm.Frame(f))
	}
	for f := kernelFrameCount; f < kernelFrameCount+userFrameCount; f++ {
		a.userFree = append(a.userFree, pmm.Frame(f))
	}

	return a
}

func (a *Allocator) isKernelFrame(f pmm.Frame) bool {
	return uint32(f) < a.kernelFrameCount
}

// Acquire hands out one frame. If reservationID is not NoReservation, the
// call is serviced exclusively from that reservation's remaining budget
// within the kernel pool. A user-space request that finds its own pool
// empty falls back to the kernel pool.
func (a *Allocator) Acquire(kernelSpace bool, reservationID int) (pmm.Frame, *errors.Error) {
	a.mutex.Acquire()
	defer a.mutex.Release()
	return a.acquire(kernelSpace, reservationID)
}

func (a *Allocator) acquire(kernelSpace bool, reservationID int) (pmm.Frame, *errors.Error) {
	if kernelSpace {
		if reservationID != NoReservation {
			if reservationID < 0 || reservationID >= len(a.reservations) {
				return pmm.InvalidFrame, errors.NotEnoughMemory
			}
			if len(a.kernelFree) == 0 || a.reservations[reservationID].available == 0 {
				return pmm.InvalidFrame, errors.NotEnoughMemory
			}
			frame := a.popKernel()
			a.reservations[reservationID].available--
			a.reservedCount--
			return frame, nil
		}

		// Frames still owed to reservations are not handed out here.
		if uint32(len(a.kernelFree)) <= a.reservedCount {
			return pmm.InvalidFrame, errors.NotEnoughMemory
		}
		return a.popKernel(), nil
	}

	if len(a.userFree) > 0 {
		frame := a.userFree[len(a.userFree)-1]
		a.userFree = a.userFree[:len(a.userFree)-1]
		return frame, nil
	}

	// No user frames left; fall back to the kernel pool outside of any
	// reservation.
	return a.acquire(true, NoReservation)
}

func (a *Allocator) popKernel() pmm.Frame {
	frame := a.kernelFree[len(a.kernelFree)-1]
	a.kernelFree = a.kernelFree[:len(a.kernelFree)-1]
	return frame
}

// Release returns a frame to its origin pool. If the frame originated in the
// kernel pool and reservationID is not NoReservation, the reservation's
// available count is restored, up to its original total.
func (a *Allocator) Release(frame pmm.Frame, reservationID int) {
	a.mutex.Acquire()
	defer a.mutex.Release()

	if a.isKernelFrame(frame) {
		a.kernelFree = append(a.kernelFree, frame)
		if reservationID != NoReservation && reservationID >= 0 && reservationID < len(a.reservations) {
			r := &a.reservations[reservationID]
			if r.available < r.total {
				r.available++
				a.reservedCount++
			}
		}
		return
	}

	a.userFree = append(a.userFree, frame)
}

// ReserveKernel claims n frames of the kernel pool's current availability
// for the exclusive use of whoever holds the returned reservation id. It
// fails if the kernel pool does not currently have enough unreserved
// capacity, or if the reservation table is full.
func (a *Allocator) ReserveKernel(n uint32) (int, *errors.Error) {
	a.mutex.Acquire()
	defer a.mutex.Release()

	if uint32(len(a.kernelFree)) < a.reservedCount+n || len(a.reservations) >= maxReservations {
		return -1, errors.NotEnoughMemory
	}

	a.reservations = append(a.reservations, reservation{available: n, total: n})
	a.reservedCount += n
	return len(a.reservations) - 1, nil
}

// KernelAvailable returns the number of free, unreserved frames left in the
// kernel pool.
func (a *Allocator) KernelAvailable() uint32 {
	return uint32(len(a.kernelFree)) - a.reservedCount
}

// UserAvailable returns the number of free frames left in the user pool.
func (a *Allocator) UserAvailable() uint32 {
	return uint32(len(a.userFree))
}
