// Package sync provides the exclusive-access cell that guards shared kernel
// state on a single hart.
package sync

import (
	"sv39os/kernel"
	"sv39os/kernel/kfmt"
	"sync/atomic"
)

var (
	// ErrAlreadyAccessed is raised when a cell is accessed while a guard
	// for it is still live. On a single hart without preemption this can
	// only happen through re-entrancy, which is a kernel bug.
	ErrAlreadyAccessed = &kernel.Error{Module: "sync", Message: "cell already accessed"}

	// ErrGuardReleased is raised when a guard is used after Release.
	ErrGuardReleased = &kernel.Error{Module: "sync", Message: "guard used after release"}

	// ErrGuardHeld is raised when a Released token is presented while its
	// cell is held again or when the token was not produced by Release.
	ErrGuardHeld = &kernel.Error{Module: "sync", Message: "guard still held"}
)

// UPCell wraps a value that may only be accessed by one holder at a time.
// Unlike a lock, a second concurrent Access does not wait: the kernel runs
// on a single hart and never switches tasks while a guard is live, so a
// contended cell always indicates re-entrant use and is treated as fatal.
type UPCell[T any] struct {
	state uint32
	value T
}

// NewUPCell returns a cell holding v.
func NewUPCell[T any](v T) *UPCell[T] {
	return &UPCell[T]{value: v}
}

// Access returns a guard granting exclusive access to the wrapped value. The
// guard must be released with Release before the holder transfers control
// to another task.
func (c *UPCell[T]) Access() *Guard[T] {
	if !atomic.CompareAndSwapUint32(&c.state, 0, 1) {
		kfmt.Panic(ErrAlreadyAccessed)
	}
	return &Guard[T]{cell: c}
}

// With runs fn while holding the cell and releases it afterwards.
func (c *UPCell[T]) With(fn func(v *T)) {
	g := c.Access()
	defer g.Release()
	fn(g.Value())
}

// Held returns true while a guard for the cell is live.
func (c *UPCell[T]) Held() bool {
	return atomic.LoadUint32(&c.state) == 1
}

// Guard is a live exclusive access to an UPCell.
type Guard[T any] struct {
	cell     *UPCell[T]
	released bool
}

// Value returns a pointer to the wrapped value. The pointer must not be
// used after the guard is released.
func (g *Guard[T]) Value() *T {
	if g.released {
		kfmt.Panic(ErrGuardReleased)
	}
	return &g.cell.value
}

// Release ends the exclusive access and returns a token proving it. Calling
// Release more than once is a no-op that returns an equivalent token.
func (g *Guard[T]) Release() Released {
	if !g.released {
		g.released = true
		atomic.StoreUint32(&g.cell.state, 0)
	}
	return Released{state: &g.cell.state}
}

// Released is proof that a guard has been given up. Operations that
// transfer control away from the current task take a Released so that a
// guard cannot be carried across the transfer.
type Released struct {
	state *uint32
}

// Check panics unless the token was produced by Release and the cell it
// refers to has not been accessed again since.
func (r Released) Check() {
	if r.state == nil || atomic.LoadUint32(r.state) != 0 {
		kfmt.Panic(ErrGuardHeld)
	}
}
