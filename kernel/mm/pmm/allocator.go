// Package pmm manages the allocation of physical memory frames.
package pmm

import (
	"sv39os/kernel"
	"sv39os/kernel/kfmt"
	"sv39os/kernel/mm"
)

var (
	// ErrOutOfMemory is returned when the frame pool is exhausted.
	ErrOutOfMemory = &kernel.Error{Module: "frame_alloc", Message: "out of memory"}

	// ErrFrameNotAllocated is raised when a frame that is not currently
	// allocated is returned to the allocator.
	ErrFrameNotAllocated = &kernel.Error{Module: "frame_alloc", Message: "frame is not allocated"}
)

// FrameAllocator is implemented by physical frame allocators.
type FrameAllocator interface {
	// Alloc reserves a frame. It returns false if no frame is available.
	Alloc() (mm.PhysPageNum, bool)

	// Dealloc returns a previously allocated frame to the allocator.
	Dealloc(ppn mm.PhysPageNum)
}

// StackFrameAllocator hands out frames from a contiguous range of physical
// pages. Never-used frames are handed out by bumping a counter; freed frames
// are kept on a stack and reused most-recently-freed first.
//
// Every frame in [start, current) is either allocated or present exactly
// once in the recycled stack.
type StackFrameAllocator struct {
	// start is the first frame of the managed range.
	start mm.PhysPageNum

	// current is the next never-allocated frame.
	current mm.PhysPageNum

	// end is the first frame past the managed range.
	end mm.PhysPageNum

	recycled []mm.PhysPageNum

	// inRecycled mirrors the contents of recycled for O(1) double-free
	// detection.
	inRecycled map[mm.PhysPageNum]struct{}
}

// Stats describes the state of a StackFrameAllocator.
type Stats struct {
	Start, Current, End mm.PhysPageNum
	Recycled            int
}

// Init sets up the allocator to manage frames [l, r).
func (alloc *StackFrameAllocator) Init(l, r mm.PhysPageNum) {
	alloc.start = l
	alloc.current = l
	alloc.end = r
	alloc.recycled = alloc.recycled[:0]
	alloc.inRecycled = make(map[mm.PhysPageNum]struct{})
}

// Alloc implements FrameAllocator.
func (alloc *StackFrameAllocator) Alloc() (mm.PhysPageNum, bool) {
	if n := len(alloc.recycled); n != 0 {
		ppn := alloc.recycled[n-1]
		alloc.recycled = alloc.recycled[:n-1]
		delete(alloc.inRecycled, ppn)
		return ppn, true
	}

	if alloc.current >= alloc.end {
		return 0, false
	}

	ppn := alloc.current
	alloc.current++
	return ppn, true
}

// Dealloc implements FrameAllocator. Returning a frame that was never handed
// out or that has already been returned is a kernel bug and causes a panic.
func (alloc *StackFrameAllocator) Dealloc(ppn mm.PhysPageNum) {
	if ppn < alloc.start || ppn >= alloc.current {
		kfmt.Fatalf(ErrFrameNotAllocated, "%v was never allocated", ppn)
	}
	if _, freed := alloc.inRecycled[ppn]; freed {
		kfmt.Fatalf(ErrFrameNotAllocated, "%v is already free (double free)", ppn)
	}

	alloc.recycled = append(alloc.recycled, ppn)
	alloc.inRecycled[ppn] = struct{}{}
}

// Stats returns a snapshot of the allocator state.
func (alloc *StackFrameAllocator) Stats() Stats {
	return Stats{
		Start:    alloc.start,
		Current:  alloc.current,
		End:      alloc.end,
		Recycled: len(alloc.recycled),
	}
}

// Free returns the number of frames that can still be allocated.
func (s Stats) Free() uint64 {
	return uint64(s.End-s.Current) + uint64(s.Recycled)
}
