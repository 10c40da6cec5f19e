package pmm

import (
	"sv39os/kernel"
	"sv39os/kernel/kfmt"
	"sv39os/kernel/mm"
	"sv39os/kernel/mm/region"
	"sv39os/kernel/sync"
)

var (
	errInvalidRange = &kernel.Error{Module: "frame_alloc", Message: "frame range is empty or outside physical memory"}
	errSelfTest     = &kernel.Error{Module: "frame_alloc", Message: "frame allocator self test failed"}
)

// Frames is the kernel's physical frame pool. It is created once during boot
// and handed to every subsystem that needs physical memory.
type Frames struct {
	mem   *region.Region
	alloc *sync.UPCell[FrameAllocator]
}

// Init creates the frame pool covering the memory between the end of the
// kernel image and memoryEnd. Frames are zeroed through mem when allocated.
func Init(mem *region.Region, kernelEnd, memoryEnd mm.PhysAddr) (*Frames, *kernel.Error) {
	var stack StackFrameAllocator
	l, r := kernelEnd.Ceil(), memoryEnd.Floor()
	if l >= r || !mem.Contains(l.Addr(), uint64(r-l)<<mm.PageShift) {
		return nil, errInvalidRange
	}
	stack.Init(l, r)

	kfmt.Module("frame_alloc").Infof("managing frames [%v, %v): %s available", l, r, mm.Size(uint64(r-l))*mm.PageSize)
	return NewFrames(mem, &stack), nil
}

// NewFrames wraps an already initialized allocator.
func NewFrames(mem *region.Region, alloc FrameAllocator) *Frames {
	return &Frames{
		mem:   mem,
		alloc: sync.NewUPCell(alloc),
	}
}

// Alloc reserves a zeroed frame. It returns ErrOutOfMemory when the pool is
// exhausted; callers propagate this to whatever requested the memory.
func (f *Frames) Alloc() (*FrameTracker, *kernel.Error) {
	g := f.alloc.Access()
	ppn, ok := (*g.Value()).Alloc()
	g.Release()

	if !ok {
		return nil, ErrOutOfMemory
	}
	return newFrameTracker(f, ppn), nil
}

// Stats returns the allocator statistics if the underlying allocator
// reports them.
func (f *Frames) Stats() (Stats, bool) {
	var (
		stats Stats
		ok    bool
	)
	f.alloc.With(func(a *FrameAllocator) {
		var s interface{ Stats() Stats }
		if s, ok = (*a).(interface{ Stats() Stats }); ok {
			stats = s.Stats()
		}
	})
	return stats, ok
}

// Memory returns the physical memory region frames are carved from.
func (f *Frames) Memory() *region.Region {
	return f.mem
}

func (f *Frames) dealloc(ppn mm.PhysPageNum) {
	g := f.alloc.Access()
	defer g.Release()
	(*g.Value()).Dealloc(ppn)
}

// FrameTracker owns one allocated physical frame. The frame is returned to
// the pool by Free; a tracker is the only way a frame gets freed.
type FrameTracker struct {
	ppn   mm.PhysPageNum
	owner *Frames
	freed bool
}

func newFrameTracker(owner *Frames, ppn mm.PhysPageNum) *FrameTracker {
	// Clear any data left behind by the previous owner.
	if err := owner.mem.ZeroPage(ppn); err != nil {
		kfmt.Fatalf(err, "unable to clear %v", ppn)
	}
	return &FrameTracker{ppn: ppn, owner: owner}
}

// PPN returns the tracked physical page number.
func (t *FrameTracker) PPN() mm.PhysPageNum {
	return t.ppn
}

// Free returns the frame to the pool. Only the first call has an effect.
func (t *FrameTracker) Free() {
	if t.freed {
		return
	}
	t.freed = true
	t.owner.dealloc(t.ppn)
}

// SelfTest exercises the pool by allocating and freeing a handful of frames,
// checking that freed frames are handed out again before fresh ones.
func (f *Frames) SelfTest() *kernel.Error {
	log := kfmt.Module("frame_alloc")

	first, err := f.allocN(5)
	if err != nil {
		return err
	}
	for i := len(first) - 1; i >= 0; i-- {
		log.Debugf("self test: releasing %v", first[i].PPN())
		first[i].Free()
	}

	second, err := f.allocN(len(first))
	if err != nil {
		return err
	}
	defer freeAll(second)

	for i := range second {
		if second[i].PPN() != first[i].PPN() {
			log.Errorf("self test: expected %v to be reused; got %v", first[i].PPN(), second[i].PPN())
			return errSelfTest
		}
	}

	log.Info("frame allocator self test passed")
	return nil
}

// allocN allocates n frames or none at all.
func (f *Frames) allocN(n int) ([]*FrameTracker, *kernel.Error) {
	frames := make([]*FrameTracker, 0, n)
	for len(frames) < n {
		frame, err := f.Alloc()
		if err != nil {
			freeAll(frames)
			return nil, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

func freeAll(frames []*FrameTracker) {
	for _, frame := range frames {
		frame.Free()
	}
}
