// Package region owns the kernel's view of physical memory.
//
// Every access to the bytes behind a physical address goes through a Region,
// which bounds-checks it against the physical range the region covers. No
// other package turns physical addresses into memory references.
package region

import (
	"encoding/binary"
	"sv39os/kernel"
	"sv39os/kernel/kfmt"
	"sv39os/kernel/mm"

	"golang.org/x/sys/unix"
)

var (
	// ErrOutOfBounds is returned for accesses that fall outside the region.
	ErrOutOfBounds = &kernel.Error{Module: "region", Message: "physical access out of bounds"}

	// ErrMisaligned is returned for word accesses that are not naturally aligned.
	ErrMisaligned = &kernel.Error{Module: "region", Message: "misaligned word access"}

	// ErrMapFailed is returned when the backing memory cannot be reserved.
	ErrMapFailed = &kernel.Error{Module: "region", Message: "unable to map physical memory"}

	errInvalidLayout = &kernel.Error{Module: "region", Message: "region base and size must be page-aligned"}

	// the following functions are mocked by tests.
	mmapFn   = unix.Mmap
	munmapFn = unix.Munmap
)

// Region is a contiguous range of physical memory [Base, End).
type Region struct {
	base   mm.PhysAddr
	mem    []byte
	mapped bool
}

// Map reserves size bytes of zeroed memory that back the physical range
// starting at base.
func Map(base mm.PhysAddr, size mm.Size) (*Region, *kernel.Error) {
	if !base.Aligned() || uint64(size)%uint64(mm.PageSize) != 0 || size == 0 {
		return nil, errInvalidLayout
	}

	mem, err := mmapFn(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		kfmt.Module("region").WithError(err).Errorf("mmap of %s at %v failed", size, base)
		return nil, ErrMapFailed
	}

	kfmt.Module("region").Debugf("mapped %s of physical memory at [%v, %v)", size, base, base+mm.PhysAddr(size))
	return &Region{base: base, mem: mem, mapped: true}, nil
}

// FromBytes returns a region backed by buf. It is intended for tests and
// tools that need a small amount of physical memory.
func FromBytes(base mm.PhysAddr, buf []byte) (*Region, *kernel.Error) {
	if !base.Aligned() || uint64(len(buf))%uint64(mm.PageSize) != 0 || len(buf) == 0 {
		return nil, errInvalidLayout
	}
	return &Region{base: base, mem: buf}, nil
}

// Close releases the memory backing the region. The region must not be used
// afterwards.
func (r *Region) Close() error {
	mem := r.mem
	r.mem = nil
	if !r.mapped || mem == nil {
		return nil
	}
	return munmapFn(mem)
}

// Base returns the first physical address in the region.
func (r *Region) Base() mm.PhysAddr { return r.base }

// End returns the first physical address after the region.
func (r *Region) End() mm.PhysAddr { return r.base + mm.PhysAddr(len(r.mem)) }

// Size returns the size of the region.
func (r *Region) Size() mm.Size { return mm.Size(len(r.mem)) }

// Pages returns the range of physical pages covered by the region.
func (r *Region) Pages() mm.PPNRange {
	return mm.PPNRange{Start: r.base.Floor(), End: r.End().Floor()}
}

// Contains returns true if [pa, pa+n) lies inside the region.
func (r *Region) Contains(pa mm.PhysAddr, n uint64) bool {
	if pa < r.base {
		return false
	}
	off := uint64(pa - r.base)
	return off <= uint64(len(r.mem)) && n <= uint64(len(r.mem))-off
}

// span returns the bytes backing [pa, pa+n).
func (r *Region) span(pa mm.PhysAddr, n uint64) ([]byte, *kernel.Error) {
	if !r.Contains(pa, n) {
		return nil, ErrOutOfBounds
	}
	off := uint64(pa - r.base)
	return r.mem[off : off+n : off+n], nil
}

// ReadAt copies len(p) bytes starting at pa into p.
func (r *Region) ReadAt(p []byte, pa mm.PhysAddr) *kernel.Error {
	src, err := r.span(pa, uint64(len(p)))
	if err != nil {
		return err
	}
	copy(p, src)
	return nil
}

// WriteAt copies p into memory starting at pa.
func (r *Region) WriteAt(p []byte, pa mm.PhysAddr) *kernel.Error {
	dst, err := r.span(pa, uint64(len(p)))
	if err != nil {
		return err
	}
	copy(dst, p)
	return nil
}

// Zero clears n bytes starting at pa.
func (r *Region) Zero(pa mm.PhysAddr, n uint64) *kernel.Error {
	dst, err := r.span(pa, n)
	if err != nil {
		return err
	}
	clear(dst)
	return nil
}

// ZeroPage clears the contents of a physical page.
func (r *Region) ZeroPage(ppn mm.PhysPageNum) *kernel.Error {
	return r.Zero(ppn.Addr(), uint64(mm.PageSize))
}

// ReadPage copies the contents of a physical page into p, which must be at
// least one page long.
func (r *Region) ReadPage(ppn mm.PhysPageNum, p []byte) *kernel.Error {
	if uint64(len(p)) < uint64(mm.PageSize) {
		return ErrOutOfBounds
	}
	return r.ReadAt(p[:mm.PageSize], ppn.Addr())
}

// Uint64 reads the little-endian 64-bit word stored at pa.
func (r *Region) Uint64(pa mm.PhysAddr) (uint64, *kernel.Error) {
	if pa%8 != 0 {
		return 0, ErrMisaligned
	}
	b, err := r.span(pa, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// PutUint64 stores v as a little-endian 64-bit word at pa.
func (r *Region) PutUint64(pa mm.PhysAddr, v uint64) *kernel.Error {
	if pa%8 != 0 {
		return ErrMisaligned
	}
	b, err := r.span(pa, 8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b, v)
	return nil
}
