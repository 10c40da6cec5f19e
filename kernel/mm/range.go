package mm

import "iter"

// pageNum is satisfied by the page number types.
type pageNum interface {
	~uint64
}

// PageRange is a half-open range [Start, End) of page numbers.
type PageRange[T pageNum] struct {
	Start, End T
}

// VPNRange is a range of virtual pages.
type VPNRange = PageRange[VirtPageNum]

// PPNRange is a range of physical pages.
type PPNRange = PageRange[PhysPageNum]

// NewVPNRange returns the range of virtual pages that covers [start, end).
func NewVPNRange(start, end VirtAddr) VPNRange {
	return VPNRange{Start: start.Floor(), End: end.Ceil()}
}

// Len returns the number of pages in the range.
func (r PageRange[T]) Len() uint64 {
	if r.End <= r.Start {
		return 0
	}
	return uint64(r.End - r.Start)
}

// Contains returns true if p lies within the range.
func (r PageRange[T]) Contains(p T) bool {
	return p >= r.Start && p < r.End
}

// All returns an iterator over the pages in the range in ascending order.
// The iterator can be consumed any number of times.
func (r PageRange[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for p := r.Start; p < r.End; p++ {
			if !yield(p) {
				return
			}
		}
	}
}
