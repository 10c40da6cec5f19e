package mm

import (
	"fmt"
	"sv39os/kernel"
	"sv39os/kernel/kfmt"
)

var (
	// ErrUnalignedAddress is raised when a non page-aligned address is
	// converted into a page number.
	ErrUnalignedAddress = &kernel.Error{Module: "mm", Message: "address is not page-aligned"}
)

// PhysAddr is a physical address. Only the low PAWidth bits are significant.
type PhysAddr uint64

// VirtAddr is a virtual address. Only the low VAWidth bits are significant.
type VirtAddr uint64

// PhysPageNum is a physical page number (a physical address without its
// page offset bits).
type PhysPageNum uint64

// VirtPageNum is a virtual page number (a virtual address without its page
// offset bits).
type VirtPageNum uint64

// NewPhysAddr returns the physical address for raw, discarding any bits
// beyond the physical address width.
func NewPhysAddr(raw uint64) PhysAddr {
	return PhysAddr(raw & paMask)
}

// NewVirtAddr returns the virtual address for raw, discarding any bits beyond
// the virtual address width.
func NewVirtAddr(raw uint64) VirtAddr {
	return VirtAddr(raw & vaMask)
}

// NewPhysPageNum returns the physical page number for raw, discarding any
// bits beyond the physical page number width.
func NewPhysPageNum(raw uint64) PhysPageNum {
	return PhysPageNum(raw & ppnMask)
}

// NewVirtPageNum returns the virtual page number for raw, discarding any bits
// beyond the virtual page number width.
func NewVirtPageNum(raw uint64) VirtPageNum {
	return VirtPageNum(raw & vpnMask)
}

// PageOffset returns the offset of the address within its page.
func (a PhysAddr) PageOffset() uint64 { return uint64(a) & pageOffsetMask }

// Aligned returns true if the address lies on a page boundary.
func (a PhysAddr) Aligned() bool { return a.PageOffset() == 0 }

// Floor returns the number of the page that contains the address.
func (a PhysAddr) Floor() PhysPageNum { return PhysPageNum(uint64(a) >> PageShift) }

// Ceil returns the number of the first page that starts at or after the
// address.
func (a PhysAddr) Ceil() PhysPageNum {
	return PhysPageNum((uint64(a) + pageOffsetMask) >> PageShift)
}

// PageNumber converts a page-aligned address into its page number. Passing an
// address that is not page-aligned is a kernel bug and causes a panic.
func (a PhysAddr) PageNumber() PhysPageNum {
	if !a.Aligned() {
		kfmt.Fatalf(ErrUnalignedAddress, "physical address %#x has page offset %#x", uint64(a), a.PageOffset())
	}
	return a.Floor()
}

// String implements fmt.Stringer.
func (a PhysAddr) String() string { return fmt.Sprintf("PA:%#x", uint64(a)) }

// PageOffset returns the offset of the address within its page.
func (a VirtAddr) PageOffset() uint64 { return uint64(a) & pageOffsetMask }

// Aligned returns true if the address lies on a page boundary.
func (a VirtAddr) Aligned() bool { return a.PageOffset() == 0 }

// Floor returns the number of the page that contains the address.
func (a VirtAddr) Floor() VirtPageNum { return VirtPageNum(uint64(a) >> PageShift) }

// Ceil returns the number of the first page that starts at or after the
// address. The result wraps to page 0 for addresses in the last page of the
// address space.
func (a VirtAddr) Ceil() VirtPageNum {
	return VirtPageNum(((uint64(a) + pageOffsetMask) >> PageShift) & vpnMask)
}

// PageNumber converts a page-aligned address into its page number. Passing an
// address that is not page-aligned is a kernel bug and causes a panic.
func (a VirtAddr) PageNumber() VirtPageNum {
	if !a.Aligned() {
		kfmt.Fatalf(ErrUnalignedAddress, "virtual address %#x has page offset %#x", uint64(a), a.PageOffset())
	}
	return a.Floor()
}

// String implements fmt.Stringer.
func (a VirtAddr) String() string { return fmt.Sprintf("VA:%#x", uint64(a)) }

// Addr returns the address of the first byte in the page.
func (p PhysPageNum) Addr() PhysAddr { return PhysAddr(uint64(p) << PageShift) }

// Add returns the page number n pages after p.
func (p PhysPageNum) Add(n uint64) PhysPageNum { return NewPhysPageNum(uint64(p) + n) }

// String implements fmt.Stringer.
func (p PhysPageNum) String() string { return fmt.Sprintf("PPN:%#x", uint64(p)) }

// Addr returns the address of the first byte in the page.
func (p VirtPageNum) Addr() VirtAddr { return VirtAddr(uint64(p) << PageShift) }

// Add returns the page number n pages after p.
func (p VirtPageNum) Add(n uint64) VirtPageNum { return NewVirtPageNum(uint64(p) + n) }

// String implements fmt.Stringer.
func (p VirtPageNum) String() string { return fmt.Sprintf("VPN:%#x", uint64(p)) }

// Indexes splits the page number into the per-level page table indexes,
// starting with the index into the root table.
func (p VirtPageNum) Indexes() [PageLevels]uint64 {
	var (
		idx [PageLevels]uint64
		vpn = uint64(p)
	)

	for level := PageLevels - 1; level >= 0; level-- {
		idx[level] = vpn & levelMask
		vpn >>= LevelBits
	}
	return idx
}
