// Package mm contains the address types of the SV39 paged address space and
// the constants that describe its layout.
package mm

const (
	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert an address to a page number (shift right by
	// PageShift) and vice-versa.
	PageShift = 12

	// PageSize defines the system's page size in bytes.
	PageSize = Size(1 << PageShift)

	// PAWidth is the number of significant bits in a physical address.
	PAWidth = 56

	// VAWidth is the number of significant bits in a virtual address.
	VAWidth = 39

	// PPNWidth is the number of significant bits in a physical page number.
	PPNWidth = PAWidth - PageShift

	// VPNWidth is the number of significant bits in a virtual page number.
	VPNWidth = VAWidth - PageShift

	// PageLevels is the number of page table levels.
	PageLevels = 3

	// LevelBits is the number of virtual page number bits consumed by each
	// page table level.
	LevelBits = 9

	// EntriesPerTable is the number of entries in a single page table.
	EntriesPerTable = 1 << LevelBits

	pageOffsetMask = uint64(PageSize - 1)
	paMask         = uint64(1)<<PAWidth - 1
	vaMask         = uint64(1)<<VAWidth - 1
	ppnMask        = uint64(1)<<PPNWidth - 1
	vpnMask        = uint64(1)<<VPNWidth - 1
	levelMask      = uint64(EntriesPerTable - 1)
)
