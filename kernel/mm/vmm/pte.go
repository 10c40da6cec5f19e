// Package vmm contains the SV39 page table entry encoding and the page
// table built on top of it.
package vmm

import (
	"fmt"
	"strings"
	"sv39os/kernel/mm"
)

// PTEFlags is the set of permission and status bits stored in the low byte of
// a page table entry.
//
//	bit 0  V  valid
//	bit 1  R  readable
//	bit 2  W  writable
//	bit 3  X  executable
//	bit 4  U  accessible from user mode
//	bit 5  G  global mapping
//	bit 6  A  accessed
//	bit 7  D  dirty
type PTEFlags uint8

// The page table entry flags.
const (
	FlagV PTEFlags = 1 << iota
	FlagR
	FlagW
	FlagX
	FlagU
	FlagG
	FlagA
	FlagD
)

const (
	flagBits = 8

	// ppnShift is the bit position of the physical page number.
	ppnShift = 10

	ppnMask = uint64(1)<<mm.PPNWidth - 1

	flagNames = "VRWXUGAD"
)

// PTEFlagsFromBits returns the flags encoded in the low byte of raw. Any
// other bits are ignored.
func PTEFlagsFromBits(raw uint64) PTEFlags {
	return PTEFlags(raw & (1<<flagBits - 1))
}

// Bits returns the flags as they are laid out in a page table entry.
func (f PTEFlags) Bits() uint64 { return uint64(f) }

// Contains returns true if all of the flags in other are set.
func (f PTEFlags) Contains(other PTEFlags) bool { return f&other == other }

// String renders the flags as a fixed-width string such as "VRW-U---".
func (f PTEFlags) String() string {
	var buf [flagBits]byte
	for i := range buf {
		buf[i] = '-'
		if f&(1<<i) != 0 {
			buf[i] = flagNames[i]
		}
	}
	return string(buf[:])
}

// ParsePTEFlags parses flag letters such as "VRWU" or the output of String.
// Letters may appear in any order; '-' is ignored.
func ParsePTEFlags(s string) (PTEFlags, error) {
	var f PTEFlags
	for _, c := range strings.ToUpper(s) {
		if c == '-' {
			continue
		}
		bit := strings.IndexRune(flagNames, c)
		if bit == -1 {
			return 0, fmt.Errorf("unknown page table entry flag %q", c)
		}
		f |= 1 << bit
	}
	return f, nil
}

// PageTableEntry is a 64-bit SV39 page table entry: flags in bits 0-7 and a
// physical page number in bits 10-53. All other bits are reserved and
// always zero in entries built by NewPTE.
type PageTableEntry uint64

// NewPTE returns an entry mapping ppn with the supplied flags.
func NewPTE(ppn mm.PhysPageNum, flags PTEFlags) PageTableEntry {
	return PageTableEntry((uint64(ppn)&ppnMask)<<ppnShift | flags.Bits())
}

// EmptyPTE returns an entry that maps nothing.
func EmptyPTE() PageTableEntry { return 0 }

// PPN returns the physical page number stored in the entry.
func (pte PageTableEntry) PPN() mm.PhysPageNum {
	return mm.PhysPageNum((uint64(pte) >> ppnShift) & ppnMask)
}

// Flags returns the flags stored in the entry.
func (pte PageTableEntry) Flags() PTEFlags { return PTEFlagsFromBits(uint64(pte)) }

// Valid returns true if the entry maps something.
func (pte PageTableEntry) Valid() bool { return pte.Flags().Contains(FlagV) }

// Readable returns true if the R flag is set.
func (pte PageTableEntry) Readable() bool { return pte.Flags().Contains(FlagR) }

// Writable returns true if the W flag is set.
func (pte PageTableEntry) Writable() bool { return pte.Flags().Contains(FlagW) }

// Executable returns true if the X flag is set.
func (pte PageTableEntry) Executable() bool { return pte.Flags().Contains(FlagX) }

// Leaf returns true for valid entries that map a page rather than point to
// the next level table.
func (pte PageTableEntry) Leaf() bool {
	return pte.Valid() && pte.Flags()&(FlagR|FlagW|FlagX) != 0
}

// String implements fmt.Stringer.
func (pte PageTableEntry) String() string {
	return fmt.Sprintf("PTE{%v %v}", pte.PPN(), pte.Flags())
}
