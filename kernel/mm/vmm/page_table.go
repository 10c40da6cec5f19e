package vmm

import (
	"sv39os/kernel"
	"sv39os/kernel/kfmt"
	"sv39os/kernel/mm"
	"sv39os/kernel/mm/pmm"
)

const (
	pteSize = 8

	// satpModeSV39 selects SV39 translation in the satp register.
	satpModeSV39 = uint64(8) << 60
)

var (
	// ErrAlreadyMapped is raised when mapping a page that is already mapped.
	ErrAlreadyMapped = &kernel.Error{Module: "vmm", Message: "virtual page is already mapped"}

	// ErrNotMapped is raised when unmapping a page that is not mapped.
	ErrNotMapped = &kernel.Error{Module: "vmm", Message: "virtual page is not mapped"}

	errLeafNotAllowedAsTable = &kernel.Error{Module: "vmm", Message: "huge page mapping encountered during walk"}
)

// PageTable is a three-level SV39 page table. It owns the frames that hold
// its root and intermediate tables; data frames mapped into it remain owned
// by the caller.
type PageTable struct {
	frames *pmm.Frames
	root   mm.PhysPageNum
	tables []*pmm.FrameTracker
}

// NewPageTable allocates an empty page table.
func NewPageTable(frames *pmm.Frames) (*PageTable, *kernel.Error) {
	root, err := frames.Alloc()
	if err != nil {
		return nil, err
	}

	return &PageTable{
		frames: frames,
		root:   root.PPN(),
		tables: []*pmm.FrameTracker{root},
	}, nil
}

// Root returns the physical page holding the root table.
func (pt *PageTable) Root() mm.PhysPageNum { return pt.root }

// Token returns the satp register value that activates this page table.
func (pt *PageTable) Token() uint64 {
	return satpModeSV39 | uint64(pt.root)
}

// Map installs a mapping from vpn to ppn. Intermediate tables are allocated
// as needed; if that fails, pmm.ErrOutOfMemory is returned and the table is
// left without the new mapping. Mapping an already mapped page is a kernel
// bug and causes a panic.
func (pt *PageTable) Map(vpn mm.VirtPageNum, ppn mm.PhysPageNum, flags PTEFlags) *kernel.Error {
	entryAddr, _, err := pt.walk(vpn, true)
	if err != nil {
		return err
	}

	if pte := pt.load(entryAddr); pte.Valid() {
		kfmt.Fatalf(ErrAlreadyMapped, "%v is mapped to %v", vpn, pte.PPN())
	}

	pt.store(entryAddr, NewPTE(ppn, flags|FlagV))
	return nil
}

// Unmap removes the mapping for vpn. Unmapping a page that is not mapped is a
// kernel bug and causes a panic.
func (pt *PageTable) Unmap(vpn mm.VirtPageNum) {
	entryAddr, ok, _ := pt.walk(vpn, false)
	if !ok || !pt.load(entryAddr).Valid() {
		kfmt.Fatalf(ErrNotMapped, "%v is not mapped", vpn)
	}

	pt.store(entryAddr, EmptyPTE())
}

// Translate returns the leaf entry for vpn. The second result is false if
// the page is not mapped.
func (pt *PageTable) Translate(vpn mm.VirtPageNum) (PageTableEntry, bool) {
	entryAddr, ok, _ := pt.walk(vpn, false)
	if !ok {
		return EmptyPTE(), false
	}

	pte := pt.load(entryAddr)
	return pte, pte.Valid()
}

// TranslateAddr translates a virtual address into a physical address.
func (pt *PageTable) TranslateAddr(va mm.VirtAddr) (mm.PhysAddr, bool) {
	pte, ok := pt.Translate(va.Floor())
	if !ok {
		return 0, false
	}
	return pte.PPN().Addr() + mm.PhysAddr(va.PageOffset()), true
}

// Free releases the frames used by the table itself.
func (pt *PageTable) Free() {
	for _, frame := range pt.tables {
		frame.Free()
	}
	pt.tables = nil
}

// walk returns the physical address of the last-level entry for vpn. If
// create is set, missing intermediate tables are allocated; otherwise the
// walk stops at the first missing table and reports false.
func (pt *PageTable) walk(vpn mm.VirtPageNum, create bool) (mm.PhysAddr, bool, *kernel.Error) {
	var (
		idx   = vpn.Indexes()
		table = pt.root
	)

	for level := 0; level < mm.PageLevels; level++ {
		entryAddr := table.Addr() + mm.PhysAddr(idx[level]*pteSize)
		if level == mm.PageLevels-1 {
			return entryAddr, true, nil
		}

		pte := pt.load(entryAddr)
		switch {
		case pte.Leaf():
			kfmt.Fatalf(errLeafNotAllowedAsTable, "%v at level %d while walking %v", pte, level, vpn)
		case !pte.Valid():
			if !create {
				return 0, false, nil
			}

			frame, err := pt.frames.Alloc()
			if err != nil {
				return 0, false, err
			}
			pt.tables = append(pt.tables, frame)
			pte = NewPTE(frame.PPN(), FlagV)
			pt.store(entryAddr, pte)
		}

		table = pte.PPN()
	}

	return 0, false, nil
}

func (pt *PageTable) load(entryAddr mm.PhysAddr) PageTableEntry {
	raw, err := pt.frames.Memory().Uint64(entryAddr)
	if err != nil {
		kfmt.Fatalf(err, "reading page table entry at %v", entryAddr)
	}
	return PageTableEntry(raw)
}

func (pt *PageTable) store(entryAddr mm.PhysAddr, pte PageTableEntry) {
	if err := pt.frames.Memory().PutUint64(entryAddr, uint64(pte)); err != nil {
		kfmt.Fatalf(err, "writing page table entry at %v", entryAddr)
	}
}
