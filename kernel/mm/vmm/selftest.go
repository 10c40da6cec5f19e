package vmm

import (
	"sv39os/kernel"
	"sv39os/kernel/kfmt"
	"sv39os/kernel/mm"
	"sv39os/kernel/mm/pmm"
)

var errSelfTest = &kernel.Error{Module: "vmm", Message: "page table self test failed"}

// selfTestBase is the first virtual page mapped by SelfTest.
const selfTestBase = mm.VirtAddr(0x10_0000_0000)

// SelfTest builds a scratch page table that maps a few frames, checks that
// every mapping translates back to its frame and tears everything down
// again.
func SelfTest(frames *pmm.Frames) *kernel.Error {
	const pages = 4
	log := kfmt.Module("vmm")

	pt, err := NewPageTable(frames)
	if err != nil {
		return err
	}
	defer pt.Free()

	var data []*pmm.FrameTracker
	defer func() {
		for _, frame := range data {
			frame.Free()
		}
	}()

	vpns := mm.NewVPNRange(selfTestBase, selfTestBase+pages*mm.VirtAddr(mm.PageSize))
	for vpn := range vpns.All() {
		frame, err := frames.Alloc()
		if err != nil {
			return err
		}
		data = append(data, frame)

		if err := pt.Map(vpn, frame.PPN(), FlagR|FlagW); err != nil {
			return err
		}
	}

	i := 0
	for vpn := range vpns.All() {
		va := vpn.Addr() + 0x123
		pa, ok := pt.TranslateAddr(va)
		if exp := data[i].PPN().Addr() + 0x123; !ok || pa != exp {
			log.Errorf("self test: expected %v to translate to %v; got %v (mapped: %t)", va, exp, pa, ok)
			return errSelfTest
		}
		i++
	}

	pt.Unmap(vpns.Start)
	if _, ok := pt.Translate(vpns.Start); ok {
		log.Errorf("self test: %v still mapped after unmap", vpns.Start)
		return errSelfTest
	}

	log.Infof("page table self test passed (satp=%#x)", pt.Token())
	return nil
}
