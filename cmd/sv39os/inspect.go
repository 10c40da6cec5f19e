package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"sv39os/kernel/mm"
	"sv39os/kernel/mm/vmm"

	"github.com/google/subcommands"
)

// PTE implements subcommands.Command for the "pte" command.
type PTE struct {
	decode bool
	flags  string
}

// Name implements subcommands.Command.Name.
func (*PTE) Name() string {
	return "pte"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*PTE) Synopsis() string {
	return "encode or decode an SV39 page table entry."
}

// Usage implements subcommands.Command.Usage.
func (*PTE) Usage() string {
	return `pte [-flags VRWXUGAD] <ppn> - encode an entry mapping ppn.
pte -decode <entry> - decode an entry.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (p *PTE) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&p.decode, "decode", false, "decode the argument instead of encoding it.")
	f.StringVar(&p.flags, "flags", "VRW", "flags of the encoded entry.")
}

// Execute implements subcommands.Command.Execute.
func (p *PTE) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	if err := p.run(os.Stdout, f.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return subcommands.ExitUsageError
	}
	return subcommands.ExitSuccess
}

func (p *PTE) run(w io.Writer, arg string) error {
	v, err := strconv.ParseUint(arg, 0, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", arg, err)
	}

	pte := vmm.PageTableEntry(v)
	if !p.decode {
		flags, err := vmm.ParsePTEFlags(p.flags)
		if err != nil {
			return err
		}
		pte = vmm.NewPTE(mm.NewPhysPageNum(v), flags)
	}

	fmt.Fprintf(w, "entry: %#016x\n", uint64(pte))
	fmt.Fprintf(w, "ppn:   %v\n", pte.PPN())
	fmt.Fprintf(w, "pa:    %v\n", pte.PPN().Addr())
	fmt.Fprintf(w, "flags: %v\n", pte.Flags())
	return nil
}

// VPN implements subcommands.Command for the "vpn" command.
type VPN struct{}

// Name implements subcommands.Command.Name.
func (*VPN) Name() string {
	return "vpn"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*VPN) Synopsis() string {
	return "split a virtual address into its SV39 page number and table indexes."
}

// Usage implements subcommands.Command.Usage.
func (*VPN) Usage() string {
	return `vpn <va> - print the page number, offset and page table indexes of va.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*VPN) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (v *VPN) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	if err := v.run(os.Stdout, f.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return subcommands.ExitUsageError
	}
	return subcommands.ExitSuccess
}

func (*VPN) run(w io.Writer, arg string) error {
	raw, err := strconv.ParseUint(arg, 0, 64)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", arg, err)
	}

	va := mm.NewVirtAddr(raw)
	idx := va.Floor().Indexes()

	fmt.Fprintf(w, "va:      %v\n", va)
	fmt.Fprintf(w, "offset:  %#x\n", va.PageOffset())
	fmt.Fprintf(w, "floor:   %v\n", va.Floor())
	fmt.Fprintf(w, "ceil:    %v\n", va.Ceil())
	fmt.Fprintf(w, "indexes: %d %d %d\n", idx[0], idx[1], idx[2])
	return nil
}
