package main

import (
	"context"
	"flag"
	"sv39os/kernel"
	"sv39os/kernel/config"
	"sv39os/kernel/kfmt"
	"sv39os/kernel/mm"
	"sv39os/kernel/mm/pmm"
	"sv39os/kernel/mm/region"
	"sv39os/kernel/mm/vmm"

	"github.com/google/subcommands"
)

// SelfTest implements subcommands.Command for the "selftest" command.
type SelfTest struct{}

// Name implements subcommands.Command.Name.
func (*SelfTest) Name() string {
	return "selftest"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*SelfTest) Synopsis() string {
	return "run the memory management self tests without booting applications."
}

// Usage implements subcommands.Command.Usage.
func (*SelfTest) Usage() string {
	return `selftest - run the frame allocator and page table self tests.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*SelfTest) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*SelfTest) Execute(_ context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	cfg := args[0].(*config.Config)

	if err := runSelfTests(*cfg); err != nil {
		kfmt.Module("selftest").Errorf("failed: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func runSelfTests(cfg config.Config) *kernel.Error {
	mem, err := region.Map(mm.NewPhysAddr(cfg.MemoryBase), cfg.MemorySize())
	if err != nil {
		return err
	}
	defer mem.Close()

	frames, err := pmm.Init(mem, mm.NewPhysAddr(cfg.KernelEnd), mm.NewPhysAddr(cfg.MemoryEnd))
	if err != nil {
		return err
	}
	if err = frames.SelfTest(); err != nil {
		return err
	}
	if err = vmm.SelfTest(frames); err != nil {
		return err
	}

	if stats, ok := frames.Stats(); ok {
		kfmt.Module("selftest").Infof("frames: %d free of %d", stats.Free(), uint64(stats.End-stats.Start))
	}
	return nil
}
