// Package kmain boots the kernel on a simulated machine.
package kmain

import (
	"context"
	"io"
	"sv39os/kernel"
	"sv39os/kernel/config"
	"sv39os/kernel/cpu"
	"sv39os/kernel/kfmt"
	"sv39os/kernel/loader"
	"sv39os/kernel/mm"
	"sv39os/kernel/mm/pmm"
	"sv39os/kernel/mm/region"
	"sv39os/kernel/mm/vmm"
	"sv39os/kernel/sbi"
	"sv39os/kernel/task"
	"sv39os/kernel/trap"
)

var (
	// ErrNoApps is returned when the kernel is booted without applications.
	ErrNoApps = &kernel.Error{Module: "kmain", Message: "no applications to run"}

	// ErrKernelFault is returned by Wait when a kernel panic halted the
	// machine.
	ErrKernelFault = &kernel.Error{Module: "kmain", Message: "kernel panic"}

	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

	// mapMemoryFn is mocked by tests.
	mapMemoryFn = region.Map
)

// Kernel is a booted kernel instance.
type Kernel struct {
	cfg      config.Config
	mem      *region.Region
	frames   *pmm.Frames
	hart     *cpu.Hart
	firmware *sbi.Firmware
	loader   *loader.Loader
	tasks    *task.Manager
}

// New boots a kernel with the supplied configuration and applications up to
// the point where the first task is ready to run. Application console
// output is written to console.
func New(cfg config.Config, apps []trap.App, console io.Writer) (*Kernel, *kernel.Error) {
	log := kfmt.Module("kmain")

	if len(apps) == 0 {
		return nil, ErrNoApps
	}

	mem, err := mapMemoryFn(mm.NewPhysAddr(cfg.MemoryBase), cfg.MemorySize())
	if err != nil {
		return nil, err
	}

	k := &Kernel{cfg: cfg, mem: mem}
	if err = k.init(apps, console); err != nil {
		mem.Close()
		return nil, err
	}

	log.Infof("kernel ready: %d apps, satp mode sv39, memory [%#x, %#x)", len(apps), cfg.MemoryBase, cfg.MemoryEnd)
	return k, nil
}

func (k *Kernel) init(apps []trap.App, console io.Writer) *kernel.Error {
	var err *kernel.Error

	if err = k.clearBSS(); err != nil {
		return err
	}

	if k.frames, err = pmm.Init(k.mem, mm.NewPhysAddr(k.cfg.KernelEnd), mm.NewPhysAddr(k.cfg.MemoryEnd)); err != nil {
		return err
	} else if err = k.frames.SelfTest(); err != nil {
		return err
	} else if err = vmm.SelfTest(k.frames); err != nil {
		return err
	}

	images := make([][]byte, len(apps))
	for i, app := range apps {
		if images[i], err = app.Image(); err != nil {
			return err
		}
	}

	table, err := loader.ParseTable(loader.Link(images))
	if err != nil {
		return err
	}
	if k.loader, err = loader.New(k.mem, k.cfg, table); err != nil {
		return err
	} else if err = k.loader.LoadApps(); err != nil {
		return err
	}

	k.hart = cpu.NewHart()
	k.firmware = sbi.New(k.hart)
	k.tasks = task.NewManager(k.loader, k.hart, k.firmware)
	trap.NewRestorer(k.hart, k.mem, k.tasks, console, apps).Bind()
	return nil
}

// clearBSS zeroes the kernel's uninitialized data.
func (k *Kernel) clearBSS() *kernel.Error {
	start := mm.NewPhysAddr(k.cfg.BSSStart)
	return k.mem.Zero(start, k.cfg.BSSEnd-k.cfg.BSSStart)
}

// Run starts the first task. The kernel runs in the background until every
// application has exited or a kernel panic halts the machine.
func (k *Kernel) Run() {
	go k.hart.Run(func() {
		k.tasks.RunFirstTask()
		kfmt.Panic(errKmainReturned)
	})
}

// Wait blocks until the machine halts or ctx is done and returns the exit
// status reported to the firmware. If a kernel panic halted the machine,
// ErrKernelFault is returned.
func (k *Kernel) Wait(ctx context.Context) (int, error) {
	select {
	case <-k.hart.Halted():
	case <-ctx.Done():
		return sbi.ExitFailure, ctx.Err()
	}

	if fault := k.hart.Fault(); fault != nil {
		kfmt.Module("kmain").Errorf("machine halted by a panic: %v", fault)
		return sbi.ExitFailure, ErrKernelFault
	}

	status, _ := k.firmware.ExitStatus()
	return status, nil
}

// Tasks returns the task manager.
func (k *Kernel) Tasks() *task.Manager { return k.tasks }

// Frames returns the physical frame pool.
func (k *Kernel) Frames() *pmm.Frames { return k.frames }

// Close releases the machine's memory. It must only be called once the
// machine has halted.
func (k *Kernel) Close() error {
	return k.mem.Close()
}
