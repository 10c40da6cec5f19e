// Package loader places the applications linked into the kernel at their
// load addresses and prepares the stacks they start with.
package loader

import (
	"sv39os/kernel"
	"sv39os/kernel/config"
	"sv39os/kernel/kfmt"
	"sv39os/kernel/mm"
	"sv39os/kernel/mm/region"
	"sv39os/kernel/trap"
)

var (
	// ErrTooManyApps is returned when a table holds more applications
	// than the kernel has slots for.
	ErrTooManyApps = &kernel.Error{Module: "loader", Message: "too many applications"}

	// ErrImageTooLarge is returned when an image exceeds its slot.
	ErrImageTooLarge = &kernel.Error{Module: "loader", Message: "application image exceeds slot size"}

	errBadAppID = &kernel.Error{Module: "loader", Message: "application id out of range"}
	errNoStack  = &kernel.Error{Module: "loader", Message: "unable to push initial trap frame"}
)

// Loader loads the applications of a table into memory.
type Loader struct {
	mem   *region.Region
	cfg   config.Config
	table *Table
}

// New returns a loader for the applications in table.
func New(mem *region.Region, cfg config.Config, table *Table) (*Loader, *kernel.Error) {
	if table.NumApp() > cfg.MaxApps {
		kfmt.Module("loader").Errorf("%d applications linked; %d slots available", table.NumApp(), cfg.MaxApps)
		return nil, ErrTooManyApps
	}

	for i := 0; i < table.NumApp(); i++ {
		if uint64(len(table.Image(i))) > cfg.AppSizeLimit {
			kfmt.Module("loader").Errorf("app %d is %d bytes; slot size is %d", i, len(table.Image(i)), cfg.AppSizeLimit)
			return nil, ErrImageTooLarge
		}
	}

	return &Loader{mem: mem, cfg: cfg, table: table}, nil
}

// NumApp returns the number of applications.
func (l *Loader) NumApp() int { return l.table.NumApp() }

// LoadApps copies every image into its slot. The rest of each slot is
// cleared.
func (l *Loader) LoadApps() *kernel.Error {
	log := kfmt.Module("loader")
	log.Infof("num_app = %d", l.NumApp())

	for i := 0; i < l.NumApp(); i++ {
		base := mm.NewPhysAddr(l.AppBase(i))
		img := l.table.Image(i)

		if err := l.mem.Zero(base, l.cfg.AppSizeLimit); err != nil {
			return err
		}
		if err := l.mem.WriteAt(img, base); err != nil {
			return err
		}
		log.Infof("app_%d [%v, %v)", i, base, base+mm.PhysAddr(len(img)))
	}
	return nil
}

// AppBase returns the load address of application i.
func (l *Loader) AppBase(i int) uint64 {
	l.checkID(i)
	return l.cfg.AppBase + uint64(i)*l.cfg.AppSizeLimit
}

// KernelStackTop returns the initial stack pointer of the kernel stack of
// application i.
func (l *Loader) KernelStackTop(i int) uint64 {
	l.checkID(i)
	return l.cfg.KernelStackBase + uint64(i+1)*l.cfg.KernelStackSize
}

// UserStackTop returns the initial stack pointer of the user stack of
// application i.
func (l *Loader) UserStackTop(i int) uint64 {
	l.checkID(i)
	return l.cfg.UserStackBase + uint64(i+1)*l.cfg.UserStackSize
}

// InitTaskContext pushes a trap frame that enters application i on its
// kernel stack and returns the resulting kernel stack pointer.
func (l *Loader) InitTaskContext(i int) uint64 {
	sp := l.KernelStackTop(i) - trap.ContextSize
	frame := trap.AppInitContext(l.AppBase(i), l.UserStackTop(i))

	if err := l.mem.WriteAt(frame.Encode(), mm.NewPhysAddr(sp)); err != nil {
		kfmt.Fatalf(errNoStack, "app %d: kernel stack at %#x: %s", i, sp, err.Message)
	}
	return sp
}

func (l *Loader) checkID(i int) {
	if i < 0 || i >= l.cfg.MaxApps {
		kfmt.Fatalf(errBadAppID, "app %d", i)
	}
}
