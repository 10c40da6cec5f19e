package trap

import (
	"io"
	"sv39os/kernel"
	"sv39os/kernel/cpu"
	"sv39os/kernel/kfmt"
	"sv39os/kernel/mm"
	"sv39os/kernel/mm/region"
	"sv39os/kernel/task"
)

var (
	errBadFrame       = &kernel.Error{Module: "trap", Message: "unable to read trap frame"}
	errNotUserMode    = &kernel.Error{Module: "trap", Message: "trap frame does not return to user mode"}
	errUnknownProgram = &kernel.Error{Module: "trap", Message: "no program for loaded image"}
)

// Restorer is the trampoline that returns from the kernel into an
// application. It is entered with the stack pointer at a trap frame.
type Restorer struct {
	hart     *cpu.Hart
	mem      *region.Region
	sched    Scheduler
	console  io.Writer
	programs map[string]Program
}

// NewRestorer returns a trampoline that runs the programs of apps.
func NewRestorer(hart *cpu.Hart, mem *region.Region, sched Scheduler, console io.Writer, apps []App) *Restorer {
	programs := make(map[string]Program, len(apps))
	for _, app := range apps {
		programs[app.Name] = app.Main
	}

	return &Restorer{
		hart:     hart,
		mem:      mem,
		sched:    sched,
		console:  console,
		programs: programs,
	}
}

// Bind installs the trampoline at task.RestoreAddr.
func (r *Restorer) Bind() {
	r.hart.Bind(task.RestoreAddr, r.restore)
}

// restore pops the trap frame at the stack pointer, switches to the user
// stack and runs the program whose image is loaded at the frame's sepc.
func (r *Restorer) restore() {
	regs := r.hart.Regs()

	buf := make([]byte, ContextSize)
	if err := r.mem.ReadAt(buf, mm.NewPhysAddr(regs.SP)); err != nil {
		kfmt.Fatalf(errBadFrame, "sp=%#x: %s", regs.SP, err.Message)
	}
	ctx, err := DecodeContext(buf)
	if err != nil {
		kfmt.Panic(err)
	}
	if !ctx.UserMode() {
		kfmt.Fatalf(errNotUserMode, "sstatus=%#x", ctx.Sstatus)
	}

	// The header may be longer than a short image placed at the very end
	// of memory.
	entry := mm.NewPhysAddr(ctx.Sepc)
	n := uint64(len(imageMagic) + maxNameLen)
	if entry >= r.mem.Base() && entry < r.mem.End() && uint64(r.mem.End()-entry) < n {
		n = uint64(r.mem.End() - entry)
	}
	hdr := make([]byte, n)
	if err := r.mem.ReadAt(hdr, entry); err != nil {
		kfmt.Fatalf(errUnknownProgram, "sepc=%#x: %s", ctx.Sepc, err.Message)
	}
	name, err := imageName(hdr)
	if err != nil {
		kfmt.Fatalf(errUnknownProgram, "sepc=%#x: %s", ctx.Sepc, err.Message)
	}
	prog, ok := r.programs[name]
	if !ok {
		kfmt.Fatalf(errUnknownProgram, "sepc=%#x: %q", ctx.Sepc, name)
	}

	regs.SP = ctx.SP()
	id := r.sched.CurrentTask()
	kfmt.Module("trap").Debugf("entering app %d (%s) at %#x, sp=%#x", id, name, ctx.Sepc, ctx.SP())

	sys := NewSyscalls(id, r.sched, r.mem, r.console)
	sys.Exit(prog(sys))
}
