package task

import (
	"sv39os/kernel"
	"sv39os/kernel/cpu"
	"sv39os/kernel/kfmt"
	"sv39os/kernel/sync"
)

var errBadContext = &kernel.Error{Module: "task", Message: "switch to a context that cannot be resumed"}

// Switch saves the hart state of the running task into from, loads to and
// continues execution wherever to was saved. For the task that called it,
// Switch returns like an ordinary call once some later Switch names from as
// its target.
//
// released proves that the caller no longer holds any guard; Switch never
// returns to a task that still holds one.
func Switch(released sync.Released, hart *cpu.Hart, from, to *Context) {
	released.Check()

	regs := hart.Regs()
	from.RA = switchReturnAddr
	from.SP = regs.SP
	from.S = regs.S
	from.thread = hart.Current()

	next := to.thread
	switch {
	case to.RA == switchReturnAddr && next != nil:
	case to.RA != switchReturnAddr && next == nil:
		next = hart.Spawn(to.RA)
	default:
		kfmt.Fatalf(errBadContext, "ra=%#x sp=%#x", to.RA, to.SP)
	}

	regs.RA = to.RA
	regs.SP = to.SP
	regs.S = to.S

	hart.Transfer(next)
}
