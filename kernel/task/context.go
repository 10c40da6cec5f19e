package task

import "sv39os/kernel/cpu"

const (
	// RestoreAddr is the address of the trap-return trampoline. A context
	// whose return address is RestoreAddr starts executing the trampoline
	// with the context's stack pointer the first time it is switched to.
	RestoreAddr uint64 = 0x8020_1000

	// switchReturnAddr is the instruction following the call to Switch. A
	// context saved by Switch resumes there.
	switchReturnAddr uint64 = 0x8020_0ffc
)

// Context holds the execution state that survives a task switch: the return
// address, the kernel stack pointer and the callee-saved registers. The
// caller-saved registers are spilled by the compiler around the call to
// Switch and need not be recorded.
type Context struct {
	RA uint64
	SP uint64
	S  [cpu.CalleeSavedRegs]uint64

	// thread is the logical thread parked in Switch when the context was
	// saved. It is nil for contexts that have never run.
	thread *cpu.Thread
}

// RestoreInit returns the context of a task that has not run yet. Switching
// to it enters the trampoline at RestoreAddr with kstackTop as the stack
// pointer; kstackTop must point at the task's initial trap frame.
func RestoreInit(kstackTop uint64) Context {
	return Context{
		RA: RestoreAddr,
		SP: kstackTop,
	}
}
