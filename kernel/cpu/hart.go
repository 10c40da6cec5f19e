// Package cpu models the single hardware thread (hart) the kernel runs on.
//
// Kernel code executes on goroutines, but only one of them owns the hart at
// any time. Each such goroutine is a Thread: a logical thread of control that
// runs until it hands the hart to another Thread and then stays parked until
// the hart is handed back. Hand-offs go through Transfer, which gives every
// hart state change a happens-before edge with the next owner.
package cpu

import (
	"runtime"
	"sv39os/kernel"
	"sv39os/kernel/kfmt"
	"sync"
)

// CalleeSavedRegs is the number of callee-saved general purpose registers
// (s0-s11).
const CalleeSavedRegs = 12

var (
	// ErrThreadReturned is raised when the entry point of a thread returns.
	// Threads leave the hart only by transferring it or halting it.
	ErrThreadReturned = &kernel.Error{Module: "cpu", Message: "thread entry point returned"}

	errNoSymbol = &kernel.Error{Module: "cpu", Message: "jump to an address without code"}
)

// Regs is the part of the register file preserved across calls.
type Regs struct {
	RA uint64
	SP uint64
	S  [CalleeSavedRegs]uint64
}

// Thread is a logical thread of control that can own the hart.
type Thread struct {
	wake chan struct{}
}

func newThread() *Thread {
	// A thread may transfer the hart to itself, so a pending wake-up must
	// not block the sender.
	return &Thread{wake: make(chan struct{}, 1)}
}

// Hart is a simulated hardware thread.
type Hart struct {
	regs    Regs
	current *Thread
	symbols map[uint64]func()

	haltOnce sync.Once
	halted   chan struct{}

	faultMu sync.Mutex
	fault   interface{}
}

// NewHart returns a hart owned by the calling goroutine.
func NewHart() *Hart {
	return &Hart{
		current: newThread(),
		symbols: make(map[uint64]func()),
		halted:  make(chan struct{}),
	}
}

// Regs returns the live register file. Only the thread that currently owns
// the hart may access it.
func (h *Hart) Regs() *Regs {
	return &h.regs
}

// Current returns the thread that owns the hart.
func (h *Hart) Current() *Thread {
	return h.current
}

// Bind associates the code at addr with fn. Threads started at addr run fn.
func (h *Hart) Bind(addr uint64, fn func()) {
	h.symbols[addr] = fn
}

// Spawn creates a parked thread that starts executing the code bound at addr
// the first time the hart is transferred to it.
func (h *Hart) Spawn(addr uint64) *Thread {
	entry, ok := h.symbols[addr]
	if !ok {
		kfmt.Fatalf(errNoSymbol, "no code bound at %#x", addr)
	}

	t := newThread()
	go func() {
		defer h.recoverFault()
		t.park(h.halted)
		entry()
		kfmt.Panic(ErrThreadReturned)
	}()
	return t
}

// Run executes entry on the calling goroutine, which must own the hart. A
// panic raised by entry halts the hart instead of crashing the program; the
// panic value is reported by Fault.
func (h *Hart) Run(entry func()) {
	defer h.recoverFault()
	entry()
}

// Fault returns the value of the panic that halted the hart, or nil if the
// hart was halted normally or is still running.
func (h *Hart) Fault() interface{} {
	h.faultMu.Lock()
	defer h.faultMu.Unlock()
	return h.fault
}

// recoverFault turns a panic of the calling thread into a hart halt.
func (h *Hart) recoverFault() {
	r := recover()
	if r == nil {
		return
	}

	h.faultMu.Lock()
	if h.fault == nil {
		h.fault = r
	}
	h.faultMu.Unlock()

	h.haltOnce.Do(func() { close(h.halted) })
}

// Transfer hands the hart to next and parks the calling thread until the
// hart is transferred back to it. If the hart is halted while the caller is
// parked, the caller's goroutine exits.
func (h *Hart) Transfer(next *Thread) {
	cur := h.current
	h.current = next
	next.wake <- struct{}{}
	cur.park(h.halted)
}

// Halt stops instruction execution: every parked thread is released and
// the calling thread's goroutine exits. Halt never returns.
func (h *Hart) Halt() {
	h.haltOnce.Do(func() { close(h.halted) })
	runtime.Goexit()
}

// Halted returns a channel that is closed once the hart halts.
func (h *Hart) Halted() <-chan struct{} {
	return h.halted
}

// park blocks until the thread is woken up or the hart halts.
func (t *Thread) park(halted <-chan struct{}) {
	select {
	case <-t.wake:
	case <-halted:
		runtime.Goexit()
	}
}
