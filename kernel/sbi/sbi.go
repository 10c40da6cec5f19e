// Package sbi emulates the supervisor binary interface the firmware offers
// the kernel.
package sbi

import (
	"sv39os/kernel/cpu"
	"sv39os/kernel/kfmt"
	"sync"
)

// Exit statuses reported by the firmware after a shutdown.
const (
	ExitSuccess = 0
	ExitFailure = 1
)

// Firmware is the machine-mode firmware of a hart.
type Firmware struct {
	hart *cpu.Hart

	mu       sync.Mutex
	shutdown bool
	status   int
}

// New returns the firmware that controls hart.
func New(hart *cpu.Hart) *Firmware {
	return &Firmware{hart: hart}
}

// Shutdown powers the machine off. It records the exit status, halts the
// hart and never returns.
func (f *Firmware) Shutdown(failure bool) {
	status := ExitSuccess
	if failure {
		status = ExitFailure
		kfmt.Module("sbi").Error("shutdown after failure")
	} else {
		kfmt.Module("sbi").Info("shutdown")
	}

	f.mu.Lock()
	if !f.shutdown {
		f.shutdown = true
		f.status = status
	}
	f.mu.Unlock()

	f.hart.Halt()
}

// ExitStatus returns the status recorded by Shutdown and whether a shutdown
// has happened.
func (f *Firmware) ExitStatus() (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, f.shutdown
}
