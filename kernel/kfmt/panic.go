package kfmt

import (
	"fmt"
	"sv39os/kernel"
)

var (
	// haltFn is invoked once the panic banner has been logged. It must
	// not return; the default implementation unwinds the calling logical
	// thread with the error as the panic value.
	haltFn = func(err *kernel.Error) {
		panic(err)
	}

	errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}
)

// Panic logs the supplied error (if not nil) and halts the calling thread of
// control. Calls to Panic never return. Fatal kernel conditions (invariant
// violations in kernel code itself) are raised through Panic with one of the
// package-level *kernel.Error values so callers can identify them.
func Panic(e interface{}) {
	var err *kernel.Error

	switch t := e.(type) {
	case *kernel.Error:
		err = t
	case string:
		err = &kernel.Error{Module: errRuntimePanic.Module, Message: t}
	case error:
		err = &kernel.Error{Module: errRuntimePanic.Module, Message: t.Error()}
	}

	log := logger.WithField("module", "panic")
	log.Error("-----------------------------------")
	if err != nil {
		logger.WithField("module", err.Module).Errorf("unrecoverable error: %s", err.Message)
	} else {
		err = errRuntimePanic
	}
	log.Error("*** kernel panic: system halted ***")
	log.Error("-----------------------------------")

	haltFn(err)
}

// Fatalf logs a formatted diagnostic attributed to err's module and then
// raises err via Panic.
func Fatalf(err *kernel.Error, format string, args ...interface{}) {
	logger.WithField("module", err.Module).Error(fmt.Sprintf(format, args...))
	Panic(err)
}
