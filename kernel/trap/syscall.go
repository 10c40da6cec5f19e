package trap

import (
	"fmt"
	"io"
	"sv39os/kernel"
	"sv39os/kernel/kfmt"
	"sv39os/kernel/mm"
	"sv39os/kernel/mm/region"
)

// System call numbers.
const (
	SyscallWrite = 64
	SyscallExit  = 93
	SyscallYield = 124
)

// FdStdout is the only file descriptor applications can write to.
const FdStdout = 1

var (
	// ErrUnsupportedFd is returned by Write for descriptors other than
	// FdStdout.
	ErrUnsupportedFd = &kernel.Error{Module: "syscall", Message: "unsupported fd in write"}

	errUnsupportedSyscall = &kernel.Error{Module: "syscall", Message: "unsupported syscall"}
	errExitReturned       = &kernel.Error{Module: "syscall", Message: "exited application resumed"}
)

// Scheduler is the part of the task manager visible to system calls.
type Scheduler interface {
	CurrentTask() int
	SuspendCurrentAndRunNext()
	ExitCurrentAndRunNext()
}

// Syscalls is the system call interface of a running application.
type Syscalls struct {
	app     int
	sched   Scheduler
	mem     *region.Region
	console io.Writer
}

// NewSyscalls returns the system call interface of application app.
// Console output is written to console, each line tagged with the
// application id.
func NewSyscalls(app int, sched Scheduler, mem *region.Region, console io.Writer) *Syscalls {
	prefixed := &kfmt.PrefixWriter{
		Sink:   console,
		Prefix: []byte(fmt.Sprintf("[app %d] ", app)),
	}
	return &Syscalls{app: app, sched: sched, mem: mem, console: prefixed}
}

// App returns the id of the calling application.
func (s *Syscalls) App() int { return s.app }

// Write writes p to file descriptor fd.
func (s *Syscalls) Write(fd int, p []byte) (int, *kernel.Error) {
	if fd != FdStdout {
		return 0, ErrUnsupportedFd
	}

	n, err := s.console.Write(p)
	if err != nil {
		kfmt.Module("syscall").WithError(err).Warn("console write failed")
	}
	return n, nil
}

// Yield gives up the hart. It returns once the application is scheduled
// again.
func (s *Syscalls) Yield() {
	s.sched.SuspendCurrentAndRunNext()
}

// Exit terminates the application. It never returns.
func (s *Syscalls) Exit(code int) {
	kfmt.Module("kernel").Infof("Application exited with code %d", code)
	s.sched.ExitCurrentAndRunNext()
	kfmt.Panic(errExitReturned)
}

// Dispatch executes system call id with the raw register arguments an
// application passes in a0-a2. Buffers are addressed physically.
func (s *Syscalls) Dispatch(id uint64, args [3]uint64) int64 {
	switch id {
	case SyscallWrite:
		if !s.mem.Contains(mm.NewPhysAddr(args[1]), args[2]) {
			kfmt.Module("syscall").Warnf("write from invalid buffer %#x+%d", args[1], args[2])
			return -1
		}
		buf := make([]byte, args[2])
		if err := s.mem.ReadAt(buf, mm.NewPhysAddr(args[1])); err != nil {
			return -1
		}
		n, err := s.Write(int(args[0]), buf)
		if err != nil {
			kfmt.Module("syscall").Warnf("write to fd %d: %s", args[0], err.Message)
			return -1
		}
		return int64(n)
	case SyscallYield:
		s.Yield()
		return 0
	case SyscallExit:
		s.Exit(int(int32(args[0])))
	default:
		kfmt.Fatalf(errUnsupportedSyscall, "syscall id %d", id)
	}
	return -1
}
