package trap

import (
	"bytes"
	"sv39os/kernel"
	"sv39os/kernel/mm"
	"sv39os/kernel/mm/region"
	"testing"
)

type fakeScheduler struct {
	current int
	yields  int
	exits   int
	onExit  func()
}

func (s *fakeScheduler) CurrentTask() int          { return s.current }
func (s *fakeScheduler) SuspendCurrentAndRunNext() { s.yields++ }
func (s *fakeScheduler) ExitCurrentAndRunNext() {
	s.exits++
	if s.onExit != nil {
		s.onExit()
	}
}

func TestSyscallWrite(t *testing.T) {
	var (
		console bytes.Buffer
		sys     = NewSyscalls(3, &fakeScheduler{}, testRegion(t), &console)
	)

	n, err := sys.Write(FdStdout, []byte("Hello, world!\nbye"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 17 {
		t.Errorf("expected 17 bytes to be written; got %d", n)
	}
	if exp, got := "[app 3] Hello, world!\n[app 3] bye", console.String(); got != exp {
		t.Errorf("expected console output %q; got %q", exp, got)
	}

	if _, err := sys.Write(2, []byte("x")); err != ErrUnsupportedFd {
		t.Errorf("expected ErrUnsupportedFd; got %v", err)
	}
}

func TestDispatch(t *testing.T) {
	var (
		console bytes.Buffer
		mem     = testRegion(t)
		sched   = &fakeScheduler{}
		sys     = NewSyscalls(0, sched, mem, &console)
		buf     = mem.Base() + 0x100
	)

	if err := mem.WriteAt([]byte("power_3\n"), buf); err != nil {
		t.Fatal(err)
	}

	specs := []struct {
		id   uint64
		args [3]uint64
		exp  int64
	}{
		{SyscallWrite, [3]uint64{FdStdout, uint64(buf), 8}, 8},
		{SyscallWrite, [3]uint64{2, uint64(buf), 8}, -1},
		{SyscallWrite, [3]uint64{FdStdout, uint64(mem.End()), 8}, -1},
		// lengths are validated before anything is allocated
		{SyscallWrite, [3]uint64{FdStdout, uint64(mem.Base()), 1 << 62}, -1},
		{SyscallWrite, [3]uint64{FdStdout, uint64(buf), ^uint64(0)}, -1},
		{SyscallYield, [3]uint64{}, 0},
	}
	for specIndex, spec := range specs {
		if got := sys.Dispatch(spec.id, spec.args); got != spec.exp {
			t.Errorf("[spec %d] expected %d; got %d", specIndex, spec.exp, got)
		}
	}

	if exp, got := "[app 0] power_3\n", console.String(); got != exp {
		t.Errorf("expected console output %q; got %q", exp, got)
	}
	if sched.yields != 1 {
		t.Errorf("expected 1 yield; got %d", sched.yields)
	}

	if got := capturePanic(func() { sys.Dispatch(1000, [3]uint64{}) }); got != errUnsupportedSyscall {
		t.Errorf("expected errUnsupportedSyscall; got %v", got)
	}
}

func TestExit(t *testing.T) {
	sched := &fakeScheduler{}
	sys := NewSyscalls(0, sched, testRegion(t), &bytes.Buffer{})

	// A scheduler that lets an exited application continue is a kernel bug.
	if got := capturePanic(func() { sys.Dispatch(SyscallExit, [3]uint64{uint64(0xffff_ffff)}) }); got != errExitReturned {
		t.Fatalf("expected errExitReturned; got %v", got)
	}
	if sched.exits != 1 {
		t.Fatalf("expected 1 exit; got %d", sched.exits)
	}
}

func testRegion(t *testing.T) *region.Region {
	t.Helper()
	mem, err := region.FromBytes(0x8000_0000, make([]byte, 4*mm.PageSize))
	if err != nil {
		t.Fatal(err)
	}
	return mem
}

func capturePanic(fn func()) (err *kernel.Error) {
	defer func() {
		if r := recover(); r != nil {
			err, _ = r.(*kernel.Error)
		}
	}()
	fn()
	return nil
}
