package task

import (
	"fmt"
	"sv39os/kernel"
	"sv39os/kernel/cpu"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type fakeApps struct {
	n int
}

func (a fakeApps) NumApp() int { return a.n }

// InitTaskContext places the kernel stack of task i at 0x1000*(i+1).
func (a fakeApps) InitTaskContext(i int) uint64 { return uint64(i+1) * 0x1000 }

type fakeShutdown struct {
	hart    *cpu.Hart
	calls   int
	failure bool
}

func (s *fakeShutdown) Shutdown(failure bool) {
	s.calls++
	s.failure = failure
	s.hart.Halt()
}

func TestFindNextTask(t *testing.T) {
	specs := []struct {
		statuses []Status
		current  int
		expNext  int
		expOK    bool
	}{
		{[]Status{Ready, Ready, Finished, Ready}, 0, 1, true},
		{[]Status{Ready, Ready, Finished, Ready}, 1, 3, true},
		// the current task is never picked
		{[]Status{Ready, Finished, Finished, Finished}, 0, 0, false},
		{[]Status{Finished, Finished, Finished, Ready}, 3, 0, false},
		{[]Status{Ready}, 0, 0, false},
		{[]Status{Ready, Finished, Finished, Ready}, 3, 0, true},
		{[]Status{Finished, Finished, Finished, Finished}, 3, 0, false},
		{[]Status{Finished, Running}, 1, 0, false},
	}

	for specIndex, spec := range specs {
		inner := managerInner{numTask: len(spec.statuses), currentTask: spec.current}
		for i, st := range spec.statuses {
			inner.tasks[i].Status = st
		}

		next, ok := inner.findNextTask()
		if ok != spec.expOK || (ok && next != spec.expNext) {
			t.Errorf("[spec %d] expected (%d, %t); got (%d, %t)", specIndex, spec.expNext, spec.expOK, next, ok)
		}
	}
}

func TestFindNextTaskAsTasksFinish(t *testing.T) {
	inner := managerInner{numTask: 4, currentTask: 0}
	for i, st := range []Status{Ready, Ready, Finished, Ready} {
		inner.tasks[i].Status = st
	}

	specs := []struct {
		finish  int
		expNext int
		expOK   bool
	}{
		{-1, 1, true},
		{1, 3, true},
		// only the current task is left
		{3, 0, false},
	}

	for specIndex, spec := range specs {
		if spec.finish >= 0 {
			inner.tasks[spec.finish].Status = Finished
		}

		next, ok := inner.findNextTask()
		if ok != spec.expOK || (ok && next != spec.expNext) {
			t.Errorf("[spec %d] expected (%d, %t); got (%d, %t)", specIndex, spec.expNext, spec.expOK, next, ok)
		}
	}
}

func TestNewManager(t *testing.T) {
	hart := cpu.NewHart()
	m := NewManager(fakeApps{n: 3}, hart, &fakeShutdown{hart: hart})

	if got := m.NumTask(); got != 3 {
		t.Fatalf("expected 3 tasks; got %d", got)
	}

	for i := 0; i < MaxTaskNum; i++ {
		expStatus := UnInit
		if i < 3 {
			expStatus = Ready
		}
		if got := m.Status(i); got != expStatus {
			t.Errorf("expected task %d to be %s; got %s", i, expStatus, got)
		}
	}

	g := m.inner.Access()
	defer g.Release()
	if exp, got := RestoreInit(0x2000), g.Value().tasks[1].Context; got.RA != exp.RA || got.SP != exp.SP {
		t.Errorf("expected task 1 context %+v; got %+v", exp, got)
	}
}

func TestNewManagerErrors(t *testing.T) {
	hart := cpu.NewHart()

	specs := []struct {
		n      int
		expErr *kernel.Error
	}{
		{0, errNoTasks},
		{MaxTaskNum + 1, errTooManyTasks},
	}

	for specIndex, spec := range specs {
		got := capturePanic(func() { NewManager(fakeApps{n: spec.n}, hart, &fakeShutdown{hart: hart}) })
		if got != spec.expErr {
			t.Errorf("[spec %d] expected %v; got %v", specIndex, spec.expErr, got)
		}
	}
}

func TestUninitializedManager(t *testing.T) {
	var m Manager

	if got := capturePanic(m.RunFirstTask); got != errNotInitialized {
		t.Fatalf("expected errNotInitialized; got %v", got)
	}
}

func TestRoundRobin(t *testing.T) {
	var (
		hart     = cpu.NewHart()
		shutdown = &fakeShutdown{hart: hart}
		m        = NewManager(fakeApps{n: 3}, hart, shutdown)
		trace    []string
		clobbers []string
	)

	hart.Bind(RestoreAddr, func() {
		id := int(hart.Regs().SP/0x1000) - 1
		if cur := m.CurrentTask(); cur != id {
			trace = append(trace, fmt.Sprintf("bad current %d for %d", cur, id))
		}

		trace = append(trace, fmt.Sprintf("%d:start", id))
		for i := range hart.Regs().S {
			hart.Regs().S[i] = uint64(id*100 + i)
		}

		m.SuspendCurrentAndRunNext()

		for i, v := range hart.Regs().S {
			if v != uint64(id*100+i) {
				clobbers = append(clobbers, fmt.Sprintf("task %d: s%d = %d", id, i, v))
			}
		}
		trace = append(trace, fmt.Sprintf("%d:resumed", id))
		m.ExitCurrentAndRunNext()
		trace = append(trace, fmt.Sprintf("%d:returned from exit", id))
	})

	go m.RunFirstTask()
	waitHalt(t, hart)

	exp := []string{
		"0:start", "1:start", "2:start",
		"0:resumed", "1:resumed", "2:resumed",
	}
	if diff := cmp.Diff(exp, trace); diff != "" {
		t.Fatalf("unexpected schedule (-want +got):\n%s", diff)
	}

	if len(clobbers) != 0 {
		t.Fatalf("callee-saved registers were not preserved: %v", clobbers)
	}

	if shutdown.calls != 1 || shutdown.failure {
		t.Fatalf("expected a single successful shutdown; got calls=%d failure=%t", shutdown.calls, shutdown.failure)
	}

	for i := 0; i < 3; i++ {
		if got := m.Status(i); got != Finished {
			t.Errorf("expected task %d to be finished; got %s", i, got)
		}
	}
}

func TestYieldWithNoOtherReadyTask(t *testing.T) {
	var (
		hart     = cpu.NewHart()
		shutdown = &fakeShutdown{hart: hart}
		m        = NewManager(fakeApps{n: 2}, hart, shutdown)
		trace    []string
	)

	hart.Bind(RestoreAddr, func() {
		id := int(hart.Regs().SP/0x1000) - 1
		if id == 0 {
			trace = append(trace, "0:exit")
			m.ExitCurrentAndRunNext()
		}

		// task 1 is the only task left; yielding finds nothing to run.
		trace = append(trace, "1:yield")
		m.SuspendCurrentAndRunNext()
		trace = append(trace, "1:resumed")
	})

	go m.RunFirstTask()
	waitHalt(t, hart)

	exp := []string{"0:exit", "1:yield"}
	if diff := cmp.Diff(exp, trace); diff != "" {
		t.Fatalf("unexpected schedule (-want +got):\n%s", diff)
	}
	if shutdown.calls != 1 || shutdown.failure {
		t.Fatalf("expected a single successful shutdown; got calls=%d failure=%t", shutdown.calls, shutdown.failure)
	}
	if got := m.Status(1); got != Ready {
		t.Fatalf("expected the suspended task to stay ready; got %s", got)
	}
}

func TestStatusString(t *testing.T) {
	specs := []struct {
		status Status
		exp    string
	}{
		{UnInit, "uninit"},
		{Ready, "ready"},
		{Running, "running"},
		{Finished, "finished"},
		{Status(42), "unknown"},
	}

	for specIndex, spec := range specs {
		if got := spec.status.String(); got != spec.exp {
			t.Errorf("[spec %d] expected %q; got %q", specIndex, spec.exp, got)
		}
	}
}

func waitHalt(t *testing.T, hart *cpu.Hart) {
	t.Helper()
	select {
	case <-hart.Halted():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the hart to halt")
	}
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
