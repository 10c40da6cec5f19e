package cpu

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestHartTransfer(t *testing.T) {
	var (
		hart  = NewHart()
		trace []string
	)

	var a, b *Thread
	hart.Bind(0x1000, func() {
		trace = append(trace, "a:start")
		hart.Regs().S[0] = 1
		hart.Transfer(b)
		trace = append(trace, "a:resumed")
		hart.Halt()
	})
	hart.Bind(0x2000, func() {
		trace = append(trace, "b:start")
		hart.Transfer(a)
	})

	a = hart.Spawn(0x1000)
	b = hart.Spawn(0x2000)

	go func() {
		trace = append(trace, "boot")
		hart.Transfer(a)
		trace = append(trace, "boot:resumed")
	}()

	waitHalt(t, hart)

	exp := []string{"boot", "a:start", "b:start", "a:resumed"}
	if diff := cmp.Diff(exp, trace); diff != "" {
		t.Fatalf("unexpected execution order (-want +got):\n%s", diff)
	}

	if hart.Regs().S[0] != 1 {
		t.Fatal("expected register writes to be visible to the next owner")
	}
}

func TestHartTransferToSelf(t *testing.T) {
	var (
		hart = NewHart()
		runs int
	)

	hart.Bind(0x1000, func() {
		runs++
		hart.Transfer(hart.Current())
		runs++
		hart.Halt()
	})

	th := hart.Spawn(0x1000)
	go hart.Transfer(th)

	waitHalt(t, hart)
	if runs != 2 {
		t.Fatalf("expected the thread to resume after transferring to itself; runs = %d", runs)
	}
}

func TestSpawnWithoutCode(t *testing.T) {
	hart := NewHart()

	defer func() {
		if got := recover(); got != errNoSymbol {
			t.Fatalf("expected errNoSymbol; got %v", got)
		}
	}()
	hart.Spawn(0xdead)
}

func waitHalt(t *testing.T, hart *Hart) {
	t.Helper()
	select {
	case <-hart.Halted():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the hart to halt")
	}
}

func TestHartFault(t *testing.T) {
	specs := []struct {
		entry    func(h *Hart)
		expFault interface{}
	}{
		{func(h *Hart) { panic("boom") }, "boom"},
		{func(h *Hart) {}, ErrThreadReturned},
		{func(h *Hart) { h.Halt() }, nil},
	}

	for specIndex, spec := range specs {
		hart := NewHart()
		hart.Bind(0x1000, func() { spec.entry(hart) })

		th := hart.Spawn(0x1000)
		go hart.Run(func() { hart.Transfer(th) })
		waitHalt(t, hart)

		if got := hart.Fault(); got != spec.expFault {
			t.Errorf("[spec %d] expected fault %v; got %v", specIndex, spec.expFault, got)
		}
	}
}
