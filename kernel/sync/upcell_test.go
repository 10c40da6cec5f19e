package sync

import (
	"sv39os/kernel"
	"testing"
)

type counters struct {
	current, end int
}

func TestUPCellAccess(t *testing.T) {
	cell := NewUPCell(counters{current: 100, end: 200})

	g := cell.Access()
	if !cell.Held() {
		t.Fatal("expected cell to be held while a guard is live")
	}

	g.Value().current++
	token := g.Release()
	token.Check()

	if cell.Held() {
		t.Fatal("expected cell to be free after Release")
	}

	cell.With(func(v *counters) {
		if v.current != 101 || v.end != 200 {
			t.Errorf("expected {101 200}; got %+v", *v)
		}
	})

	// Releasing twice is harmless.
	g.Release().Check()
}

func TestUPCellFatalUse(t *testing.T) {
	specs := []struct {
		name   string
		fn     func(cell *UPCell[counters])
		expErr *kernel.Error
	}{
		{
			"re-entrant access",
			func(cell *UPCell[counters]) {
				cell.Access()
				cell.Access()
			},
			ErrAlreadyAccessed,
		},
		{
			"value after release",
			func(cell *UPCell[counters]) {
				g := cell.Access()
				g.Release()
				g.Value()
			},
			ErrGuardReleased,
		},
		{
			"token checked while held again",
			func(cell *UPCell[counters]) {
				token := cell.Access().Release()
				cell.Access()
				token.Check()
			},
			ErrGuardHeld,
		},
		{
			"forged token",
			func(*UPCell[counters]) {
				var token Released
				token.Check()
			},
			ErrGuardHeld,
		},
	}

	for specIndex, spec := range specs {
		cell := NewUPCell(counters{})
		if got := capturePanic(func() { spec.fn(cell) }); got != spec.expErr {
			t.Errorf("[spec %d] %s: expected %v; got %v", specIndex, spec.name, spec.expErr, got)
		}
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
