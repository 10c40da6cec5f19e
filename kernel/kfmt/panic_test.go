package kfmt

import (
	"bytes"
	"errors"
	"strings"
	"sv39os/kernel"
	"testing"
)

func TestPanic(t *testing.T) {
	var buf bytes.Buffer
	SetOutputSink(&buf)
	defer SetOutputSink(nil)

	specs := []struct {
		input   interface{}
		expErr  *kernel.Error
		expLogs []string
	}{
		{
			&kernel.Error{Module: "test", Message: "panic test"},
			nil,
			[]string{"unrecoverable error: panic test", "module=test", "*** kernel panic: system halted ***"},
		},
		{
			errors.New("go error"),
			nil,
			[]string{"unrecoverable error: go error", "module=rt"},
		},
		{
			"string error",
			nil,
			[]string{"unrecoverable error: string error", "module=rt"},
		},
		{
			nil,
			errRuntimePanic,
			[]string{"*** kernel panic: system halted ***"},
		},
	}

	for specIndex, spec := range specs {
		buf.Reset()

		got := capturePanic(func() { Panic(spec.input) })
		if got == nil {
			t.Errorf("[spec %d] expected Panic to halt", specIndex)
			continue
		}

		if spec.expErr != nil && got != spec.expErr {
			t.Errorf("[spec %d] expected halt with %v; got %v", specIndex, spec.expErr, got)
		}

		if kerr, ok := spec.input.(*kernel.Error); ok && got != kerr {
			t.Errorf("[spec %d] expected halt with the original *kernel.Error", specIndex)
		}

		for _, exp := range spec.expLogs {
			if !strings.Contains(buf.String(), exp) {
				t.Errorf("[spec %d] expected log to contain %q; got:\n%s", specIndex, exp, buf.String())
			}
		}
	}
}

func TestFatalf(t *testing.T) {
	var buf bytes.Buffer
	SetOutputSink(&buf)
	defer SetOutputSink(nil)

	err := &kernel.Error{Module: "frame_alloc", Message: "frame is not allocated"}
	if got := capturePanic(func() { Fatalf(err, "ppn %#x", 0x80123) }); got != err {
		t.Fatalf("expected Fatalf to halt with %v; got %v", err, got)
	}

	if !strings.Contains(buf.String(), "ppn 0x80123") {
		t.Fatalf("expected diagnostic in log; got:\n%s", buf.String())
	}
}

func TestHaltFnOverride(t *testing.T) {
	defer func(orig func(*kernel.Error)) { haltFn = orig }(haltFn)

	var halted *kernel.Error
	haltFn = func(err *kernel.Error) { halted = err }

	err := &kernel.Error{Module: "test", Message: "halt"}
	Panic(err)

	if halted != err {
		t.Fatalf("expected haltFn to receive %v; got %v", err, halted)
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
