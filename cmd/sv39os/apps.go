package main

import (
	"fmt"
	"sort"
	"sv39os/kernel/trap"
)

const (
	powerIterations = 200000
	powerStep       = 10000
	powerModulus    = 998244353
)

var demoApps = map[string]trap.Program{
	"hello_world": helloWorld,
	"power_3":     power(3),
	"power_5":     power(5),
	"power_7":     power(7),
}

func helloWorld(sys *trap.Syscalls) int {
	sys.Write(trap.FdStdout, []byte("Hello, world!\n"))
	return 0
}

// power returns a program that computes p^powerIterations modulo
// powerModulus, yielding after every progress report.
func power(p uint64) trap.Program {
	name := fmt.Sprintf("power_%d", p)
	return func(sys *trap.Syscalls) int {
		cur := uint64(1)
		for i := 1; i <= powerIterations; i++ {
			cur = cur * p % powerModulus
			if i%powerStep == 0 {
				fmt.Fprintf(writer{sys}, "%s [%d/%d]\n", name, i, powerIterations)
				sys.Yield()
			}
		}
		fmt.Fprintf(writer{sys}, "%d^%d = %d(MOD %d)\n", p, powerIterations, cur, powerModulus)
		fmt.Fprintf(writer{sys}, "Test %s OK!\n", name)
		return 0
	}
}

// writer adapts the write system call to io.Writer.
type writer struct {
	sys *trap.Syscalls
}

func (w writer) Write(p []byte) (int, error) {
	n, err := w.sys.Write(trap.FdStdout, p)
	if err != nil {
		return n, err
	}
	return n, nil
}

func appNames() []string {
	names := make([]string, 0, len(demoApps))
	for name := range demoApps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func selectApps(names []string) ([]trap.App, error) {
	apps := make([]trap.App, 0, len(names))
	for _, name := range names {
		prog, ok := demoApps[name]
		if !ok {
			return nil, fmt.Errorf("unknown application %q; available: %v", name, appNames())
		}
		apps = append(apps, trap.App{Name: name, Main: prog})
	}
	return apps, nil
}
