// Package task implements cooperative round-robin scheduling of a fixed set
// of tasks on a single hart.
package task

import (
	"sv39os/kernel"
	"sv39os/kernel/cpu"
	"sv39os/kernel/kfmt"
	"sv39os/kernel/sync"
)

// MaxTaskNum is the number of task slots in the task table.
const MaxTaskNum = 16

var (
	errNotInitialized   = &kernel.Error{Module: "task", Message: "task manager not initialized"}
	errNoTasks          = &kernel.Error{Module: "task", Message: "no tasks to run"}
	errTooManyTasks     = &kernel.Error{Module: "task", Message: "number of tasks exceeds the task table size"}
	errUnreachable      = &kernel.Error{Module: "task", Message: "control returned to the boot flow"}
	errShutdownReturned = &kernel.Error{Module: "task", Message: "shutdown returned"}
)

// AppSource provides the applications the manager schedules, one task per
// application.
type AppSource interface {
	// NumApp returns the number of applications.
	NumApp() int

	// InitTaskContext prepares application i for its first run and returns
	// the kernel stack pointer its task context should start with.
	InitTaskContext(i int) uint64
}

// Shutdowner powers the machine off. Shutdown does not return.
type Shutdowner interface {
	Shutdown(failure bool)
}

type managerInner struct {
	numTask     int
	currentTask int
	tasks       [MaxTaskNum]ControlBlock
}

// Manager owns the task table and decides which task runs next.
type Manager struct {
	hart     *cpu.Hart
	shutdown Shutdowner
	inner    *sync.UPCell[managerInner]
}

// NewManager creates a Ready task for every application provided by apps.
func NewManager(apps AppSource, hart *cpu.Hart, shutdown Shutdowner) *Manager {
	n := apps.NumApp()
	switch {
	case n == 0:
		kfmt.Panic(errNoTasks)
	case n > MaxTaskNum:
		kfmt.Fatalf(errTooManyTasks, "%d tasks requested; table holds %d", n, MaxTaskNum)
	}

	inner := managerInner{numTask: n}
	for i := 0; i < n; i++ {
		inner.tasks[i] = ControlBlock{
			Status:  Ready,
			Context: RestoreInit(apps.InitTaskContext(i)),
		}
	}

	kfmt.Module("task").Infof("task manager initialized with %d tasks", n)
	return &Manager{
		hart:     hart,
		shutdown: shutdown,
		inner:    sync.NewUPCell(inner),
	}
}

// RunFirstTask switches from the boot flow to task 0. It never returns.
func (m *Manager) RunFirstTask() {
	g := m.access()
	inner := g.Value()

	first := &inner.tasks[0]
	first.Status = Running
	inner.currentTask = 0

	var unused Context
	Switch(g.Release(), m.hart, &unused, &first.Context)
	kfmt.Panic(errUnreachable)
}

// SuspendCurrentAndRunNext marks the running task Ready and switches to the
// next Ready task. It returns when the task is scheduled again.
func (m *Manager) SuspendCurrentAndRunNext() {
	m.markCurrent(Ready)
	m.runNextTask()
}

// ExitCurrentAndRunNext marks the running task Finished and switches to the
// next Ready task. It never returns.
func (m *Manager) ExitCurrentAndRunNext() {
	m.markCurrent(Finished)
	m.runNextTask()
}

// CurrentTask returns the index of the running task.
func (m *Manager) CurrentTask() int {
	g := m.access()
	defer g.Release()
	return g.Value().currentTask
}

// NumTask returns the number of tasks in the table.
func (m *Manager) NumTask() int {
	g := m.access()
	defer g.Release()
	return g.Value().numTask
}

// Status returns the status of task i.
func (m *Manager) Status(i int) Status {
	g := m.access()
	defer g.Release()
	return g.Value().tasks[i].Status
}

func (m *Manager) access() *sync.Guard[managerInner] {
	if m.inner == nil {
		kfmt.Panic(errNotInitialized)
	}
	return m.inner.Access()
}

func (m *Manager) markCurrent(status Status) {
	g := m.access()
	inner := g.Value()
	inner.tasks[inner.currentTask].Status = status
	g.Release()
}

func (m *Manager) runNextTask() {
	g := m.access()
	inner := g.Value()

	next, ok := inner.findNextTask()
	if !ok {
		g.Release()
		kfmt.Module("task").Info("All applications completed!")
		m.shutdown.Shutdown(false)
		kfmt.Panic(errShutdownReturned)
	}

	current := inner.currentTask
	inner.tasks[next].Status = Running
	inner.currentTask = next
	from := &inner.tasks[current].Context
	to := &inner.tasks[next].Context

	Switch(g.Release(), m.hart, from, to)
}

// findNextTask scans the other tasks round-robin starting after the current
// one and returns the first Ready task. The current task is never picked,
// so once every other task has finished there is no next task.
func (inner *managerInner) findNextTask() (int, bool) {
	for i := 1; i < inner.numTask; i++ {
		id := (inner.currentTask + i) % inner.numTask
		if inner.tasks[id].Status == Ready {
			return id, true
		}
	}
	return 0, false
}
