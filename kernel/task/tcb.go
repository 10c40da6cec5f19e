package task

// Status describes where a task is in its life cycle.
type Status uint8

const (
	// UnInit marks an unused task slot.
	UnInit Status = iota
	Ready
	Running
	Finished
)

func (s Status) String() string {
	switch s {
	case UnInit:
		return "uninit"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// ControlBlock is the scheduler's record of a task.
type ControlBlock struct {
	Status  Status
	Context Context
}
