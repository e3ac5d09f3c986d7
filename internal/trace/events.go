package trace

import "time"

// ThreadState is the resulting state of the outgoing thread after a context
// switch, as reported by the kernel CSwitch event.
type ThreadState uint8

const (
	StateInitialized ThreadState = iota
	StateReady
	StateRunning
	StateStandby
	StateTerminated
	StateWaiting
	StateTransition
	StateDeferredReady
	StateUnknown
)

// String returns the scheduler state name.
func (s ThreadState) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateStandby:
		return "standby"
	case StateTerminated:
		return "terminated"
	case StateWaiting:
		return "waiting"
	case StateTransition:
		return "transition"
	case StateDeferredReady:
		return "deferred_ready"
	default:
		return "unknown"
	}
}

// ContextSwitch records one scheduler transition on a core: the old thread
// stops running, the new thread starts. Immutable once recorded; strictly
// time-ordered within a core.
type ContextSwitch struct {
	// Core the switch occurred on.
	Core int

	// Wall-clock time of the switch.
	Time time.Time

	// Ticks is the raw monotonic event timestamp (100ns units).
	Ticks int64

	OldThreadID  uint32
	OldProcessID uint32
	NewThreadID  uint32
	NewProcessID uint32

	// OldThreadState is the state the outgoing thread entered.
	OldThreadState ThreadState
}

// FaultKind distinguishes page fault severities.
type FaultKind uint8

const (
	// FaultMinor is a soft fault satisfied without disk I/O (demand-zero).
	FaultMinor FaultKind = iota
	// FaultMajor is a hard fault requiring disk I/O.
	FaultMajor
)

// String returns the fault kind name.
func (k FaultKind) String() string {
	if k == FaultMajor {
		return "major"
	}
	return "minor"
}

// PageFault records one page fault event. Immutable once recorded.
type PageFault struct {
	Core      int
	Time      time.Time
	ProcessID uint32
	ThreadID  uint32
	Kind      FaultKind
}

// ThreadRef identifies a thread within a process. Refs whose thread id is
// not in the monitored process's known thread set are retained as synthetic
// references with Known=false rather than rejected.
type ThreadRef struct {
	ThreadID  uint32
	ProcessID uint32
	Known     bool
}

// Process describes one process observed in the trace, with the thread ids
// that were seen belonging to it.
type Process struct {
	PID   uint32
	Name  string
	Start time.Time
	End   time.Time // zero if the process outlived the recording
	TIDs  []uint32
}

// ThreadResolver resolves raw (tid, pid) pairs against a monitored process's
// known thread set.
type ThreadResolver struct {
	known map[uint32]struct{}
}

// NewThreadResolver builds a resolver over the process's thread set.
func NewThreadResolver(p *Process) *ThreadResolver {
	known := make(map[uint32]struct{}, len(p.TIDs))
	for _, tid := range p.TIDs {
		known[tid] = struct{}{}
	}
	return &ThreadResolver{known: known}
}

// Resolve returns the ThreadRef for a raw pair. Unknown threads are kept by
// id as synthetic references, never dropped.
func (r *ThreadResolver) Resolve(tid, pid uint32) ThreadRef {
	_, known := r.known[tid]
	return ThreadRef{ThreadID: tid, ProcessID: pid, Known: known}
}
