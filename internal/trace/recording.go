package trace

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrProcessNotFound is returned when no recorded process matches the
// requested name prefix. Analysis cannot proceed without a monitored process.
var ErrProcessNotFound = errors.New("process not found in trace")

// Recording is the immutable output of a trace capture: every context
// switch and page fault observed, plus the processes seen, ready for the
// batch analysis. Switch and fault sequences are time-ordered.
type Recording struct {
	Switches  []ContextSwitch
	Faults    []PageFault
	Processes []Process

	// Start and End bound the capture itself.
	Start time.Time
	End   time.Time
}

// seal sorts the event sequences by time so per-core subsequences are
// ordered, and fixes up open-ended process lifetimes.
func (r *Recording) seal() {
	sort.SliceStable(r.Switches, func(i, j int) bool {
		return r.Switches[i].Time.Before(r.Switches[j].Time)
	})
	sort.SliceStable(r.Faults, func(i, j int) bool {
		return r.Faults[i].Time.Before(r.Faults[j].Time)
	})
}

// ProcessByPrefix finds the first process whose name starts with the given
// prefix, case-insensitively. Returns ErrProcessNotFound when nothing
// matches.
func (r *Recording) ProcessByPrefix(prefix string) (*Process, error) {
	lowered := strings.ToLower(prefix)
	for i := range r.Processes {
		if strings.HasPrefix(strings.ToLower(r.Processes[i].Name), lowered) {
			return &r.Processes[i], nil
		}
	}
	return nil, fmt.Errorf("%w: no process name matches prefix %q", ErrProcessNotFound, prefix)
}

// Lifetime returns the observed lifetime of a process, clamped to the
// recording bounds. A process that outlived the capture ends at the
// recording end.
func (r *Recording) Lifetime(p *Process) (start, end time.Time) {
	start, end = p.Start, p.End
	if start.IsZero() || start.Before(r.Start) {
		start = r.Start
	}
	if end.IsZero() || end.After(r.End) {
		end = r.End
	}
	return start, end
}

// SwitchesOnCore returns the time-ordered subsequence of switches for one core.
func (r *Recording) SwitchesOnCore(core int) []ContextSwitch {
	out := make([]ContextSwitch, 0, 64)
	for i := range r.Switches {
		if r.Switches[i].Core == core {
			out = append(out, r.Switches[i])
		}
	}
	return out
}
