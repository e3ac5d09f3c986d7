package trace

import (
	"sort"
	"time"

	"counterlens/internal/maps"
)

// processEntry is the mutable recording-time state for one observed process.
type processEntry struct {
	name  string
	start time.Time
	end   time.Time
	tids  maps.ConcurrentMap[uint32, struct{}]
}

// registry tracks thread-to-process and process-identity mappings while a
// recording is in progress. It is written from the ETW callback thread and
// read by the control goroutine, so all state lives in concurrent maps.
type registry struct {
	tidToPid  maps.ConcurrentMap[uint32, uint32]
	processes maps.ConcurrentMap[uint32, *processEntry]
}

func newRegistry() *registry {
	return &registry{
		tidToPid:  maps.NewConcurrentMap[uint32, uint32](),
		processes: maps.NewConcurrentMap[uint32, *processEntry](),
	}
}

// addProcess records a process start (or rundown) event.
func (r *registry) addProcess(pid uint32, name string, when time.Time) {
	entry, loaded := r.processes.LoadOrStore(pid, func() *processEntry {
		return &processEntry{
			name:  name,
			start: when,
			tids:  maps.NewConcurrentMap[uint32, struct{}](),
		}
	})
	if loaded && entry.name == "" {
		// The entry may have been created unnamed by an earlier thread event.
		entry.name = name
	}
}

// endProcess records a process exit.
func (r *registry) endProcess(pid uint32, when time.Time) {
	if entry, ok := r.processes.Load(pid); ok {
		entry.end = when
	}
}

// addThread records a TID -> PID mapping and adds the thread to its parent
// process's thread set.
func (r *registry) addThread(tid, pid uint32) {
	r.tidToPid.Store(tid, pid)

	entry, _ := r.processes.LoadOrStore(pid, func() *processEntry {
		// Thread events can precede the process start event; the entry is
		// named when the process event arrives.
		return &processEntry{tids: maps.NewConcurrentMap[uint32, struct{}]()}
	})
	entry.tids.Store(tid, struct{}{})
}

// removeThread drops a TID mapping on thread termination. The thread stays
// in its process's historical thread set.
func (r *registry) removeThread(tid uint32) {
	r.tidToPid.Delete(tid)
}

// pidForThread resolves a TID to its parent PID. Hot path: called for every
// context switch to enrich the raw event with process identity.
func (r *registry) pidForThread(tid uint32) (uint32, bool) {
	return r.tidToPid.Load(tid)
}

// snapshot converts the registry into the immutable process list of a
// finished recording.
func (r *registry) snapshot() []Process {
	var out []Process
	r.processes.Range(func(pid uint32, entry *processEntry) bool {
		p := Process{
			PID:   pid,
			Name:  entry.name,
			Start: entry.start,
			End:   entry.end,
		}
		entry.tids.Range(func(tid uint32, _ struct{}) bool {
			p.TIDs = append(p.TIDs, tid)
			return true
		})
		sort.Slice(p.TIDs, func(i, j int) bool { return p.TIDs[i] < p.TIDs[j] })
		out = append(out, p)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}
