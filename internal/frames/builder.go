package frames

import (
	"sync"
	"time"

	plog "github.com/phuslu/log"

	"counterlens/internal/logger"
	"counterlens/internal/trace"
)

// Builder partitions an observation window into fixed-length per-core
// frames and reconstructs per-thread running time from the context switch
// sequence.
//
// Within a core the fold over buckets is strictly time-ordered: the
// carry-forward state (the last switch seen on the core) is only defined
// going forward in time. Cores share nothing, so each core's fold runs on
// its own goroutine and all are joined before the builder returns.
type Builder struct {
	// Interval is the fixed frame length.
	Interval time.Duration

	// Cores is the number of cores to build frames for.
	Cores int

	// Start and End bound the observation window [Start, End).
	Start time.Time
	End   time.Time

	// MonitoredPID selects whose page faults are kept per frame.
	MonitoredPID uint32

	// Resolver resolves raw (tid, pid) pairs against the monitored
	// process's thread set.
	Resolver *trace.ThreadResolver

	log plog.Logger
}

// NewBuilder creates a builder for the given observation window.
func NewBuilder(interval time.Duration, cores int, start, end time.Time, pid uint32, resolver *trace.ThreadResolver) *Builder {
	return &Builder{
		Interval:     interval,
		Cores:        cores,
		Start:        start,
		End:          end,
		MonitoredPID: pid,
		Resolver:     resolver,
		log:          logger.NewLoggerWithContext("frame-builder"),
	}
}

// buckets returns ceil((End-Start)/Interval), or zero for a degenerate
// window.
func (b *Builder) buckets() int {
	if !b.End.After(b.Start) || b.Interval <= 0 {
		return 0
	}
	window := b.End.Sub(b.Start)
	n := int(window / b.Interval)
	if window%b.Interval != 0 {
		n++
	}
	return n
}

// Build produces one frame per (core, bucket) pair covering the observation
// window. An empty or inverted window yields a zero-frame set, not an error.
func (b *Builder) Build(switches []trace.ContextSwitch, faults []trace.PageFault) *Set {
	buckets := b.buckets()
	set := &Set{
		Interval: b.Interval,
		Cores:    b.Cores,
		Buckets:  buckets,
		Frames:   make([]*Frame, b.Cores*buckets),
	}
	if buckets == 0 || b.Cores == 0 {
		b.log.Warn().
			Time("start", b.Start).
			Time("end", b.End).
			Msg("Empty observation window, no frames to build")
		return set
	}

	var wg sync.WaitGroup
	for core := 0; core < b.Cores; core++ {
		wg.Add(1)
		go func(core int) {
			defer wg.Done()
			b.buildCore(set, core, filterSwitches(switches, core), b.filterFaults(faults, core))
		}(core)
	}
	wg.Wait()

	b.log.Debug().
		Int("cores", b.Cores).
		Int("buckets", buckets).
		Int("frames", len(set.Frames)).
		Msg("Frame set built")
	return set
}

// buildCore runs the sequential time-ordered fold for one core. The carry
// state is the last switch seen on this core; it is owned exclusively by
// this goroutine.
func (b *Builder) buildCore(set *Set, core int, switches []trace.ContextSwitch, faults []trace.PageFault) {
	var last *trace.ContextSwitch

	// Switches before the observation window still advance the carry state:
	// the thread they left running is what a switch-free first bucket gets.
	idx := 0
	for idx < len(switches) && switches[idx].Time.Before(b.Start) {
		last = &switches[idx]
		idx++
	}

	faultIdx := 0
	for bucket := 0; bucket < set.Buckets; bucket++ {
		bucketStart := b.Start.Add(time.Duration(bucket) * b.Interval)
		bucketEnd := bucketStart.Add(b.Interval)

		frame := &Frame{
			Start:    bucketStart,
			Duration: b.Interval,
			Core:     core,
			RunTimes: make(map[trace.ThreadRef]time.Duration),
		}

		// Walk this bucket's switch subsequence. Each switch credits the
		// thread that was running before it with the time since the
		// previous switch, or since bucket start for the first one.
		cursor := bucketStart
		sawSwitch := false
		for idx < len(switches) && switches[idx].Time.Before(bucketEnd) {
			sw := &switches[idx]
			frame.addRunTime(b.Resolver.Resolve(sw.OldThreadID, sw.OldProcessID), sw.Time.Sub(cursor))
			cursor = sw.Time
			last = sw
			sawSwitch = true
			idx++
		}

		switch {
		case sawSwitch:
			// Tail of the bucket belongs to the thread the last switch
			// brought in.
			frame.addRunTime(b.Resolver.Resolve(last.NewThreadID, last.NewProcessID), bucketEnd.Sub(cursor))
		case last != nil:
			// No scheduling activity observed: the whole bucket belongs to
			// the thread that was running as of the carried switch, however
			// long ago that was.
			frame.addRunTime(b.Resolver.Resolve(last.NewThreadID, last.NewProcessID), b.Interval)
		default:
			// No switch ever seen on this core: nothing can be accounted.
		}

		// Page faults overlapping this frame, filtered not aggregated.
		for faultIdx < len(faults) && faults[faultIdx].Time.Before(bucketEnd) {
			if !faults[faultIdx].Time.Before(bucketStart) {
				frame.Faults = append(frame.Faults, faults[faultIdx])
			}
			faultIdx++
		}

		set.Frames[core*set.Buckets+bucket] = frame
	}
}

// filterSwitches selects one core's time-ordered switch subsequence.
func filterSwitches(switches []trace.ContextSwitch, core int) []trace.ContextSwitch {
	out := make([]trace.ContextSwitch, 0, len(switches)/4)
	for i := range switches {
		if switches[i].Core == core {
			out = append(out, switches[i])
		}
	}
	return out
}

// filterFaults selects the monitored process's faults on one core.
func (b *Builder) filterFaults(faults []trace.PageFault, core int) []trace.PageFault {
	var out []trace.PageFault
	for i := range faults {
		if faults[i].Core == core && faults[i].ProcessID == b.MonitoredPID {
			out = append(out, faults[i])
		}
	}
	return out
}
