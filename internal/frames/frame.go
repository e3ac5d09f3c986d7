package frames

import (
	"time"

	"counterlens/internal/counters"
	"counterlens/internal/trace"
)

// Frame is one fixed-duration, single-core time bucket. The builder creates
// it and seeds the per-thread running times and page faults; attribution
// fills in Counters; everything downstream reads only.
type Frame struct {
	// Start of the bucket's half-open window [Start, Start+Duration).
	Start time.Time

	// Duration is the fixed interval length shared by every frame.
	Duration time.Duration

	// Core the frame describes.
	Core int

	// RunTimes maps each thread observed running in this window to its
	// accumulated running time.
	RunTimes map[trace.ThreadRef]time.Duration

	// Accounted is the sum of RunTimes. It equals Duration except on frames
	// before the first switch ever seen on the core, where it is zero.
	Accounted time.Duration

	// Counters is the attributed hardware-counter estimate for this window.
	Counters counters.Attributed

	// Faults are the monitored process's page faults inside this window on
	// this core, filtered but not aggregated.
	Faults []trace.PageFault
}

// End returns the exclusive end of the frame's window.
func (f *Frame) End() time.Time {
	return f.Start.Add(f.Duration)
}

// addRunTime credits a thread with running time inside this frame.
func (f *Frame) addRunTime(ref trace.ThreadRef, d time.Duration) {
	if d <= 0 {
		return
	}
	f.RunTimes[ref] += d
	f.Accounted += d
}

// Share returns the fraction of the frame's accounted time the thread was
// running, in [0, 1]. Zero when nothing was accounted.
func (f *Frame) Share(ref trace.ThreadRef) float64 {
	if f.Accounted <= 0 {
		return 0
	}
	return float64(f.RunTimes[ref]) / float64(f.Accounted)
}

// Set is the ordered collection of all frames of a run: core-major, and
// time-ordered within each core.
type Set struct {
	// Interval is the fixed frame length.
	Interval time.Duration

	// Cores is the machine core count (1 + highest core id observed among
	// counter samples).
	Cores int

	// Buckets is the number of frames per core.
	Buckets int

	// Frames holds Cores*Buckets frames; core c's frames occupy
	// [c*Buckets, (c+1)*Buckets).
	Frames []*Frame
}

// PerCore returns core c's time-ordered frame subsequence.
func (s *Set) PerCore(core int) []*Frame {
	return s.Frames[core*s.Buckets : (core+1)*s.Buckets]
}
