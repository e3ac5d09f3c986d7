package counters

import "time"

// Kind identifies one hardware counter within a snapshot.
type Kind uint8

const (
	KindIPC Kind = iota
	KindL3Miss
	KindL2Miss
	KindL3Hit
	KindL2Hit
	KindL3Clock
	KindL2Clock
	KindTLBMiss
)

// String returns the counter kind name as it appears in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindIPC:
		return "ipc"
	case KindL3Miss:
		return "l3miss"
	case KindL2Miss:
		return "l2miss"
	case KindL3Hit:
		return "l3hit"
	case KindL2Hit:
		return "l2hit"
	case KindL3Clock:
		return "l3clock"
	case KindL2Clock:
		return "l2clock"
	case KindTLBMiss:
		return "tlbmiss"
	default:
		return "unknown"
	}
}

// Sample is one timestamped hardware counter reading for one core. A single
// hardware snapshot line yields several samples sharing a timestamp.
type Sample struct {
	// Core the counter was read from.
	Core int

	// Wall-clock time of the snapshot.
	Time time.Time

	// DurationMs is the window in milliseconds the hardware integrated over.
	DurationMs float64

	Kind  Kind
	Value float64
}

// Attributed holds the per-frame derived counter estimates. Rate-based kinds
// are extrapolated to the frame's interval length; IPC and the clock figures
// are averages. L1Misses is always computed as L2Misses + L2Hits, never
// sampled directly.
type Attributed struct {
	L1Misses  float64
	L2Misses  float64
	L3Misses  float64
	L2Hits    float64
	L3Hits    float64
	IPC       float64
	L2Clock   float64
	L3Clock   float64
	TLBMisses float64
}

// CoreCount infers the machine's core count from a sample collection:
// one past the highest core id observed.
func CoreCount(samples []Sample) int {
	maxCore := -1
	for i := range samples {
		if samples[i].Core > maxCore {
			maxCore = samples[i].Core
		}
	}
	return maxCore + 1
}

// Timespan returns the earliest and latest sample timestamps. The second
// return is false when the collection is empty.
func Timespan(samples []Sample) (first, last time.Time, ok bool) {
	if len(samples) == 0 {
		return time.Time{}, time.Time{}, false
	}
	first, last = samples[0].Time, samples[0].Time
	for i := range samples[1:] {
		t := samples[i+1].Time
		if t.Before(first) {
			first = t
		}
		if t.After(last) {
			last = t
		}
	}
	return first, last, true
}
