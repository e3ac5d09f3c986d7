package attribution

import (
	"time"

	"counterlens/internal/counters"
	"counterlens/internal/frames"
)

// Attribute estimates a frame's hardware counter activity from the sample
// collection and returns the derived per-frame values.
//
// Samples are selected when their core matches the frame's and their
// timestamp lies in the closed window [Start, Start+Duration]. Raw counts
// integrated over variable sample durations (the cache hit/miss kinds and
// TLB misses) are rate-normalized: summed, divided by the summed sample
// durations to a per-millisecond rate, then scaled to the frame's fixed
// interval. That makes frames comparable even though hardware samples
// arrive at irregular, non-aligned intervals. IPC and the clock figures are
// already averages, so they are averaged across the selected samples
// instead.
//
// When no cache-group samples fall in the window the whole result is zero;
// there is nothing to extrapolate from. TLB misses are normalized against
// their own duration sum because TLB and cache snapshots are not co-timed.
func Attribute(frame *frames.Frame, samples []counters.Sample) counters.Attributed {
	start := frame.Start
	end := frame.End()
	intervalMs := float64(frame.Duration) / float64(time.Millisecond)

	var (
		sums      [8]float64 // indexed by counters.Kind
		durations [8]float64
		counts    [8]int
	)

	for i := range samples {
		s := &samples[i]
		if s.Core != frame.Core {
			continue
		}
		if s.Time.Before(start) || s.Time.After(end) {
			continue
		}
		sums[s.Kind] += s.Value
		durations[s.Kind] += s.DurationMs
		counts[s.Kind]++
	}

	// Zero-sample policy: no cache snapshot in the window means no estimate
	// at all, never a division by zero.
	if counts[counters.KindL2Miss] == 0 {
		return counters.Attributed{}
	}

	extrapolate := func(kind counters.Kind) float64 {
		if durations[kind] <= 0 {
			return 0
		}
		return sums[kind] / durations[kind] * intervalMs
	}
	average := func(kind counters.Kind) float64 {
		if counts[kind] == 0 {
			return 0
		}
		return sums[kind] / float64(counts[kind])
	}

	attributed := counters.Attributed{
		L2Misses:  extrapolate(counters.KindL2Miss),
		L3Misses:  extrapolate(counters.KindL3Miss),
		L2Hits:    extrapolate(counters.KindL2Hit),
		L3Hits:    extrapolate(counters.KindL3Hit),
		TLBMisses: extrapolate(counters.KindTLBMiss),
		IPC:       average(counters.KindIPC),
		L2Clock:   average(counters.KindL2Clock),
		L3Clock:   average(counters.KindL3Clock),
	}

	// L1 misses are not sampled by the hardware log; every access that
	// reached L2 missed L1, whether it hit or missed there.
	attributed.L1Misses = attributed.L2Misses + attributed.L2Hits

	return attributed
}

// Apply attributes counters to every frame of a set in place. Frames are
// independent given the immutable sample collection, so the caller may
// instead shard set.Frames and run Attribute concurrently.
func Apply(set *frames.Set, samples []counters.Sample) {
	for _, frame := range set.Frames {
		frame.Counters = Attribute(frame, samples)
	}
}
