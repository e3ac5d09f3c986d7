package projector

import (
	"math"
	"time"

	"counterlens/internal/frames"
	"counterlens/internal/trace"
)

// Metric names emitted per (frame, thread).
const (
	MetricL1Miss  = "l1miss"
	MetricL2Miss  = "l2miss"
	MetricL3Miss  = "l3miss"
	MetricTLBMiss = "tlbmiss"
	MetricL2Perf  = "l2perf"
	MetricL3Perf  = "l3perf"
	MetricIPC     = "ipc"
	MetricDZF     = "dzf" // demand-zero (minor) page faults
	MetricHPF     = "hpf" // hard (major) page faults
)

// AllMetrics lists every tracked metric name, in export order.
var AllMetrics = []string{
	MetricL1Miss, MetricL2Miss, MetricL3Miss, MetricTLBMiss,
	MetricL2Perf, MetricL3Perf, MetricIPC, MetricDZF, MetricHPF,
}

// Record is one named per-thread metric value for one frame: the unit the
// result sink stores.
type Record struct {
	Metric     string
	FrameStart time.Time
	Core       int
	Thread     trace.ThreadRef
	Value      float64
}

// Project turns a fully attributed frame set into metric records: for every
// frame and every thread with nonzero share, one record per tracked metric.
//
// Countable hardware events (cache and TLB misses) are share-weighted and
// rounded to whole units. The clock-domain figures (l2perf, l3perf) and IPC
// are frame-level values, neither share-weighted nor rounded: they describe
// the core during the frame, not events divisible among its threads. Fault
// counts are exact per-thread tallies of the frame's fault records.
func Project(set *frames.Set) []Record {
	var records []Record
	for _, frame := range set.Frames {
		records = append(records, ProjectFrame(frame)...)
	}
	return records
}

// ProjectFrame emits one frame's records. Pure function of the frame; safe
// to call concurrently across frames.
func ProjectFrame(frame *frames.Frame) []Record {
	var records []Record
	emit := func(thread trace.ThreadRef, metric string, value float64) {
		records = append(records, Record{
			Metric:     metric,
			FrameStart: frame.Start,
			Core:       frame.Core,
			Thread:     thread,
			Value:      value,
		})
	}

	for thread := range frame.RunTimes {
		share := frame.Share(thread)
		if share <= 0 {
			continue
		}

		emit(thread, MetricL1Miss, math.Round(share*frame.Counters.L1Misses))
		emit(thread, MetricL2Miss, math.Round(share*frame.Counters.L2Misses))
		emit(thread, MetricL3Miss, math.Round(share*frame.Counters.L3Misses))
		emit(thread, MetricTLBMiss, math.Round(share*frame.Counters.TLBMisses))

		emit(thread, MetricL2Perf, frame.Counters.L2Clock)
		emit(thread, MetricL3Perf, frame.Counters.L3Clock)
		emit(thread, MetricIPC, frame.Counters.IPC)

		emit(thread, MetricDZF, float64(countFaults(frame.Faults, thread, trace.FaultMinor)))
		emit(thread, MetricHPF, float64(countFaults(frame.Faults, thread, trace.FaultMajor)))
	}
	return records
}

// countFaults tallies the frame's fault records for one thread and kind.
func countFaults(faults []trace.PageFault, thread trace.ThreadRef, kind trace.FaultKind) int {
	n := 0
	for i := range faults {
		if faults[i].Kind == kind &&
			faults[i].ThreadID == thread.ThreadID &&
			faults[i].ProcessID == thread.ProcessID {
			n++
		}
	}
	return n
}
