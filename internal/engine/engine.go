package engine

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	plog "github.com/phuslu/log"

	"counterlens/internal/attribution"
	"counterlens/internal/counters"
	"counterlens/internal/frames"
	"counterlens/internal/logger"
	"counterlens/internal/projector"
	"counterlens/internal/results"
	"counterlens/internal/trace"
)

// Engine runs one batch analysis: resolve the monitored process, build the
// per-core frame set from the scheduling trace, attribute hardware counter
// estimates to each frame, and project per-thread metric records into the
// result store.
type Engine struct {
	// ProcessName is the name prefix of the process to analyze.
	ProcessName string

	// Interval is the fixed frame length.
	Interval time.Duration

	// Workers bounds the per-frame attribution/projection parallelism.
	// Zero means one worker per CPU.
	Workers int

	Stats *Stats
	log   plog.Logger
}

// New creates an engine for the given process and frame interval.
func New(processName string, interval time.Duration) *Engine {
	return &Engine{
		ProcessName: processName,
		Interval:    interval,
		Stats:       &Stats{},
		log:         logger.NewLoggerWithContext("engine"),
	}
}

// Run analyzes one recording against one counter sample collection and
// returns the populated result store.
//
// Fatal conditions (no matching process) abort the run. A degenerate
// observation window or an empty sample collection yields an empty store,
// not an error.
func (e *Engine) Run(rec *trace.Recording, samples []counters.Sample) (*results.Store, error) {
	e.Stats.SamplesParsed.Store(int64(len(samples)))
	e.Stats.SwitchesRecorded.Store(int64(len(rec.Switches)))
	e.Stats.FaultsRecorded.Store(int64(len(rec.Faults)))

	process, err := rec.ProcessByPrefix(e.ProcessName)
	if err != nil {
		return nil, fmt.Errorf("cannot analyze %q: %w", e.ProcessName, err)
	}
	e.log.Info().
		Uint32("pid", process.PID).
		Str("name", process.Name).
		Int("threads", len(process.TIDs)).
		Msg("Monitored process resolved")

	// The machine's core count comes from the counter log, not the trace:
	// one past the highest core id the hardware reported.
	coreCount := counters.CoreCount(samples)

	start, end := e.observationWindow(rec, process, samples)
	if !end.After(start) || coreCount == 0 {
		e.log.Warn().
			Time("start", start).
			Time("end", end).
			Int("cores", coreCount).
			Msg("Observation window is empty, producing no frames")
		return results.NewStore(), nil
	}

	builder := frames.NewBuilder(e.Interval, coreCount, start, end,
		process.PID, trace.NewThreadResolver(process))
	set := builder.Build(rec.Switches, rec.Faults)
	e.Stats.FramesBuilt.Store(int64(len(set.Frames)))

	store := results.NewStore()
	e.attributeAndProject(set, samples, store)
	e.Stats.RecordsEmitted.Store(int64(store.Len()))

	e.log.Info().
		Int("frames", len(set.Frames)).
		Int("records", store.Len()).
		Msg("Analysis complete")
	return store, nil
}

// observationWindow intersects the monitored process's lifetime with the
// counter samples' timespan.
func (e *Engine) observationWindow(rec *trace.Recording, p *trace.Process, samples []counters.Sample) (time.Time, time.Time) {
	start, end := rec.Lifetime(p)

	firstSample, lastSample, ok := counters.Timespan(samples)
	if !ok {
		return start, start // no counters at all: empty window
	}
	if firstSample.After(start) {
		start = firstSample
	}
	if lastSample.Before(end) {
		end = lastSample
	}
	return start, end
}

// attributeAndProject runs attribution and projection per frame across a
// bounded worker pool. Frames are independent once the builder has joined
// all cores; the sample collection is immutable and shared read-only.
func (e *Engine) attributeAndProject(set *frames.Set, samples []counters.Sample, store *results.Store) {
	workers := e.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	work := make(chan *frames.Frame)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for frame := range work {
				frame.Counters = attribution.Attribute(frame, samples)
				store.RecordAll(projector.ProjectFrame(frame))
			}
		}()
	}
	for _, frame := range set.Frames {
		work <- frame
	}
	close(work)
	wg.Wait()
}
