package engine

import (
	"errors"
	"testing"
	"time"

	"counterlens/internal/counters"
	"counterlens/internal/trace"
)

var t0 = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// testRecording captures a 1 second run of pid 42 ("myapp.exe") with two
// threads alternating on core 0 every 50ms.
func testRecording() *trace.Recording {
	rec := &trace.Recording{
		Start: t0,
		End:   t0.Add(time.Second),
		Processes: []trace.Process{
			{PID: 42, Name: "myapp.exe", Start: t0, TIDs: []uint32{100, 101}},
			{PID: 7, Name: "other.exe", Start: t0, TIDs: []uint32{700}},
		},
	}
	tids := []uint32{100, 101}
	for i := 0; i < 20; i++ {
		rec.Switches = append(rec.Switches, trace.ContextSwitch{
			Core:         0,
			Time:         t0.Add(time.Duration(i) * 50 * time.Millisecond),
			OldThreadID:  tids[i%2],
			OldProcessID: 42,
			NewThreadID:  tids[(i+1)%2],
			NewProcessID: 42,
		})
	}
	return rec
}

// testSamples emits one full cache snapshot every 100ms on core 0.
func testSamples() []counters.Sample {
	var samples []counters.Sample
	kinds := map[counters.Kind]float64{
		counters.KindIPC:     1.0,
		counters.KindL3Miss:  10,
		counters.KindL2Miss:  20,
		counters.KindL3Hit:   10,
		counters.KindL2Hit:   20,
		counters.KindL3Clock: 0.5,
		counters.KindL2Clock: 0.5,
	}
	for i := 0; i < 10; i++ {
		at := t0.Add(time.Duration(i)*100*time.Millisecond + 10*time.Millisecond)
		for kind, value := range kinds {
			samples = append(samples, counters.Sample{
				Core: 0, Time: at, DurationMs: 10, Kind: kind, Value: value,
			})
		}
	}
	return samples
}

func TestRun_ProcessNotFound(t *testing.T) {
	eng := New("nosuchprocess", 100*time.Millisecond)
	_, err := eng.Run(testRecording(), testSamples())
	if !errors.Is(err, trace.ErrProcessNotFound) {
		t.Errorf("err = %v, want ErrProcessNotFound", err)
	}
}

func TestRun_PrefixMatchIsCaseInsensitive(t *testing.T) {
	eng := New("MyApp", 100*time.Millisecond)
	store, err := eng.Run(testRecording(), testSamples())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if store.Len() == 0 {
		t.Error("no records emitted for a matched process")
	}
}

func TestRun_EndToEnd(t *testing.T) {
	eng := New("myapp", 100*time.Millisecond)
	store, err := eng.Run(testRecording(), testSamples())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// The observation window is clipped to the sample timespan, which runs
	// from 10ms to 910ms: ceil(900/100) = 9 frames on the single core.
	if got := eng.Stats.FramesBuilt.Load(); got != 9 {
		t.Errorf("frames built = %d, want 9", got)
	}
	// Both threads run in every frame, 9 metrics each.
	if got := eng.Stats.RecordsEmitted.Load(); got != 9*2*9 {
		t.Errorf("records emitted = %d, want %d", got, 9*2*9)
	}
	if got := int64(store.Len()); got != eng.Stats.RecordsEmitted.Load() {
		t.Errorf("store.Len() = %d disagrees with stats %d", got, eng.Stats.RecordsEmitted.Load())
	}
	if got := eng.Stats.SwitchesRecorded.Load(); got != 20 {
		t.Errorf("switches recorded = %d, want 20", got)
	}
}

func TestRun_NoSamplesYieldsEmptyStore(t *testing.T) {
	eng := New("myapp", 100*time.Millisecond)
	store, err := eng.Run(testRecording(), nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("store.Len() = %d, want 0", store.Len())
	}
}

func TestRun_SingleWorkerMatchesDefault(t *testing.T) {
	// The per-frame worker pool must not change the record count.
	multi := New("myapp", 100*time.Millisecond)
	single := New("myapp", 100*time.Millisecond)
	single.Workers = 1

	a, err := multi.Run(testRecording(), testSamples())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	b, err := single.Run(testRecording(), testSamples())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if a.Len() != b.Len() {
		t.Errorf("record counts differ: %d vs %d", a.Len(), b.Len())
	}
}

func TestObservationWindow_IntersectsLifetimeAndSamples(t *testing.T) {
	eng := New("myapp", 100*time.Millisecond)
	rec := testRecording()
	p := &rec.Processes[0]

	samples := []counters.Sample{
		{Core: 0, Time: t0.Add(200 * time.Millisecond), Kind: counters.KindL2Miss},
		{Core: 0, Time: t0.Add(700 * time.Millisecond), Kind: counters.KindL2Miss},
	}
	start, end := eng.observationWindow(rec, p, samples)
	if !start.Equal(t0.Add(200 * time.Millisecond)) {
		t.Errorf("start = %v, want first sample time", start)
	}
	if !end.Equal(t0.Add(700 * time.Millisecond)) {
		t.Errorf("end = %v, want last sample time", end)
	}

	// Samples wider than the process lifetime: the lifetime wins.
	wide := []counters.Sample{
		{Core: 0, Time: t0.Add(-time.Hour), Kind: counters.KindL2Miss},
		{Core: 0, Time: t0.Add(time.Hour), Kind: counters.KindL2Miss},
	}
	start, end = eng.observationWindow(rec, p, wide)
	if !start.Equal(t0) || !end.Equal(t0.Add(time.Second)) {
		t.Errorf("window = [%v, %v], want the recording-clamped lifetime", start, end)
	}
}
