package trace

import (
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func testRecording() *Recording {
	return &Recording{
		Start: t0,
		End:   t0.Add(time.Minute),
		Processes: []Process{
			{PID: 42, Name: "MyApp.exe", Start: t0.Add(5 * time.Second), TIDs: []uint32{100, 101}},
			{PID: 43, Name: "myapp_helper.exe", Start: t0},
			{PID: 7, Name: "other.exe", Start: t0},
		},
	}
}

func TestProcessByPrefix(t *testing.T) {
	rec := testRecording()

	tests := []struct {
		prefix  string
		wantPID uint32
		wantErr bool
	}{
		{"myapp", 42, false},   // first match wins
		{"MYAPP_H", 43, false}, // case-insensitive
		{"other.exe", 7, false},
		{"nosuch", 0, true},
	}
	for _, tt := range tests {
		p, err := rec.ProcessByPrefix(tt.prefix)
		if tt.wantErr {
			if !errors.Is(err, ErrProcessNotFound) {
				t.Errorf("prefix %q: err = %v, want ErrProcessNotFound", tt.prefix, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("prefix %q: unexpected error %v", tt.prefix, err)
			continue
		}
		if p.PID != tt.wantPID {
			t.Errorf("prefix %q: pid = %d, want %d", tt.prefix, p.PID, tt.wantPID)
		}
	}
}

func TestLifetime_ClampedToRecording(t *testing.T) {
	rec := testRecording()

	tests := []struct {
		name      string
		proc      Process
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			"started during capture, outlived it",
			Process{Start: t0.Add(5 * time.Second)},
			t0.Add(5 * time.Second), rec.End,
		},
		{
			"predates the capture",
			Process{Start: t0.Add(-time.Hour)},
			rec.Start, rec.End,
		},
		{
			"ended during capture",
			Process{Start: t0.Add(time.Second), End: t0.Add(30 * time.Second)},
			t0.Add(time.Second), t0.Add(30 * time.Second),
		},
		{
			"rundown process with zero start",
			Process{},
			rec.Start, rec.End,
		},
	}
	for _, tt := range tests {
		start, end := rec.Lifetime(&tt.proc)
		if !start.Equal(tt.wantStart) || !end.Equal(tt.wantEnd) {
			t.Errorf("%s: lifetime = [%v, %v], want [%v, %v]",
				tt.name, start, end, tt.wantStart, tt.wantEnd)
		}
	}
}

func TestSeal_OrdersEventsByTime(t *testing.T) {
	rec := &Recording{
		Switches: []ContextSwitch{
			{Core: 0, Time: t0.Add(3 * time.Second)},
			{Core: 1, Time: t0.Add(1 * time.Second)},
			{Core: 0, Time: t0.Add(2 * time.Second)},
		},
		Faults: []PageFault{
			{Time: t0.Add(2 * time.Second)},
			{Time: t0.Add(1 * time.Second)},
		},
	}
	rec.seal()

	for i := 1; i < len(rec.Switches); i++ {
		if rec.Switches[i].Time.Before(rec.Switches[i-1].Time) {
			t.Fatalf("switches not time-ordered after seal: %v", rec.Switches)
		}
	}
	for i := 1; i < len(rec.Faults); i++ {
		if rec.Faults[i].Time.Before(rec.Faults[i-1].Time) {
			t.Fatalf("faults not time-ordered after seal: %v", rec.Faults)
		}
	}
}

func TestSwitchesOnCore(t *testing.T) {
	rec := &Recording{
		Switches: []ContextSwitch{
			{Core: 0, Time: t0},
			{Core: 1, Time: t0.Add(time.Second)},
			{Core: 0, Time: t0.Add(2 * time.Second)},
		},
	}

	core0 := rec.SwitchesOnCore(0)
	if len(core0) != 2 {
		t.Fatalf("got %d switches on core 0, want 2", len(core0))
	}
	if !core0[1].Time.After(core0[0].Time) {
		t.Error("core subsequence lost time order")
	}
	if len(rec.SwitchesOnCore(3)) != 0 {
		t.Error("unknown core returned switches")
	}
}

func TestThreadResolver(t *testing.T) {
	r := NewThreadResolver(&Process{PID: 42, TIDs: []uint32{100, 101}})

	known := r.Resolve(100, 42)
	if !known.Known || known.ThreadID != 100 || known.ProcessID != 42 {
		t.Errorf("known thread resolved to %+v", known)
	}

	// Foreign threads are retained as synthetic refs, never dropped.
	foreign := r.Resolve(999, 7)
	if foreign.Known {
		t.Errorf("foreign thread marked known: %+v", foreign)
	}
	if foreign.ThreadID != 999 || foreign.ProcessID != 7 {
		t.Errorf("foreign thread lost identity: %+v", foreign)
	}
}

func TestThreadStateString(t *testing.T) {
	if StateWaiting.String() != "waiting" {
		t.Errorf("StateWaiting = %q", StateWaiting.String())
	}
	if ThreadState(200).String() != "unknown" {
		t.Errorf("out of range state = %q", ThreadState(200).String())
	}
}
