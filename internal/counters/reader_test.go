package counters

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var testDate = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

func readString(t *testing.T, input string) []Sample {
	t.Helper()
	samples, err := NewReader(strings.NewReader(input), testDate).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	return samples
}

func TestReadAll_CacheLineSingleCore(t *testing.T) {
	samples := readString(t, "00:00:00:0;10;CACHE;1.0;5;3;2;1;9;8\n")

	if len(samples) != 7 {
		t.Fatalf("got %d samples, want 7", len(samples))
	}
	for i, s := range samples {
		if s.Core != 0 {
			t.Errorf("sample %d: core = %d, want 0", i, s.Core)
		}
		if !s.Time.Equal(testDate) {
			t.Errorf("sample %d: time = %v, want %v", i, s.Time, testDate)
		}
		if s.DurationMs != 10 {
			t.Errorf("sample %d: duration = %v, want 10", i, s.DurationMs)
		}
	}

	// Field order within a group: IPC, L3Miss, L2Miss, L3Hit, L2Hit, L3Clock, L2Clock.
	wantValues := map[Kind]float64{
		KindIPC:     1.0,
		KindL3Miss:  5,
		KindL2Miss:  3,
		KindL3Hit:   2,
		KindL2Hit:   1,
		KindL3Clock: 9,
		KindL2Clock: 8,
	}
	for _, s := range samples {
		if want, ok := wantValues[s.Kind]; !ok || s.Value != want {
			t.Errorf("kind %v: value = %v, want %v", s.Kind, s.Value, want)
		}
	}
}

func TestReadAll_CacheLineMultiCore(t *testing.T) {
	samples := readString(t,
		"12:30:05:250;20;CACHE;1.0;5;3;2;1;9;8;2.0;50;30;20;10;90;80\n")

	if len(samples) != 14 {
		t.Fatalf("got %d samples, want 14", len(samples))
	}
	if got := CoreCount(samples); got != 2 {
		t.Errorf("CoreCount = %d, want 2", got)
	}

	wantTime := testDate.Add(12*time.Hour + 30*time.Minute + 5*time.Second + 250*time.Millisecond)
	for i, s := range samples {
		if !s.Time.Equal(wantTime) {
			t.Fatalf("sample %d: time = %v, want %v", i, s.Time, wantTime)
		}
	}

	// Second group belongs to core 1 with its own values.
	for _, s := range samples[7:] {
		if s.Core != 1 {
			t.Errorf("second group: core = %d, want 1", s.Core)
		}
		if s.Kind == KindIPC && s.Value != 2.0 {
			t.Errorf("core 1 IPC = %v, want 2.0", s.Value)
		}
	}
}

func TestReadAll_TLBTrailingFieldDiscarded(t *testing.T) {
	// Three numeric fields after the tag: the last is a known artifact of
	// the format, leaving exactly two cores.
	samples := readString(t, "00:00:01:0;5;TLB;100;200;300\n")

	if len(samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(samples))
	}
	for i, s := range samples {
		if s.Kind != KindTLBMiss {
			t.Errorf("sample %d: kind = %v, want tlbmiss", i, s.Kind)
		}
		if s.Core != i {
			t.Errorf("sample %d: core = %d, want %d", i, s.Core, i)
		}
	}
	if samples[0].Value != 100 || samples[1].Value != 200 {
		t.Errorf("values = %v, %v; want 100, 200", samples[0].Value, samples[1].Value)
	}
}

func TestReadAll_SkippedLines(t *testing.T) {
	input := strings.Join([]string{
		"BEGIN some header",
		"short;line",
		"00:00:00:0;10;OTHER;1;2;3",
		"00:00:00:0;10;CACHE;1.0;5;3;2;1;9;8",
		"",
	}, "\n")

	samples := readString(t, input)
	if len(samples) != 7 {
		t.Errorf("got %d samples, want 7 (only the CACHE line counts)", len(samples))
	}
}

func TestReadAll_MalformedNumericFieldIsFatal(t *testing.T) {
	inputs := []string{
		"00:00:00:0;10;CACHE;1.0;bogus;3;2;1;9;8\n",
		"00:00:00:0;nope;CACHE;1.0;5;3;2;1;9;8\n",
		"00:00:xx:0;10;CACHE;1.0;5;3;2;1;9;8\n",
		"00:00:00;10;CACHE;1.0;5;3;2;1;9;8\n", // 3 timestamp fields, not 4
	}
	for _, input := range inputs {
		_, err := NewReader(strings.NewReader(input), testDate).ReadAll()
		if !errors.Is(err, ErrMalformedLog) {
			t.Errorf("input %q: err = %v, want ErrMalformedLog", input, err)
		}
	}
}

func TestReadAll_TrailingDelimiter(t *testing.T) {
	// Terminating semicolons leave empty fields that must not break group
	// counting.
	samples := readString(t, "00:00:00:0;10;CACHE;1.0;5;3;2;1;9;8;\n")
	if len(samples) != 7 {
		t.Errorf("got %d samples, want 7", len(samples))
	}
}

func TestTimespan(t *testing.T) {
	if _, _, ok := Timespan(nil); ok {
		t.Error("Timespan of empty collection reported ok")
	}

	samples := []Sample{
		{Time: testDate.Add(2 * time.Second)},
		{Time: testDate.Add(1 * time.Second)},
		{Time: testDate.Add(3 * time.Second)},
	}
	first, last, ok := Timespan(samples)
	if !ok {
		t.Fatal("Timespan reported not ok")
	}
	if !first.Equal(testDate.Add(1 * time.Second)) {
		t.Errorf("first = %v, want %v", first, testDate.Add(1*time.Second))
	}
	if !last.Equal(testDate.Add(3 * time.Second)) {
		t.Errorf("last = %v, want %v", last, testDate.Add(3*time.Second))
	}
}
