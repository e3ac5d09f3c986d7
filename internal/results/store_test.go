package results

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"counterlens/internal/projector"
	"counterlens/internal/trace"
)

var t0 = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func rec(metric string, start time.Time, core int, tid uint32, value float64) projector.Record {
	return projector.Record{
		Metric:     metric,
		FrameStart: start,
		Core:       core,
		Thread:     trace.ThreadRef{ThreadID: tid, ProcessID: 42, Known: true},
		Value:      value,
	}
}

func parseCSV(t *testing.T, buf *bytes.Buffer) [][]string {
	t.Helper()
	rows, err := csv.NewReader(buf).ReadAll()
	if err != nil {
		t.Fatalf("export produced invalid CSV: %v", err)
	}
	return rows
}

func TestExportAggregate_SumsCountableMetrics(t *testing.T) {
	s := NewStore()
	s.RecordAll([]projector.Record{
		rec(projector.MetricL2Miss, t0, 0, 1, 30),
		rec(projector.MetricL2Miss, t0, 0, 2, 70),
	})

	var buf bytes.Buffer
	if err := s.ExportAggregate(&buf); err != nil {
		t.Fatalf("ExportAggregate failed: %v", err)
	}
	rows := parseCSV(t, &buf)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want header + 1", len(rows))
	}
	if rows[1][0] != "l2miss" || rows[1][3] != "100" {
		t.Errorf("row = %v, want l2miss summed to 100", rows[1])
	}
}

func TestExportAggregate_AveragesFrameLevelMetrics(t *testing.T) {
	// Each thread carries the same frame-level IPC; the aggregate view must
	// not multiply it by the thread count.
	s := NewStore()
	s.RecordAll([]projector.Record{
		rec(projector.MetricIPC, t0, 0, 1, 1.5),
		rec(projector.MetricIPC, t0, 0, 2, 1.5),
		rec(projector.MetricIPC, t0, 0, 3, 1.5),
	})

	var buf bytes.Buffer
	if err := s.ExportAggregate(&buf); err != nil {
		t.Fatalf("ExportAggregate failed: %v", err)
	}
	rows := parseCSV(t, &buf)
	if rows[1][3] != "1.5" {
		t.Errorf("aggregate ipc = %s, want 1.5", rows[1][3])
	}
}

func TestExportAggregate_RowOrderAndShape(t *testing.T) {
	s := NewStore()
	later := t0.Add(100 * time.Millisecond)
	s.RecordAll([]projector.Record{
		rec(projector.MetricL3Miss, later, 0, 1, 1),
		rec(projector.MetricL2Miss, later, 1, 1, 2),
		rec(projector.MetricL2Miss, t0, 0, 1, 3),
		rec(projector.MetricL2Miss, later, 0, 1, 4),
	})

	var buf bytes.Buffer
	if err := s.ExportAggregate(&buf); err != nil {
		t.Fatalf("ExportAggregate failed: %v", err)
	}
	rows := parseCSV(t, &buf)

	wantHeader := []string{"metric", "frame_start", "core", "value"}
	for i, col := range wantHeader {
		if rows[0][i] != col {
			t.Fatalf("header = %v, want %v", rows[0], wantHeader)
		}
	}
	// Sorted by metric, then frame start, then core.
	wantOrder := []struct {
		metric, core string
	}{
		{"l2miss", "0"}, // t0
		{"l2miss", "0"}, // later
		{"l2miss", "1"},
		{"l3miss", "0"},
	}
	if len(rows) != 1+len(wantOrder) {
		t.Fatalf("got %d rows, want %d", len(rows), 1+len(wantOrder))
	}
	for i, want := range wantOrder {
		row := rows[i+1]
		if row[0] != want.metric || row[2] != want.core {
			t.Errorf("row %d = %v, want metric %s core %s", i, row, want.metric, want.core)
		}
	}
}

func TestExportByThread_OneRowPerRecord(t *testing.T) {
	s := NewStore()
	s.RecordAll([]projector.Record{
		rec(projector.MetricL2Miss, t0, 0, 2, 70),
		rec(projector.MetricL2Miss, t0, 0, 1, 30),
	})

	var buf bytes.Buffer
	if err := s.ExportByThread(&buf); err != nil {
		t.Fatalf("ExportByThread failed: %v", err)
	}
	rows := parseCSV(t, &buf)
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}
	// Sorted by tid within the frame.
	if rows[1][4] != "1" || rows[1][5] != "30" {
		t.Errorf("first row = %v, want tid 1 value 30", rows[1])
	}
	if rows[2][4] != "2" || rows[2][5] != "70" {
		t.Errorf("second row = %v, want tid 2 value 70", rows[2])
	}
	if rows[1][3] != "42" {
		t.Errorf("pid column = %s, want 42", rows[1][3])
	}
}

func TestFormatValue(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{100, "100"},
		{0, "0"},
		{1.5, "1.5"},
		{-3, "-3"},
	}
	for _, c := range cases {
		if got := formatValue(c.in); got != c.want {
			t.Errorf("formatValue(%v) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestStore_ConcurrentRecords(t *testing.T) {
	s := NewStore()
	done := make(chan struct{})
	for w := 0; w < 4; w++ {
		go func() {
			for i := 0; i < 100; i++ {
				s.Record(rec(projector.MetricL2Miss, t0, 0, 1, 1))
			}
			done <- struct{}{}
		}()
	}
	for w := 0; w < 4; w++ {
		<-done
	}
	if s.Len() != 400 {
		t.Errorf("Len = %d, want 400", s.Len())
	}
}
