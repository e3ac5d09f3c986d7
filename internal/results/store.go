package results

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	plog "github.com/phuslu/log"

	"counterlens/internal/logger"
	"counterlens/internal/projector"
)

// Store accumulates metric records keyed by (metric, frame, thread) and
// exports the aggregate and per-thread views. Safe for concurrent Record
// calls; exports snapshot under the same lock.
type Store struct {
	mu      sync.Mutex
	records []projector.Record
	log     plog.Logger
}

// NewStore creates an empty record store.
func NewStore() *Store {
	return &Store{log: logger.NewLoggerWithContext("results")}
}

// Record accumulates one metric record.
func (s *Store) Record(rec projector.Record) {
	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()
}

// RecordAll accumulates a batch of records.
func (s *Store) RecordAll(recs []projector.Record) {
	s.mu.Lock()
	s.records = append(s.records, recs...)
	s.mu.Unlock()
}

// Len returns the number of accumulated records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// frameKey groups records of one (metric, frame) pair.
type frameKey struct {
	metric string
	start  time.Time
	core   int
}

// frameLevelMetrics are clock/IPC figures: every thread of a frame carries
// the same frame-level value, so the aggregate view averages them instead
// of summing (summing would multiply the figure by the thread count).
var frameLevelMetrics = map[string]bool{
	projector.MetricL2Perf: true,
	projector.MetricL3Perf: true,
	projector.MetricIPC:    true,
}

// ExportAggregate writes the aggregate view: one row per (metric, frame),
// values combined across the frame's threads.
func (s *Store) ExportAggregate(w io.Writer) error {
	s.mu.Lock()
	records := make([]projector.Record, len(s.records))
	copy(records, s.records)
	s.mu.Unlock()

	sums := make(map[frameKey]float64)
	counts := make(map[frameKey]int)
	for _, rec := range records {
		key := frameKey{metric: rec.Metric, start: rec.FrameStart, core: rec.Core}
		sums[key] += rec.Value
		counts[key]++
	}

	keys := make([]frameKey, 0, len(sums))
	for key := range sums {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.metric != b.metric {
			return a.metric < b.metric
		}
		if !a.start.Equal(b.start) {
			return a.start.Before(b.start)
		}
		return a.core < b.core
	})

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"metric", "frame_start", "core", "value"}); err != nil {
		return err
	}
	for _, key := range keys {
		value := sums[key]
		if frameLevelMetrics[key.metric] {
			value /= float64(counts[key])
		}
		row := []string{
			key.metric,
			key.start.Format(time.RFC3339Nano),
			strconv.Itoa(key.core),
			formatValue(value),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportByThread writes the per-thread view: one row per record.
func (s *Store) ExportByThread(w io.Writer) error {
	s.mu.Lock()
	records := make([]projector.Record, len(s.records))
	copy(records, s.records)
	s.mu.Unlock()

	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Metric != b.Metric {
			return a.Metric < b.Metric
		}
		if !a.FrameStart.Equal(b.FrameStart) {
			return a.FrameStart.Before(b.FrameStart)
		}
		if a.Core != b.Core {
			return a.Core < b.Core
		}
		if a.Thread.ProcessID != b.Thread.ProcessID {
			return a.Thread.ProcessID < b.Thread.ProcessID
		}
		return a.Thread.ThreadID < b.Thread.ThreadID
	})

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"metric", "frame_start", "core", "pid", "tid", "value"}); err != nil {
		return err
	}
	for _, rec := range records {
		row := []string{
			rec.Metric,
			rec.FrameStart.Format(time.RFC3339Nano),
			strconv.Itoa(rec.Core),
			strconv.FormatUint(uint64(rec.Thread.ProcessID), 10),
			strconv.FormatUint(uint64(rec.Thread.ThreadID), 10),
			formatValue(rec.Value),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportFiles writes both views to the given paths; empty paths are skipped.
func (s *Store) ExportFiles(aggregatePath, byThreadPath string) error {
	if aggregatePath != "" {
		if err := s.exportFile(aggregatePath, s.ExportAggregate); err != nil {
			return fmt.Errorf("failed to write aggregate view: %w", err)
		}
		s.log.Info().Str("path", aggregatePath).Msg("Aggregate view exported")
	}
	if byThreadPath != "" {
		if err := s.exportFile(byThreadPath, s.ExportByThread); err != nil {
			return fmt.Errorf("failed to write per-thread view: %w", err)
		}
		s.log.Info().Str("path", byThreadPath).Msg("Per-thread view exported")
	}
	return nil
}

func (s *Store) exportFile(path string, export func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// formatValue renders a value without trailing float noise for whole counts.
func formatValue(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
