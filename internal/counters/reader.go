package counters

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"counterlens/internal/logger"

	"github.com/phuslu/log"
)

// ErrMalformedLog marks a fatal counter log parse failure. Any numeric field
// that fails to parse aborts the whole ingestion; there is no partial-line
// recovery.
var ErrMalformedLog = errors.New("malformed counter log")

// cacheGroupKinds is the per-core field order of a CACHE record group.
var cacheGroupKinds = [7]Kind{
	KindIPC, KindL3Miss, KindL2Miss, KindL3Hit, KindL2Hit, KindL3Clock, KindL2Clock,
}

// Reader parses a vendor counter log into typed samples. The log is
// line-oriented and semicolon-delimited:
//
//	HH:MM:SS:ms;<duration ms>;CACHE;<7 fields per core>...
//	HH:MM:SS:ms;<duration ms>;TLB;<1 field per core>...;<discarded>
//
// Lines starting with BEGIN, lines with fewer than 3 fields and lines with
// an unrecognized record tag are skipped. The reader is consumed once;
// restart by re-opening the source.
type Reader struct {
	scanner *bufio.Scanner
	date    time.Time
	line    int
	log     log.Logger
}

// NewReader creates a Reader over r. date anchors the log's bare
// time-of-day stamps to a calendar day.
func NewReader(r io.Reader, date time.Time) *Reader {
	return &Reader{
		scanner: bufio.NewScanner(r),
		date:    date,
		log:     logger.NewLoggerWithContext("counter-reader"),
	}
}

// ReadFile parses the counter log at path.
func ReadFile(path string, date time.Time) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open counter log: %w", err)
	}
	defer f.Close()
	return NewReader(f, date).ReadAll()
}

// ReadAll consumes the whole source and returns every sample in file order.
func (r *Reader) ReadAll() ([]Sample, error) {
	var samples []Sample
	for r.scanner.Scan() {
		r.line++
		lineSamples, err := r.parseLine(r.scanner.Text())
		if err != nil {
			return nil, err
		}
		samples = append(samples, lineSamples...)
	}
	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read counter log: %w", err)
	}
	r.log.Debug().Int("lines", r.line).Int("samples", len(samples)).Msg("Counter log ingested")
	return samples, nil
}

// parseLine parses one data line into its samples, or nil for skipped lines.
func (r *Reader) parseLine(line string) ([]Sample, error) {
	if strings.HasPrefix(line, "BEGIN") {
		return nil, nil
	}
	fields := strings.Split(line, ";")
	if len(fields) < 3 {
		return nil, nil
	}

	timestamp, err := r.parseTimeOfDay(fields[0])
	if err != nil {
		return nil, err
	}
	durationMs, err := r.parseNumber(fields[1])
	if err != nil {
		return nil, err
	}

	switch fields[2] {
	case "CACHE":
		return r.parseCacheGroups(fields[3:], timestamp, durationMs)
	case "TLB":
		return r.parseTLBGroups(fields[3:], timestamp, durationMs)
	default:
		// Unrecognized record tags are not errors; vendor logs interleave
		// record kinds this tool does not consume.
		return nil, nil
	}
}

// parseCacheGroups parses the repeating 7-field per-core groups of a CACHE
// line. The number of complete groups determines the observed core count;
// a trailing incomplete remainder of empty fields is ignored.
func (r *Reader) parseCacheGroups(fields []string, ts time.Time, durationMs float64) ([]Sample, error) {
	fields = trimEmptyTail(fields)
	cores := len(fields) / len(cacheGroupKinds)

	samples := make([]Sample, 0, cores*len(cacheGroupKinds))
	for core := 0; core < cores; core++ {
		group := fields[core*len(cacheGroupKinds):]
		for i, kind := range cacheGroupKinds {
			value, err := r.parseNumber(group[i])
			if err != nil {
				return nil, err
			}
			samples = append(samples, Sample{
				Core:       core,
				Time:       ts,
				DurationMs: durationMs,
				Kind:       kind,
				Value:      value,
			})
		}
	}
	return samples, nil
}

// parseTLBGroups parses the one-field per-core groups of a TLB line. The
// final field is a known artifact of the format and is discarded rather
// than treated as an extra core.
func (r *Reader) parseTLBGroups(fields []string, ts time.Time, durationMs float64) ([]Sample, error) {
	fields = trimEmptyTail(fields)
	if len(fields) == 0 {
		return nil, nil
	}
	fields = fields[:len(fields)-1]

	samples := make([]Sample, 0, len(fields))
	for core, field := range fields {
		value, err := r.parseNumber(field)
		if err != nil {
			return nil, err
		}
		samples = append(samples, Sample{
			Core:       core,
			Time:       ts,
			DurationMs: durationMs,
			Kind:       KindTLBMiss,
			Value:      value,
		})
	}
	return samples, nil
}

// parseTimeOfDay parses an HH:MM:SS:ms field anchored to the reader's date.
func (r *Reader) parseTimeOfDay(field string) (time.Time, error) {
	parts := strings.Split(field, ":")
	if len(parts) != 4 {
		return time.Time{}, fmt.Errorf("%w: line %d: timestamp %q does not have 4 fields",
			ErrMalformedLog, r.line, field)
	}
	var vals [4]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: line %d: timestamp field %q: %v",
				ErrMalformedLog, r.line, p, err)
		}
		vals[i] = v
	}
	return r.date.
		Add(time.Duration(vals[0]) * time.Hour).
		Add(time.Duration(vals[1]) * time.Minute).
		Add(time.Duration(vals[2]) * time.Second).
		Add(time.Duration(vals[3]) * time.Millisecond), nil
}

// parseNumber parses a culture-invariant decimal field.
func (r *Reader) parseNumber(field string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: line %d: numeric field %q: %v", ErrMalformedLog, r.line, field, err)
	}
	return v, nil
}

// trimEmptyTail drops trailing empty fields left by terminating delimiters.
func trimEmptyTail(fields []string) []string {
	for len(fields) > 0 && strings.TrimSpace(fields[len(fields)-1]) == "" {
		fields = fields[:len(fields)-1]
	}
	return fields
}
