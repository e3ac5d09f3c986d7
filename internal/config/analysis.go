package config

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected %s, got %q", dateLayout, s)
	}
	return t, nil
}

// FrameInterval returns the configured frame length as a duration.
func (a *AnalysisConfig) FrameInterval() time.Duration {
	return time.Duration(a.FrameIntervalMs * float64(time.Millisecond))
}

// Date returns the calendar date anchoring the counter log's time-of-day
// stamps. An empty setting means the current local date.
func (a *AnalysisConfig) Date() (time.Time, error) {
	if a.CounterLogDate == "" {
		now := time.Now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local), nil
	}
	return parseDate(a.CounterLogDate)
}

// RecordingDuration returns how long the trace recorder should run before
// the analysis starts. Zero means record until interrupted.
func (a *AnalysisConfig) RecordingDuration() time.Duration {
	return time.Duration(a.DurationSeconds) * time.Second
}
