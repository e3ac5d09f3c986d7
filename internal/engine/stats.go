package engine

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats tracks pipeline progress counters. Updated with atomics from the
// pipeline stages, read by the Prometheus collector and the final summary.
type Stats struct {
	SamplesParsed    atomic.Int64
	SwitchesRecorded atomic.Int64
	FaultsRecorded   atomic.Int64
	FramesBuilt      atomic.Int64
	RecordsEmitted   atomic.Int64
}

// StatsCollector exposes pipeline stats as Prometheus metrics on the debug
// listener. It follows the custom collector pattern: metrics are created
// fresh on every scrape from the live counters.
type StatsCollector struct {
	stats *Stats
}

// NewStatsCollector creates a collector over the given stats.
func NewStatsCollector(stats *Stats) *StatsCollector {
	return &StatsCollector{stats: stats}
}

var (
	samplesDesc = prometheus.NewDesc(
		"counterlens_counter_samples_total",
		"Hardware counter samples parsed from the vendor log",
		nil, nil,
	)
	switchesDesc = prometheus.NewDesc(
		"counterlens_context_switches_total",
		"Context switch events captured from the kernel trace",
		nil, nil,
	)
	faultsDesc = prometheus.NewDesc(
		"counterlens_page_faults_total",
		"Page fault events captured from the kernel trace",
		nil, nil,
	)
	framesDesc = prometheus.NewDesc(
		"counterlens_frames_built_total",
		"Per-core fixed-interval frames built",
		nil, nil,
	)
	recordsDesc = prometheus.NewDesc(
		"counterlens_metric_records_total",
		"Per-thread metric records emitted to the result sink",
		nil, nil,
	)
)

// Describe implements prometheus.Collector.
func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- samplesDesc
	ch <- switchesDesc
	ch <- faultsDesc
	ch <- framesDesc
	ch <- recordsDesc
}

// Collect implements prometheus.Collector.
func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(samplesDesc, prometheus.CounterValue,
		float64(c.stats.SamplesParsed.Load()))
	ch <- prometheus.MustNewConstMetric(switchesDesc, prometheus.CounterValue,
		float64(c.stats.SwitchesRecorded.Load()))
	ch <- prometheus.MustNewConstMetric(faultsDesc, prometheus.CounterValue,
		float64(c.stats.FaultsRecorded.Load()))
	ch <- prometheus.MustNewConstMetric(framesDesc, prometheus.CounterValue,
		float64(c.stats.FramesBuilt.Load()))
	ch <- prometheus.MustNewConstMetric(recordsDesc, prometheus.CounterValue,
		float64(c.stats.RecordsEmitted.Load()))
}
