// Package metrics exposes per-participant pipeline counters as a custom
// prometheus.Collector, rather than a static set of package-level gauges,
// so the collected set tracks Registry's live SSRC table. The
// Describe/Collect-over-a-live-map shape is grounded on
// runZeroInc-sockstats/pkg/exporter/exporter.go's TCPInfoCollector, which
// does the same thing for a live set of TCP connections.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Source is the read side of internal/participant.Registry this collector
// needs: enumerate SSRCs and fetch counters for one. Kept as an interface
// so this package never imports internal/participant directly, avoiding a
// dependency cycle back from participant onto metrics.
type Source interface {
	SSRCs() []uint32
	CountersFor(ssrc uint32) (displayed, dropped, corrupted uint64, maxFrameSize int, ok bool)
}

// Collector implements prometheus.Collector over a Source.
type Collector struct {
	source Source

	displayed    *prometheus.Desc
	dropped      *prometheus.Desc
	corrupted    *prometheus.Desc
	maxFrameSize *prometheus.Desc
}

// New builds a Collector that reports spec.md §7's per-participant
// counters (displayed, dropped, corrupted frames, and the largest frame
// size observed) labeled by ssrc.
func New(source Source) *Collector {
	labels := []string{"ssrc"}
	return &Collector{
		source: source,
		displayed: prometheus.NewDesc(
			"media_streamer_frames_displayed_total",
			"Frames successfully decoded and handed to the display sink.",
			labels, nil,
		),
		dropped: prometheus.NewDesc(
			"media_streamer_frames_dropped_total",
			"Frames discarded incomplete, stale, or before a frame ever reached the decoder.",
			labels, nil,
		),
		corrupted: prometheus.NewDesc(
			"media_streamer_frames_corrupted_total",
			"Frames detected as corrupted (buffer_length mismatch, FEC divergence, unrecoverable FEC).",
			labels, nil,
		),
		maxFrameSize: prometheus.NewDesc(
			"media_streamer_max_frame_size_bytes",
			"Largest reassembled frame size observed for this participant.",
			labels, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.displayed
	ch <- c.dropped
	ch <- c.corrupted
	ch <- c.maxFrameSize
}

// Collect implements prometheus.Collector, reading a fresh snapshot from
// the Source on every scrape rather than caching between calls.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, ssrc := range c.source.SSRCs() {
		displayed, dropped, corrupted, maxSize, ok := c.source.CountersFor(ssrc)
		if !ok {
			continue
		}
		label := strconv.FormatUint(uint64(ssrc), 10)
		ch <- prometheus.MustNewConstMetric(c.displayed, prometheus.CounterValue, float64(displayed), label)
		ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(dropped), label)
		ch <- prometheus.MustNewConstMetric(c.corrupted, prometheus.CounterValue, float64(corrupted), label)
		ch <- prometheus.MustNewConstMetric(c.maxFrameSize, prometheus.GaugeValue, float64(maxSize), label)
	}
}
