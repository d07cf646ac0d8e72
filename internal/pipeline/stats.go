package pipeline

import (
	"math"
	"time"
)

// DefaultStatsResetRuns is how many recorded runs accumulate before the
// latency stats reset, preventing unbounded averages.
const DefaultStatsResetRuns = 500

// DefaultFPSInterval is the sampling window of the FPS counter.
const DefaultFPSInterval = time.Second

// latencyStats accumulates per-frame and per-detector latency. It is
// mutated only on the processor run loop, so it needs no locking; external
// readers get a published Snapshot instead.
type latencyStats struct {
	resetRuns int

	runCount        int
	totalFrameMs    int64
	maxFrameMs      int64
	minFrameMs      int64
	totalDetectorMs int64
	maxDetectorMs   int64
	minDetectorMs   int64
}

func newLatencyStats(resetRuns int) *latencyStats {
	if resetRuns <= 0 {
		resetRuns = DefaultStatsResetRuns
	}
	s := &latencyStats{resetRuns: resetRuns}
	s.reset()
	return s
}

func (s *latencyStats) reset() {
	s.runCount = 0
	s.totalFrameMs = 0
	s.maxFrameMs = 0
	s.minFrameMs = math.MaxInt64
	s.totalDetectorMs = 0
	s.maxDetectorMs = 0
	s.minDetectorMs = math.MaxInt64
}

// record folds one completed detection into the accumulators. When the run
// ceiling has been reached the accumulators reset first, so the new sample
// starts a fresh window rather than polluting a running average.
func (s *latencyStats) record(frameMs, detectorMs int64) {
	if s.runCount >= s.resetRuns {
		s.reset()
	}
	s.runCount++

	s.totalFrameMs += frameMs
	s.maxFrameMs = max(s.maxFrameMs, frameMs)
	s.minFrameMs = min(s.minFrameMs, frameMs)

	s.totalDetectorMs += detectorMs
	s.maxDetectorMs = max(s.maxDetectorMs, detectorMs)
	s.minDetectorMs = min(s.minDetectorMs, detectorMs)
}

func (s *latencyStats) frameSummary() LatencySummary {
	return s.summary(s.totalFrameMs, s.maxFrameMs, s.minFrameMs)
}

func (s *latencyStats) detectorSummary() LatencySummary {
	return s.summary(s.totalDetectorMs, s.maxDetectorMs, s.minDetectorMs)
}

func (s *latencyStats) summary(total, maxMs, minMs int64) LatencySummary {
	if s.runCount == 0 {
		return LatencySummary{}
	}
	return LatencySummary{
		HasData: true,
		AvgMs:   total / int64(s.runCount),
		MaxMs:   maxMs,
		MinMs:   minMs,
	}
}

// LatencySummary is a point-in-time view of one latency accumulator.
// When HasData is false no detections have been recorded since the last
// reset and the other fields are meaningless.
type LatencySummary struct {
	HasData bool  `json:"has_data"`
	AvgMs   int64 `json:"avg_ms"`
	MaxMs   int64 `json:"max_ms"`
	MinMs   int64 `json:"min_ms"`
}

// fpsCounter tracks frames completed in the current sampling interval.
// Mutated only on the processor run loop.
type fpsCounter struct {
	framesThisInterval int
	lastComputedFPS    int
}

// completed counts one finished detection and reports whether it is the
// first of the current interval.
func (f *fpsCounter) completed() (firstOfInterval bool) {
	f.framesThisInterval++
	return f.framesThisInterval == 1
}

// tick swaps the interval counter into the published FPS value and zeroes
// the counter for the next window.
func (f *fpsCounter) tick() {
	f.lastComputedFPS = f.framesThisInterval
	f.framesThisInterval = 0
}

func (f *fpsCounter) fps() int {
	return f.lastComputedFPS
}

// Snapshot is the externally visible state of a processor, published
// atomically by the run loop after every completion and tick.
type Snapshot struct {
	PipelineID      string         `json:"pipeline_id"`
	Detector        string         `json:"detector"`
	RunCount        int            `json:"run_count"`
	FrameLatency    LatencySummary `json:"frame_latency"`
	DetectorLatency LatencySummary `json:"detector_latency"`
	FPS             int            `json:"fps"`
	FramesSubmitted uint64         `json:"frames_submitted"`
	FramesDropped   uint64         `json:"frames_dropped"`
	FramesProcessed uint64         `json:"frames_processed"`
	DetectorErrors  uint64         `json:"detector_errors"`
	Stopped         bool           `json:"stopped"`
}
