package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/ocellus/visionpipe/internal/pipeline"
)

// Status represents the lifecycle state of a registered pipeline.
type Status string

const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopped  Status = "stopped"
	StatusError    Status = "error"
)

// Pipeline is the registry record for one running vision pipeline.
type Pipeline struct {
	ID            string    `json:"id"`
	Detector      string    `json:"detector"`
	Source        string    `json:"source"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`

	// Capture parameters
	Resolution string  `json:"resolution"` // e.g. 640x480
	FrameRate  float64 `json:"frame_rate"`

	// Statistics, refreshed on every stats publish
	FramesSubmitted      uint64 `json:"frames_submitted"`
	FramesDropped        uint64 `json:"frames_dropped"`
	FramesProcessed      uint64 `json:"frames_processed"`
	DetectorErrors       uint64 `json:"detector_errors"`
	FPS                  int    `json:"fps"`
	AvgFrameLatencyMs    int64  `json:"avg_frame_latency_ms"`
	AvgDetectorLatencyMs int64  `json:"avg_detector_latency_ms"`

	mu sync.RWMutex `json:"-"`
}

// Stats holds the refreshable statistics portion of a pipeline record.
type Stats struct {
	FramesSubmitted      uint64
	FramesDropped        uint64
	FramesProcessed      uint64
	DetectorErrors       uint64
	FPS                  int
	AvgFrameLatencyMs    int64
	AvgDetectorLatencyMs int64
}

// StatsFromSnapshot converts a processor snapshot into registry stats.
func StatsFromSnapshot(s pipeline.Snapshot) *Stats {
	return &Stats{
		FramesSubmitted:      s.FramesSubmitted,
		FramesDropped:        s.FramesDropped,
		FramesProcessed:      s.FramesProcessed,
		DetectorErrors:       s.DetectorErrors,
		FPS:                  s.FPS,
		AvgFrameLatencyMs:    s.FrameLatency.AvgMs,
		AvgDetectorLatencyMs: s.DetectorLatency.AvgMs,
	}
}

// GeneratePipelineID creates a unique, readable pipeline ID.
// Format: detector_date_time_counter, e.g. luminance_20260115_143052_001
func GeneratePipelineID(detector string) string {
	now := time.Now()
	counter := getNextCounter()
	return fmt.Sprintf("%s_%s_%03d", detector, now.Format("20060102_150405"), counter)
}

var (
	pipelineCounter uint64
	counterMu       sync.Mutex
)

func getNextCounter() uint64 {
	counterMu.Lock()
	defer counterMu.Unlock()
	pipelineCounter++
	if pipelineCounter > 999 {
		pipelineCounter = 1
	}
	return pipelineCounter
}

// UpdateStats replaces the statistics fields.
func (p *Pipeline) UpdateStats(stats *Stats) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.FramesSubmitted = stats.FramesSubmitted
	p.FramesDropped = stats.FramesDropped
	p.FramesProcessed = stats.FramesProcessed
	p.DetectorErrors = stats.DetectorErrors
	p.FPS = stats.FPS
	p.AvgFrameLatencyMs = stats.AvgFrameLatencyMs
	p.AvgDetectorLatencyMs = stats.AvgDetectorLatencyMs
}

// UpdateHeartbeat refreshes the last heartbeat time.
func (p *Pipeline) UpdateHeartbeat() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.LastHeartbeat = time.Now()
}

// SetStatus updates the pipeline status.
func (p *Pipeline) SetStatus(status Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Status = status
}

// GetStatus returns the current pipeline status.
func (p *Pipeline) GetStatus() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Status
}

// IsActive reports whether the pipeline is starting or running.
func (p *Pipeline) IsActive() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Status == StatusRunning || p.Status == StatusStarting
}
