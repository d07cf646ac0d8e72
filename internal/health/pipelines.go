package health

import (
	"context"
	"fmt"
	"sync"

	"github.com/ocellus/visionpipe/internal/pipeline"
)

// SnapshotSource supplies the current stats snapshot of every running
// pipeline. The vision manager implements it.
type SnapshotSource interface {
	Snapshots() []pipeline.Snapshot
}

// PipelineChecker reports degraded when any running pipeline shows a
// failing detector. A single misbehaving pipeline does not take the
// service down; detections for the other pipelines keep flowing.
type PipelineChecker struct {
	source SnapshotSource

	mu      sync.Mutex
	details map[string]interface{}
}

// NewPipelineChecker creates a checker over the given snapshot source.
func NewPipelineChecker(source SnapshotSource) *PipelineChecker {
	return &PipelineChecker{source: source}
}

func (p *PipelineChecker) Name() string {
	return "pipelines"
}

// Check sweeps the pipeline snapshots. A pipeline is considered failing
// once detector errors outnumber successful runs over a meaningful sample.
func (p *PipelineChecker) Check(ctx context.Context) error {
	snaps := p.source.Snapshots()

	var (
		totalSubmitted uint64
		totalDropped   uint64
		failing        []string
	)
	for _, s := range snaps {
		totalSubmitted += s.FramesSubmitted
		totalDropped += s.FramesDropped
		attempts := s.FramesProcessed + s.DetectorErrors
		if attempts >= 10 && s.DetectorErrors > s.FramesProcessed {
			failing = append(failing, s.PipelineID)
		}
	}

	p.mu.Lock()
	p.details = map[string]interface{}{
		"pipelines":        len(snaps),
		"frames_submitted": totalSubmitted,
		"frames_dropped":   totalDropped,
	}
	if len(failing) > 0 {
		p.details["failing"] = failing
	}
	p.mu.Unlock()

	if len(failing) > 0 {
		return Degraded(fmt.Sprintf("%d pipeline(s) with failing detectors", len(failing)))
	}
	return nil
}

func (p *PipelineChecker) Details() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.details
}
