// Package detector provides the detection operations that vision pipelines
// run against captured frames.
package detector

import (
	"context"
	"fmt"
	"image"

	"github.com/ocellus/visionpipe/internal/pipeline"
)

// Region is one detected area within a frame.
type Region struct {
	Rect       image.Rectangle `json:"rect"`
	Label      string          `json:"label"`
	Confidence float64         `json:"confidence"`
}

// Result carries everything a detector found in one frame.
type Result struct {
	Regions []Region `json:"regions"`
}

// Detector analyzes a single frame. Implementations may keep state across
// frames (the motion detector does); a pipeline invokes its detector on at
// most one frame at a time.
type Detector interface {
	Name() string
	Detect(ctx context.Context, f *pipeline.Frame) (Result, error)
}

// Supported detector kinds, as accepted in configuration and the API.
const (
	KindLuminance = "luminance"
	KindMotion    = "motion"
)

// New builds a detector by kind name.
func New(kind string) (Detector, error) {
	switch kind {
	case KindLuminance:
		return NewLuminance(), nil
	case KindMotion:
		return NewMotion(), nil
	default:
		return nil, fmt.Errorf("unknown detector kind: %q", kind)
	}
}

// Annotate converts a result into overlay box annotations.
func Annotate(r Result, overlay pipeline.Overlay) {
	for _, region := range r.Regions {
		overlay.Add(pipeline.BoxAnnotation{
			Rect:       region.Rect,
			Text:       region.Label,
			Confidence: region.Confidence,
		})
	}
}
