package pipeline

import "image"

// Overlay is the rendering collaborator the pipeline publishes results to.
// All three methods are invoked from the processor run loop only; an
// implementation that is also read from other goroutines must synchronize
// internally.
type Overlay interface {
	// Clear removes all annotations.
	Clear()
	// Add appends one drawable annotation.
	Add(a Annotation)
	// PostRepaint asks the renderer to repaint with the current annotations.
	PostRepaint()
}

// Annotation is one drawable element on an overlay.
type Annotation interface {
	// Label names the annotation kind for renderers and the API.
	Label() string
}

// ImageAnnotation carries the original captured frame as a base layer.
// It is omitted when a live viewport already shows the camera surface.
type ImageAnnotation struct {
	Image    image.Image `json:"-"`
	Metadata Metadata    `json:"metadata"`
}

func (ImageAnnotation) Label() string { return "source_frame" }

// BoxAnnotation marks a detected region with an optional caption.
type BoxAnnotation struct {
	Rect       image.Rectangle `json:"rect"`
	Text       string          `json:"text"`
	Confidence float64         `json:"confidence"`
}

func (BoxAnnotation) Label() string { return "box" }

// InferenceInfoAnnotation carries live latency and throughput diagnostics.
// FPS is only meaningful for live pipelines; still images set ShowFPS false.
type InferenceInfoAnnotation struct {
	FrameLatencyMs    int64 `json:"frame_latency_ms"`
	DetectorLatencyMs int64 `json:"detector_latency_ms"`
	FPS               int   `json:"fps"`
	ShowFPS           bool  `json:"show_fps"`
}

func (InferenceInfoAnnotation) Label() string { return "inference_info" }
