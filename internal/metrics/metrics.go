package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline metrics
	pipelinesActiveTotal = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vision_pipelines_active_total",
		Help: "Number of active vision pipelines",
	}, []string{"detector"})

	framesSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vision_frames_submitted_total",
		Help: "Total frames submitted to the pipeline",
	}, []string{"detector"})

	framesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vision_frames_dropped_total",
		Help: "Total frames dropped before detection (latest-wins replacement)",
	}, []string{"detector"})

	framesProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vision_frames_processed_total",
		Help: "Total frames that completed detection",
	}, []string{"detector"})

	detectorErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vision_detector_errors_total",
		Help: "Total detection failures",
	}, []string{"detector", "error_type"})

	// Latency metrics
	frameLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vision_frame_latency_seconds",
		Help:    "End-to-end frame latency (submission to overlay-ready)",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
	}, []string{"detector"})

	detectorLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vision_detector_latency_seconds",
		Help:    "Pure detector latency (dispatch to completion)",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
	}, []string{"detector"})

	pipelineFPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vision_pipeline_fps",
		Help: "Frames per second completed over the last sampling window",
	}, []string{"pipeline_id"})

	// Overlay metrics
	overlayRepaintsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vision_overlay_repaints_total",
		Help: "Total overlay repaint requests",
	}, []string{"pipeline_id"})

	// Source metrics
	sourceFramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vision_source_frames_total",
		Help: "Total frames produced per source",
	}, []string{"source"})

	// Debug metrics
	goroutinesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "debug_goroutines_created_total",
		Help: "Total number of goroutines created",
	}, []string{"component"})

	goroutinesDestroyed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "debug_goroutines_destroyed_total",
		Help: "Total number of goroutines destroyed",
	}, []string{"component"})
)

// IncrementFramesSubmitted counts a frame handed to the pipeline.
func IncrementFramesSubmitted(detector string) {
	framesSubmittedTotal.WithLabelValues(detector).Inc()
}

// IncrementFramesDropped counts a pending frame replaced by a newer one.
func IncrementFramesDropped(detector string) {
	framesDroppedTotal.WithLabelValues(detector).Inc()
}

// IncrementFramesProcessed counts a completed detection.
func IncrementFramesProcessed(detector string) {
	framesProcessedTotal.WithLabelValues(detector).Inc()
}

// IncrementDetectorError counts a detection failure by type.
func IncrementDetectorError(detector, errorType string) {
	detectorErrorsTotal.WithLabelValues(detector, errorType).Inc()
}

// SetActivePipelines sets the number of active pipelines for a detector kind.
func SetActivePipelines(detector string, count int) {
	pipelinesActiveTotal.WithLabelValues(detector).Set(float64(count))
}

// ObserveFrameLatency records end-to-end frame latency in seconds.
func ObserveFrameLatency(detector string, seconds float64) {
	frameLatencySeconds.WithLabelValues(detector).Observe(seconds)
}

// ObserveDetectorLatency records detector-only latency in seconds.
func ObserveDetectorLatency(detector string, seconds float64) {
	detectorLatencySeconds.WithLabelValues(detector).Observe(seconds)
}

// SetPipelineFPS publishes the last computed FPS for a pipeline.
func SetPipelineFPS(pipelineID string, fps float64) {
	pipelineFPS.WithLabelValues(pipelineID).Set(fps)
}

// DeletePipelineFPS drops the FPS series for a stopped pipeline.
func DeletePipelineFPS(pipelineID string) {
	pipelineFPS.DeleteLabelValues(pipelineID)
}

// IncrementOverlayRepaints counts an overlay repaint request.
func IncrementOverlayRepaints(pipelineID string) {
	overlayRepaintsTotal.WithLabelValues(pipelineID).Inc()
}

// IncrementSourceFrames counts a frame produced by a source.
func IncrementSourceFrames(source string) {
	sourceFramesTotal.WithLabelValues(source).Inc()
}

// IncrementGoroutineCreated tracks goroutine creation for leak detection.
func IncrementGoroutineCreated(component string) {
	goroutinesCreated.WithLabelValues(component).Inc()
}

// IncrementGoroutineDestroyed tracks goroutine destruction for leak detection.
func IncrementGoroutineDestroyed(component string) {
	goroutinesDestroyed.WithLabelValues(component).Inc()
}
