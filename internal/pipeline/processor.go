package pipeline

import (
	"context"
	"fmt"
	"image"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/ocellus/visionpipe/internal/errors"
	"github.com/ocellus/visionpipe/internal/logger"
	"github.com/ocellus/visionpipe/internal/metrics"
)

// DetectFunc is the opaque asynchronous detection operation consumed by the
// pipeline. It is invoked at most once concurrently per processor and never
// after Stop has been observed.
type DetectFunc[T any] func(ctx context.Context, f *Frame) (T, error)

// Config parameterizes a Processor. Detect and Overlay are required; the
// hooks and probes are optional.
type Config[T any] struct {
	PipelineID string
	Detector   string // detector kind, used for metrics and log fields

	Detect    DetectFunc[T]
	OnSuccess func(result T, overlay Overlay)
	OnFailure func(err error)
	Overlay   Overlay

	// Decode turns a raw frame into a displayable image for the base
	// overlay annotation. Left nil when the renderer shows a live camera
	// surface underneath (no bitmap is created then).
	Decode func(f *Frame) (image.Image, error)

	// ShowDiagnostics appends latency/FPS annotations to the overlay.
	ShowDiagnostics bool
	// LiveViewport skips the base image annotation even when Decode is set.
	LiveViewport bool

	StatsResetRuns int           // defaults to DefaultStatsResetRuns
	FPSInterval    time.Duration // defaults to DefaultFPSInterval

	// TemperatureProbe reports device temperature for the periodic
	// diagnostics log. Optional.
	TemperatureProbe func() (celsius float64, ok bool)

	Logger logger.Logger
}

// completion carries one finished detection from the detector goroutine
// back onto the run loop.
type completion[T any] struct {
	frame         *Frame
	source        image.Image
	result        T
	err           error
	frameStart    time.Time
	detectorStart time.Time
	finished      time.Time
	live          bool
}

// Processor drives frames through the detection operation, keeping the
// producer non-blocking and the detector running on at most one frame at a
// time. All overlay mutation, stats accounting and scheduling decisions are
// confined to a single run-loop goroutine; the Slot is the only state
// shared with producers.
//
// The processor starts at construction and runs until Stop.
type Processor[T any] struct {
	cfg  Config[T]
	slot *Slot

	completions chan completion[T]

	ctx      context.Context
	cancel   context.CancelFunc
	stopped  atomic.Bool
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Run-loop confined.
	stats *latencyStats
	fps   *fpsCounter

	framesSubmitted atomic.Uint64
	framesProcessed atomic.Uint64
	detectorErrors  atomic.Uint64

	snapshot atomic.Pointer[Snapshot]

	logger  logger.Logger
	sampled *logger.SampledLogger
}

// NewProcessor creates and starts a processor. The periodic FPS tick is
// armed immediately.
func NewProcessor[T any](ctx context.Context, cfg Config[T]) (*Processor[T], error) {
	if cfg.Detect == nil {
		return nil, fmt.Errorf("detect function required")
	}
	if cfg.Overlay == nil {
		return nil, fmt.Errorf("overlay required")
	}
	if cfg.PipelineID == "" {
		return nil, fmt.Errorf("pipeline ID required")
	}
	if cfg.StatsResetRuns <= 0 {
		cfg.StatsResetRuns = DefaultStatsResetRuns
	}
	if cfg.FPSInterval <= 0 {
		cfg.FPSInterval = DefaultFPSInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNullLogger()
	}

	ctx, cancel := context.WithCancel(ctx)

	baseLogger := cfg.Logger.WithFields(map[string]interface{}{
		"component":   "pipeline_processor",
		"pipeline_id": cfg.PipelineID,
		"detector":    cfg.Detector,
	})

	p := &Processor[T]{
		cfg:         cfg,
		slot:        &Slot{},
		completions: make(chan completion[T], 1),
		ctx:         ctx,
		cancel:      cancel,
		stats:       newLatencyStats(cfg.StatsResetRuns),
		fps:         &fpsCounter{},
		logger:      baseLogger,
		sampled:     logger.NewPipelineLogger(baseLogger),
	}
	p.publishSnapshot()

	p.wg.Add(1)
	metrics.IncrementGoroutineCreated("pipeline_processor")
	go p.run()

	return p, nil
}

// Submit hands a captured frame to the pipeline. It never blocks: when a
// detection is already in flight the frame waits as "latest", replacing any
// earlier frame that was never started. Called from any goroutine.
// Submissions after Stop are silently ignored.
func (p *Processor[T]) Submit(f *Frame) {
	if p.stopped.Load() {
		return
	}

	f.submittedAt = time.Now()
	p.framesSubmitted.Add(1)
	metrics.IncrementFramesSubmitted(p.cfg.Detector)

	if dropped := p.slot.Submit(f); dropped {
		metrics.IncrementFramesDropped(p.cfg.Detector)
		p.sampled.DebugWithCategory(logger.CategoryFrameDrops, "pending frame replaced by newer submission", map[string]interface{}{
			"pipeline_id": p.cfg.PipelineID,
			"total_drops": p.slot.Drops(),
		})
	}

	p.tryDispatch()
}

// ProcessImage runs a one-shot detection on a single still image through
// the same result sink, without FPS diagnostics and without touching the
// live frame slot.
func (p *Processor[T]) ProcessImage(f *Frame) {
	if p.stopped.Load() {
		return
	}
	p.dispatch(f, false)
}

// tryDispatch promotes the latest frame and starts a detection when the
// detector is idle. The no-promotion case means a detection is already in
// flight; the newly submitted frame simply waits as latest.
func (p *Processor[T]) tryDispatch() {
	if p.stopped.Load() {
		return
	}

	f, ok := p.slot.TryPromote()
	if !ok {
		return
	}

	// Stop may have won the race after the promote check.
	if p.stopped.Load() {
		p.slot.Complete()
		return
	}

	p.dispatch(f, true)
}

func (p *Processor[T]) dispatch(f *Frame, live bool) {
	metrics.IncrementGoroutineCreated("pipeline_detect")
	go func() {
		defer metrics.IncrementGoroutineDestroyed("pipeline_detect")

		frameStart := f.submittedAt
		if frameStart.IsZero() {
			frameStart = time.Now()
		}

		// Decode before detection so the base annotation is ready with the
		// result. Skipped under a live viewport where the underlying
		// surface already shows the camera frame.
		var source image.Image
		if live && !p.cfg.LiveViewport && p.cfg.Decode != nil {
			img, err := p.cfg.Decode(f)
			if err != nil {
				p.logger.WithError(err).Warn("Failed to decode frame for overlay")
			} else {
				source = img
			}
		}

		detectorStart := time.Now()
		result, err := p.cfg.Detect(p.ctx, f)

		c := completion[T]{
			frame:         f,
			source:        source,
			result:        result,
			err:           err,
			frameStart:    frameStart,
			detectorStart: detectorStart,
			finished:      time.Now(),
			live:          live,
		}

		// A completion arriving after shutdown is dropped here: no overlay
		// mutation, no stats, no further dispatch.
		select {
		case p.completions <- c:
		case <-p.ctx.Done():
		}
	}()
}

func (p *Processor[T]) run() {
	defer p.wg.Done()
	defer metrics.IncrementGoroutineDestroyed("pipeline_processor")

	ticker := time.NewTicker(p.cfg.FPSInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case c := <-p.completions:
			p.handleCompletion(c)
		case <-ticker.C:
			p.handleTick()
		}
	}
}

func (p *Processor[T]) handleCompletion(c completion[T]) {
	if p.stopped.Load() {
		return
	}

	if c.err != nil {
		p.handleFailure(c)
	} else {
		p.handleSuccess(c)
	}

	p.publishSnapshot()

	// Release the slot and pull the next latest frame, if one arrived
	// while this detection was running. This is the self-throttling loop:
	// detector throughput alone determines the processing rate.
	if c.live {
		p.slot.Complete()
		p.tryDispatch()
	}
}

func (p *Processor[T]) handleSuccess(c completion[T]) {
	frameMs := c.finished.Sub(c.frameStart).Milliseconds()
	detectorMs := c.finished.Sub(c.detectorStart).Milliseconds()

	p.stats.record(frameMs, detectorMs)
	firstOfInterval := p.fps.completed()
	p.framesProcessed.Add(1)

	metrics.IncrementFramesProcessed(p.cfg.Detector)
	metrics.ObserveFrameLatency(p.cfg.Detector, c.finished.Sub(c.frameStart).Seconds())
	metrics.ObserveDetectorLatency(p.cfg.Detector, c.finished.Sub(c.detectorStart).Seconds())

	// Log inference diagnostics once per sampling interval, on the first
	// frame completed in the current second.
	if firstOfInterval {
		p.logInferenceInfo(frameMs, detectorMs)
	}

	overlay := p.cfg.Overlay
	overlay.Clear()
	if c.source != nil {
		overlay.Add(ImageAnnotation{Image: c.source, Metadata: c.frame.Metadata})
	}
	if p.cfg.OnSuccess != nil {
		p.cfg.OnSuccess(c.result, overlay)
	}
	if p.cfg.ShowDiagnostics {
		overlay.Add(InferenceInfoAnnotation{
			FrameLatencyMs:    frameMs,
			DetectorLatencyMs: detectorMs,
			FPS:               p.fps.fps(),
			ShowFPS:           c.live,
		})
	}
	overlay.PostRepaint()
	metrics.IncrementOverlayRepaints(p.cfg.PipelineID)
}

func (p *Processor[T]) handleFailure(c completion[T]) {
	p.detectorErrors.Add(1)

	appErr, ok := apperrors.GetAppError(c.err)
	if !ok {
		appErr = apperrors.NewDetectorError(c.err)
	}
	metrics.IncrementDetectorError(p.cfg.Detector, string(appErr.Type))

	// Failures clear the overlay and skip all statistics.
	overlay := p.cfg.Overlay
	overlay.Clear()
	overlay.PostRepaint()
	metrics.IncrementOverlayRepaints(p.cfg.PipelineID)

	p.logger.WithError(c.err).WithField("frame_id", c.frame.ID).Warn("Failed to process frame")

	if p.cfg.OnFailure != nil {
		p.cfg.OnFailure(appErr)
	}
}

func (p *Processor[T]) handleTick() {
	p.fps.tick()
	metrics.SetPipelineFPS(p.cfg.PipelineID, float64(p.fps.fps()))
	p.publishSnapshot()
}

func (p *Processor[T]) logInferenceInfo(frameMs, detectorMs int64) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	fields := map[string]interface{}{
		"num_runs":            p.stats.runCount,
		"frame_latency_ms":    frameMs,
		"frame_latency_max":   p.stats.maxFrameMs,
		"frame_latency_min":   p.stats.minFrameMs,
		"frame_latency_avg":   p.stats.totalFrameMs / int64(p.stats.runCount),
		"detector_latency_ms": detectorMs,
		"detector_max":        p.stats.maxDetectorMs,
		"detector_min":        p.stats.minDetectorMs,
		"detector_avg":        p.stats.totalDetectorMs / int64(p.stats.runCount),
		"fps":                 p.fps.fps(),
		"heap_alloc_mb":       mem.HeapAlloc / (1 << 20),
	}
	if p.cfg.TemperatureProbe != nil {
		if celsius, ok := p.cfg.TemperatureProbe(); ok {
			fields["temperature_c"] = celsius
		}
	}

	p.sampled.DebugWithCategory(logger.CategoryInferenceInfo, "inference info", fields)
}

func (p *Processor[T]) publishSnapshot() {
	s := Snapshot{
		PipelineID:      p.cfg.PipelineID,
		Detector:        p.cfg.Detector,
		RunCount:        p.stats.runCount,
		FrameLatency:    p.stats.frameSummary(),
		DetectorLatency: p.stats.detectorSummary(),
		FPS:             p.fps.fps(),
		FramesSubmitted: p.framesSubmitted.Load(),
		FramesDropped:   p.slot.Drops(),
		FramesProcessed: p.framesProcessed.Load(),
		DetectorErrors:  p.detectorErrors.Load(),
		Stopped:         p.stopped.Load(),
	}
	p.snapshot.Store(&s)
}

// Stats returns the latest run-loop snapshot with the counter fields read
// live. Latency and FPS figures update on completion and tick only, but
// submissions, drops and errors are visible immediately, including while a
// detection is in flight.
func (p *Processor[T]) Stats() Snapshot {
	s := *p.snapshot.Load()
	s.FramesSubmitted = p.framesSubmitted.Load()
	s.FramesDropped = p.slot.Drops()
	s.FramesProcessed = p.framesProcessed.Load()
	s.DetectorErrors = p.detectorErrors.Load()
	s.Stopped = p.stopped.Load()
	return s
}

// Stopped reports whether Stop has been called.
func (p *Processor[T]) Stopped() bool {
	return p.stopped.Load()
}

// Stop shuts the pipeline down: no new detections are dispatched, the
// periodic tick is cancelled and statistics reset. An in-flight detection
// is allowed to finish but produces no overlay, stats or scheduling side
// effects. Safe to call more than once; later calls are no-ops.
func (p *Processor[T]) Stop() {
	p.stopOnce.Do(func() {
		p.stopped.Store(true)
		p.cancel()
		p.wg.Wait()

		// The run loop has exited; its state is safe to touch here.
		p.stats.reset()
		p.fps.framesThisInterval = 0
		p.fps.lastComputedFPS = 0
		p.publishSnapshot()

		metrics.DeletePipelineFPS(p.cfg.PipelineID)
		p.sampled.InfoWithCategory(logger.CategoryShutdown, "pipeline stopped", map[string]interface{}{
			"pipeline_id": p.cfg.PipelineID,
		})
	})
}
