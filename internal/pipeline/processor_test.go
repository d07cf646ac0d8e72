package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ocellus/visionpipe/internal/errors"
)

// testOverlay records every call the processor makes against it.
type testOverlay struct {
	mu          sync.Mutex
	annotations []Annotation
	clears      int
	repaints    int
}

func (o *testOverlay) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.annotations = nil
	o.clears++
}

func (o *testOverlay) Add(a Annotation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.annotations = append(o.annotations, a)
}

func (o *testOverlay) PostRepaint() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.repaints = o.repaints + 1
}

func (o *testOverlay) repaintCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.repaints
}

func (o *testOverlay) lastAnnotations() []Annotation {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Annotation, len(o.annotations))
	copy(out, o.annotations)
	return out
}

// blockingDetector parks each detection until released, so tests control
// exactly when the detector is busy.
type blockingDetector struct {
	started chan *Frame
	release chan struct{}
}

func newBlockingDetector() *blockingDetector {
	return &blockingDetector{
		started: make(chan *Frame, 16),
		release: make(chan struct{}),
	}
}

func (d *blockingDetector) detect(ctx context.Context, f *Frame) (string, error) {
	d.started <- f
	select {
	case <-d.release:
		return "result:" + f.ID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// awaitStart fails the test if no detection begins in time.
func (d *blockingDetector) awaitStart(t *testing.T) *Frame {
	t.Helper()
	select {
	case f := <-d.started:
		return f
	case <-time.After(time.Second):
		t.Fatal("detection did not start")
		return nil
	}
}

func newTestProcessor(t *testing.T, cfg Config[string]) *Processor[string] {
	t.Helper()
	if cfg.PipelineID == "" {
		cfg.PipelineID = "test-pipeline"
	}
	if cfg.Detector == "" {
		cfg.Detector = "test"
	}
	if cfg.Overlay == nil {
		cfg.Overlay = &testOverlay{}
	}
	if cfg.FPSInterval == 0 {
		// Keep the ticker out of the way unless a test wants it.
		cfg.FPSInterval = time.Hour
	}
	p, err := NewProcessor(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(p.Stop)
	return p
}

func TestNewProcessor_Validation(t *testing.T) {
	overlay := &testOverlay{}
	detect := func(ctx context.Context, f *Frame) (string, error) { return "", nil }

	_, err := NewProcessor(context.Background(), Config[string]{
		PipelineID: "p", Overlay: overlay,
	})
	assert.Error(t, err, "detect function is required")

	_, err = NewProcessor(context.Background(), Config[string]{
		PipelineID: "p", Detect: detect,
	})
	assert.Error(t, err, "overlay is required")

	_, err = NewProcessor(context.Background(), Config[string]{
		Detect: detect, Overlay: overlay,
	})
	assert.Error(t, err, "pipeline ID is required")
}

func TestProcessor_SubmitRunsIdleFrameImmediately(t *testing.T) {
	det := newBlockingDetector()
	p := newTestProcessor(t, Config[string]{Detect: det.detect})

	f := NewFrame(nil, Metadata{Width: 640, Height: 480})
	p.Submit(f)

	// An idle pipeline starts the frame without waiting for a successor.
	got := det.awaitStart(t)
	assert.Same(t, f, got)
}

func TestProcessor_AtMostOneDetectionInFlight(t *testing.T) {
	det := newBlockingDetector()
	p := newTestProcessor(t, Config[string]{Detect: det.detect})

	fA := NewFrame(nil, Metadata{})
	fB := NewFrame(nil, Metadata{})

	p.Submit(fA)
	assert.Same(t, fA, det.awaitStart(t))

	// B arrives while A is detecting: it must wait, not start.
	p.Submit(fB)
	select {
	case <-det.started:
		t.Fatal("second detection started while the first was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	// A finishes; B is promoted by the completion path with no further
	// submission needed.
	det.release <- struct{}{}
	assert.Same(t, fB, det.awaitStart(t))
	det.release <- struct{}{}

	require.Eventually(t, func() bool {
		return p.Stats().FramesProcessed == 2
	}, time.Second, 5*time.Millisecond)
}

func TestProcessor_LatestWinsUnderBackpressure(t *testing.T) {
	det := newBlockingDetector()
	p := newTestProcessor(t, Config[string]{Detect: det.detect})

	f1 := NewFrame(nil, Metadata{})
	f2 := NewFrame(nil, Metadata{})
	f3 := NewFrame(nil, Metadata{})

	p.Submit(f1)
	assert.Same(t, f1, det.awaitStart(t))

	// f2 and f3 arrive during f1's detection; f3 replaces f2 in the slot.
	p.Submit(f2)
	p.Submit(f3)

	det.release <- struct{}{}
	next := det.awaitStart(t)
	assert.Same(t, f3, next, "f2 must be skipped entirely")
	det.release <- struct{}{}

	require.Eventually(t, func() bool {
		return p.Stats().FramesProcessed == 2
	}, time.Second, 5*time.Millisecond)

	s := p.Stats()
	assert.Equal(t, uint64(3), s.FramesSubmitted)
	assert.Equal(t, uint64(1), s.FramesDropped)
}

func TestProcessor_SubmitNeverBlocks(t *testing.T) {
	det := newBlockingDetector()
	p := newTestProcessor(t, Config[string]{Detect: det.detect})

	p.Submit(NewFrame(nil, Metadata{}))
	det.awaitStart(t)

	// With the detector parked, a burst of submissions must return
	// promptly; each new frame just replaces the pending one.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			p.Submit(NewFrame(nil, Metadata{}))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit blocked while detector was busy")
	}

	assert.Equal(t, uint64(99), p.Stats().FramesDropped)
	det.release <- struct{}{}
}

func TestProcessor_StatsCountersVisibleMidDetection(t *testing.T) {
	det := newBlockingDetector()
	p := newTestProcessor(t, Config[string]{Detect: det.detect})

	p.Submit(NewFrame(nil, Metadata{}))
	det.awaitStart(t)
	p.Submit(NewFrame(nil, Metadata{}))
	p.Submit(NewFrame(nil, Metadata{}))

	// Nothing has completed yet, so no snapshot has been published since
	// startup. The counters must be current anyway.
	s := p.Stats()
	assert.Equal(t, uint64(3), s.FramesSubmitted)
	assert.Equal(t, uint64(1), s.FramesDropped, "third frame replaced the second")
	assert.Zero(t, s.FramesProcessed)

	det.release <- struct{}{}
}

func TestProcessor_SuccessUpdatesOverlayAndStats(t *testing.T) {
	overlay := &testOverlay{}
	var gotResult string
	var mu sync.Mutex

	p := newTestProcessor(t, Config[string]{
		Overlay: overlay,
		Detect: func(ctx context.Context, f *Frame) (string, error) {
			return "found", nil
		},
		OnSuccess: func(result string, o Overlay) {
			mu.Lock()
			gotResult = result
			mu.Unlock()
			o.Add(BoxAnnotation{Text: result, Confidence: 0.9})
		},
		ShowDiagnostics: true,
	})

	p.Submit(NewFrame(nil, Metadata{Width: 320, Height: 240}))

	require.Eventually(t, func() bool {
		return p.Stats().FramesProcessed == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, "found", gotResult)
	mu.Unlock()

	require.Eventually(t, func() bool { return overlay.repaintCount() == 1 }, time.Second, 5*time.Millisecond)

	anns := overlay.lastAnnotations()
	require.Len(t, anns, 2)
	box, ok := anns[0].(BoxAnnotation)
	require.True(t, ok)
	assert.Equal(t, "found", box.Text)
	info, ok := anns[1].(InferenceInfoAnnotation)
	require.True(t, ok)
	assert.True(t, info.ShowFPS, "live frames show FPS diagnostics")

	s := p.Stats()
	assert.Equal(t, 1, s.RunCount)
	assert.True(t, s.FrameLatency.HasData)
	assert.True(t, s.DetectorLatency.HasData)
	assert.LessOrEqual(t, s.DetectorLatency.AvgMs, s.FrameLatency.AvgMs+1)
}

func TestProcessor_FailureClearsOverlayAndSkipsStats(t *testing.T) {
	overlay := &testOverlay{}
	detErr := errors.New("model exploded")

	failures := make(chan error, 1)
	p := newTestProcessor(t, Config[string]{
		Overlay: overlay,
		Detect: func(ctx context.Context, f *Frame) (string, error) {
			return "", detErr
		},
		OnFailure: func(err error) { failures <- err },
	})

	p.Submit(NewFrame(nil, Metadata{}))

	var got error
	select {
	case got = <-failures:
	case <-time.After(time.Second):
		t.Fatal("failure callback never fired")
	}

	appErr, ok := apperrors.GetAppError(got)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrorTypeDetector, appErr.Type)
	assert.ErrorIs(t, got, detErr, "underlying cause must be preserved")

	require.Eventually(t, func() bool {
		return p.Stats().DetectorErrors == 1
	}, time.Second, 5*time.Millisecond)

	s := p.Stats()
	assert.Equal(t, 0, s.RunCount, "failures never enter the latency stats")
	assert.False(t, s.FrameLatency.HasData)
	assert.Zero(t, s.FramesProcessed)

	assert.Equal(t, 1, overlay.repaintCount(), "overlay is cleared and repainted on failure")
	assert.Empty(t, overlay.lastAnnotations())
}

func TestProcessor_ProcessImageStill(t *testing.T) {
	overlay := &testOverlay{}
	p := newTestProcessor(t, Config[string]{
		Overlay: overlay,
		Detect: func(ctx context.Context, f *Frame) (string, error) {
			return "still", nil
		},
		ShowDiagnostics: true,
	})

	p.ProcessImage(NewFrame(nil, Metadata{Width: 100, Height: 100}))

	require.Eventually(t, func() bool { return overlay.repaintCount() == 1 }, time.Second, 5*time.Millisecond)

	anns := overlay.lastAnnotations()
	require.Len(t, anns, 1)
	info, ok := anns[0].(InferenceInfoAnnotation)
	require.True(t, ok)
	assert.False(t, info.ShowFPS, "FPS is meaningless for a one-shot image")

	// The still path records latency like a live frame.
	assert.Equal(t, 1, p.Stats().RunCount)
}

func TestProcessor_StopIsIdempotent(t *testing.T) {
	p := newTestProcessor(t, Config[string]{
		Detect: func(ctx context.Context, f *Frame) (string, error) { return "", nil },
	})

	p.Stop()
	p.Stop()
	p.Stop()

	assert.True(t, p.Stopped())
	assert.True(t, p.Stats().Stopped)
}

func TestProcessor_StopResetsStatsAndIgnoresLateWork(t *testing.T) {
	det := newBlockingDetector()
	overlay := &testOverlay{}
	p := newTestProcessor(t, Config[string]{Detect: det.detect, Overlay: overlay})

	// Record one successful run first.
	p.Submit(NewFrame(nil, Metadata{}))
	det.awaitStart(t)
	det.release <- struct{}{}
	require.Eventually(t, func() bool {
		return p.Stats().FramesProcessed == 1
	}, time.Second, 5*time.Millisecond)

	// Park a second detection in flight, then stop under it.
	p.Submit(NewFrame(nil, Metadata{}))
	det.awaitStart(t)
	repaintsBeforeStop := overlay.repaintCount()

	p.Stop()

	s := p.Stats()
	assert.True(t, s.Stopped)
	assert.Equal(t, 0, s.RunCount, "stop resets the latency window")
	assert.False(t, s.FrameLatency.HasData)

	// The in-flight detection unwinds via context cancellation and must
	// produce no overlay update.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, repaintsBeforeStop, overlay.repaintCount())

	// Submissions after stop are silently ignored.
	submitted := p.Stats().FramesSubmitted
	p.Submit(NewFrame(nil, Metadata{}))
	p.ProcessImage(NewFrame(nil, Metadata{}))
	assert.Equal(t, submitted, p.Stats().FramesSubmitted)
}

func TestProcessor_FrameLatencyIncludesQueueTime(t *testing.T) {
	det := newBlockingDetector()
	overlay := &testOverlay{}
	p := newTestProcessor(t, Config[string]{
		Detect:          det.detect,
		Overlay:         overlay,
		ShowDiagnostics: true,
	})

	// Hold fA in the detector so fB sits in the slot for a while.
	fA := NewFrame(nil, Metadata{})
	fB := NewFrame(nil, Metadata{})
	p.Submit(fA)
	det.awaitStart(t)
	p.Submit(fB)

	time.Sleep(60 * time.Millisecond)
	det.release <- struct{}{}

	// fB's own detection is released immediately, so its detector time is
	// tiny while its frame time still carries the wait in the slot.
	det.awaitStart(t)
	det.release <- struct{}{}

	require.Eventually(t, func() bool {
		return overlay.repaintCount() == 2
	}, time.Second, 5*time.Millisecond)

	// The overlay now holds fB's diagnostics annotation; aggregate maxima
	// cannot distinguish fB's queue time from fA's detector time, so the
	// assertion is on fB's own figures.
	anns := overlay.lastAnnotations()
	require.Len(t, anns, 1)
	info, ok := anns[0].(InferenceInfoAnnotation)
	require.True(t, ok)
	assert.GreaterOrEqual(t, info.FrameLatencyMs, int64(50))
	assert.Less(t, info.DetectorLatencyMs, int64(50))
	assert.Greater(t, info.FrameLatencyMs, info.DetectorLatencyMs)
}
