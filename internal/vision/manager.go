// Package vision owns the set of running pipelines: creation, lookup,
// stats publication and shutdown.
package vision

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ocellus/visionpipe/internal/config"
	"github.com/ocellus/visionpipe/internal/detector"
	apperrors "github.com/ocellus/visionpipe/internal/errors"
	"github.com/ocellus/visionpipe/internal/imageutil"
	"github.com/ocellus/visionpipe/internal/logger"
	"github.com/ocellus/visionpipe/internal/metrics"
	"github.com/ocellus/visionpipe/internal/pipeline"
	"github.com/ocellus/visionpipe/internal/registry"
	"github.com/ocellus/visionpipe/internal/source"
)

// CreateOptions describes one pipeline to start.
type CreateOptions struct {
	// Detector kind: detector.KindLuminance or detector.KindMotion.
	Detector string
	// Source is started and stopped with the pipeline. Optional; when nil
	// frames arrive only through Submit/ProcessImage.
	Source source.Source
	// Capture geometry, recorded in the registry for operators.
	Width     int
	Height    int
	FrameRate float64
}

// Pipeline is one managed pipeline and its collaborators.
type Pipeline struct {
	ID        string
	Detector  detector.Detector
	Source    source.Source
	Overlay   *pipeline.MemoryOverlay
	Processor *pipeline.Processor[detector.Result]
	CreatedAt time.Time
}

// Manager creates and supervises vision pipelines. It pushes stats
// snapshots and heartbeats to the registry on a fixed interval.
type Manager struct {
	mu        sync.RWMutex
	pipelines map[string]*Pipeline

	cfg      config.PipelineConfig
	registry registry.Registry
	logger   logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started  bool
	stopOnce sync.Once
}

// NewManager builds a manager. The registry may be nil when registration
// is disabled.
func NewManager(cfg config.PipelineConfig, reg registry.Registry, log logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNullLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		pipelines: make(map[string]*Pipeline),
		cfg:       cfg,
		registry:  reg,
		logger:    log.WithField("component", "vision_manager"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the background stats publisher.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	interval := m.cfg.StatsPublishInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	m.wg.Add(1)
	metrics.IncrementGoroutineCreated("stats_publisher")
	go m.publishLoop(interval)
}

// Create starts a new pipeline and registers it.
func (m *Manager) Create(ctx context.Context, opts CreateOptions) (*Pipeline, error) {
	det, err := detector.New(opts.Detector)
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}

	id := registry.GeneratePipelineID(opts.Detector)
	overlay := pipeline.NewMemoryOverlay()
	pipelineLogger := m.logger.WithField("pipeline_id", id)

	proc, err := pipeline.NewProcessor(m.ctx, pipeline.Config[detector.Result]{
		PipelineID: id,
		Detector:   det.Name(),
		Detect:     det.Detect,
		Overlay:    overlay,
		Decode:     imageutil.Decode,
		OnSuccess: func(result detector.Result, o pipeline.Overlay) {
			detector.Annotate(result, o)
		},
		OnFailure: func(err error) {
			pipelineLogger.WithError(err).Warn("Detection failed")
		},
		ShowDiagnostics:  m.cfg.ShowDiagnostics,
		LiveViewport:     m.cfg.LiveViewport,
		StatsResetRuns:   m.cfg.StatsResetRuns,
		FPSInterval:      m.cfg.FPSInterval,
		TemperatureProbe: m.temperatureProbe(),
		Logger:           m.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create processor: %w", err)
	}

	p := &Pipeline{
		ID:        id,
		Detector:  det,
		Source:    opts.Source,
		Overlay:   overlay,
		Processor: proc,
		CreatedAt: time.Now(),
	}

	if m.registry != nil {
		record := &registry.Pipeline{
			ID:         id,
			Detector:   det.Name(),
			Status:     registry.StatusRunning,
			Resolution: fmt.Sprintf("%dx%d", opts.Width, opts.Height),
			FrameRate:  opts.FrameRate,
		}
		if opts.Source != nil {
			record.Source = opts.Source.Name()
		}
		if err := m.registry.Register(ctx, record); err != nil {
			proc.Stop()
			return nil, fmt.Errorf("failed to register pipeline: %w", err)
		}
	}

	if opts.Source != nil {
		if err := opts.Source.Start(m.ctx, proc.Submit); err != nil {
			proc.Stop()
			if m.registry != nil {
				if uerr := m.registry.Unregister(ctx, id); uerr != nil {
					pipelineLogger.WithError(uerr).Warn("Failed to unregister after source start failure")
				}
			}
			return nil, fmt.Errorf("failed to start source: %w", err)
		}
	}

	m.mu.Lock()
	m.pipelines[id] = p
	count := m.countByDetectorLocked(det.Name())
	m.mu.Unlock()

	metrics.SetActivePipelines(det.Name(), count)

	fields := map[string]interface{}{
		"pipeline_id": id,
		"detector":    det.Name(),
	}
	if opts.Source != nil {
		fields["source"] = opts.Source.Name()
	}
	m.logger.WithFields(fields).Info("Pipeline created")

	return p, nil
}

// Get returns a pipeline by ID.
func (m *Manager) Get(id string) (*Pipeline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.pipelines[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("pipeline " + id)
	}
	return p, nil
}

// List returns all managed pipelines.
func (m *Manager) List() []*Pipeline {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Pipeline, 0, len(m.pipelines))
	for _, p := range m.pipelines {
		out = append(out, p)
	}
	return out
}

// Snapshots returns the current stats snapshot of every pipeline. Used
// by the health sweep and the dashboard.
func (m *Manager) Snapshots() []pipeline.Snapshot {
	pipelines := m.List()
	out := make([]pipeline.Snapshot, 0, len(pipelines))
	for _, p := range pipelines {
		out = append(out, p.Processor.Stats())
	}
	return out
}

// Stats returns the current snapshot for one pipeline.
func (m *Manager) Stats(id string) (pipeline.Snapshot, error) {
	p, err := m.Get(id)
	if err != nil {
		return pipeline.Snapshot{}, err
	}
	return p.Processor.Stats(), nil
}

// ProcessStill runs a one-shot detection on a single image frame through
// the named pipeline, bypassing the live frame slot.
func (m *Manager) ProcessStill(id string, f *pipeline.Frame) error {
	p, err := m.Get(id)
	if err != nil {
		return err
	}
	p.Processor.ProcessImage(f)
	return nil
}

// temperatureProbe builds the optional diagnostics probe from config.
func (m *Manager) temperatureProbe() func() (float64, bool) {
	if m.cfg.ThermalZone == "" {
		return nil
	}
	return thermalProbe(m.cfg.ThermalZone)
}

// StopPipeline stops one pipeline, its source and its registry record.
func (m *Manager) StopPipeline(ctx context.Context, id string) error {
	m.mu.Lock()
	p, ok := m.pipelines[id]
	if !ok {
		m.mu.Unlock()
		return apperrors.NewNotFoundError("pipeline " + id)
	}
	delete(m.pipelines, id)
	count := m.countByDetectorLocked(p.Detector.Name())
	m.mu.Unlock()

	m.stop(ctx, p)
	metrics.SetActivePipelines(p.Detector.Name(), count)
	return nil
}

func (m *Manager) stop(ctx context.Context, p *Pipeline) {
	// Source first so no frames arrive during teardown.
	if p.Source != nil {
		p.Source.Stop()
	}
	p.Processor.Stop()

	if m.registry != nil {
		if err := m.registry.UpdateStatus(ctx, p.ID, registry.StatusStopped); err != nil {
			m.logger.WithError(err).WithField("pipeline_id", p.ID).Warn("Failed to mark pipeline stopped")
		}
		if err := m.registry.Unregister(ctx, p.ID); err != nil {
			m.logger.WithError(err).WithField("pipeline_id", p.ID).Warn("Failed to unregister pipeline")
		}
	}

	m.logger.WithField("pipeline_id", p.ID).Info("Pipeline stopped")
}

// Shutdown stops the publisher and all pipelines. Idempotent.
func (m *Manager) Shutdown(ctx context.Context) {
	m.stopOnce.Do(func() {
		m.cancel()
		m.wg.Wait()

		m.mu.Lock()
		remaining := make([]*Pipeline, 0, len(m.pipelines))
		for _, p := range m.pipelines {
			remaining = append(remaining, p)
		}
		m.pipelines = make(map[string]*Pipeline)
		m.mu.Unlock()

		for _, p := range remaining {
			m.stop(ctx, p)
			metrics.SetActivePipelines(p.Detector.Name(), 0)
		}

		m.logger.WithField("pipelines", len(remaining)).Info("Vision manager shut down")
	})
}

func (m *Manager) publishLoop(interval time.Duration) {
	defer m.wg.Done()
	defer metrics.IncrementGoroutineDestroyed("stats_publisher")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.publishStats()
		}
	}
}

// publishStats pushes each pipeline's snapshot to the registry. A publish
// doubles as the heartbeat; the registry refreshes the record TTL on every
// stats update.
func (m *Manager) publishStats() {
	if m.registry == nil {
		return
	}

	ctx, cancel := context.WithTimeout(m.ctx, 5*time.Second)
	defer cancel()

	for _, p := range m.List() {
		snap := p.Processor.Stats()
		if err := m.registry.UpdateStats(ctx, p.ID, registry.StatsFromSnapshot(snap)); err != nil {
			m.logger.WithError(err).WithField("pipeline_id", p.ID).Debug("Failed to publish pipeline stats")
		}
	}
}

// countByDetectorLocked counts pipelines for one detector kind. Callers
// hold m.mu.
func (m *Manager) countByDetectorLocked(kind string) int {
	n := 0
	for _, p := range m.pipelines {
		if p.Detector.Name() == kind {
			n++
		}
	}
	return n
}
