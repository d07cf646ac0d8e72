package registry

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockRegistry is an in-memory implementation of Registry for testing
type MockRegistry struct {
	mu        sync.RWMutex
	pipelines map[string]*Pipeline
	closed    bool
}

// NewMockRegistry creates a new mock registry
func NewMockRegistry() *MockRegistry {
	return &MockRegistry{
		pipelines: make(map[string]*Pipeline),
	}
}

// Register adds a new pipeline to the registry
func (m *MockRegistry) Register(ctx context.Context, p *Pipeline) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("registry is closed")
	}

	if _, exists := m.pipelines[p.ID]; exists {
		return fmt.Errorf("pipeline %s already exists", p.ID)
	}

	// Store a copy (excluding mutex) to avoid external modifications
	cp := copyPipeline(p)
	cp.CreatedAt = time.Now()
	cp.LastHeartbeat = time.Now()

	m.pipelines[p.ID] = cp
	return nil
}

// Unregister removes a pipeline from the registry
func (m *MockRegistry) Unregister(ctx context.Context, pipelineID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("registry is closed")
	}

	if _, exists := m.pipelines[pipelineID]; !exists {
		return fmt.Errorf("pipeline %s not found", pipelineID)
	}

	delete(m.pipelines, pipelineID)
	return nil
}

// Get retrieves a pipeline by ID
func (m *MockRegistry) Get(ctx context.Context, pipelineID string) (*Pipeline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("registry is closed")
	}

	p, exists := m.pipelines[pipelineID]
	if !exists {
		return nil, ErrPipelineNotFound
	}

	return copyPipeline(p), nil
}

// List returns all active pipelines
func (m *MockRegistry) List(ctx context.Context) ([]*Pipeline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("registry is closed")
	}

	out := make([]*Pipeline, 0, len(m.pipelines))
	for _, p := range m.pipelines {
		out = append(out, copyPipeline(p))
	}
	return out, nil
}

// UpdateHeartbeat updates the heartbeat timestamp for a pipeline
func (m *MockRegistry) UpdateHeartbeat(ctx context.Context, pipelineID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("registry is closed")
	}

	p, exists := m.pipelines[pipelineID]
	if !exists {
		return ErrPipelineNotFound
	}

	p.LastHeartbeat = time.Now()
	return nil
}

// UpdateStatus updates the status of a pipeline
func (m *MockRegistry) UpdateStatus(ctx context.Context, pipelineID string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("registry is closed")
	}

	p, exists := m.pipelines[pipelineID]
	if !exists {
		return ErrPipelineNotFound
	}

	p.Status = status
	p.LastHeartbeat = time.Now()
	return nil
}

// UpdateStats updates the statistics for a pipeline
func (m *MockRegistry) UpdateStats(ctx context.Context, pipelineID string, stats *Stats) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("registry is closed")
	}

	p, exists := m.pipelines[pipelineID]
	if !exists {
		return ErrPipelineNotFound
	}

	p.UpdateStats(stats)
	p.LastHeartbeat = time.Now()
	return nil
}

// Update updates an existing pipeline record in the registry
func (m *MockRegistry) Update(ctx context.Context, p *Pipeline) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("registry is closed")
	}

	if _, exists := m.pipelines[p.ID]; !exists {
		return ErrPipelineNotFound
	}

	cp := copyPipeline(p)
	cp.LastHeartbeat = time.Now()
	m.pipelines[p.ID] = cp
	return nil
}

// Close closes the registry
func (m *MockRegistry) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.pipelines = make(map[string]*Pipeline)
	return nil
}

// copyPipeline duplicates the record without copying its mutex.
func copyPipeline(p *Pipeline) *Pipeline {
	return &Pipeline{
		ID:                   p.ID,
		Detector:             p.Detector,
		Source:               p.Source,
		Status:               p.Status,
		CreatedAt:            p.CreatedAt,
		LastHeartbeat:        p.LastHeartbeat,
		Resolution:           p.Resolution,
		FrameRate:            p.FrameRate,
		FramesSubmitted:      p.FramesSubmitted,
		FramesDropped:        p.FramesDropped,
		FramesProcessed:      p.FramesProcessed,
		DetectorErrors:       p.DetectorErrors,
		FPS:                  p.FPS,
		AvgFrameLatencyMs:    p.AvgFrameLatencyMs,
		AvgDetectorLatencyMs: p.AvgDetectorLatencyMs,
	}
}
