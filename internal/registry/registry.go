package registry

import (
	"context"
	"errors"
)

var (
	// ErrPipelineNotFound is returned when a pipeline is not in the registry
	ErrPipelineNotFound = errors.New("pipeline not found")
)

// Registry defines the interface for pipeline registry operations
type Registry interface {
	// Register adds a new pipeline to the registry
	Register(ctx context.Context, p *Pipeline) error

	// Unregister removes a pipeline from the registry
	Unregister(ctx context.Context, pipelineID string) error

	// Get retrieves a pipeline by ID
	Get(ctx context.Context, pipelineID string) (*Pipeline, error)

	// List returns all active pipelines
	List(ctx context.Context) ([]*Pipeline, error)

	// UpdateHeartbeat updates the heartbeat timestamp for a pipeline
	UpdateHeartbeat(ctx context.Context, pipelineID string) error

	// UpdateStatus updates the status of a pipeline
	UpdateStatus(ctx context.Context, pipelineID string, status Status) error

	// UpdateStats updates the statistics for a pipeline
	UpdateStats(ctx context.Context, pipelineID string, stats *Stats) error

	// Update updates an existing pipeline record in the registry
	Update(ctx context.Context, p *Pipeline) error

	// Close closes any resources held by the registry
	Close() error
}
