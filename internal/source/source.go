// Package source provides frame producers that push captured frames into a
// vision pipeline. Producers run on their own goroutines and call the
// pipeline's non-blocking submit function; backpressure is the pipeline's
// concern, not theirs.
package source

import (
	"context"

	"github.com/ocellus/visionpipe/internal/pipeline"
)

// SubmitFunc receives each produced frame. It must not block.
type SubmitFunc func(f *pipeline.Frame)

// Source produces frames until its context is cancelled or Stop is called.
type Source interface {
	// Name identifies the source for logs and metrics.
	Name() string
	// Start begins production. It returns immediately; frames are
	// delivered on a source-owned goroutine.
	Start(ctx context.Context, submit SubmitFunc) error
	// Stop halts production and waits for the producer goroutine to exit.
	Stop()
}
