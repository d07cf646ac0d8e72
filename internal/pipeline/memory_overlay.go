package pipeline

import "sync"

// MemoryOverlay is an Overlay that keeps the current annotation set in
// memory for the API and dashboard to read. A repaint publishes the
// working set; readers never observe a half-built overlay.
type MemoryOverlay struct {
	mu        sync.RWMutex
	working   []Annotation
	published []Annotation
	repaints  uint64
}

func NewMemoryOverlay() *MemoryOverlay {
	return &MemoryOverlay{}
}

func (o *MemoryOverlay) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.working = nil
}

func (o *MemoryOverlay) Add(a Annotation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.working = append(o.working, a)
}

func (o *MemoryOverlay) PostRepaint() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.published = make([]Annotation, len(o.working))
	copy(o.published, o.working)
	o.repaints++
}

// Annotations returns the most recently published annotation set.
func (o *MemoryOverlay) Annotations() []Annotation {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]Annotation, len(o.published))
	copy(out, o.published)
	return out
}

// Repaints returns how many repaints have been published.
func (o *MemoryOverlay) Repaints() uint64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.repaints
}
