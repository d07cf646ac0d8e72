package pipeline

import "sync"

// Slot is the single-writer/single-reader double buffer between the frame
// producer and the detection loop. It holds at most one "latest" frame and
// one "in-flight" frame. A newly arriving frame overwrites, never queues,
// the previous latest frame, so the pipeline is lossy under load.
//
// Submit may race with the completion path on another goroutine, so all
// three operations share one critical section. None of them block.
type Slot struct {
	mu       sync.Mutex
	latest   *Frame
	inFlight *Frame

	// Drop tracking
	consecutiveDrops uint64
	totalDrops       uint64
}

// Submit stores the frame as latest, unconditionally replacing any previous
// unconsumed latest frame. Returns true when a pending frame was dropped.
func (s *Slot) Submit(f *Frame) (dropped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.latest != nil {
		s.consecutiveDrops++
		s.totalDrops++
		dropped = true
	}
	s.latest = f
	return dropped
}

// TryPromote atomically moves latest into in-flight and clears latest.
// It refuses when a frame is already in flight, and returns false when
// there is nothing to promote.
func (s *Slot) TryPromote() (*Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight != nil || s.latest == nil {
		return nil, false
	}

	s.inFlight = s.latest
	s.latest = nil
	s.consecutiveDrops = 0
	return s.inFlight, true
}

// Complete clears the in-flight frame.
func (s *Slot) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = nil
}

// InFlight reports whether a detection is currently running.
func (s *Slot) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight != nil
}

// Pending reports whether a latest frame is waiting for promotion.
func (s *Slot) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest != nil
}

// Drops returns the lifetime count of dropped frames.
func (s *Slot) Drops() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalDrops
}
