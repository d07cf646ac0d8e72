package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Status is the reported health of one component or of the whole service.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// checkTimeout bounds one checker run; a stuck dependency must not stall
// the whole health sweep.
const checkTimeout = 5 * time.Second

// Check is the recorded outcome of one checker run.
type Check struct {
	Name        string                 `json:"name"`
	Status      Status                 `json:"status"`
	Message     string                 `json:"message,omitempty"`
	LastChecked time.Time              `json:"last_checked"`
	Duration    time.Duration          `json:"-"`
	DurationMS  float64                `json:"duration_ms"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// Checker inspects one dependency. A nil error means healthy; a
// DegradedError marks the component impaired but serving; any other error
// marks it down.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// DetailProvider is implemented by checkers that attach extra fields to
// their Check result, such as per-pipeline counters.
type DetailProvider interface {
	Details() map[string]interface{}
}

// DegradedError reports a component that is impaired but still serving.
type DegradedError struct {
	Reason string
}

func (e *DegradedError) Error() string {
	return e.Reason
}

// Degraded builds a DegradedError with the given reason.
func Degraded(reason string) error {
	return &DegradedError{Reason: reason}
}

// Manager runs registered checkers and caches their latest results.
type Manager struct {
	mu       sync.RWMutex
	checkers []Checker
	results  map[string]*Check
	logger   *logrus.Logger
}

// NewManager creates a health check manager.
func NewManager(logger *logrus.Logger) *Manager {
	return &Manager{
		results: make(map[string]*Check),
		logger:  logger,
	}
}

// Register adds a checker. Safe before and between sweeps; results for a
// new checker appear after its first run.
func (m *Manager) Register(checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, checker)
	m.logger.WithField("checker", checker.Name()).Debug("Registered health checker")
}

// RunChecks runs every registered checker concurrently and returns the
// fresh results, which also replace the cached ones.
func (m *Manager) RunChecks(ctx context.Context) map[string]*Check {
	m.mu.RLock()
	checkers := make([]Checker, len(m.checkers))
	copy(checkers, m.checkers)
	m.mu.RUnlock()

	var wg sync.WaitGroup
	out := make([]*Check, len(checkers))

	for i, c := range checkers {
		wg.Add(1)
		go func(i int, c Checker) {
			defer wg.Done()
			out[i] = m.runOne(ctx, c)
		}(i, c)
	}
	wg.Wait()

	results := make(map[string]*Check, len(out))
	m.mu.Lock()
	for _, check := range out {
		results[check.Name] = check
		m.results[check.Name] = check
	}
	m.mu.Unlock()

	return results
}

func (m *Manager) runOne(ctx context.Context, c Checker) *Check {
	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	err := c.Check(checkCtx)
	elapsed := time.Since(start)

	check := &Check{
		Name:        c.Name(),
		Status:      StatusOK,
		LastChecked: time.Now(),
		Duration:    elapsed,
		DurationMS:  float64(elapsed.Milliseconds()),
	}

	var degraded *DegradedError
	switch {
	case err == nil:
	case errors.As(err, &degraded):
		check.Status = StatusDegraded
		check.Message = degraded.Reason
		m.logger.WithFields(logrus.Fields{
			"checker": c.Name(),
			"reason":  degraded.Reason,
		}).Warn("Health check degraded")
	case errors.Is(err, context.DeadlineExceeded):
		check.Status = StatusDown
		check.Message = "health check timed out"
		m.logger.WithField("checker", c.Name()).Error("Health check timed out")
	default:
		check.Status = StatusDown
		check.Message = err.Error()
		m.logger.WithFields(logrus.Fields{
			"checker": c.Name(),
			"error":   err,
		}).Error("Health check failed")
	}

	if dp, ok := c.(DetailProvider); ok {
		check.Details = dp.Details()
	}

	return check
}

// GetResults returns copies of the latest cached results.
func (m *Manager) GetResults() map[string]*Check {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make(map[string]*Check, len(m.results))
	for name, check := range m.results {
		c := *check
		results[name] = &c
	}
	return results
}

// GetOverallStatus folds the cached results into one service status. Any
// component down takes precedence over degraded; no results at all means
// the first sweep has not completed, reported as down.
func (m *Manager) GetOverallStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.results) == 0 {
		return StatusDown
	}

	overall := StatusOK
	for _, check := range m.results {
		switch check.Status {
		case StatusDown:
			return StatusDown
		case StatusDegraded:
			overall = StatusDegraded
		}
	}
	return overall
}

// StartPeriodicChecks sweeps immediately and then on every interval until
// the context is cancelled.
func (m *Manager) StartPeriodicChecks(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.RunChecks(ctx)

	for {
		select {
		case <-ticker.C:
			m.RunChecks(ctx)
		case <-ctx.Done():
			m.logger.Info("Stopping periodic health checks")
			return
		}
	}
}
