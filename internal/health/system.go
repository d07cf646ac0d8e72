package health

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sys/unix"
)

// DiskChecker reports degraded when the filesystem holding path is
// nearly full. Frame dumps and rotated logs land on this filesystem, so
// running it to zero takes the capture path down with it.
type DiskChecker struct {
	path      string
	threshold float64

	mu           sync.Mutex
	usedFraction float64
	freeBytes    uint64
}

// NewDiskChecker creates a disk usage checker. threshold is the used
// fraction above which the check degrades, e.g. 0.9 for 90%.
func NewDiskChecker(path string, threshold float64) *DiskChecker {
	return &DiskChecker{path: path, threshold: threshold}
}

func (d *DiskChecker) Name() string {
	return "disk"
}

func (d *DiskChecker) Check(ctx context.Context) error {
	var st unix.Statfs_t
	if err := unix.Statfs(d.path, &st); err != nil {
		return fmt.Errorf("statfs %s: %w", d.path, err)
	}
	if st.Blocks == 0 {
		return fmt.Errorf("statfs %s reported zero blocks", d.path)
	}

	used := 1 - float64(st.Bavail)/float64(st.Blocks)
	free := st.Bavail * uint64(st.Bsize)

	d.mu.Lock()
	d.usedFraction = used
	d.freeBytes = free
	d.mu.Unlock()

	if used >= d.threshold {
		return Degraded(fmt.Sprintf("filesystem %s is %.0f%% full", d.path, used*100))
	}
	return nil
}

func (d *DiskChecker) Details() map[string]interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return map[string]interface{}{
		"path":          d.path,
		"used_fraction": d.usedFraction,
		"free_bytes":    d.freeBytes,
	}
}

// MemoryChecker reports degraded when the Go heap is close to the memory
// the runtime has obtained from the OS. Frame buffers dominate the heap,
// so sustained pressure here usually means a pipeline is leaking frames.
type MemoryChecker struct {
	threshold float64

	mu        sync.Mutex
	heapAlloc uint64
	sysBytes  uint64
}

// NewMemoryChecker creates a heap usage checker. threshold is the
// heap-in-use fraction of runtime-obtained memory above which the check
// degrades.
func NewMemoryChecker(threshold float64) *MemoryChecker {
	return &MemoryChecker{threshold: threshold}
}

func (m *MemoryChecker) Name() string {
	return "memory"
}

func (m *MemoryChecker) Check(ctx context.Context) error {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	m.mu.Lock()
	m.heapAlloc = ms.HeapAlloc
	m.sysBytes = ms.Sys
	m.mu.Unlock()

	if ms.Sys == 0 {
		return nil
	}
	if frac := float64(ms.HeapAlloc) / float64(ms.Sys); frac >= m.threshold {
		return Degraded(fmt.Sprintf("heap at %.0f%% of runtime memory", frac*100))
	}
	return nil
}

func (m *MemoryChecker) Details() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]interface{}{
		"heap_alloc_bytes": m.heapAlloc,
		"sys_bytes":        m.sysBytes,
		"goroutines":       runtime.NumGoroutine(),
	}
}
