package crawler

import (
	"sync"

	"github.com/samber/mo"
)

// Status is the lifecycle state of one crawl.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Progress is a consistent snapshot of a crawl's liveness counters.
type Progress struct {
	Status         Status `json:"status"`
	PagesExtracted int    `json:"pages_extracted"`
	TotalPages     int    `json:"total_pages"`
	CurrentURL     string `json:"current_url,omitempty"`
	Depth          int    `json:"depth"`
}

// ProgressUpdate is a partial update; absent fields are left unchanged.
type ProgressUpdate struct {
	Status         mo.Option[Status]
	CurrentURL     mo.Option[string]
	PagesExtracted mo.Option[int]
	TotalPages     mo.Option[int]
	Depth          mo.Option[int]
}

// ProgressTracker guards a crawl's progress fields as a single unit.
type ProgressTracker struct {
	mu       sync.RWMutex
	progress Progress
}

// NewProgressTracker returns a tracker in the idle state.
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{progress: Progress{Status: StatusIdle}}
}

// Update applies every present field of u atomically.
func (t *ProgressTracker) Update(u ProgressUpdate) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if status, ok := u.Status.Get(); ok {
		t.progress.Status = status
	}
	if current, ok := u.CurrentURL.Get(); ok {
		t.progress.CurrentURL = current
	}
	if pages, ok := u.PagesExtracted.Get(); ok {
		t.progress.PagesExtracted = pages
	}
	if total, ok := u.TotalPages.Get(); ok {
		t.progress.TotalPages = total
	}
	if depth, ok := u.Depth.Get(); ok {
		t.progress.Depth = depth
	}
}

// Status returns (status, pages_extracted, total_pages) from one snapshot.
func (t *ProgressTracker) Status() (Status, int, int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.progress.Status, t.progress.PagesExtracted, t.progress.TotalPages
}

// Snapshot returns a copy of all progress fields.
func (t *ProgressTracker) Snapshot() Progress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.progress
}
