package crawler

import "sync"

// VisitedSet records normalised URLs claimed for fetching during one crawl.
// A URL enters the set at most once and never leaves it.
type VisitedSet struct {
	mu   sync.RWMutex
	urls map[string]struct{}
}

// NewVisitedSet creates an empty set.
func NewVisitedSet() *VisitedSet {
	return &VisitedSet{urls: make(map[string]struct{})}
}

// MarkIfNotVisited claims url. It returns true only for the first caller.
func (v *VisitedSet) MarkIfNotVisited(url string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, exists := v.urls[url]; exists {
		return false
	}
	v.urls[url] = struct{}{}
	return true
}

// Contains reports whether url has been claimed.
func (v *VisitedSet) Contains(url string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, exists := v.urls[url]
	return exists
}

// Len returns the number of claimed URLs.
func (v *VisitedSet) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.urls)
}
