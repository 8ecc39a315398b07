package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// Page is one response served by a Site.
type Page struct {
	Body        string
	ContentType string
	Status      int
	Delay       time.Duration
}

// HTML returns a 200 text/html page.
func HTML(body string) Page {
	return Page{Body: body, ContentType: "text/html; charset=utf-8", Status: http.StatusOK}
}

// Site is a disposable local web site for crawl tests. Paths not in the
// page map return 404. "{{base}}" in a body is replaced with the site URL.
type Site struct {
	*httptest.Server

	mu    sync.Mutex
	pages map[string]Page
	hits  map[string]int
}

// NewSite starts a Site and closes it when the test ends.
func NewSite(t testing.TB, pages map[string]Page) *Site {
	t.Helper()

	site := &Site{pages: pages, hits: make(map[string]int)}
	site.Server = httptest.NewServer(http.HandlerFunc(site.serve))
	t.Cleanup(site.Close)

	return site
}

func (s *Site) serve(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Path
	if r.URL.RawQuery != "" {
		key += "?" + r.URL.RawQuery
	}

	s.mu.Lock()
	s.hits[key]++
	page, ok := s.pages[key]
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}

	if page.Delay > 0 {
		select {
		case <-time.After(page.Delay):
		case <-r.Context().Done():
			return
		}
	}

	if page.ContentType != "" {
		w.Header().Set("Content-Type", page.ContentType)
	}
	status := page.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(strings.ReplaceAll(page.Body, "{{base}}", s.Server.URL)))
}

// URL returns the absolute URL of path on the site.
func (s *Site) URL(path string) string {
	return s.Server.URL + path
}

// Hits returns how many requests path has received.
func (s *Site) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// TotalHits returns the number of requests for paths other than /robots.txt.
func (s *Site) TotalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for path, n := range s.hits {
		if path != "/robots.txt" {
			total += n
		}
	}
	return total
}
