package crawler

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExtractor(t *testing.T, mutate func(*Settings), visited *VisitedSet) *LinkExtractor {
	t.Helper()
	settings := DefaultSettings()
	if mutate != nil {
		mutate(&settings)
	}
	cfg, err := NewCrawlConfig("http://example.com/", 2, settings)
	require.NoError(t, err)
	return NewLinkExtractor(cfg, visited)
}

func urls(tasks []URLTask) []string {
	out := make([]string, len(tasks))
	for i, task := range tasks {
		out[i] = task.URL
	}
	return out
}

func TestLinkExtractor_Extract(t *testing.T) {
	html := `<html><body>
		<a href="/about">About</a>
		<a href="guide.html">Guide</a>
		<a href="../top.htm#part">Top</a>
		<a href="http://EXAMPLE.com/contact">Contact</a>
		<a href="http://other.com/elsewhere">Elsewhere</a>
		<a href="http://blog.example.com/post">Blog</a>
		<a href="/report.pdf">Report</a>
		<a href="mailto:hello@example.com">Mail</a>
		<a href="javascript:void(0)">JS</a>
		<a href="#section">Anchor</a>
		<a href="/about#team">About again</a>
		<a>No href</a>
	</body></html>`

	tasks := newTestExtractor(t, nil, NewVisitedSet()).Extract("http://example.com/docs/index.html", html, 0)

	assert.Equal(t, []string{
		"http://example.com/about",
		"http://example.com/docs/guide.html",
		"http://example.com/top.htm",
		"http://example.com/contact",
	}, urls(tasks))
	for _, task := range tasks {
		assert.Equal(t, 1, task.Depth)
	}
}

func TestLinkExtractor_AllowedFileTypes(t *testing.T) {
	html := `<a href="/a.html">a</a><a href="/b">b</a><a href="/c.pdf">c</a>`

	htmlOnly := newTestExtractor(t, func(s *Settings) { s.AllowedFileTypes = []string{".html"} }, nil)
	assert.Equal(t, []string{"http://example.com/a.html"}, urls(htmlOnly.Extract("http://example.com/", html, 0)))

	withPDF := newTestExtractor(t, func(s *Settings) { s.AllowedFileTypes = []string{".pdf", ""} }, nil)
	assert.Equal(t, []string{"http://example.com/b", "http://example.com/c.pdf"}, urls(withPDF.Extract("http://example.com/", html, 0)))
}

func TestLinkExtractor_SkipsVisited(t *testing.T) {
	visited := NewVisitedSet()
	visited.MarkIfNotVisited("http://example.com/seen")

	extractor := newTestExtractor(t, nil, visited)
	tasks := extractor.Extract("http://example.com/", `<a href="/seen">x</a><a href="/fresh">y</a>`, 1)

	assert.Equal(t, []string{"http://example.com/fresh"}, urls(tasks))
	assert.Equal(t, 2, tasks[0].Depth)
	assert.False(t, visited.Contains("http://example.com/fresh"), "extraction does not claim URLs")
}

func TestLinkExtractor_CapsLinksPerPage(t *testing.T) {
	var b strings.Builder
	for i := range 20 {
		fmt.Fprintf(&b, `<a href="/p%d">p</a>`, i)
	}

	extractor := newTestExtractor(t, func(s *Settings) { s.MaxLinksPerPage = 5 }, nil)
	tasks := extractor.Extract("http://example.com/", b.String(), 0)

	assert.Equal(t, []string{
		"http://example.com/p0",
		"http://example.com/p1",
		"http://example.com/p2",
		"http://example.com/p3",
		"http://example.com/p4",
	}, urls(tasks))
}

func TestLinkExtractor_DuplicatesDoNotCountTowardCap(t *testing.T) {
	html := `<a href="/x">1</a><a href="/x#a">2</a><a href="/y">3</a>`

	extractor := newTestExtractor(t, func(s *Settings) { s.MaxLinksPerPage = 2 }, nil)
	assert.Equal(t, []string{"http://example.com/x", "http://example.com/y"}, urls(extractor.Extract("http://example.com/", html, 0)))
}

func TestLinkExtractor_MalformedInput(t *testing.T) {
	extractor := newTestExtractor(t, nil, nil)

	assert.Empty(t, extractor.Extract("http://example.com/", "", 0))
	assert.Empty(t, extractor.Extract("http://example.com/", "not html at all <<<", 0))
	assert.Equal(t, []string{"http://example.com/ok"},
		urls(extractor.Extract("http://example.com/", `<div><a href="/ok">unclosed`, 0)))
	assert.Nil(t, extractor.Extract("://bad", `<a href="/ok">x</a>`, 0))
}
