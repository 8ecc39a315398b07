package crawler

import (
	"net/url"
	"strings"

	"github.com/Harvey-AU/knowledge-crawler/internal/util"
	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
)

// LinkExtractor discovers next-depth URLs from one page's HTML. It reads the
// visited set but never writes to it.
type LinkExtractor struct {
	base            *url.URL
	allowedTypes    []string
	maxLinksPerPage int
	visited         *VisitedSet
}

// NewLinkExtractor creates an extractor scoped to the crawl's base host.
func NewLinkExtractor(cfg *CrawlConfig, visited *VisitedSet) *LinkExtractor {
	return &LinkExtractor{
		base:            cfg.Base(),
		allowedTypes:    cfg.AllowedFileTypes,
		maxLinksPerPage: cfg.MaxLinksPerPage,
		visited:         visited,
	}
}

// Extract returns at most maxLinksPerPage tasks at depth+1, in document
// order. Hrefs resolve against pageURL. Malformed markup yields whatever
// anchors the parser recovers, possibly none.
func (e *LinkExtractor) Extract(pageURL string, html string, depth int) []URLTask {
	page, err := url.Parse(pageURL)
	if err != nil {
		log.Debug().Err(err).Str("url", pageURL).Msg("Cannot resolve links against unparseable page URL")
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		log.Debug().Err(err).Str("url", pageURL).Msg("Failed to parse HTML")
		return nil
	}

	var tasks []URLTask
	taken := make(map[string]struct{})

	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		link, ok := util.ResolveReference(page, href)
		if !ok {
			return true
		}

		if !util.SameHost(link, e.base) {
			return true
		}
		if !util.HasAllowedSuffix(link, e.allowedTypes) {
			return true
		}

		normalised := util.NormaliseURL(link)
		if _, dup := taken[normalised]; dup {
			return true
		}
		if e.visited != nil && e.visited.Contains(normalised) {
			return true
		}

		taken[normalised] = struct{}{}
		tasks = append(tasks, URLTask{URL: normalised, Depth: depth + 1})
		return len(tasks) < e.maxLinksPerPage
	})

	log.Debug().
		Str("url", pageURL).
		Int("depth", depth).
		Int("links", len(tasks)).
		Msg("Extracted links")

	return tasks
}
