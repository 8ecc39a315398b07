package crawler

import (
	"context"

	"github.com/Harvey-AU/knowledge-crawler/internal/db"
)

// PageStore persists fetched pages and per-crawl history.
type PageStore interface {
	SavePage(ctx context.Context, url, content string) (*db.Page, error)
	SaveHistory(ctx context.Context, entry db.HistoryEntry) error
}

// Classifier tags page content with a business-area label.
type Classifier interface {
	ClassifyText(content string) string
}

// PageFetcher performs a single GET and reports a tagged outcome.
type PageFetcher interface {
	Fetch(ctx context.Context, target string) FetchOutcome
}
