package crawler

import (
	"time"
)

// URLTask is one unit of frontier work: a URL and its hop distance from the seed.
type URLTask struct {
	URL   string `json:"url"`
	Depth int    `json:"depth"`
}

// PageRecord is the content of one successfully fetched page.
type PageRecord struct {
	URL         string `json:"url"`
	HTMLContent string `json:"html_content"`
	Depth       int    `json:"depth"`
}

// FetchStatus tags the outcome of a single fetch.
type FetchStatus string

const (
	FetchStatusFetched        FetchStatus = "fetched"
	FetchStatusBlocked        FetchStatus = "blocked"
	FetchStatusWrongType      FetchStatus = "wrong_type"
	FetchStatusTransportError FetchStatus = "transport_error"
)

// FetchOutcome is the result of one fetch attempt. Content is set only when
// Status is FetchStatusFetched; Err is set only for transport errors.
type FetchOutcome struct {
	Status      FetchStatus
	Content     string
	StatusCode  int
	ContentType string
	Err         error
}

// Fetched reports whether the outcome carries page content.
func (o FetchOutcome) Fetched() bool {
	return o.Status == FetchStatusFetched
}

func fetched(content string, statusCode int, contentType string) FetchOutcome {
	return FetchOutcome{Status: FetchStatusFetched, Content: content, StatusCode: statusCode, ContentType: contentType}
}

func blocked() FetchOutcome {
	return FetchOutcome{Status: FetchStatusBlocked}
}

func wrongType(statusCode int, contentType string) FetchOutcome {
	return FetchOutcome{Status: FetchStatusWrongType, StatusCode: statusCode, ContentType: contentType}
}

func transportError(statusCode int, err error) FetchOutcome {
	return FetchOutcome{Status: FetchStatusTransportError, StatusCode: statusCode, Err: err}
}

// Result summarises a finished crawl.
type Result struct {
	RunID      string        `json:"run_id"`
	SeedURL    string        `json:"seed_url"`
	Pages      []PageRecord  `json:"-"`
	Fetched    int           `json:"fetched"`
	Discovered int           `json:"discovered"`
	AreaLabel  string        `json:"area_label"`
	Duration   time.Duration `json:"duration"`
}
