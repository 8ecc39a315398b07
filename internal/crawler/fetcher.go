package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Harvey-AU/knowledge-crawler/internal/observability"
	"github.com/gocolly/colly/v2"
	"github.com/rs/zerolog/log"
)

// Fetcher performs single bounded-timeout GET requests. Only 2xx responses
// with an HTML content type yield content; nothing is retried.
type Fetcher struct {
	collector *colly.Collector
	client    *http.Client
}

// NewHTTPClient returns the client shared by the fetcher and the robots checker.
func NewHTTPClient(timeout time.Duration) *http.Client {
	baseTransport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 25,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     120 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: observability.WrapTransport(baseTransport),
	}
}

// maxRedirects matches the limit colly applies with its own redirect handler.
const maxRedirects = 10

// ErrCrossHostRedirect is returned when a page redirects to another host.
var ErrCrossHostRedirect = errors.New("redirect to a different host")

// sameHostRedirect follows redirects only while they stay on the host of the
// original request.
func sameHostRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	if !sameHost(req.URL, via[0].URL) {
		return fmt.Errorf("%w: %s", ErrCrossHostRedirect, req.URL.Host)
	}
	return nil
}

func sameHost(a, b *url.URL) bool {
	return strings.EqualFold(a.Host, b.Host)
}

// NewFetcher creates a fetcher that sends userAgent and uses client for
// transport. The fetcher works on a copy of client that refuses cross-host
// redirects; the robots checker keeps the original.
func NewFetcher(client *http.Client, userAgent string) *Fetcher {
	c := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)
	pageClient := *client
	pageClient.CheckRedirect = sameHostRedirect
	c.SetClient(&pageClient)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9,pt-BR;q=0.8")

		log.Debug().
			Str("url", r.URL.String()).
			Msg("Crawler sending request")
	})

	return &Fetcher{collector: c, client: &pageClient}
}

// Client returns the underlying HTTP client.
func (f *Fetcher) Client() *http.Client {
	return f.client
}

// Fetch GETs target and classifies the response.
func (f *Fetcher) Fetch(ctx context.Context, target string) FetchOutcome {
	ctx, span := observability.StartFetchSpan(ctx, observability.FetchSpanInfo{URL: target})
	defer span.End()

	start := time.Now()
	outcome := f.fetch(ctx, target)

	observability.RecordFetch(ctx, observability.FetchMetrics{
		Outcome:  string(outcome.Status),
		Duration: time.Since(start),
	})
	if outcome.Err != nil {
		span.RecordError(outcome.Err)
	}

	return outcome
}

func (f *Fetcher) fetch(ctx context.Context, target string) FetchOutcome {
	if err := ctx.Err(); err != nil {
		return transportError(0, err)
	}

	// Clone so callbacks registered here stay local to this request
	collector := f.collector.Clone()
	collector.Context = ctx

	var outcome FetchOutcome
	collector.OnResponse(func(r *colly.Response) {
		contentType := r.Headers.Get("Content-Type")
		switch {
		case r.StatusCode < 200 || r.StatusCode > 299:
			outcome = transportError(r.StatusCode, fmt.Errorf("unexpected status code %d", r.StatusCode))
		case !isHTML(contentType):
			outcome = wrongType(r.StatusCode, contentType)
		default:
			outcome = fetched(string(r.Body), r.StatusCode, contentType)
		}
	})

	if err := collector.Visit(target); err != nil {
		log.Warn().
			Err(err).
			Str("url", target).
			Msg("Failed to fetch URL")
		return transportError(0, err)
	}

	switch outcome.Status {
	case "":
		return transportError(0, errors.New("no response received"))
	case FetchStatusTransportError:
		log.Warn().
			Err(outcome.Err).
			Str("url", target).
			Int("status_code", outcome.StatusCode).
			Msg("Failed to fetch URL")
	case FetchStatusWrongType:
		log.Debug().
			Str("url", target).
			Str("content_type", outcome.ContentType).
			Msg("Skipping non-HTML response")
	}

	return outcome
}

func isHTML(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "text/html")
}
