package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/Harvey-AU/knowledge-crawler/internal/db"
	"github.com/Harvey-AU/knowledge-crawler/internal/observability"
	"github.com/Harvey-AU/knowledge-crawler/internal/util"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/mo"
)

// defaultAreaLabel is recorded when the seed page cannot be classified.
const defaultAreaLabel = "other"

// Crawler drives one breadth-first crawl from a single seed URL. Each depth
// level is dispatched as one wave and the next wave starts only after every
// task of the current one has finished.
type Crawler struct {
	config     *CrawlConfig
	client     *http.Client
	fetcher    PageFetcher
	robots     *RobotsPolicy
	store      PageStore
	classifier Classifier
	visited    *VisitedSet
	progress   *ProgressTracker
	pool       *workerPool
	runID      string

	mu      sync.Mutex
	fetched int
}

// Option customises a Crawler.
type Option func(*Crawler)

// WithStore hands fetched pages and history to store at crawl completion.
func WithStore(store PageStore) Option {
	return func(c *Crawler) { c.store = store }
}

// WithClassifier tags the seed page for the history entry.
func WithClassifier(classifier Classifier) Option {
	return func(c *Crawler) { c.classifier = classifier }
}

// WithFetcher replaces the default colly-backed fetcher.
func WithFetcher(fetcher PageFetcher) Option {
	return func(c *Crawler) { c.fetcher = fetcher }
}

// WithHTTPClient sets the client used for robots.txt and the default fetcher.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Crawler) { c.client = client }
}

// WithRobotsPolicy skips fetching robots.txt and uses policy instead.
func WithRobotsPolicy(policy *RobotsPolicy) Option {
	return func(c *Crawler) { c.robots = policy }
}

// WithProgress reports progress into tracker.
func WithProgress(tracker *ProgressTracker) Option {
	return func(c *Crawler) { c.progress = tracker }
}

// WithRunID tags logs, spans and history with id.
func WithRunID(id string) Option {
	return func(c *Crawler) { c.runID = id }
}

// New creates a crawler for cfg. Every crawler owns a fresh visited set.
func New(cfg *CrawlConfig, opts ...Option) *Crawler {
	c := &Crawler{
		config:  cfg,
		visited: NewVisitedSet(),
		pool:    newWorkerPool(cfg.MaxWorkers),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.client == nil {
		c.client = NewHTTPClient(cfg.FetchTimeout)
	}
	if c.fetcher == nil {
		c.fetcher = NewFetcher(c.client, cfg.UserAgent)
	}
	if c.progress == nil {
		c.progress = NewProgressTracker()
	}
	if c.runID == "" {
		c.runID = uuid.New().String()
	}

	return c
}

// Progress returns the tracker this crawler reports into.
func (c *Crawler) Progress() *ProgressTracker {
	return c.progress
}

// TotalLinksExtracted returns the number of pages actually fetched.
func (c *Crawler) TotalLinksExtracted() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetched
}

// Crawl runs the crawl to completion. Cancelling ctx stops the crawl before
// the next wave is dispatched; pages already fetched are still stored.
func (c *Crawler) Crawl(ctx context.Context) (*Result, error) {
	start := time.Now()
	logger := log.With().
		Str("run_id", c.runID).
		Str("seed", c.config.BaseURL).
		Logger()

	c.progress.Update(ProgressUpdate{
		Status:         mo.Some(StatusRunning),
		CurrentURL:     mo.Some(c.config.BaseURL),
		PagesExtracted: mo.Some(0),
		TotalPages:     mo.Some(0),
		Depth:          mo.Some(0),
	})

	if c.robots == nil {
		policy, err := NewRobotsPolicy(ctx, c.client, c.config.Base(), c.config.UserAgent, c.config.StrictRobots)
		if err != nil {
			c.progress.Update(ProgressUpdate{Status: mo.Some(StatusFailed)})
			sentry.CaptureException(err)
			logger.Error().Err(err).Msg("Crawl failed before start")
			return nil, fmt.Errorf("failed to load robots policy: %w", err)
		}
		c.robots = policy
	}

	logger.Info().
		Int("max_depth", c.config.MaxDepth).
		Int("max_workers", c.config.MaxWorkers).
		Bool("robots_permissive", c.robots.Permissive()).
		Msg("Starting crawl")

	pages, discovered, crawlErr := c.traverse(ctx, logger)

	result := &Result{
		RunID:      c.runID,
		SeedURL:    c.config.BaseURL,
		Pages:      pages,
		Fetched:    len(pages),
		Discovered: discovered,
		AreaLabel:  c.classifySeed(pages),
	}

	// Storage runs even when the crawl was cancelled
	storeErr := c.persist(context.WithoutCancel(ctx), result)

	finalStatus := StatusCompleted
	if crawlErr != nil {
		finalStatus = StatusCancelled
	}
	c.progress.Update(ProgressUpdate{
		Status:         mo.Some(finalStatus),
		PagesExtracted: mo.Some(result.Fetched),
		TotalPages:     mo.Some(c.visited.Len()),
	})

	result.Duration = time.Since(start)
	logger.Info().
		Int("fetched", result.Fetched).
		Int("discovered", result.Discovered).
		Str("area", result.AreaLabel).
		Dur("duration", result.Duration).
		Str("status", string(finalStatus)).
		Msg("Crawl finished")

	if crawlErr != nil {
		return result, fmt.Errorf("crawl cancelled: %w", crawlErr)
	}
	if storeErr != nil {
		return result, storeErr
	}
	return result, nil
}

// traverse runs the depth-level waves and returns fetched pages in
// completion order together with the number of links discovered.
func (c *Crawler) traverse(ctx context.Context, logger zerolog.Logger) ([]PageRecord, int, error) {
	extractor := NewLinkExtractor(c.config, c.visited)
	frontier := []URLTask{{URL: util.NormaliseURL(c.config.Base()), Depth: 0}}

	var (
		pages      []PageRecord
		discovered int
	)

	for depth := 0; depth <= c.config.MaxDepth && len(frontier) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			return pages, discovered, err
		}
		if depth > 0 && c.config.InterRequestDelay > 0 {
			if err := sleepContext(ctx, c.config.InterRequestDelay); err != nil {
				return pages, discovered, err
			}
		}

		wave := c.claimWave(frontier)
		c.progress.Update(ProgressUpdate{
			TotalPages: mo.Some(c.visited.Len()),
			Depth:      mo.Some(depth),
		})

		logger.Info().
			Int("depth", depth).
			Int("frontier", len(frontier)).
			Int("tasks", len(wave)).
			Msg("Dispatching wave")

		// An in-flight wave always completes; cancellation is honoured between waves
		results := c.pool.runWave(context.WithoutCancel(ctx), wave, func(ctx context.Context, task URLTask) taskResult {
			return c.processTask(ctx, extractor, task)
		})

		var next []URLTask
		for _, r := range results {
			if r.Page != nil {
				pages = append(pages, *r.Page)
			}
			next = append(next, r.Links...)
		}
		discovered += len(next)
		frontier = next
	}

	return pages, discovered, nil
}

// claimWave keeps the tasks that are within depth and not yet claimed,
// claiming each one in the visited set.
func (c *Crawler) claimWave(frontier []URLTask) []URLTask {
	wave := make([]URLTask, 0, len(frontier))
	for _, task := range frontier {
		if task.Depth > c.config.MaxDepth {
			continue
		}
		if !c.visited.MarkIfNotVisited(task.URL) {
			log.Debug().Str("url", task.URL).Msg("URL already visited")
			continue
		}
		wave = append(wave, task)
	}
	return wave
}

func (c *Crawler) processTask(ctx context.Context, extractor *LinkExtractor, task URLTask) taskResult {
	result := taskResult{Task: task}
	c.progress.Update(ProgressUpdate{CurrentURL: mo.Some(task.URL)})

	target, err := url.Parse(task.URL)
	if err != nil {
		result.Status = FetchStatusTransportError
		result.Err = err
		return result
	}

	if !c.robots.CanFetch(target) {
		log.Info().Str("url", task.URL).Msg("Blocked by robots.txt")
		result.Status = FetchStatusBlocked
		return result
	}

	outcome := c.fetcher.Fetch(ctx, task.URL)
	result.Status = outcome.Status
	result.Err = outcome.Err
	if !outcome.Fetched() {
		return result
	}

	result.Page = &PageRecord{URL: task.URL, HTMLContent: outcome.Content, Depth: task.Depth}
	c.recordFetched()

	if task.Depth < c.config.MaxDepth {
		result.Links = extractor.Extract(task.URL, outcome.Content, task.Depth)
	}
	return result
}

func (c *Crawler) recordFetched() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetched++
	c.progress.Update(ProgressUpdate{PagesExtracted: mo.Some(c.fetched)})
}

func (c *Crawler) classifySeed(pages []PageRecord) string {
	if c.classifier == nil {
		return defaultAreaLabel
	}
	for _, page := range pages {
		if page.Depth == 0 {
			return c.classifier.ClassifyText(page.HTMLContent)
		}
	}
	return defaultAreaLabel
}

// persist saves pages in completion order, then the history entry.
func (c *Crawler) persist(ctx context.Context, result *Result) error {
	if c.store == nil {
		return nil
	}

	var errs []error
	stored := 0
	for _, page := range result.Pages {
		if _, err := c.store.SavePage(ctx, page.URL, page.HTMLContent); err != nil {
			errs = append(errs, fmt.Errorf("save page %s: %w", page.URL, err))
			continue
		}
		stored++
	}
	observability.RecordPagesStored(ctx, stored)

	entry := db.HistoryEntry{
		RunID:          c.runID,
		URL:            result.SeedURL,
		Depth:          c.config.MaxDepth,
		PagesExtracted: result.Fetched,
		AreaLabel:      result.AreaLabel,
	}
	if err := c.store.SaveHistory(ctx, entry); err != nil {
		errs = append(errs, fmt.Errorf("save history: %w", err))
	}

	if len(errs) > 0 {
		err := fmt.Errorf("failed to store crawl results: %w", errors.Join(errs...))
		sentry.CaptureException(err)
		log.Error().Err(err).Str("run_id", c.runID).Int("stored", stored).Msg("Storage errors after crawl")
		return err
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
