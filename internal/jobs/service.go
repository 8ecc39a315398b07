package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Harvey-AU/knowledge-crawler/internal/cache"
	"github.com/Harvey-AU/knowledge-crawler/internal/crawler"
	"github.com/Harvey-AU/knowledge-crawler/internal/db"
	"github.com/Harvey-AU/knowledge-crawler/internal/util"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Service manages knowledge bases and runs their crawls
type Service struct {
	store      Store
	locks      cache.Cache
	settings   crawler.Settings
	classifier crawler.Classifier
	scheduler  *Scheduler
	crawlOpts  []crawler.Option

	// background runs started by Create, AddURLs and the scheduler
	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup

	mu         sync.RWMutex
	activeName string
	active     *crawler.ProgressTracker
	lastName   string
	last       *crawler.ProgressTracker
}

// ServiceOption customises a Service
type ServiceOption func(*Service)

// WithClassifier tags each crawl's seed page for history
func WithClassifier(classifier crawler.Classifier) ServiceOption {
	return func(s *Service) { s.classifier = classifier }
}

// WithScheduler replaces the default scheduler
func WithScheduler(scheduler *Scheduler) ServiceOption {
	return func(s *Service) { s.scheduler = scheduler }
}

// WithCrawlerOptions appends options to every crawler the service builds
func WithCrawlerOptions(opts ...crawler.Option) ServiceOption {
	return func(s *Service) { s.crawlOpts = append(s.crawlOpts, opts...) }
}

// NewService creates a job service. settings are the process-wide crawl
// defaults that per-knowledge-base overrides are merged onto.
func NewService(store Store, locks cache.Cache, settings crawler.Settings, opts ...ServiceOption) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		store:    store,
		locks:    locks,
		settings: settings,
		bgCtx:    ctx,
		bgCancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.scheduler == nil {
		s.scheduler = NewScheduler()
	}
	return s
}

// Create validates and stores a knowledge base. With a schedule the first
// run is registered for the next occurrence of that time; otherwise it
// starts immediately in the background.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*KnowledgeBase, error) {
	span := sentry.StartSpan(ctx, "jobs.create")
	defer span.Finish()
	span.SetTag("knowledge_base", req.Name)

	rec, err := s.newRecord(req)
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateKnowledgeBase(ctx, rec); err != nil {
		if errors.Is(err, db.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: %s", ErrKnowledgeBaseExists, req.Name)
		}
		sentry.CaptureException(err)
		return nil, fmt.Errorf("failed to create knowledge base: %w", err)
	}

	if rec.Schedule != "" {
		if _, err := s.scheduleRun(rec.Name, rec.Schedule); err != nil {
			return nil, err
		}
		log.Info().Str("knowledge_base", rec.Name).Str("schedule", rec.Schedule).Msg("Knowledge base scheduled")
	} else {
		s.startBackground(rec.Name, rec.URLs, rec.Depth, req.Settings, false)
		log.Info().Str("knowledge_base", rec.Name).Int("urls", len(rec.URLs)).Msg("Knowledge base run started")
	}

	return fromRecord(rec)
}

func (s *Service) newRecord(req CreateRequest) (*db.KnowledgeBase, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	if req.Depth < 0 {
		return nil, fmt.Errorf("%w: depth cannot be negative", ErrInvalidRequest)
	}

	urls, err := normaliseURLs(req.URLs)
	if err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: at least one url is required", ErrInvalidRequest)
	}

	if req.Schedule != "" {
		if _, _, err := ParseTimeOfDay(req.Schedule); err != nil {
			return nil, err
		}
	}
	if err := s.settings.Apply(req.Settings).Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	settings, err := encodeSettings(req.Settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	status := StatusRunning
	if req.Schedule != "" {
		status = StatusScheduled
	}

	return &db.KnowledgeBase{
		Name:     name,
		URLs:     urls,
		Depth:    req.Depth,
		Schedule: req.Schedule,
		Settings: settings,
		Status:   string(status),
	}, nil
}

// AddURLs appends urls to a knowledge base and crawls only the ones it did
// not already hold. It returns the URLs that were added.
func (s *Service) AddURLs(ctx context.Context, name string, urls []string) ([]string, error) {
	rec, err := s.getRecord(ctx, name)
	if err != nil {
		return nil, err
	}

	incoming, err := normaliseURLs(urls)
	if err != nil {
		return nil, err
	}
	if len(incoming) == 0 {
		return nil, fmt.Errorf("%w: at least one url is required", ErrInvalidRequest)
	}

	added := lo.Without(incoming, rec.URLs...)
	if len(added) == 0 {
		return []string{}, nil
	}

	if s.runLocked(ctx, name) {
		return nil, ErrRunInProgress
	}

	rec.URLs = append(rec.URLs, added...)
	if err := s.store.UpdateKnowledgeBase(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to add urls: %w", err)
	}

	overrides, err := decodeSettings(rec.Settings)
	if err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}

	s.startBackground(name, added, rec.Depth, overrides, true)
	log.Info().Str("knowledge_base", name).Strs("urls", added).Msg("URLs added, run started")

	return added, nil
}

// List returns every knowledge base
func (s *Service) List(ctx context.Context) ([]KnowledgeBase, error) {
	recs, err := s.store.ListKnowledgeBases(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list knowledge bases: %w", err)
	}

	bases := make([]KnowledgeBase, 0, len(recs))
	for i := range recs {
		kb, err := fromRecord(&recs[i])
		if err != nil {
			return nil, fmt.Errorf("failed to decode knowledge base %s: %w", recs[i].Name, err)
		}
		bases = append(bases, *kb)
	}
	return bases, nil
}

// Get returns a single knowledge base
func (s *Service) Get(ctx context.Context, name string) (*KnowledgeBase, error) {
	rec, err := s.getRecord(ctx, name)
	if err != nil {
		return nil, err
	}
	return fromRecord(rec)
}

func (s *Service) getRecord(ctx context.Context, name string) (*db.KnowledgeBase, error) {
	rec, err := s.store.GetKnowledgeBase(ctx, name)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrKnowledgeBaseNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get knowledge base: %w", err)
	}
	return rec, nil
}

// RunNow creates the knowledge base if it does not exist and crawls the
// requested seeds synchronously.
func (s *Service) RunNow(ctx context.Context, req CreateRequest) (*RunSummary, error) {
	rec, err := s.newRecord(req)
	if err != nil {
		return nil, err
	}
	rec.Schedule = ""
	rec.Status = string(StatusCompleted)

	if err := s.store.CreateKnowledgeBase(ctx, rec); err != nil && !errors.Is(err, db.ErrAlreadyExists) {
		return nil, fmt.Errorf("failed to create knowledge base: %w", err)
	}

	return s.Run(ctx, rec.Name, rec.URLs, rec.Depth, req.Settings)
}

// Run crawls seeds one after another under the knowledge base's run lock
// and records the outcome. Cancelling ctx stops at the next wave boundary.
func (s *Service) Run(ctx context.Context, name string, seeds []string, depth int, overrides *crawler.Overrides) (*RunSummary, error) {
	return s.run(ctx, name, seeds, depth, overrides, false)
}

func (s *Service) run(ctx context.Context, name string, seeds []string, depth int, overrides *crawler.Overrides, incremental bool) (*RunSummary, error) {
	span := sentry.StartSpan(ctx, "jobs.run")
	defer span.Finish()
	span.SetTag("knowledge_base", name)

	start := time.Now()
	runID := uuid.New().String()
	logger := log.With().Str("knowledge_base", name).Str("run_id", runID).Logger()

	rec, err := s.getRecord(ctx, name)
	if err != nil {
		return nil, err
	}

	acquired, err := s.locks.SetNX(ctx, lockKey(name), runID, runLockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !acquired {
		return nil, ErrRunInProgress
	}
	defer func() {
		if err := s.locks.Delete(context.WithoutCancel(ctx), lockKey(name)); err != nil {
			logger.Warn().Err(err).Msg("Failed to release run lock")
		}
	}()

	previous := rec.PagesExtracted
	rec.Status = string(StatusRunning)
	rec.LastError = ""
	if err := s.store.UpdateKnowledgeBase(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to mark knowledge base running: %w", err)
	}

	settings := s.settings.Apply(overrides)
	summary := &RunSummary{Name: name, RunID: runID, Seeds: seeds}

	logger.Info().Int("seeds", len(seeds)).Int("depth", depth).Msg("Knowledge base run starting")

	for _, seed := range seeds {
		if err := ctx.Err(); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("cancelled before %s", seed))
			break
		}

		result, err := s.crawlSeed(ctx, name, runID, seed, depth, settings)
		if result != nil {
			summary.Results = append(summary.Results, result)
			summary.PagesExtracted += result.Fetched
		}
		if err != nil {
			logger.Warn().Err(err).Str("seed", seed).Msg("Seed crawl did not complete cleanly")
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", seed, err))
		}
	}
	summary.Duration = time.Since(start)

	rec.Status = string(StatusCompleted)
	rec.PagesExtracted = summary.PagesExtracted
	if incremental {
		rec.PagesExtracted += previous
	}
	var runErr error
	if len(summary.Errors) > 0 {
		rec.Status = string(StatusFailed)
		rec.LastError = strings.Join(summary.Errors, "; ")
		runErr = fmt.Errorf("run finished with %d error(s): %s", len(summary.Errors), rec.LastError)
	}

	if err := s.store.UpdateKnowledgeBase(context.WithoutCancel(ctx), rec); err != nil {
		sentry.CaptureException(err)
		return summary, fmt.Errorf("failed to record run outcome: %w", err)
	}

	logger.Info().
		Str("status", rec.Status).
		Int("pages_extracted", summary.PagesExtracted).
		Dur("duration", summary.Duration).
		Msg("Knowledge base run finished")

	return summary, runErr
}

func (s *Service) crawlSeed(ctx context.Context, name, runID, seed string, depth int, settings crawler.Settings) (*crawler.Result, error) {
	cfg, err := crawler.NewCrawlConfig(seed, depth, settings)
	if err != nil {
		return nil, err
	}

	tracker := crawler.NewProgressTracker()
	s.setActive(name, tracker)
	defer s.finishActive()

	opts := []crawler.Option{
		crawler.WithStore(s.store),
		crawler.WithProgress(tracker),
		crawler.WithRunID(runID),
	}
	if s.classifier != nil {
		opts = append(opts, crawler.WithClassifier(s.classifier))
	}
	opts = append(opts, s.crawlOpts...)

	return crawler.New(cfg, opts...).Crawl(ctx)
}

// Status reports the active crawl, else the last finished one, else idle.
func (s *Service) Status() StatusReport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch {
	case s.active != nil:
		return StatusReport{KnowledgeBase: s.activeName, Progress: s.active.Snapshot()}
	case s.last != nil:
		return StatusReport{KnowledgeBase: s.lastName, Progress: s.last.Snapshot()}
	default:
		return StatusReport{Progress: crawler.Progress{Status: crawler.StatusIdle}}
	}
}

func (s *Service) setActive(name string, tracker *crawler.ProgressTracker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeName, s.active = name, tracker
}

func (s *Service) finishActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		s.lastName, s.last = s.activeName, s.active
	}
	s.activeName, s.active = "", nil
}

// RestoreSchedules re-registers knowledge bases still waiting for their
// scheduled run. It returns how many were registered.
func (s *Service) RestoreSchedules(ctx context.Context) (int, error) {
	recs, err := s.store.ListKnowledgeBases(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list knowledge bases: %w", err)
	}

	restored := 0
	for _, rec := range recs {
		if rec.Status != string(StatusScheduled) || rec.Schedule == "" {
			continue
		}
		if _, err := s.scheduleRun(rec.Name, rec.Schedule); err != nil {
			log.Warn().Err(err).Str("knowledge_base", rec.Name).Msg("Failed to restore schedule")
			continue
		}
		restored++
	}
	return restored, nil
}

// Shutdown stops the scheduler, cancels background runs and waits for them.
func (s *Service) Shutdown(ctx context.Context) error {
	s.scheduler.Stop()
	s.bgCancel()

	done := make(chan struct{})
	go func() {
		s.bg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("background runs did not stop: %w", ctx.Err())
	}
}

// Wait blocks until every background run has finished.
func (s *Service) Wait() {
	s.bg.Wait()
}

func (s *Service) scheduleRun(name, at string) (time.Time, error) {
	return s.scheduler.Schedule(name, at, func() {
		rec, err := s.getRecord(s.bgCtx, name)
		if err != nil {
			log.Error().Err(err).Str("knowledge_base", name).Msg("Scheduled knowledge base vanished")
			return
		}
		overrides, err := decodeSettings(rec.Settings)
		if err != nil {
			log.Error().Err(err).Str("knowledge_base", name).Msg("Scheduled knowledge base has invalid settings")
			return
		}
		s.startBackground(name, rec.URLs, rec.Depth, overrides, false)
	})
}

func (s *Service) startBackground(name string, seeds []string, depth int, overrides *crawler.Overrides, incremental bool) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		defer sentry.Recover()

		if _, err := s.run(s.bgCtx, name, seeds, depth, overrides, incremental); err != nil {
			log.Error().Err(err).Str("knowledge_base", name).Msg("Background run failed")
		}
	}()
}

func (s *Service) runLocked(ctx context.Context, name string) bool {
	_, err := s.locks.Get(ctx, lockKey(name))
	return err == nil
}

func lockKey(name string) string {
	return "run:" + name
}

func normaliseURLs(urls []string) ([]string, error) {
	normalised := make([]string, 0, len(urls))
	for _, raw := range urls {
		parsed, err := util.ParseHTTPURL(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		normalised = append(normalised, util.NormaliseURL(parsed))
	}
	return lo.Uniq(normalised), nil
}
