package classify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Harvey-AU/knowledge-crawler/internal/cache"
	"github.com/Harvey-AU/knowledge-crawler/internal/crawler"
	"github.com/Harvey-AU/knowledge-crawler/internal/util"
	"github.com/rs/zerolog/log"
)

var (
	// ErrFetchFailed is returned when the page to classify cannot be retrieved.
	ErrFetchFailed = errors.New("failed to fetch page")

	// ErrInvalidInput is returned for a URL or depth that cannot be predicted.
	ErrInvalidInput = errors.New("invalid prediction input")
)

const areaCacheTTL = 24 * time.Hour

// Prediction is the estimate for one site.
type Prediction struct {
	URL            string  `json:"url"`
	Depth          int     `json:"depth"`
	Area           string  `json:"area"`
	PredictedPages float64 `json:"predicted_pages"`
	Cached         bool    `json:"cached"`
}

// Predictor classifies a live page and estimates its crawl size.
type Predictor struct {
	fetcher    crawler.PageFetcher
	classifier *KeywordClassifier
	estimator  *Estimator
	cache      cache.Cache
}

// NewPredictor wires a predictor. A nil cache disables label caching.
func NewPredictor(fetcher crawler.PageFetcher, classifier *KeywordClassifier, estimator *Estimator, c cache.Cache) *Predictor {
	return &Predictor{fetcher: fetcher, classifier: classifier, estimator: estimator, cache: c}
}

// Predict fetches rawURL, classifies it and estimates the pages a crawl to
// depth would extract.
func (p *Predictor) Predict(ctx context.Context, rawURL string, depth int) (*Prediction, error) {
	target, err := util.ParseHTTPURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if depth < 0 {
		return nil, fmt.Errorf("%w: depth cannot be negative", ErrInvalidInput)
	}

	normalised := util.NormaliseURL(target)
	area, cached, err := p.area(ctx, normalised)
	if err != nil {
		return nil, err
	}

	pages, err := p.estimator.PredictPages(area, depth)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("url", normalised).
		Str("area", area).
		Int("depth", depth).
		Float64("predicted_pages", pages).
		Bool("cached", cached).
		Msg("Prediction computed")

	return &Prediction{URL: normalised, Depth: depth, Area: area, PredictedPages: pages, Cached: cached}, nil
}

func (p *Predictor) area(ctx context.Context, target string) (string, bool, error) {
	key := "area:" + target
	if p.cache != nil {
		area, err := p.cache.Get(ctx, key)
		if err == nil {
			return area, true, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Warn().Err(err).Str("key", key).Msg("Area cache lookup failed")
		}
	}

	outcome := p.fetcher.Fetch(ctx, target)
	if !outcome.Fetched() {
		if outcome.Err != nil {
			return "", false, fmt.Errorf("%w: %s: %v", ErrFetchFailed, outcome.Status, outcome.Err)
		}
		return "", false, fmt.Errorf("%w: %s", ErrFetchFailed, outcome.Status)
	}

	area := p.classifier.ClassifyText(outcome.Content)
	if p.cache != nil {
		if err := p.cache.Set(ctx, key, area, areaCacheTTL); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to cache area")
		}
	}
	return area, false, nil
}
