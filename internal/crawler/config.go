package crawler

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"time"

	"github.com/Harvey-AU/knowledge-crawler/internal/util"
)

// ErrInvalidConfig is returned when a crawl cannot be configured.
var ErrInvalidConfig = errors.New("invalid crawl configuration")

// Settings holds the process-wide crawl defaults.
type Settings struct {
	MaxLinksPerPage   int           `yaml:"max_links_per_page"`  // Cap on links taken from a single page
	InterRequestDelay time.Duration `yaml:"inter_request_delay"` // Pause between dispatch waves
	AllowedFileTypes  []string      `yaml:"allowed_file_types"`  // Path suffixes to follow; "" allows extensionless paths
	MaxWorkers        int           `yaml:"max_workers"`         // Concurrent fetches per wave
	FetchTimeout      time.Duration `yaml:"fetch_timeout"`       // Timeout for a single GET
	UserAgent         string        `yaml:"user_agent"`          // User agent sent with every request
	StrictRobots      bool          `yaml:"strict_robots"`       // Fail the crawl when robots.txt is unreachable
}

// DefaultSettings returns the built-in crawl defaults.
func DefaultSettings() Settings {
	return Settings{
		MaxLinksPerPage:   100,
		InterRequestDelay: 0,
		AllowedFileTypes:  []string{".html", ".htm", ""},
		MaxWorkers:        10,
		FetchTimeout:      10 * time.Second,
		UserAgent:         "KnowledgeCrawler/1.0 (+https://github.com/Harvey-AU/knowledge-crawler)",
		StrictRobots:      false,
	}
}

// Overrides carries optional per-crawl settings. Nil fields keep the default.
type Overrides struct {
	MaxLinksPerPage  *int     `json:"max_links_per_page,omitempty"`
	DelaySeconds     *float64 `json:"delay_seconds,omitempty"`
	AllowedFileTypes []string `json:"allowed_file_types,omitempty"`
	MaxWorkers       *int     `json:"max_workers,omitempty"`
	StrictRobots     *bool    `json:"strict_robots,omitempty"`
}

// Apply returns a copy of s with the overrides applied.
func (s Settings) Apply(o *Overrides) Settings {
	merged := s
	merged.AllowedFileTypes = slices.Clone(s.AllowedFileTypes)
	if o == nil {
		return merged
	}

	if o.MaxLinksPerPage != nil {
		merged.MaxLinksPerPage = *o.MaxLinksPerPage
	}
	if o.DelaySeconds != nil {
		merged.InterRequestDelay = time.Duration(*o.DelaySeconds * float64(time.Second))
	}
	if o.AllowedFileTypes != nil {
		merged.AllowedFileTypes = slices.Clone(o.AllowedFileTypes)
	}
	if o.MaxWorkers != nil {
		merged.MaxWorkers = *o.MaxWorkers
	}
	if o.StrictRobots != nil {
		merged.StrictRobots = *o.StrictRobots
	}
	return merged
}

// Validate checks the settings are usable for a crawl.
func (s Settings) Validate() error {
	if s.MaxLinksPerPage < 1 {
		return fmt.Errorf("%w: max_links_per_page must be at least 1", ErrInvalidConfig)
	}
	if s.MaxWorkers < 1 {
		return fmt.Errorf("%w: max_workers must be at least 1", ErrInvalidConfig)
	}
	if s.InterRequestDelay < 0 {
		return fmt.Errorf("%w: delay cannot be negative", ErrInvalidConfig)
	}
	if s.FetchTimeout <= 0 {
		return fmt.Errorf("%w: fetch_timeout must be positive", ErrInvalidConfig)
	}
	if len(s.AllowedFileTypes) == 0 {
		return fmt.Errorf("%w: allowed_file_types cannot be empty", ErrInvalidConfig)
	}
	return nil
}

// CrawlConfig is the immutable configuration of one crawl.
type CrawlConfig struct {
	BaseURL           string
	MaxDepth          int
	AllowedFileTypes  []string
	MaxLinksPerPage   int
	MaxWorkers        int
	InterRequestDelay time.Duration
	FetchTimeout      time.Duration
	UserAgent         string
	StrictRobots      bool

	base *url.URL
}

// NewCrawlConfig validates the seed URL and settings. It performs no network activity.
func NewCrawlConfig(baseURL string, maxDepth int, settings Settings) (*CrawlConfig, error) {
	base, err := util.ParseHTTPURL(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if maxDepth < 0 {
		return nil, fmt.Errorf("%w: max_depth cannot be negative", ErrInvalidConfig)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	return &CrawlConfig{
		BaseURL:           base.String(),
		MaxDepth:          maxDepth,
		AllowedFileTypes:  slices.Clone(settings.AllowedFileTypes),
		MaxLinksPerPage:   settings.MaxLinksPerPage,
		MaxWorkers:        settings.MaxWorkers,
		InterRequestDelay: settings.InterRequestDelay,
		FetchTimeout:      settings.FetchTimeout,
		UserAgent:         settings.UserAgent,
		StrictRobots:      settings.StrictRobots,
		base:              base,
	}, nil
}

// Base returns a copy of the parsed seed URL.
func (c *CrawlConfig) Base() *url.URL {
	u := *c.base
	return &u
}
