package crawler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCrawlConfig(t *testing.T) {
	cfg, err := NewCrawlConfig("https://Example.com/start", 2, DefaultSettings())
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.MaxDepth)
	assert.Equal(t, "Example.com", cfg.Base().Host)
	assert.Equal(t, DefaultSettings().AllowedFileTypes, cfg.AllowedFileTypes)
	assert.Equal(t, 10, cfg.MaxWorkers)

	// Base hands out copies
	cfg.Base().Host = "mutated"
	assert.Equal(t, "Example.com", cfg.Base().Host)
}

func TestNewCrawlConfig_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		baseURL  string
		depth    int
		settings func(*Settings)
	}{
		{name: "empty_url", baseURL: ""},
		{name: "relative_url", baseURL: "/docs"},
		{name: "bad_scheme", baseURL: "ftp://example.com"},
		{name: "no_host", baseURL: "https://"},
		{name: "negative_depth", baseURL: "https://example.com", depth: -1},
		{name: "zero_links", baseURL: "https://example.com", settings: func(s *Settings) { s.MaxLinksPerPage = 0 }},
		{name: "zero_workers", baseURL: "https://example.com", settings: func(s *Settings) { s.MaxWorkers = 0 }},
		{name: "negative_delay", baseURL: "https://example.com", settings: func(s *Settings) { s.InterRequestDelay = -time.Second }},
		{name: "zero_timeout", baseURL: "https://example.com", settings: func(s *Settings) { s.FetchTimeout = 0 }},
		{name: "no_types", baseURL: "https://example.com", settings: func(s *Settings) { s.AllowedFileTypes = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := DefaultSettings()
			if tt.settings != nil {
				tt.settings(&settings)
			}

			cfg, err := NewCrawlConfig(tt.baseURL, tt.depth, settings)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Nil(t, cfg)
		})
	}
}

func TestSettingsApply(t *testing.T) {
	base := DefaultSettings()

	assert.Equal(t, base, base.Apply(nil))

	links, workers, delay, strict := 5, 3, 1.5, true
	merged := base.Apply(&Overrides{
		MaxLinksPerPage:  &links,
		MaxWorkers:       &workers,
		DelaySeconds:     &delay,
		StrictRobots:     &strict,
		AllowedFileTypes: []string{".php"},
	})

	assert.Equal(t, 5, merged.MaxLinksPerPage)
	assert.Equal(t, 3, merged.MaxWorkers)
	assert.Equal(t, 1500*time.Millisecond, merged.InterRequestDelay)
	assert.True(t, merged.StrictRobots)
	assert.Equal(t, []string{".php"}, merged.AllowedFileTypes)
	assert.Equal(t, base.FetchTimeout, merged.FetchTimeout)

	// The defaults are never mutated through the copy
	merged.AllowedFileTypes[0] = ".asp"
	assert.Equal(t, []string{".html", ".htm", ""}, base.AllowedFileTypes)
}
