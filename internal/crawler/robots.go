package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/Harvey-AU/knowledge-crawler/internal/util"
	"github.com/rs/zerolog/log"
	"github.com/temoto/robotstxt"
)

// robotsAgent is the user agent whose group is enforced.
const robotsAgent = "*"

// maxRobotsSize limits how much of robots.txt is read.
const maxRobotsSize = 1 * 1024 * 1024

// ErrRobotsUnavailable is returned in strict mode when robots.txt cannot be retrieved or parsed.
var ErrRobotsUnavailable = errors.New("robots.txt unavailable")

// RobotsPolicy answers allow/deny for URLs on one site. It is fetched once
// per crawl and read-only afterwards.
type RobotsPolicy struct {
	host       string
	group      *robotstxt.Group
	permissive bool
}

// AllowAllPolicy returns a policy that permits every URL.
func AllowAllPolicy(host string) *RobotsPolicy {
	return &RobotsPolicy{host: host, permissive: true}
}

// NewRobotsPolicy fetches {base}/robots.txt. When the declaration cannot be
// retrieved or parsed the policy allows everything, unless strict is set,
// in which case ErrRobotsUnavailable is returned.
func NewRobotsPolicy(ctx context.Context, client *http.Client, base *url.URL, userAgent string, strict bool) (*RobotsPolicy, error) {
	robotsURL := util.RobotsURL(base)

	log.Debug().
		Str("host", base.Host).
		Str("robots_url", robotsURL).
		Msg("Fetching robots.txt")

	data, err := fetchRobots(ctx, client, robotsURL, userAgent)
	if err != nil {
		if strict {
			return nil, fmt.Errorf("%w: %v", ErrRobotsUnavailable, err)
		}
		log.Info().
			Err(err).
			Str("robots_url", robotsURL).
			Msg("robots.txt unavailable, allowing all URLs")
		return AllowAllPolicy(base.Host), nil
	}

	return &RobotsPolicy{
		host:  base.Host,
		group: data.FindGroup(robotsAgent),
	}, nil
}

func fetchRobots(ctx context.Context, client *http.Client, robotsURL, userAgent string) (*robotstxt.RobotsData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	// A server error says nothing about the site's rules.
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("robots.txt returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read robots.txt: %w", err)
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse robots.txt: %w", err)
	}
	return data, nil
}

// CanFetch reports whether u may be fetched under the "*" group.
func (p *RobotsPolicy) CanFetch(u *url.URL) bool {
	if p == nil || p.permissive || p.group == nil {
		return true
	}
	return p.group.Test(util.RequestPath(u))
}

// Permissive reports whether the policy fell back to allow-all.
func (p *RobotsPolicy) Permissive() bool {
	return p.permissive
}
