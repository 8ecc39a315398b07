package util

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/rs/zerolog/log"
)

// skippedSchemes are href prefixes that never point at a crawlable page.
var skippedSchemes = []string{"javascript:", "mailto:", "tel:", "data:"}

// NormaliseURL returns the canonical form used for de-duplication: lowercase
// scheme and host, no fragment, and "/" for an empty path.
func NormaliseURL(u *url.URL) string {
	if u == nil {
		return ""
	}

	normalised := *u
	normalised.Scheme = strings.ToLower(normalised.Scheme)
	normalised.Host = strings.ToLower(normalised.Host)
	normalised.Fragment = ""
	normalised.RawFragment = ""
	if normalised.Path == "" {
		normalised.Path = "/"
		normalised.RawPath = ""
	}

	return normalised.String()
}

// NormaliseRawURL parses and normalises rawURL, returning "" when it is not an absolute URL.
func NormaliseRawURL(rawURL string) string {
	parsed, err := ParseHTTPURL(rawURL)
	if err != nil {
		log.Debug().Str("url", rawURL).Err(err).Msg("Invalid URL format")
		return ""
	}
	return NormaliseURL(parsed)
}

// ParseHTTPURL parses rawURL and requires an http or https scheme and a host.
func ParseHTTPURL(rawURL string) (*url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("url cannot be empty")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("url %q must use http or https", rawURL)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("url %q has no host", rawURL)
	}

	return parsed, nil
}

// ResolveReference resolves href against the page it was found on. It
// returns false for empty hrefs, fragment-only links and non-page schemes.
func ResolveReference(page *url.URL, href string) (*url.URL, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return nil, false
	}

	lower := strings.ToLower(href)
	for _, scheme := range skippedSchemes {
		if strings.HasPrefix(lower, scheme) {
			return nil, false
		}
	}

	ref, err := url.Parse(href)
	if err != nil {
		return nil, false
	}

	resolved := page.ResolveReference(ref)
	if scheme := strings.ToLower(resolved.Scheme); scheme != "http" && scheme != "https" {
		return nil, false
	}
	return resolved, true
}

// SameHost reports whether both URLs share exactly the same host (and port).
// Subdomains do not match.
func SameHost(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return strings.EqualFold(a.Host, b.Host)
}

// HasAllowedSuffix reports whether the URL path ends in one of suffixes.
// An empty suffix admits paths whose last segment carries no extension.
func HasAllowedSuffix(u *url.URL, suffixes []string) bool {
	p := strings.ToLower(u.Path)
	for _, suffix := range suffixes {
		if suffix == "" {
			if path.Ext(p) == "" {
				return true
			}
			continue
		}
		if strings.HasSuffix(p, strings.ToLower(suffix)) {
			return true
		}
	}
	return false
}

// RobotsURL returns the robots.txt location for the site serving base.
func RobotsURL(base *url.URL) string {
	robots := url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/robots.txt"}
	return robots.String()
}

// RequestPath returns the path and query used for robots matching.
func RequestPath(u *url.URL) string {
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return p
}
