package crawler

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/Harvey-AU/knowledge-crawler/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func loadPolicy(t *testing.T, site *testutil.Site, strict bool) (*RobotsPolicy, error) {
	t.Helper()
	return NewRobotsPolicy(context.Background(), NewHTTPClient(2*time.Second), mustURL(t, site.URL("/")), "TestBot", strict)
}

func TestRobotsPolicy_Rules(t *testing.T) {
	site := testutil.NewSite(t, map[string]testutil.Page{
		"/robots.txt": {
			Status:      http.StatusOK,
			ContentType: "text/plain",
			Body: `User-agent: *
Disallow: /private
Allow: /private/open

User-agent: OtherBot
Disallow: /
`,
		},
	})

	policy, err := loadPolicy(t, site, false)
	require.NoError(t, err)
	assert.False(t, policy.Permissive())

	assert.True(t, policy.CanFetch(mustURL(t, site.URL("/"))))
	assert.True(t, policy.CanFetch(mustURL(t, site.URL("/public/page"))))
	assert.False(t, policy.CanFetch(mustURL(t, site.URL("/private"))))
	assert.False(t, policy.CanFetch(mustURL(t, site.URL("/private/secret"))))
	assert.True(t, policy.CanFetch(mustURL(t, site.URL("/private/open"))))
}

func TestRobotsPolicy_MissingAllowsAll(t *testing.T) {
	site := testutil.NewSite(t, map[string]testutil.Page{})

	policy, err := loadPolicy(t, site, true)
	require.NoError(t, err, "a 404 is a valid answer, even in strict mode")
	assert.True(t, policy.CanFetch(mustURL(t, site.URL("/anything"))))
}

func TestRobotsPolicy_ForbiddenAllowsAll(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		site := testutil.NewSite(t, map[string]testutil.Page{
			"/robots.txt": {Status: status, ContentType: "text/plain", Body: "User-agent: *\nDisallow: /\n"},
		})

		policy, err := loadPolicy(t, site, true)
		require.NoError(t, err, status)
		assert.False(t, policy.Permissive(), "an access-denied robots.txt is an answer, not an outage")
		assert.True(t, policy.CanFetch(mustURL(t, site.URL("/private"))), status)
	}
}

func TestRobotsPolicy_ServerError(t *testing.T) {
	site := testutil.NewSite(t, map[string]testutil.Page{
		"/robots.txt": {Status: http.StatusInternalServerError, ContentType: "text/plain", Body: "boom"},
	})

	policy, err := loadPolicy(t, site, false)
	require.NoError(t, err)
	assert.True(t, policy.Permissive())
	assert.True(t, policy.CanFetch(mustURL(t, site.URL("/private"))))

	policy, err = loadPolicy(t, site, true)
	assert.ErrorIs(t, err, ErrRobotsUnavailable)
	assert.Nil(t, policy)
}

func TestRobotsPolicy_Unreachable(t *testing.T) {
	client := NewHTTPClient(500 * time.Millisecond)
	base := mustURL(t, "http://127.0.0.1:1/")

	policy, err := NewRobotsPolicy(context.Background(), client, base, "TestBot", false)
	require.NoError(t, err)
	assert.True(t, policy.Permissive())

	_, err = NewRobotsPolicy(context.Background(), client, base, "TestBot", true)
	assert.ErrorIs(t, err, ErrRobotsUnavailable)
}

func TestRobotsPolicy_NilAndAllowAll(t *testing.T) {
	var nilPolicy *RobotsPolicy
	assert.True(t, nilPolicy.CanFetch(mustURL(t, "http://a.test/x")))
	assert.True(t, AllowAllPolicy("a.test").CanFetch(mustURL(t, "http://a.test/x")))
}
