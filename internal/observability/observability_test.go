package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDisabled(t *testing.T) {
	prov, err := Init(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, prov)

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {})
	assert.NotNil(t, WrapHandler(handler, nil))
}

func TestInitServesCrawlMetrics(t *testing.T) {
	ctx := context.Background()
	prov, err := Init(ctx, Config{Enabled: true, Environment: "test"})
	require.NoError(t, err)
	require.NotNil(t, prov)
	t.Cleanup(func() { _ = prov.Shutdown(context.Background()) })

	assert.Equal(t, "knowledge-crawler", prov.Config.ServiceName)
	require.NotNil(t, prov.MetricsHandler)

	spanCtx, span := StartFetchSpan(ctx, FetchSpanInfo{URL: "http://example.com/"})
	RecordFetch(spanCtx, FetchMetrics{Outcome: "fetched", Duration: 15 * time.Millisecond})
	span.End()
	RecordPagesStored(ctx, 3)
	RecordPagesStored(ctx, 0)

	rr := httptest.NewRecorder()
	prov.MetricsHandler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "crawler_fetch_total")
	assert.Contains(t, string(body), `fetch_outcome="fetched"`)
	assert.Contains(t, string(body), "crawler_pages_stored")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestWrapHandlerPassesThrough(t *testing.T) {
	prov, err := Init(context.Background(), Config{Enabled: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = prov.Shutdown(context.Background()) })

	handler := WrapHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}), prov)

	for _, path := range []string{"/health", "/v1/status"} {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusTeapot, rr.Code, path)
	}
}

func TestWrapTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	client := &http.Client{Transport: WrapTransport(nil)}
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestOTLPEndpointOption(t *testing.T) {
	assert.NotNil(t, getOTLPEndpointOption("https://collector.example:4318/v1/traces"))
	assert.NotNil(t, getOTLPEndpointOption("collector.example:4318"))
}
