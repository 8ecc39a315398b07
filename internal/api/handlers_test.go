package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Harvey-AU/knowledge-crawler/internal/classify"
	"github.com/Harvey-AU/knowledge-crawler/internal/crawler"
	"github.com/Harvey-AU/knowledge-crawler/internal/jobs"
	"github.com/Harvey-AU/knowledge-crawler/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testHandler struct {
	service   *MockService
	predictor *MockPredictor
	health    *MockHealth
	mux       *http.ServeMux
}

func newTestHandler(t *testing.T) *testHandler {
	t.Helper()
	th := &testHandler{
		service:   new(MockService),
		predictor: new(MockPredictor),
		health:    new(MockHealth),
		mux:       http.NewServeMux(),
	}
	NewHandler(th.service, th.predictor, th.health).SetupRoutes(th.mux)
	t.Cleanup(func() {
		th.service.AssertExpectations(t)
		th.predictor.AssertExpectations(t)
		th.health.AssertExpectations(t)
	})
	return th
}

func (th *testHandler) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	th.mux.ServeHTTP(w, req)
	return w
}

func decodeSuccess(t *testing.T, w *httptest.ResponseRecorder, data any) SuccessResponse {
	t.Helper()
	var envelope struct {
		SuccessResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "success", envelope.Status)
	if data != nil {
		require.NoError(t, json.Unmarshal(envelope.Data, data))
	}
	return envelope.SuccessResponse
}

func TestHealthCheck(t *testing.T) {
	th := newTestHandler(t)

	w := th.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "knowledge-crawler", health.Service)

	assert.Equal(t, http.StatusMethodNotAllowed, th.do(http.MethodPost, "/health", "").Code)
}

func TestDatabaseHealthCheck(t *testing.T) {
	th := newTestHandler(t)
	th.health.On("Ping", mock.Anything).Return(nil).Once()
	th.health.On("Ping", mock.Anything).Return(errors.New("connection refused")).Once()

	assert.Equal(t, http.StatusOK, th.do(http.MethodGet, "/health/db", "").Code)

	w := th.do(http.MethodGet, "/health/db", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestDatabaseHealthCheck_NotConfigured(t *testing.T) {
	h := &Handler{}
	w := httptest.NewRecorder()
	h.DatabaseHealthCheck(w, httptest.NewRequest(http.MethodGet, "/health/db", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCreateKnowledgeBase(t *testing.T) {
	th := newTestHandler(t)
	workers := 2
	req := jobs.CreateRequest{
		Name:     "docs",
		URLs:     []string{"https://example.com"},
		Depth:    2,
		Settings: &crawler.Overrides{MaxWorkers: &workers},
	}
	th.service.On("Create", mock.Anything, req).Return(&jobs.KnowledgeBase{
		Name:   "docs",
		URLs:   req.URLs,
		Depth:  2,
		Status: jobs.StatusRunning,
	}, nil)

	w := th.do(http.MethodPost, "/v1/knowledge-bases",
		`{"name":"docs","urls":["https://example.com"],"depth":2,"settings":{"max_workers":2}}`)

	assert.Equal(t, http.StatusCreated, w.Code)
	var kb jobs.KnowledgeBase
	decodeSuccess(t, w, &kb)
	assert.Equal(t, "docs", kb.Name)
	assert.Equal(t, jobs.StatusRunning, kb.Status)
}

func TestCreateKnowledgeBase_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{name: "malformed_json", body: `{"name":`, status: http.StatusBadRequest},
		{name: "unknown_field", body: `{"name":"docs","colour":"blue"}`, status: http.StatusBadRequest},
		{name: "duplicate", body: `{"name":"docs","urls":["https://example.com"]}`, err: jobs.ErrKnowledgeBaseExists, status: http.StatusConflict},
		{name: "invalid", body: `{"name":"","urls":[]}`, err: jobs.ErrInvalidRequest, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := newTestHandler(t)
			if tt.err != nil {
				th.service.On("Create", mock.Anything, mock.Anything).Return(nil, tt.err)
			}

			w := th.do(http.MethodPost, "/v1/knowledge-bases", tt.body)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestListKnowledgeBases(t *testing.T) {
	th := newTestHandler(t)
	th.service.On("List", mock.Anything).Return([]jobs.KnowledgeBase{
		{Name: "a", Status: jobs.StatusCompleted},
		{Name: "b", Status: jobs.StatusScheduled},
	}, nil)

	w := th.do(http.MethodGet, "/v1/knowledge-bases", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var data struct {
		KnowledgeBases []jobs.KnowledgeBase `json:"knowledge_bases"`
		Count          int                  `json:"count"`
	}
	decodeSuccess(t, w, &data)
	assert.Equal(t, 2, data.Count)
	assert.Equal(t, "b", data.KnowledgeBases[1].Name)
}

func TestListKnowledgeBases_EmptyIsArray(t *testing.T) {
	th := newTestHandler(t)
	th.service.On("List", mock.Anything).Return(nil, nil)

	w := th.do(http.MethodGet, "/v1/knowledge-bases/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"knowledge_bases":[]`)
}

func TestGetKnowledgeBase(t *testing.T) {
	th := newTestHandler(t)
	th.service.On("Get", mock.Anything, "docs").Return(&jobs.KnowledgeBase{Name: "docs", PagesExtracted: 12}, nil)
	th.service.On("Get", mock.Anything, "missing").Return(nil, jobs.ErrKnowledgeBaseNotFound)

	w := th.do(http.MethodGet, "/v1/knowledge-bases/docs", "")
	assert.Equal(t, http.StatusOK, w.Code)
	var kb jobs.KnowledgeBase
	decodeSuccess(t, w, &kb)
	assert.Equal(t, 12, kb.PagesExtracted)

	assert.Equal(t, http.StatusNotFound, th.do(http.MethodGet, "/v1/knowledge-bases/missing", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, th.do(http.MethodDelete, "/v1/knowledge-bases/docs", "").Code)
	assert.Equal(t, http.StatusNotFound, th.do(http.MethodGet, "/v1/knowledge-bases/docs/pages", "").Code)
}

func TestAddURLs(t *testing.T) {
	th := newTestHandler(t)
	urls := []string{"https://example.com/new", "https://example.com"}
	th.service.On("AddURLs", mock.Anything, "docs", urls).Return([]string{"https://example.com/new"}, nil)

	w := th.do(http.MethodPost, "/v1/knowledge-bases/docs/urls",
		`{"urls":["https://example.com/new","https://example.com"]}`)

	assert.Equal(t, http.StatusAccepted, w.Code)
	var data struct {
		Name  string   `json:"name"`
		Added []string `json:"added"`
	}
	decodeSuccess(t, w, &data)
	assert.Equal(t, "docs", data.Name)
	assert.Equal(t, []string{"https://example.com/new"}, data.Added)
}

func TestAddURLs_NothingNew(t *testing.T) {
	th := newTestHandler(t)
	th.service.On("AddURLs", mock.Anything, "docs", []string{"https://example.com"}).Return([]string{}, nil)

	w := th.do(http.MethodPost, "/v1/knowledge-bases/docs/urls", `{"urls":["https://example.com"]}`)

	assert.Equal(t, http.StatusAccepted, w.Code)
	resp := decodeSuccess(t, w, nil)
	assert.Contains(t, resp.Message, "already")
}

func TestAddURLs_Errors(t *testing.T) {
	tests := []struct {
		name   string
		method string
		body   string
		err    error
		status int
	}{
		{name: "wrong_method", method: http.MethodGet, status: http.StatusMethodNotAllowed},
		{name: "empty_urls", method: http.MethodPost, body: `{"urls":[]}`, status: http.StatusBadRequest},
		{name: "unknown_kb", method: http.MethodPost, body: `{"urls":["https://a.example"]}`, err: jobs.ErrKnowledgeBaseNotFound, status: http.StatusNotFound},
		{name: "run_in_progress", method: http.MethodPost, body: `{"urls":["https://a.example"]}`, err: jobs.ErrRunInProgress, status: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := newTestHandler(t)
			if tt.err != nil {
				th.service.On("AddURLs", mock.Anything, "docs", mock.Anything).Return(nil, tt.err)
			}

			w := th.do(tt.method, "/v1/knowledge-bases/docs/urls", tt.body)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestStatusHandler(t *testing.T) {
	th := newTestHandler(t)
	th.service.On("Status").Return(jobs.StatusReport{
		KnowledgeBase: "docs",
		Progress: crawler.Progress{
			Status:         crawler.StatusRunning,
			PagesExtracted: 4,
			TotalPages:     9,
		},
	})

	w := th.do(http.MethodGet, "/v1/status", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var data map[string]any
	decodeSuccess(t, w, &data)
	assert.Equal(t, "running", data["status"])
	assert.Equal(t, float64(4), data["pages_extracted"])
	assert.Equal(t, float64(9), data["total_pages"])
	assert.Equal(t, "docs", data["knowledge_base"])
}

func TestPredictHandler(t *testing.T) {
	th := newTestHandler(t)
	th.predictor.On("Predict", mock.Anything, "https://example.com", 2).Return(&classify.Prediction{
		URL:            "https://example.com",
		Depth:          2,
		Area:           "technology",
		PredictedPages: 42.5,
	}, nil)

	w := th.do(http.MethodPost, "/v1/predict", `{"url":"https://example.com","depth":2}`)
	assert.Equal(t, http.StatusOK, w.Code)

	var prediction classify.Prediction
	decodeSuccess(t, w, &prediction)
	assert.Equal(t, "technology", prediction.Area)
	assert.InDelta(t, 42.5, prediction.PredictedPages, 0.001)
}

func TestPredictHandler_Errors(t *testing.T) {
	tests := []struct {
		name   string
		method string
		body   string
		err    error
		status int
	}{
		{name: "wrong_method", method: http.MethodGet, status: http.StatusMethodNotAllowed},
		{name: "missing_url", method: http.MethodPost, body: `{"depth":1}`, status: http.StatusBadRequest},
		{name: "missing_depth", method: http.MethodPost, body: `{"url":"https://example.com"}`, status: http.StatusBadRequest},
		{name: "negative_depth", method: http.MethodPost, body: `{"url":"https://example.com","depth":-1}`, status: http.StatusBadRequest},
		{name: "unknown_area", method: http.MethodPost, body: `{"url":"https://example.com","depth":1}`, err: classify.ErrUnknownArea, status: http.StatusBadRequest},
		{name: "invalid_input", method: http.MethodPost, body: `{"url":"https://example.com","depth":1}`, err: classify.ErrInvalidInput, status: http.StatusBadRequest},
		{name: "untrained", method: http.MethodPost, body: `{"url":"https://example.com","depth":1}`, err: classify.ErrNoTrainingData, status: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := newTestHandler(t)
			if tt.err != nil {
				th.predictor.On("Predict", mock.Anything, "https://example.com", 1).Return(nil, tt.err)
			}

			w := th.do(tt.method, "/v1/predict", tt.body)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestPredictHandler_RejectsNonHTTPURL(t *testing.T) {
	fetcher := new(mocks.MockFetcher)
	predictor := classify.NewPredictor(fetcher, classify.NewKeywordClassifier(), classify.NewEstimator(), nil)

	mux := http.NewServeMux()
	NewHandler(new(MockService), predictor, nil).SetupRoutes(mux)

	for _, body := range []string{
		`{"url":"ftp://example.com","depth":1}`,
		`{"url":"not a url","depth":1}`,
	} {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/predict", strings.NewReader(body)))

		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), body)
		assert.Equal(t, string(ErrCodeValidation), resp.Code, body)
	}

	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestPredictHandler_NotConfigured(t *testing.T) {
	mux := http.NewServeMux()
	NewHandler(new(MockService), nil, nil).SetupRoutes(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/predict", strings.NewReader(`{"url":"https://example.com","depth":1}`)))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
