package mocks

import (
	"context"

	"github.com/Harvey-AU/knowledge-crawler/internal/crawler"
	"github.com/stretchr/testify/mock"
)

// MockFetcher is a mock implementation of crawler.PageFetcher
type MockFetcher struct {
	mock.Mock
}

// Fetch mocks a single page GET
func (m *MockFetcher) Fetch(ctx context.Context, target string) crawler.FetchOutcome {
	args := m.Called(ctx, target)
	return args.Get(0).(crawler.FetchOutcome)
}

// MockClassifier is a mock implementation of crawler.Classifier
type MockClassifier struct {
	mock.Mock
}

// ClassifyText mocks area classification
func (m *MockClassifier) ClassifyText(content string) string {
	args := m.Called(content)
	return args.String(0)
}
