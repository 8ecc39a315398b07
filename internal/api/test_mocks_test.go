package api

import (
	"context"

	"github.com/Harvey-AU/knowledge-crawler/internal/classify"
	"github.com/Harvey-AU/knowledge-crawler/internal/jobs"
	"github.com/stretchr/testify/mock"
)

// MockService is a mock implementation of KnowledgeBaseService
type MockService struct {
	mock.Mock
}

func (m *MockService) Create(ctx context.Context, req jobs.CreateRequest) (*jobs.KnowledgeBase, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jobs.KnowledgeBase), args.Error(1)
}

func (m *MockService) AddURLs(ctx context.Context, name string, urls []string) ([]string, error) {
	args := m.Called(ctx, name, urls)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockService) List(ctx context.Context) ([]jobs.KnowledgeBase, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]jobs.KnowledgeBase), args.Error(1)
}

func (m *MockService) Get(ctx context.Context, name string) (*jobs.KnowledgeBase, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jobs.KnowledgeBase), args.Error(1)
}

func (m *MockService) Status() jobs.StatusReport {
	args := m.Called()
	return args.Get(0).(jobs.StatusReport)
}

// MockPredictor is a mock implementation of Predictor
type MockPredictor struct {
	mock.Mock
}

func (m *MockPredictor) Predict(ctx context.Context, rawURL string, depth int) (*classify.Prediction, error) {
	args := m.Called(ctx, rawURL, depth)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*classify.Prediction), args.Error(1)
}

// MockHealth is a mock implementation of HealthChecker
type MockHealth struct {
	mock.Mock
}

func (m *MockHealth) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
